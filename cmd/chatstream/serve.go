package main

import (
	"os"
	"os/signal"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ai-gateway/chatstream-go/internal/config"
	"github.com/ai-gateway/chatstream-go/internal/server"
)

func newServeCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the mock chat backend",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Unmarshal(v)
			if err != nil {
				return errors.Wrap(err, "load config")
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()
			return server.New(cfg).Start(ctx)
		},
	}
	cmd.Flags().String("address", ":8080", "listen address")
	cmd.Flags().Duration("chunk-delay", 50*time.Millisecond, "pause between streamed words")
	cmd.Flags().StringSlice("banned", nil, "words rejected by the backend")
	bindFlags(v, cmd, map[string]string{
		"address":     "address",
		"chunk_delay": "chunk-delay",
		"banned":      "banned",
	})
	return cmd
}
