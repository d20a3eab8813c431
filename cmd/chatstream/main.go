package main

import (
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/ai-gateway/chatstream-go/internal/config"
)

func newRootCmd() *cobra.Command {
	v := config.New()
	root := &cobra.Command{
		Use:           "chatstream",
		Short:         "Streaming chat client and mock backend",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			lvl, _ := cmd.Flags().GetString("log-level")
			l, err := zerolog.ParseLevel(lvl)
			if err != nil {
				return err
			}
			zerolog.SetGlobalLevel(l)
			log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
			return nil
		},
	}
	root.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	root.PersistentFlags().String("telemetry-url", "", "OTLP/HTTP collector host:port")
	mustBind(v, "telemetry_url", root.PersistentFlags().Lookup("telemetry-url"))

	root.AddCommand(newSendCmd(v), newServeCmd(v))
	return root
}

// bindFlags lets each named flag of cmd override its config key when set.
func bindFlags(v *viper.Viper, cmd *cobra.Command, keys map[string]string) {
	for key, name := range keys {
		mustBind(v, key, cmd.Flags().Lookup(name))
	}
}

func mustBind(v *viper.Viper, key string, flag *pflag.Flag) {
	if err := v.BindPFlag(key, flag); err != nil {
		panic(err)
	}
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		log.Error().Err(err).Msg("chatstream failed")
		os.Exit(1)
	}
}
