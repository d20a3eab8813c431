package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/ai-gateway/chatstream-go/internal/config"
	"github.com/ai-gateway/chatstream-go/internal/guardrails"
	"github.com/ai-gateway/chatstream-go/internal/metrics"
	"github.com/ai-gateway/chatstream-go/internal/observability"
	"github.com/ai-gateway/chatstream-go/internal/orchestrator"
	"github.com/ai-gateway/chatstream-go/internal/provider"
	"github.com/ai-gateway/chatstream-go/internal/transport"
)

type sendOptions struct {
	paramsFile string
	model      string
	repeat     int
	noGuard    bool
}

func newSendCmd(v *viper.Viper) *cobra.Command {
	var opts sendOptions
	cmd := &cobra.Command{
		Use:   "send [message...]",
		Short: "Send a chat request and stream the reply to stdout",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Unmarshal(v)
			if err != nil {
				return errors.Wrap(err, "load config")
			}
			params, err := buildParams(opts, args)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()
			return send(ctx, cfg, params, opts, cmd.OutOrStdout())
		},
	}
	f := cmd.Flags()
	f.String("url", "", "chat completions endpoint")
	f.Duration("timeout", 0, "overall request timeout, 0 disables")
	f.Duration("stream-timeout", 0, "maximum gap between chunks, 0 disables")
	f.String("credential", "", "bearer token sent in the Authorization header")
	f.StringVar(&opts.paramsFile, "params", "", "YAML file with model, messages and extra fields")
	f.StringVar(&opts.model, "model", "", "model name")
	f.IntVar(&opts.repeat, "repeat", 1, "send the same request this many times concurrently")
	f.BoolVar(&opts.noGuard, "no-guardrails", false, "skip the client side input check")
	bindFlags(v, cmd, map[string]string{
		"url":            "url",
		"timeout":        "timeout",
		"stream_timeout": "stream-timeout",
		"credential":     "credential",
	})
	return cmd
}

// buildParams reads the params file, if any, and appends args as a user
// message.
func buildParams(opts sendOptions, args []string) (provider.Params, error) {
	var p provider.Params
	if opts.paramsFile != "" {
		data, err := os.ReadFile(opts.paramsFile)
		if err != nil {
			return p, errors.Wrap(err, "read params")
		}
		if err := yaml.Unmarshal(data, &p); err != nil {
			return p, errors.Wrapf(err, "parse %s", opts.paramsFile)
		}
	}
	if opts.model != "" {
		p.Model = opts.model
	}
	if len(args) > 0 {
		p.Messages = append(p.Messages, provider.Message{Role: provider.RoleUser, Content: strings.Join(args, " ")})
	}
	if len(p.Messages) == 0 {
		return p, errors.New("nothing to send: pass a message or --params")
	}
	p.Stream = true
	return p, nil
}

func send(ctx context.Context, cfg *config.Config, params provider.Params, opts sendOptions, out io.Writer) error {
	shutdown, err := observability.Setup(ctx, cfg.TelemetryURL, "chatstream")
	if err != nil {
		return errors.Wrap(err, "telemetry")
	}
	defer func() { _ = shutdown(context.Background()) }()

	headers := http.Header{}
	for k, val := range cfg.Headers {
		headers.Set(k, val)
	}
	topts := []transport.Option{transport.WithLogger(log.Logger), transport.WithHeaders(headers)}
	if cfg.Credential != "" {
		topts = append(topts, transport.WithCredential("Authorization", "Bearer "+cfg.Credential))
	}
	if !opts.noGuard {
		topts = append(topts, transport.WithMiddlewares(transport.Middlewares{
			OnRequest: guardrails.New(cfg.Banned...).OnRequest,
		}))
	}
	client := transport.New(topts...)

	usage := &metrics.Usage{}
	repeat := max(opts.repeat, 1)
	var mu sync.Mutex
	g, ctx := errgroup.WithContext(ctx)
	for i := range repeat {
		g.Go(func() error {
			var b strings.Builder
			var failed error
			r, err := orchestrator.New(cfg.URL,
				orchestrator.WithManual[provider.Delta](),
				orchestrator.WithTransport[provider.Delta](client),
				orchestrator.WithTimeout[provider.Delta](cfg.Timeout),
				orchestrator.WithStreamTimeout[provider.Delta](cfg.StreamTimeout),
				orchestrator.WithUsage[provider.Delta](usage),
				orchestrator.WithLogger[provider.Delta](log.Logger),
				orchestrator.WithCallbacks(orchestrator.Callbacks[provider.Delta]{
					OnUpdate: func(d provider.Delta) {
						if repeat == 1 {
							_, _ = io.WriteString(out, d.Content)
							return
						}
						b.WriteString(d.Content)
					},
					OnError: func(err error) { failed = err },
				}),
			)
			if err != nil {
				return err
			}
			if err := r.Run(ctx, params); err != nil {
				return err
			}
			r.Wait()
			if failed != nil {
				return failed
			}
			mu.Lock()
			defer mu.Unlock()
			if repeat == 1 {
				_, _ = fmt.Fprintln(out)
			} else {
				_, _ = fmt.Fprintf(out, "[%d] %s\n", i, b.String())
			}
			return nil
		})
	}
	err = g.Wait()

	s := usage.Snapshot()
	ev := log.Info().Int("requests", s.Requests).Int("chunks", s.Chunks)
	for outcome, n := range s.Outcomes {
		ev = ev.Int(outcome, n)
	}
	ev.Msg("usage")
	return err
}
