// Command tutor runs the multi-agent AI tutor: an HTTP API, one-shot CLI
// queries, an interactive terminal chat and an MCP tool server.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"tutor-dispatch/internal/infra/config"
	"tutor-dispatch/internal/infra/logger"
	"tutor-dispatch/internal/infra/tracer"
)

// version is set at build time via ldflags.
var version = "2.0.0"

type rootOptions struct {
	configPath string
	logLevel   string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:   "tutor",
		Short: "Multi-agent AI tutor",
		Long: `tutor routes student questions to math and physics specialists with
LLM function calling, and answers everything else as a general tutor.

Running tutor without a command starts the HTTP API.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), opts)
		},
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", defaultConfigPath(), "path to config.yaml")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "override logger.level (debug, info, warn, error)")

	root.AddCommand(
		newServeCmd(opts),
		newAskCmd(opts),
		newRouteCmd(opts),
		newScoresCmd(opts),
		newAgentsCmd(opts),
		newChatCmd(opts),
		newMCPCmd(opts),
		newDoctorCmd(opts),
		newEncryptSecretCmd(),
	)
	return root
}

// defaultConfigPath honors TUTOR_CONFIG, then ./config.yaml.
func defaultConfigPath() string {
	if p := os.Getenv("TUTOR_CONFIG"); p != "" {
		return p
	}
	return "config.yaml"
}

func (o *rootOptions) load() (*config.Config, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, err
	}
	if o.logLevel != "" {
		cfg.Logger.Level = o.logLevel
	}
	return cfg, nil
}

// tutorEnv is what every command that talks to the tutor needs.
type tutorEnv struct {
	cfg     *config.Config
	log     *slog.Logger
	app     *app
	cleanup func()
}

// bootstrap loads config and builds the app. Quiet commands log only to
// the configured output at warn level and above so their stdout stays clean.
func (o *rootOptions) bootstrap(ctx context.Context, quiet bool) (*tutorEnv, error) {
	cfg, err := o.load()
	if err != nil {
		return nil, err
	}
	if quiet && o.logLevel == "" {
		cfg.Logger.Level = "warn"
	}

	log, closeLog, err := logger.New(cfg.Logger)
	if err != nil {
		return nil, err
	}
	shutdownTracer, err := tracer.Setup(ctx, cfg.Tracer, tracer.WithVersion(version))
	if err != nil {
		_ = closeLog()
		return nil, fmt.Errorf("tracer: %w", err)
	}

	a, err := buildApp(ctx, cfg, log)
	if err != nil {
		_ = shutdownTracer(context.Background())
		_ = closeLog()
		return nil, err
	}

	return &tutorEnv{
		cfg: cfg,
		log: log,
		app: a,
		cleanup: func() {
			if err := shutdownTracer(context.Background()); err != nil {
				log.Warn("tracer shutdown", "error", err)
			}
			_ = closeLog()
		},
	}, nil
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}
