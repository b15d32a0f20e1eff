package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	"tutor-dispatch/internal/adapter/gateway"
	"tutor-dispatch/internal/usecase"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), opts)
		},
	}
}

func runServe(parent context.Context, opts *rootOptions) error {
	ctx, stop := signalContext(parent)
	defer stop()

	env, err := opts.bootstrap(ctx, false)
	if err != nil {
		return err
	}
	defer env.cleanup()

	scheduler, err := startSessionCleanup(env.cfg.Sessions.CleanupSchedule, env.app.sessions, env.log)
	if err != nil {
		return err
	}
	defer func() { <-scheduler.Stop().Done() }()

	srv := gateway.NewServer(ctx, env.cfg.Server, gateway.HandlerDeps{
		Tutor:   env.app.coordinator,
		Version: version,
	}, env.log)

	env.log.Info("starting tutor",
		"version", version,
		"environment", env.cfg.Environment,
		"addr", env.cfg.Server.Addr,
		"debug_endpoints", env.cfg.Server.DebugEndpoints,
	)
	if err := srv.Start(ctx); err != nil {
		return err
	}
	env.log.Info("tutor stopped")
	return nil
}

// startSessionCleanup schedules expired-session sweeps. An empty schedule
// disables them.
func startSessionCleanup(schedule string, sessions *usecase.SessionStore, log *slog.Logger) (*cron.Cron, error) {
	c := cron.New()
	if schedule != "" {
		_, err := c.AddFunc(schedule, func() {
			if n := sessions.CleanupExpired(); n > 0 {
				log.Info("expired sessions removed", "count", n, "remaining", sessions.Len())
			}
		})
		if err != nil {
			return nil, fmt.Errorf("sessions.cleanup_schedule %q: %w", schedule, err)
		}
	}
	c.Start()
	return c, nil
}
