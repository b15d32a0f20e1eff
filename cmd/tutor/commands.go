package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"maps"
	"os"
	"slices"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"tutor-dispatch/internal/adapter/mcpserver"
	"tutor-dispatch/internal/adapter/tool"
	"tutor-dispatch/internal/adapter/tui/chat"
	"tutor-dispatch/internal/adapter/tui/theme"
	"tutor-dispatch/internal/adapter/tui/uxerror"
	"tutor-dispatch/internal/domain"
	"tutor-dispatch/internal/infra/config"
	"tutor-dispatch/internal/infra/logger"
	"tutor-dispatch/internal/usecase"
)

func newAskCmd(opts *rootOptions) *cobra.Command {
	var agent, session, extra string
	var raw bool
	cmd := &cobra.Command{
		Use:   "ask <query>",
		Short: "Ask one question and print the answer",
		Example: `  tutor ask "Solve 2x + 5 = 15"
  tutor ask --agent physics "What is Newton's second law?"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext(cmd.Context())
			defer stop()
			env, err := opts.bootstrap(ctx, true)
			if err != nil {
				return err
			}
			defer env.cleanup()

			req, err := domain.NewTaskRequest(strings.Join(args, " "), extra, "", session)
			if err != nil {
				return err
			}
			var answer usecase.Answer
			if agent != "" {
				answer, err = env.app.coordinator.AnswerDirect(ctx, strings.ToLower(agent), req)
			} else {
				answer, err = env.app.coordinator.Answer(ctx, req)
			}
			if err != nil {
				return errors.New(uxerror.Humanize(err).Render())
			}
			return printAnswer(cmd.OutOrStdout(), answer, raw)
		},
	}
	cmd.Flags().StringVar(&agent, "agent", "", "ask this specialist directly (math, physics)")
	cmd.Flags().StringVar(&session, "session", "", "session id; prior turns in the session become context")
	cmd.Flags().StringVar(&extra, "context", "", "extra context for the question")
	cmd.Flags().BoolVar(&raw, "raw", false, "print the answer without markdown rendering")
	return cmd
}

func printAnswer(w io.Writer, a usecase.Answer, raw bool) error {
	resp := a.Response
	body := resp.Content
	if !raw {
		r, err := glamour.NewTermRenderer(glamour.WithAutoStyle(), glamour.WithWordWrap(theme.MaxContentWidth))
		if err == nil {
			if out, err := r.Render(resp.Content); err == nil {
				body = out
			}
		}
	}
	fmt.Fprintln(w, strings.TrimRight(body, "\n"))
	if raw {
		return nil
	}
	fmt.Fprintln(w)
	fmt.Fprintf(w, "%s %s  confidence %s  %.0fms\n",
		theme.SymbolArrowR, a.AgentUsed,
		theme.ConfidenceStyle(resp.Confidence).Render(fmt.Sprintf("%.2f", resp.Confidence)),
		resp.ExecutionTimeMS)
	if len(resp.Sources) > 0 {
		fmt.Fprintln(w, theme.Dim.Render("sources: "+strings.Join(resp.Sources, ", ")))
	}
	return nil
}

func newRouteCmd(opts *rootOptions) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "route <query>",
		Short: "Show where the coordinator would send a question",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := opts.bootstrap(cmd.Context(), true)
			if err != nil {
				return err
			}
			defer env.cleanup()

			d := env.app.coordinator.Route(cmd.Context(), domain.TaskRequest{Query: strings.Join(args, " ")})
			return printDecision(cmd.OutOrStdout(), d, asJSON)
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the decision as JSON")
	return cmd
}

func printDecision(w io.Writer, d domain.RoutingDecision, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(d)
	}
	target := "handle directly"
	if d.IsDelegate() {
		target = "delegate " + theme.SymbolArrowR + " " + d.AgentKey
	}
	fmt.Fprintf(w, "%s %s\n", theme.Bold.Render("decision:"), target)
	fmt.Fprintf(w, "%s %s\n", theme.Bold.Render("method:  "), d.Method)
	fmt.Fprintf(w, "%s %s\n", theme.Bold.Render("query:   "), d.Query)
	fmt.Fprintf(w, "%s %s\n", theme.Bold.Render("reason:  "), d.Reasoning)
	return nil
}

func newScoresCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "scores <query>",
		Short: "Show each specialist's keyword score for a question",
		Long:  "Keyword scores are a debugging aid. Routing itself uses LLM function calling.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := opts.bootstrap(cmd.Context(), true)
			if err != nil {
				return err
			}
			defer env.cleanup()

			c := env.app.coordinator
			fmt.Fprintln(cmd.OutOrStdout(), scoresTable(c.Scores(strings.Join(args, " ")), c.Capabilities()))
			return nil
		},
	}
}

func scoresTable(scores map[string]float64, caps map[string]domain.Capability) string {
	keys := slices.Sorted(maps.Keys(scores))
	rows := make([][]string, 0, len(keys))
	for _, k := range keys {
		rows = append(rows, []string{k, caps[k].Name, fmt.Sprintf("%.2f", scores[k]), strings.Join(caps[k].Tools, ", ")})
	}
	return newTable([]string{"KEY", "AGENT", "SCORE", "TOOLS"}, rows).Render()
}

func newAgentsCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "agents",
		Short: "List the registered specialists",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			env, err := opts.bootstrap(cmd.Context(), true)
			if err != nil {
				return err
			}
			defer env.cleanup()

			fmt.Fprintln(cmd.OutOrStdout(), agentsTable(env.app.coordinator.Capabilities()))
			return nil
		},
	}
}

func agentsTable(caps map[string]domain.Capability) string {
	keys := slices.Sorted(maps.Keys(caps))
	rows := make([][]string, 0, len(keys))
	for _, k := range keys {
		c := caps[k]
		rows = append(rows, []string{k, c.Name, c.Focus, strings.Join(c.Tools, ", ")})
	}
	return newTable([]string{"KEY", "NAME", "FOCUS", "TOOLS"}, rows).Render()
}

func newTable(headers []string, rows [][]string) *table.Table {
	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(theme.ColorBorder)).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return theme.Header
			}
			return theme.Cell
		})
}

func newChatCmd(opts *rootOptions) *cobra.Command {
	var agent, session string
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Open an interactive chat with the tutor",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			env, err := opts.bootstrap(cmd.Context(), true)
			if err != nil {
				return err
			}
			defer env.cleanup()

			c := env.app.coordinator
			return chat.Run(chat.Deps{
				Tutor:      c,
				Agents:     c.AgentKeys(),
				Agent:      strings.ToLower(agent),
				SessionID:  session,
				ModelLabel: c.ModelLabel(),
				Logger:     env.log,
			})
		},
	}
	cmd.Flags().StringVar(&agent, "agent", "", "start in direct mode with this specialist")
	cmd.Flags().StringVar(&session, "session", "", "resume a session id")
	return cmd
}

func newMCPCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve the calculator, equation solver and formula tools over MCP stdio",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.load()
			var ve *config.ValidationError
			switch {
			case errors.As(err, &ve):
				// The tool server needs no model provider, so provider
				// validation failures are not fatal here.
				cfg = config.Defaults()
				config.ApplyEnvOverrides(cfg)
			case err != nil:
				return err
			}

			// stdout carries the protocol; logs go to stderr.
			log := logger.NewWithWriter(os.Stderr, cfg.Logger)
			if ve != nil {
				log.Warn("config invalid, serving tools with defaults", "error", ve)
			}
			tools, err := tool.NewCatalog(tool.CatalogConfig{
				FormulasFile:       cfg.Tools.FormulasFile,
				RateLimitPerMinute: cfg.Tools.RateLimitPerMinute,
			}, log)
			if err != nil {
				return err
			}
			return mcpserver.ServeStdio(mcpserver.New(tools, version, log))
		},
	}
}

func newEncryptSecretCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "encrypt-secret <value>",
		Short: "Encrypt a secret for config.yaml with TUTOR_CONFIG_KEY",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			passphrase := os.Getenv("TUTOR_CONFIG_KEY")
			if passphrase == "" {
				return errors.New("TUTOR_CONFIG_KEY must be set")
			}
			enc, err := config.EncryptValue(args[0], passphrase)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), config.SecretPrefix+enc)
			return nil
		},
	}
}
