package cli

import (
	"fmt"
	"strings"

	"github.com/soyeahso/maestro/internal/config"
	"github.com/soyeahso/maestro/internal/llm"
	"github.com/soyeahso/maestro/internal/version"
	"github.com/spf13/cobra"
)

func newStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show Maestro status and configuration summary",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Maestro %s (commit %s)\n\n", version.Version, version.Commit)

			fmt.Fprintf(out, "Config:  %s\n", paths.Config)
			fmt.Fprintf(out, "Data:    %s\n", paths.Data)
			fmt.Fprintf(out, "Logs:    %s\n", paths.Logs)
			fmt.Fprintln(out)

			cfg, err := config.Load(paths.Config)
			if err != nil {
				fmt.Fprintf(out, "Config:  error loading: %v\n", err)
				return nil
			}

			fmt.Fprintf(out, "Gateway: port=%d bind=%s auth=%s maxMessageLen=%d\n",
				cfg.Gateway.Port, cfg.Gateway.Bind, cfg.Gateway.Auth.Mode, cfg.Gateway.MaxMessageLen)
			fmt.Fprintf(out, "Session: store=%s conflict=%s retryAfter=%s history=%d\n",
				cfg.Session.Store, cfg.Session.Conflict, cfg.Session.RetryAfter.Std(), cfg.Session.HistoryWindow)
			fmt.Fprintf(out, "Routing: default=%s threshold=%.2f fallback=%v\n",
				cfg.Routing.DefaultResponder, cfg.Routing.FallbackThreshold, !cfg.Routing.DisableFallback)
			fmt.Fprintf(out, "Dispatch: responderTimeout=%s requestTimeout=%s maxResponders=%d\n",
				cfg.Coordinator.ResponderTimeout.Std(), cfg.Coordinator.RequestTimeout.Std(), cfg.Coordinator.MaxResponders)
			fmt.Fprintf(out, "Query:   limit=%d max=%d execTimeout=%s\n",
				cfg.Query.DefaultLimit, cfg.Query.MaxLimit, cfg.Query.ExecTimeout.Std())
			fmt.Fprintf(out, "DB:      %s\n", paths.DatabasePath(cfg.Database))

			registry := llm.NewRegistryFromConfig(cfg.LLM, log)
			if providers := registry.List(); len(providers) > 0 {
				fmt.Fprintf(out, "LLM:     %s (model %s)\n", strings.Join(providers, ", "), cfg.LLM.Model)
			} else {
				fmt.Fprintln(out, "LLM:     (none configured)")
			}

			issues := config.Validate(&cfg)
			if len(issues) > 0 {
				fmt.Fprintf(out, "\nValidation issues (%d):\n", len(issues))
				for _, issue := range issues {
					fmt.Fprintf(out, "  - %s\n", issue)
				}
			}

			return nil
		},
	}

	return cmd
}
