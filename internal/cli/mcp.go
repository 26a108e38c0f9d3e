package cli

import (
	"github.com/soyeahso/maestro/internal/mcpserver"
	"github.com/spf13/cobra"
)

func newMCPCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve the tutor as MCP tools over stdio",
		Long:  "Runs an MCP server on stdin/stdout exposing ask, query_knowledge and list_responders. Logs go to stderr.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if err := checkConfig(&cfg); err != nil {
				return err
			}
			a, err := buildApp(cmd.Context(), cfg, paths, log)
			if err != nil {
				return err
			}
			defer a.Close()

			return mcpserver.Serve(mcpserver.New(a.router, a.registry, a.sqlExpert, log))
		},
	}
}
