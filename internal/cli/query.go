package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/soyeahso/maestro/internal/domain"
	"github.com/soyeahso/maestro/internal/query"
	"github.com/spf13/cobra"
)

func newQueryCmd() *cobra.Command {
	var (
		explain    bool
		showSchema bool
	)

	cmd := &cobra.Command{
		Use:   "query [request]",
		Short: "Run a knowledge base request through the query safety pipeline",
		Long:  "Sends the request straight to sql_expert. --explain grounds and validates the request and prints the compiled statement without running it.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			a, err := buildApp(ctx, cfg, paths, log)
			if err != nil {
				return err
			}
			defer a.Close()

			out := cmd.OutOrStdout()
			if showSchema {
				fmt.Fprint(out, a.schema.Describe())
				return nil
			}
			if len(args) == 0 {
				return fmt.Errorf("a request is required")
			}
			text := strings.Join(args, " ")

			if explain {
				stmt, err := a.explain(ctx, text)
				if re, ok := query.IsRejected(err); ok {
					return fmt.Errorf("request rejected at the %s stage", re.Stage)
				}
				if err != nil {
					return err
				}
				fmt.Fprintln(out, stmt.SQL)
				fmt.Fprintf(out, "args: %v\n", stmt.Args)
				return nil
			}

			res, err := a.sqlExpert.Respond(ctx, domain.Request{Text: text, Session: domain.NewSession("cli")})
			if err != nil {
				return err
			}
			fmt.Fprintln(out, res.Text)
			if res.Meta.ErrorKind != "" {
				return fmt.Errorf("query failed: %s", res.Meta.ErrorKind)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&explain, "explain", false, "print the validated statement instead of running it")
	cmd.Flags().BoolVar(&showSchema, "schema", false, "print the knowledge schema and exit")
	return cmd
}

// explain runs the grounding and validation gates and compiles the plan
// without executing it.
func (a *app) explain(ctx context.Context, text string) (query.Statement, error) {
	draft, _, err := a.pipeline.Ground(ctx, text, a.schema)
	if err != nil {
		return query.Statement{}, err
	}
	plan, err := query.Validate(draft, a.schema, a.pipeline.Limits())
	if err != nil {
		return query.Statement{}, err
	}
	return query.Compile(plan)
}
