package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/soyeahso/maestro/internal/domain"
	"github.com/soyeahso/maestro/internal/routing"
	"github.com/spf13/cobra"
)

func newAskCmd() *cobra.Command {
	var (
		sessionID string
		responder string
		skill     string
		asJSON    bool
	)

	cmd := &cobra.Command{
		Use:   "ask <message>",
		Short: "Ask the tutor a question",
		Long:  "Routes one message through the classifier and coordinator and prints the answer. Pass --session to continue a conversation.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if err := checkConfig(&cfg); err != nil {
				return err
			}

			ctx := cmd.Context()
			a, err := buildApp(ctx, cfg, paths, log)
			if err != nil {
				return err
			}
			defer a.Close()

			resp, err := a.router.Handle(ctx, routing.Request{
				Message:            strings.Join(args, " "),
				SessionID:          sessionID,
				PreferredResponder: responder,
				SkillLevel:         skill,
			})
			var ce *domain.ConflictError
			if errors.As(err, &ce) {
				return fmt.Errorf("session %s is busy, retry in %s", ce.SessionID, ce.RetryAfter.Round(time.Second))
			}
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(resp)
			}

			fmt.Fprintln(out, resp.Outcome.Text)
			if len(resp.Outcome.Suggestions) > 0 {
				fmt.Fprintln(out)
				for _, s := range resp.Outcome.Suggestions {
					fmt.Fprintf(out, "  > %s\n", s)
				}
			}
			fmt.Fprintf(out, "\n[session %s | %s | %s]\n",
				resp.SessionID, resp.Routing.Top().Responder, resp.Outcome.Meta.Pattern)
			return nil
		},
	}

	cmd.Flags().StringVar(&sessionID, "session", "", "session id to continue (new session if empty)")
	cmd.Flags().StringVar(&responder, "responder", "", "skip classification and ask this responder")
	cmd.Flags().StringVar(&skill, "skill", "", "skill level (beginner, intermediate, advanced)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the full response as JSON")
	return cmd
}
