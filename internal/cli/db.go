package cli

import (
	"fmt"
	"sort"
	"text/tabwriter"

	"github.com/soyeahso/maestro/internal/store"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func newDBCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "db",
		Short: "Manage the knowledge database",
	}

	cmd.AddCommand(newDBInitCmd())
	cmd.AddCommand(newDBSeedCmd())
	cmd.AddCommand(newDBStatsCmd())
	return cmd
}

// openDB opens the configured database, applying migrations.
func openDB() (*store.DB, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	if err := paths.EnsureDirs(); err != nil {
		return nil, err
	}
	return store.Open(paths.DatabasePath(cfg.Database), log)
}

func newDBInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create the database and load the built-in fixtures",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openDB()
			if err != nil {
				return err
			}
			defer db.Close()

			if err := seedIfEmpty(cmd.Context(), db, log); err != nil {
				return err
			}
			v, err := db.SchemaVersion(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Database ready at %s (schema v%d)\n", db.Path(), v)
			return nil
		},
	}
}

func newDBSeedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Load built-in fixtures, skipping rows already present",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openDB()
			if err != nil {
				return err
			}
			defer db.Close()

			added, err := db.Seed(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, t := range store.KnowledgeTables {
				fmt.Fprintf(out, "%-16s +%d\n", t, added[t])
			}
			return nil
		},
	}
}

func newDBStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show row counts, benchmark statuses and stored sessions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openDB()
			if err != nil {
				return err
			}
			defer db.Close()

			var (
				counts   map[string]int
				statuses map[string]int
				sessions []string
			)
			g, ctx := errgroup.WithContext(cmd.Context())
			g.Go(func() (err error) {
				counts, err = db.Counts(ctx)
				return err
			})
			g.Go(func() (err error) {
				statuses, err = store.NewBenchmarkStore(db).StatusCounts(ctx)
				return err
			})
			g.Go(func() (err error) {
				sessions, err = store.NewSQLiteSessionStore(db).List(ctx)
				return err
			})
			if err := g.Wait(); err != nil {
				return err
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "TABLE\tROWS")
			for _, t := range store.KnowledgeTables {
				fmt.Fprintf(tw, "%s\t%d\n", t, counts[t])
			}
			fmt.Fprintln(tw)
			fmt.Fprintln(tw, "BENCHMARKS\tCOUNT")
			keys := make([]string, 0, len(statuses))
			for k := range statuses {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				fmt.Fprintf(tw, "%s\t%d\n", k, statuses[k])
			}
			fmt.Fprintln(tw)
			fmt.Fprintf(tw, "sessions\t%d\n", len(sessions))
			return tw.Flush()
		},
	}
}
