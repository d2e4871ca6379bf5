package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	boltstore "github.com/jmcleod/chiralgate/history/bbolt"
	"github.com/jmcleod/chiralgate/session"
)

var (
	outcomesLimit   int
	outcomesOffset  int
	outcomesSubject int64
	outcomesJSON    bool
)

var outcomesCmd = &cobra.Command{
	Use:   "outcomes",
	Short: "List recorded verification outcomes",
	Long: `List verification outcomes from the history database, newest first.
The database is opened read-only and may be inspected while serve runs.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := loadConfig()
		if err != nil {
			return err
		}
		store, err := boltstore.OpenReadOnly(filepath.Join(cfg.DataDir, "history.db"))
		if err != nil {
			return fmt.Errorf("failed to open outcome history: %w", err)
		}
		defer store.Close()

		var (
			list  []session.Outcome
			total int
		)
		if outcomesSubject != 0 {
			list, err = store.ForSubject(outcomesSubject)
			total = len(list)
		} else {
			list, total, err = store.List(outcomesLimit, outcomesOffset)
		}
		if err != nil {
			return err
		}

		if outcomesJSON {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(list)
		}
		printOutcomes(cmd.OutOrStdout(), list)
		fmt.Fprintf(cmd.OutOrStdout(), "\n%d of %d outcome(s)\n", len(list), total)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(outcomesCmd)
	outcomesCmd.Flags().IntVar(&outcomesLimit, "limit", 20, "Maximum outcomes to list")
	outcomesCmd.Flags().IntVar(&outcomesOffset, "offset", 0, "Outcomes to skip")
	outcomesCmd.Flags().Int64Var(&outcomesSubject, "subject", 0, "Only list outcomes for this user id")
	outcomesCmd.Flags().BoolVar(&outcomesJSON, "json", false, "Print JSON instead of a table")
}

func printOutcomes(w io.Writer, list []session.Outcome) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tSUBJECT\tGROUP\tKIND\tATTEMPTS\tACTOR\tREASON")
	for _, o := range list {
		actor := "-"
		if o.Actor != 0 {
			actor = fmt.Sprint(o.Actor)
		}
		fmt.Fprintf(tw, "%s\t%d\t%d\t%s\t%d\t%s\t%s\n",
			o.At.Local().Format(time.DateTime), o.SubjectID, o.GroupID, o.Kind, o.Attempts, actor, o.Reason)
	}
	tw.Flush()
}
