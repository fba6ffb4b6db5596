package commands

import (
	"fmt"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/cleared-dev/stmtledger/internal/runlog"
)

func newRunsCommand(g *globalFlags) *cobra.Command {
	var accountID string

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List import runs, dry-runs included",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ws, err := openWorkspace(cmd, g)
			if err != nil {
				return err
			}

			entries, err := runlog.Read(ws.dir)
			if err != nil {
				return err
			}
			entries = runlog.ForAccount(entries, accountID)

			out := cmd.OutOrStdout()
			if len(entries) == 0 {
				fmt.Fprintln(out, "no import runs")
				return nil
			}

			tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "STARTED\tRUN\tMODE\tSTATUS\tACCOUNT\tDOCUMENT\tPARSED\tMERGED\tDUP\tFLAGGED\tBACKUP\t")
			for _, e := range entries {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t\n",
					e.StartedAt.Format("2006-01-02 15:04:05"), e.RunID, e.Mode, e.Status,
					e.AccountID, e.SourceDocumentID,
					strconv.Itoa(e.Parsed), strconv.Itoa(e.Merged), strconv.Itoa(e.Duplicate), strconv.Itoa(e.Flagged),
					e.BackupID)
				if e.Error != "" {
					fmt.Fprintf(tw, "\t\terror: %s\t\t\t\t\t\t\t\t\t\n", e.Error)
				}
			}
			return tw.Flush()
		},
	}

	cmd.Flags().StringVar(&accountID, "account", "", "only runs for this account")
	return cmd
}
