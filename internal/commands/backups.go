package commands

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/cleared-dev/stmtledger/internal/id"
	"github.com/cleared-dev/stmtledger/internal/ledger"
	"github.com/cleared-dev/stmtledger/internal/merge"
)

func newBackupsCommand(g *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backups",
		Short: "List ledger snapshots taken before each apply",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ws, err := openWorkspace(cmd, g)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			conn, err := ledger.OpenReadOnly(ws.dbPath())
			if ledger.IsNotExist(err) {
				fmt.Fprintln(out, "no backups")
				return nil
			}
			if err != nil {
				return err
			}
			defer conn.Close()

			backups, err := ledger.NewStore(conn).Backups(cmd.Context())
			if err != nil {
				return err
			}
			if len(backups) == 0 {
				fmt.Fprintln(out, "no backups")
				return nil
			}

			tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "BACKUP\tACCOUNT\tCREATED\tFROM\tTO\tROWS\tPATH\t")
			for _, b := range backups {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%d\t%s\t\n",
					b.BackupID, b.AccountID, b.CreatedAt.Format("2006-01-02 15:04:05"),
					b.DateFrom.Format("2006-01-02"), b.DateTo.Format("2006-01-02"), b.Rows, b.Path)
			}
			return tw.Flush()
		},
	}

	cmd.AddCommand(newRestoreCommand(g))
	return cmd
}

func newRestoreCommand(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "restore <backup-id>",
		Short: "Replace the snapshot's account and date range with the snapshot rows",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			accountID, _, err := id.ParseBackupID(args[0])
			if err != nil {
				return err
			}
			ws, err := openWorkspace(cmd, g)
			if err != nil {
				return err
			}

			conn, err := ledger.Open(ws.dbPath())
			if err != nil {
				return err
			}
			defer conn.Close()

			engine := merge.NewEngine(ledger.NewStore(conn), ws.backupDir(), ws.log)
			removed, restored, err := engine.Restore(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "restored %s (account %s): removed %d rows, restored %d rows\n", args[0], accountID, removed, restored)
			return nil
		},
	}
}
