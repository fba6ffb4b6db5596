package merge

import (
	"context"
	"fmt"
	"os"

	"github.com/cleared-dev/stmtledger/internal/ledger"
	"github.com/cleared-dev/stmtledger/internal/model"
)

func writeSnapshot(path string, rows []model.Transaction) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return fmt.Errorf("creating snapshot: %w", err)
	}
	if err := ledger.WriteTransactions(f, rows); err != nil {
		f.Close()
		return fmt.Errorf("writing snapshot: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("closing snapshot: %w", err)
	}
	return nil
}

// ReadSnapshot loads the rows saved in a snapshot file.
func ReadSnapshot(path string) ([]model.Transaction, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening snapshot: %w", err)
	}
	defer f.Close()
	return ledger.ReadTransactions(f)
}

// Restore puts an account's rows in a snapshot's date range back to what
// they were when the snapshot was taken. It returns rows removed and restored.
func (e *Engine) Restore(ctx context.Context, backupID string) (removed, restored int, err error) {
	if e.store == nil || e.store.Connection().ReadOnly() {
		return 0, 0, fmt.Errorf("restore needs a writable ledger")
	}
	b, err := e.store.Backup(ctx, backupID)
	if err != nil {
		return 0, 0, err
	}
	rows, err := ReadSnapshot(b.Path)
	if err != nil {
		return 0, 0, err
	}

	unlock := e.lock(b.AccountID)
	defer unlock()

	err = e.store.Update(ctx, func(tx *ledger.Tx) error {
		n, err := tx.DeleteRange(ctx, b.AccountID, b.DateFrom, b.DateTo)
		if err != nil {
			return err
		}
		removed = int(n)
		if err := tx.Insert(ctx, rows); err != nil {
			return err
		}
		restored = len(rows)
		return nil
	})
	if err != nil {
		return 0, 0, fmt.Errorf("restoring %s: %w", backupID, err)
	}
	e.log.Info().Str("backup", backupID).Int("removed", removed).Int("restored", restored).Msg("snapshot restored")
	return removed, restored, nil
}
