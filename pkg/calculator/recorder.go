package calculator

import (
	"context"
	"fmt"
	"time"

	"churn-history/pkg/database"
	"churn-history/pkg/models"
)

// Recorded est le résultat d'un enregistrement.
type Recorded struct {
	Entry   models.ChurnHistoryEntry
	Existed bool
}

// Record lit D-1 et la fenêtre glissante, calcule l'entrée et l'écrit, dans une seule transaction.
func Record(ctx context.Context, store database.HistoryStore, d time.Time, snap models.DailyChurnSnapshot) (Recorded, error) {
	d = models.Day(d)
	var out Recorded
	err := store.InTx(ctx, func(tx database.HistoryTx) error {
		prev, err := tx.EntryByDate(ctx, d.AddDate(0, 0, -1))
		if err != nil {
			return fmt.Errorf("read previous day: %w", err)
		}
		from, to := Window(d)
		window, err := tx.EntriesBetween(ctx, from, to)
		if err != nil {
			return fmt.Errorf("read rolling window: %w", err)
		}
		entry, err := BuildEntry(d, snap, prev, window)
		if err != nil {
			return err
		}
		res, err := tx.Upsert(ctx, entry)
		if err != nil {
			return fmt.Errorf("upsert: %w", err)
		}
		out = Recorded{Entry: entry, Existed: res.Existed}
		return nil
	})
	if err != nil {
		return Recorded{}, err
	}
	return out, nil
}
