package database

import (
	"context"
	"time"

	"churn-history/pkg/models"
)

// CustomerSource est la table clients, en lecture seule.
type CustomerSource interface {
	// Count renvoie le nombre de lignes (sert à dimensionner la barre de progression).
	Count(ctx context.Context) (int64, error)
	// Each appelle fn pour chaque ligne; une erreur de fn arrête le parcours et est renvoyée telle quelle.
	Each(ctx context.Context, fn func(models.CustomerRecord) error) error
}

// HistoryTx regroupe les lectures et l'écriture d'une exécution.
type HistoryTx interface {
	// EntryByDate renvoie nil, nil quand la date est absente.
	EntryByDate(ctx context.Context, d time.Time) (*models.ChurnHistoryEntry, error)
	// EntriesBetween renvoie les entrées de [from, to] par date croissante.
	EntriesBetween(ctx context.Context, from, to time.Time) ([]models.ChurnHistoryEntry, error)
	// Upsert insère ou écrase la ligne de e.AnalysisDate et indique si elle existait.
	Upsert(ctx context.Context, e models.ChurnHistoryEntry) (models.UpsertResult, error)
}

// HistoryStore ouvre une transaction : fn en erreur → rollback, sinon commit.
type HistoryStore interface {
	InTx(ctx context.Context, fn func(tx HistoryTx) error) error
}

var (
	_ CustomerSource = (*CustomerTable)(nil)
	_ HistoryStore   = (*HistoryTable)(nil)
	_ HistoryTx      = (*historyTx)(nil)
)
