package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"churn-history/pkg/models"
)

const DefaultHistoryTable = "churn_analysis_history"

const historyKey = "analysis_date"

// historyColumns : ordre des colonnes pour SELECT et upsert (created_at reste au défaut).
var historyColumns = []string{
	historyKey,
	"total_customers",
	"churned_customers",
	"churn_rate",
	"churn_rate_change",
	"churn_rate_7day_avg",
	"churn_month_to_month",
	"churn_one_year",
	"churn_two_year",
	"churn_senior_citizen",
	"churn_no_online_security",
	"churn_no_tech_support",
	"avg_tenure_churned",
	"avg_tenure_retained",
	"avg_monthly_charges_churned",
	"avg_monthly_charges_retained",
	"revenue_loss_churn",
	"high_risk_customers",
	"high_risk_churned",
	"high_risk_churn_rate",
}

// HistoryTable est churn_analysis_history, le système de référence de la série.
type HistoryTable struct {
	db    *DB
	table string

	byDate  string
	between string
	exists  string
	upsert  string
}

func NewHistoryTable(db *DB, table string) (*HistoryTable, error) {
	if table == "" {
		table = DefaultHistoryTable
	}
	if err := checkIdent(table); err != nil {
		return nil, err
	}
	dl := db.Dialect
	cols := strings.Join(historyColumns, ", ")
	return &HistoryTable{
		db:    db,
		table: table,
		byDate: fmt.Sprintf("SELECT %s FROM %s WHERE %s = %s",
			cols, table, historyKey, dl.placeholder(1)),
		between: fmt.Sprintf("SELECT %s FROM %s WHERE %s >= %s AND %s <= %s ORDER BY %s",
			cols, table, historyKey, dl.placeholder(1), historyKey, dl.placeholder(2), historyKey),
		exists: fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE %s = %s",
			table, historyKey, dl.placeholder(1)),
		upsert: dl.upsertSQL(table, historyColumns, historyKey),
	}, nil
}

// InTx exécute fn dans une transaction (SERIALIZABLE, ou lectures FOR UPDATE sur la famille MySQL);
// rollback sur toute erreur ou panic.
func (h *HistoryTable) InTx(ctx context.Context, fn func(tx HistoryTx) error) (err error) {
	tx, err := h.db.BeginTx(ctx, h.db.Dialect.txOptions())
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
				err = errors.Join(err, fmt.Errorf("rollback: %w", rbErr))
			}
		}
	}()

	if err = fn(&historyTx{h: h, q: tx, lock: h.db.Dialect.lockingRead()}); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Entries lit [from, to] hors exécution (commande history).
func (h *HistoryTable) Entries(ctx context.Context, from, to time.Time) ([]models.ChurnHistoryEntry, error) {
	return (&historyTx{h: h, q: h.db}).EntriesBetween(ctx, from, to)
}

// EnsureTable crée la table si elle n'existe pas.
func (h *HistoryTable) EnsureTable(ctx context.Context) error {
	if _, err := h.db.ExecContext(ctx, historyDDL(h.db.Dialect, h.table)); err != nil {
		return fmt.Errorf("create %s: %w", h.table, err)
	}
	return nil
}

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// historyTx : lock est ajouté à chaque lecture faite dans une transaction d'enregistrement.
type historyTx struct {
	h    *HistoryTable
	q    querier
	lock string
}

func (t *historyTx) EntryByDate(ctx context.Context, d time.Time) (*models.ChurnHistoryEntry, error) {
	dl := t.h.db.Dialect
	e, err := scanEntry(t.q.QueryRowContext(ctx, t.h.byDate+t.lock, dl.dateArg(d)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select %s: %w", models.Day(d).Format(models.DateLayout), err)
	}
	return &e, nil
}

func (t *historyTx) EntriesBetween(ctx context.Context, from, to time.Time) ([]models.ChurnHistoryEntry, error) {
	dl := t.h.db.Dialect
	rows, err := t.q.QueryContext(ctx, t.h.between+t.lock, dl.dateArg(from), dl.dateArg(to))
	if err != nil {
		return nil, fmt.Errorf("select range: %w", err)
	}
	defer rows.Close()

	var out []models.ChurnHistoryEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (t *historyTx) Upsert(ctx context.Context, e models.ChurnHistoryEntry) (models.UpsertResult, error) {
	dl := t.h.db.Dialect
	var n int64
	if err := t.q.QueryRowContext(ctx, t.h.exists+t.lock, dl.dateArg(e.AnalysisDate)).Scan(&n); err != nil {
		return models.UpsertResult{}, fmt.Errorf("check existing: %w", err)
	}
	if _, err := t.q.ExecContext(ctx, t.h.upsert, entryArgs(dl, e)...); err != nil {
		return models.UpsertResult{}, fmt.Errorf("upsert %s: %w", e.AnalysisDate.Format(models.DateLayout), err)
	}
	return models.UpsertResult{Existed: n > 0}, nil
}

func entryArgs(dl Dialect, e models.ChurnHistoryEntry) []any {
	return []any{
		dl.dateArg(e.AnalysisDate),
		e.TotalCustomers,
		e.ChurnedCustomers,
		e.ChurnRate,
		e.ChurnRateChange,
		e.ChurnRate7DayAvg,
		e.ChurnMonthToMonth,
		e.ChurnOneYear,
		e.ChurnTwoYear,
		e.ChurnSeniorCitizen,
		e.ChurnNoOnlineSecurity,
		e.ChurnNoTechSupport,
		e.AvgTenureChurned,
		e.AvgTenureRetained,
		e.AvgMonthlyChargesChurned,
		e.AvgMonthlyChargesRetained,
		e.RevenueLost,
		e.HighRiskCustomers,
		e.HighRiskChurned,
		e.HighRiskChurnRate,
	}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(r rowScanner) (models.ChurnHistoryEntry, error) {
	var (
		e   models.ChurnHistoryEntry
		day dbDate
	)
	err := r.Scan(
		&day,
		&e.TotalCustomers,
		&e.ChurnedCustomers,
		&e.ChurnRate,
		&e.ChurnRateChange,
		&e.ChurnRate7DayAvg,
		&e.ChurnMonthToMonth,
		&e.ChurnOneYear,
		&e.ChurnTwoYear,
		&e.ChurnSeniorCitizen,
		&e.ChurnNoOnlineSecurity,
		&e.ChurnNoTechSupport,
		&e.AvgTenureChurned,
		&e.AvgTenureRetained,
		&e.AvgMonthlyChargesChurned,
		&e.AvgMonthlyChargesRetained,
		&e.RevenueLost,
		&e.HighRiskCustomers,
		&e.HighRiskChurned,
		&e.HighRiskChurnRate,
	)
	if err != nil {
		return models.ChurnHistoryEntry{}, err
	}
	e.AnalysisDate = day.Time
	return e, nil
}

// dbDate lit une colonne DATE quel que soit le driver (time.Time, texte).
type dbDate struct {
	time.Time
}

func (d *dbDate) Scan(v any) error {
	switch x := v.(type) {
	case time.Time:
		d.Time = models.Day(x)
		return nil
	case string:
		return d.parse(x)
	case []byte:
		return d.parse(string(x))
	case nil:
		return fmt.Errorf("analysis_date NULL")
	}
	return fmt.Errorf("analysis_date: type %T non supporté", v)
}

func (d *dbDate) parse(s string) error {
	if len(s) < len(models.DateLayout) {
		return fmt.Errorf("analysis_date %q invalide", s)
	}
	t, err := time.Parse(models.DateLayout, s[:len(models.DateLayout)])
	if err != nil {
		return fmt.Errorf("analysis_date %q invalide: %w", s, err)
	}
	d.Time = t
	return nil
}
