package database

import (
	"context"
	"database/sql"
	"fmt"

	"churn-history/pkg/models"
)

const DefaultCustomersTable = "churn_pipeline"

// CustomerTable lit la table clients alimentée par le pipeline amont.
type CustomerTable struct {
	db    *DB
	table string
}

func NewCustomerTable(db *DB, table string) (*CustomerTable, error) {
	if table == "" {
		table = DefaultCustomersTable
	}
	if err := checkIdent(table); err != nil {
		return nil, err
	}
	return &CustomerTable{db: db, table: table}, nil
}

func (c *CustomerTable) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := c.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+c.table).Scan(&n); err != nil {
		return 0, fmt.Errorf("count %s: %w", c.table, err)
	}
	return n, nil
}

// Each parcourt les clients ligne par ligne, sans tout charger en mémoire.
func (c *CustomerTable) Each(ctx context.Context, fn func(models.CustomerRecord) error) error {
	q := fmt.Sprintf(`SELECT customerID, Churn, Contract, SeniorCitizen, OnlineSecurity, TechSupport, tenure, MonthlyCharges
FROM %s`, c.table)
	rows, err := c.db.QueryContext(ctx, q)
	if err != nil {
		return fmt.Errorf("select %s: %w", c.table, err)
	}
	defer rows.Close()

	for rows.Next() {
		var raw customerRow
		if err := rows.Scan(
			&raw.id, &raw.churn, &raw.contract, &raw.senior,
			&raw.onlineSecurity, &raw.techSupport, &raw.tenure, &raw.charges,
		); err != nil {
			return fmt.Errorf("scan %s: %w", c.table, err)
		}
		rec, err := raw.record()
		if err != nil {
			return err
		}
		if err := fn(rec); err != nil {
			return err
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate %s: %w", c.table, err)
	}
	return nil
}

// EnsureTable crée une table clients vide (bases locales et tests).
func (c *CustomerTable) EnsureTable(ctx context.Context) error {
	if _, err := c.db.ExecContext(ctx, customersDDL(c.db.Dialect, c.table)); err != nil {
		return fmt.Errorf("create %s: %w", c.table, err)
	}
	return nil
}

type customerRow struct {
	id             sql.NullString
	churn          sql.NullString
	contract       sql.NullString
	senior         sql.NullInt64
	onlineSecurity sql.NullString
	techSupport    sql.NullString
	tenure         sql.NullInt64
	charges        sql.NullFloat64
}

// record convertit la ligne brute; NULL ou valeur inconnue → *models.RecordError.
func (r customerRow) record() (models.CustomerRecord, error) {
	id := r.id.String
	bad := func(field string, v any, reason string) error {
		return &models.RecordError{CustomerID: id, Field: field, Value: v, Reason: reason}
	}
	if !r.id.Valid || id == "" {
		return models.CustomerRecord{}, bad("customerID", nil, "identifiant manquant")
	}

	if !r.churn.Valid {
		return models.CustomerRecord{}, bad("Churn", nil, "NULL")
	}
	churn, err := models.ParseChurnStatus(r.churn.String)
	if err != nil {
		return models.CustomerRecord{}, bad("Churn", r.churn.String, "valeur inconnue")
	}

	if !r.contract.Valid {
		return models.CustomerRecord{}, bad("Contract", nil, "NULL")
	}
	contract, err := models.ParseContractType(r.contract.String)
	if err != nil {
		return models.CustomerRecord{}, bad("Contract", r.contract.String, "valeur inconnue")
	}

	if !r.senior.Valid || (r.senior.Int64 != 0 && r.senior.Int64 != 1) {
		return models.CustomerRecord{}, bad("SeniorCitizen", r.senior.Int64, "attendu 0 ou 1")
	}

	if !r.onlineSecurity.Valid {
		return models.CustomerRecord{}, bad("OnlineSecurity", nil, "NULL")
	}
	security, err := models.ParseServiceLevel(r.onlineSecurity.String)
	if err != nil {
		return models.CustomerRecord{}, bad("OnlineSecurity", r.onlineSecurity.String, "valeur inconnue")
	}

	if !r.techSupport.Valid {
		return models.CustomerRecord{}, bad("TechSupport", nil, "NULL")
	}
	support, err := models.ParseServiceLevel(r.techSupport.String)
	if err != nil {
		return models.CustomerRecord{}, bad("TechSupport", r.techSupport.String, "valeur inconnue")
	}

	if !r.tenure.Valid {
		return models.CustomerRecord{}, bad("tenure", nil, "NULL")
	}
	if !r.charges.Valid {
		return models.CustomerRecord{}, bad("MonthlyCharges", nil, "NULL")
	}

	rec := models.CustomerRecord{
		CustomerID:     id,
		Churn:          churn,
		Contract:       contract,
		SeniorCitizen:  r.senior.Int64 == 1,
		OnlineSecurity: security,
		TechSupport:    support,
		TenureMonths:   int(r.tenure.Int64),
		MonthlyCharges: r.charges.Float64,
	}
	return rec, rec.Validate()
}
