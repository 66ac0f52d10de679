package database

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"churn-history/pkg/models"
)

// Dialect sélectionne les variantes SQL (placeholders, upsert, DDL).
type Dialect string

const (
	MySQL     Dialect = "mysql" // MySQL, MariaDB, TiDB
	Postgres  Dialect = "postgres"
	SQLite    Dialect = "sqlite"
	SQLServer Dialect = "sqlserver"
)

func (d Dialect) driverName() string {
	switch d {
	case Postgres:
		return "pgx"
	case SQLite:
		return "sqlite"
	case SQLServer:
		return "sqlserver"
	}
	return "mysql"
}

// placeholder renvoie le i-ème paramètre (1-based).
func (d Dialect) placeholder(i int) string {
	switch d {
	case Postgres:
		return fmt.Sprintf("$%d", i)
	case SQLServer:
		return fmt.Sprintf("@p%d", i)
	}
	return "?"
}

func (d Dialect) placeholders(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = d.placeholder(i + 1)
	}
	return out
}

// dateArg : pgx encode time.Time vers DATE; les autres reçoivent "YYYY-MM-DD".
func (d Dialect) dateArg(t time.Time) any {
	t = models.Day(t)
	if d == Postgres {
		return t
	}
	return t.Format(models.DateLayout)
}

// txOptions : SQLite est déjà sérialisé par _txlock=immediate. TiDB refuse
// SERIALIZABLE (ERROR 8048) : la famille MySQL garde l'isolation par défaut et
// sérialise par lectures verrouillantes (lockingRead).
func (d Dialect) txOptions() *sql.TxOptions {
	switch d {
	case SQLite, MySQL:
		return nil
	}
	return &sql.TxOptions{Isolation: sql.LevelSerializable}
}

// lockingRead termine un SELECT lu dans la transaction d'enregistrement.
func (d Dialect) lockingRead() string {
	if d == MySQL {
		return " FOR UPDATE"
	}
	return ""
}

// upsertSQL écrit toutes les colonnes de cols; key est la clé unique.
func (d Dialect) upsertSQL(table string, cols []string, key string) string {
	ph := d.placeholders(len(cols))
	colList := strings.Join(cols, ", ")

	switch d {
	case MySQL:
		// VALUES(c) plutôt que l'alias de ligne de MySQL 8.0.19+ : MariaDB ne connaît que cette forme.
		sets := make([]string, 0, len(cols)-1)
		for _, c := range cols {
			if c != key {
				sets = append(sets, fmt.Sprintf("%s = VALUES(%s)", c, c))
			}
		}
		return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) ON DUPLICATE KEY UPDATE %s",
			table, colList, strings.Join(ph, ", "), strings.Join(sets, ", "))

	case SQLServer:
		src := make([]string, len(cols))
		sets := make([]string, 0, len(cols)-1)
		vals := make([]string, len(cols))
		for i, c := range cols {
			if c == key {
				src[i] = fmt.Sprintf("CAST(%s AS DATE) AS %s", ph[i], c)
			} else {
				src[i] = fmt.Sprintf("%s AS %s", ph[i], c)
				sets = append(sets, fmt.Sprintf("tgt.%s = src.%s", c, c))
			}
			vals[i] = "src." + c
		}
		return fmt.Sprintf(`MERGE INTO %s WITH (HOLDLOCK) AS tgt
USING (SELECT %s) AS src ON tgt.%s = src.%s
WHEN MATCHED THEN UPDATE SET %s
WHEN NOT MATCHED THEN INSERT (%s) VALUES (%s);`,
			table, strings.Join(src, ", "), key, key,
			strings.Join(sets, ", "), colList, strings.Join(vals, ", "))
	}

	// Postgres et SQLite partagent ON CONFLICT ... DO UPDATE.
	sets := make([]string, 0, len(cols)-1)
	for _, c := range cols {
		if c != key {
			sets = append(sets, fmt.Sprintf("%s = excluded.%s", c, c))
		}
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (%s) DO UPDATE SET %s",
		table, colList, strings.Join(ph, ", "), key, strings.Join(sets, ", "))
}

// timestampColumn : type et défaut d'une colonne horodatée à l'insertion.
func (d Dialect) timestampColumn() string {
	if d == SQLServer {
		return "DATETIME2 NOT NULL DEFAULT SYSUTCDATETIME()"
	}
	return "TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP"
}

// createTable enveloppe un CREATE TABLE pour qu'il soit rejouable.
func (d Dialect) createTable(table, body string) string {
	if d == SQLServer {
		return fmt.Sprintf("IF OBJECT_ID(N'%s', N'U') IS NULL CREATE TABLE %s (\n%s\n)", table, table, body)
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n%s\n)", table, body)
}
