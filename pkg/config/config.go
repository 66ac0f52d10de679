package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"churn-history/pkg/database"
)

const (
	defaultTimeout  = 10 * time.Minute
	defaultTiDBPort = 4000
)

// Config regroupe les paramètres d'exécution lus depuis l'environnement.
type Config struct {
	DSN            string // base clients
	HistoryDSN     string // base d'historique; même base que DSN si vide
	CustomersTable string
	HistoryTable   string
	PushgatewayURL string
	DogStatsDAddr  string
	Timeout        time.Duration
}

// Load lit envFile (".env" par défaut, optionnel) puis les variables CHURN_* et TIDB_*.
// Un envFile explicite doit exister.
func Load(envFile string) (Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			return Config{}, fmt.Errorf("load %s: %w", envFile, err)
		}
	} else if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	cfg := Config{
		DSN:            strings.TrimSpace(os.Getenv("CHURN_DSN")),
		HistoryDSN:     strings.TrimSpace(os.Getenv("CHURN_HISTORY_DSN")),
		CustomersTable: envOr("CHURN_CUSTOMERS_TABLE", database.DefaultCustomersTable),
		HistoryTable:   envOr("CHURN_HISTORY_TABLE", database.DefaultHistoryTable),
		PushgatewayURL: strings.TrimSpace(os.Getenv("CHURN_PUSHGATEWAY_URL")),
		DogStatsDAddr:  strings.TrimSpace(os.Getenv("CHURN_DOGSTATSD_ADDR")),
		Timeout:        defaultTimeout,
	}
	if raw := strings.TrimSpace(os.Getenv("CHURN_TIMEOUT")); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil || d <= 0 {
			return Config{}, fmt.Errorf("CHURN_TIMEOUT=%q: durée invalide (ex: 5m)", raw)
		}
		cfg.Timeout = d
	}

	if cfg.DSN == "" && os.Getenv("TIDB_HOST") != "" {
		tidb, err := tidbFromEnv()
		if err != nil {
			return Config{}, err
		}
		dsn, err := database.TiDBDSN(tidb)
		if err != nil {
			return Config{}, err
		}
		cfg.DSN = dsn
	}
	return cfg, nil
}

// Validate complète HistoryDSN et exige une source.
func (c *Config) Validate() error {
	if c.DSN == "" {
		return fmt.Errorf("DSN manquant: définir CHURN_DSN, TIDB_HOST ou --dsn")
	}
	if c.HistoryDSN == "" {
		c.HistoryDSN = c.DSN
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout doit être > 0")
	}
	return nil
}

func tidbFromEnv() (database.TiDBConfig, error) {
	c := database.TiDBConfig{
		Host:     os.Getenv("TIDB_HOST"),
		User:     os.Getenv("TIDB_USER"),
		Password: os.Getenv("TIDB_PASSWORD"),
		Database: os.Getenv("TIDB_DATABASE"),
		Port:     defaultTiDBPort,
		CAFile:   os.Getenv("TIDB_SSL_CA"),
	}
	if raw := os.Getenv("TIDB_PORT"); raw != "" {
		p, err := strconv.Atoi(raw)
		if err != nil || p <= 0 || p > 65535 {
			return database.TiDBConfig{}, fmt.Errorf("TIDB_PORT=%q invalide", raw)
		}
		c.Port = p
	}
	return c, nil
}

func envOr(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}
