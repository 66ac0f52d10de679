package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/jonboulle/clockwork"
	"github.com/spf13/cobra"

	"churn-history/pkg/calculator"
	"churn-history/pkg/config"
	"churn-history/pkg/database"
	"churn-history/pkg/logger"
	"churn-history/pkg/metrics"
	"churn-history/pkg/metrics/datadog"
	"churn-history/pkg/metrics/prompush"
	"churn-history/pkg/models"
	"churn-history/pkg/report"
)

func main() {
	if err := newRootCmd(clockwork.NewRealClock()).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// app porte la configuration résolue et le logger, partagés par les sous-commandes.
type app struct {
	envFile string
	verbose bool
	flags   config.Config
	clock   clockwork.Clock

	cfg config.Config
	log *slog.Logger
}

func newRootCmd(clock clockwork.Clock) *cobra.Command {
	a := &app{clock: clock}
	root := &cobra.Command{
		Use:           "churn-history",
		Short:         "Daily churn snapshot and trend history",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Name() == "help" {
				return nil
			}
			return a.setup(cmd)
		},
	}
	root.CompletionOptions.DisableDefaultCmd = true
	pf := root.PersistentFlags()
	pf.StringVar(&a.flags.DSN, "dsn", "", "DSN de la base clients (mysql://, mariadb://, tidb://, postgres://, sqlserver://, sqlite://); défaut $CHURN_DSN")
	pf.StringVar(&a.flags.HistoryDSN, "history-dsn", "", "DSN de la base d'historique; défaut $CHURN_HISTORY_DSN puis --dsn")
	pf.StringVar(&a.envFile, "env-file", "", "Fichier .env à charger (défaut: .env s'il existe)")
	pf.BoolVarP(&a.verbose, "verbose", "v", false, "Mode verbeux")
	pf.DurationVar(&a.flags.Timeout, "timeout", 0, "Durée maximale d'une commande; défaut $CHURN_TIMEOUT ou 10m")

	root.AddCommand(a.runCmd(), a.migrateCmd(), a.historyCmd())
	return root
}

// setup : .env + environnement, puis les flags explicitement passés.
func (a *app) setup(cmd *cobra.Command) error {
	cfg, err := config.Load(a.envFile)
	if err != nil {
		return err
	}
	flags := cmd.Flags()
	if flags.Changed("dsn") {
		cfg.DSN = a.flags.DSN
	}
	if flags.Changed("history-dsn") {
		cfg.HistoryDSN = a.flags.HistoryDSN
	}
	if flags.Changed("timeout") {
		cfg.Timeout = a.flags.Timeout
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	a.cfg = cfg
	a.log = logger.New(os.Stdout, a.verbose)
	return nil
}

// stores ouvre les deux bases; une seule connexion quand les DSN sont identiques.
type stores struct {
	customers *database.CustomerTable
	history   *database.HistoryTable
	close     func()
}

func (a *app) openStores(ctx context.Context) (*stores, error) {
	custDB, redacted, err := database.Open(ctx, a.cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", models.ErrDataSourceUnavailable, err)
	}
	a.log.Info("connected", "role", "customers", "dsn", redacted, "dialect", custDB.Dialect)

	histDB := custDB
	closers := []func() error{custDB.Close}
	if a.cfg.HistoryDSN != a.cfg.DSN {
		histDB, redacted, err = database.Open(ctx, a.cfg.HistoryDSN)
		if err != nil {
			custDB.Close()
			return nil, fmt.Errorf("%w: %w", models.ErrHistoryStoreUnavailable, err)
		}
		a.log.Info("connected", "role", "history", "dsn", redacted, "dialect", histDB.Dialect)
		closers = append(closers, histDB.Close)
	}
	closeAll := func() {
		for _, c := range closers {
			_ = c()
		}
	}

	customers, err := database.NewCustomerTable(custDB, a.cfg.CustomersTable)
	if err != nil {
		closeAll()
		return nil, err
	}
	history, err := database.NewHistoryTable(histDB, a.cfg.HistoryTable)
	if err != nil {
		closeAll()
		return nil, err
	}
	return &stores{customers: customers, history: history, close: closeAll}, nil
}

// setupMetrics installe Pushgateway et/ou DogStatsD si configurés.
func (a *app) setupMetrics() error {
	var backends metrics.Multi
	if a.cfg.PushgatewayURL != "" {
		b, err := prompush.NewBackend("churn_history", a.cfg.PushgatewayURL)
		if err != nil {
			return err
		}
		backends = append(backends, b)
	}
	if a.cfg.DogStatsDAddr != "" {
		b, err := datadog.NewBackend(datadog.Config{
			Addr:       a.cfg.DogStatsDAddr,
			GlobalTags: []string{"job:churn_history"},
		})
		if err != nil {
			return err
		}
		backends = append(backends, b)
	}
	if len(backends) > 0 {
		metrics.SetBackend(backends)
	}
	return nil
}

func (a *app) runCmd() *cobra.Command {
	var date string
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Calcule le snapshot du jour et l'enregistre dans l'historique",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			// la date est fixée avant toute connexion : chaque échec la porte.
			d := models.Day(a.clock.Now())
			if date != "" {
				var err error
				if d, err = models.ParseDay(date); err != nil {
					return fmt.Errorf("--date: %w", err)
				}
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), a.cfg.Timeout)
			defer cancel()

			if err := a.setupMetrics(); err != nil {
				return err
			}
			defer func() {
				if err := metrics.Flush(); err != nil {
					a.log.Warn("metrics flush failed", "error", err)
				}
			}()

			s, err := a.openStores(ctx)
			if err != nil {
				return calculator.NewRunError(d, models.KindDataSourceUnavailable, err)
			}
			defer s.close()

			var progress io.Writer
			if a.verbose {
				progress = os.Stderr
			}
			runner, err := calculator.NewRunner(calculator.RunnerConfig{
				Logger:    a.log,
				Clock:     a.clock,
				Customers: s.customers,
				History:   s.history,
				Progress:  progress,
			})
			if err != nil {
				return err
			}
			res, err := runner.Run(ctx, d)
			if err != nil {
				return err
			}
			report.History(cmd.OutOrStdout(), []models.ChurnHistoryEntry{res.Entry})
			return nil
		},
	}
	cmd.Flags().StringVar(&date, "date", "", "Date d'analyse YYYY-MM-DD (défaut: aujourd'hui)")
	return cmd
}

func (a *app) migrateCmd() *cobra.Command {
	var withCustomers bool
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Crée la table d'historique (et la table clients avec --customers)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), a.cfg.Timeout)
			defer cancel()

			s, err := a.openStores(ctx)
			if err != nil {
				return err
			}
			defer s.close()

			if err := s.history.EnsureTable(ctx); err != nil {
				return err
			}
			a.log.Info("history table ready", "table", a.cfg.HistoryTable)
			if withCustomers {
				if err := s.customers.EnsureTable(ctx); err != nil {
					return err
				}
				a.log.Info("customer table ready", "table", a.cfg.CustomersTable)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&withCustomers, "customers", false, "Crée aussi la table clients (bases locales)")
	return cmd
}

func (a *app) historyCmd() *cobra.Command {
	var from, to string
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Affiche les entrées d'historique d'une période",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			end := models.Day(a.clock.Now().UTC())
			if to != "" {
				var err error
				if end, err = models.ParseDay(to); err != nil {
					return fmt.Errorf("--to: %w", err)
				}
			}
			start := end.AddDate(0, 0, -30)
			if from != "" {
				var err error
				if start, err = models.ParseDay(from); err != nil {
					return fmt.Errorf("--from: %w", err)
				}
			}
			if start.After(end) {
				return errors.New("--from doit précéder --to")
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), a.cfg.Timeout)
			defer cancel()

			s, err := a.openStores(ctx)
			if err != nil {
				return err
			}
			defer s.close()

			entries, err := s.history.Entries(ctx, start, end)
			if err != nil {
				return fmt.Errorf("%w: %w", models.ErrHistoryStoreUnavailable, err)
			}
			a.log.Debug("history loaded", "from", start.Format(models.DateLayout), "to", end.Format(models.DateLayout), "entries", len(entries))
			report.History(cmd.OutOrStdout(), entries)
			return nil
		},
	}
	cmd.Flags().StringVar(&from, "from", "", "Début inclus YYYY-MM-DD (défaut: --to moins 30 jours)")
	cmd.Flags().StringVar(&to, "to", "", "Fin incluse YYYY-MM-DD (défaut: aujourd'hui)")
	return cmd
}
