package calculator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"churn-history/pkg/database"
	"churn-history/pkg/metrics"
	"churn-history/pkg/models"

	"github.com/jonboulle/clockwork"
	"github.com/schollz/progressbar/v3"
)

type RunnerConfig struct {
	Logger    *slog.Logger
	Clock     clockwork.Clock
	Customers database.CustomerSource
	History   database.HistoryStore

	// Progress reçoit la barre de progression du parcours clients; nil = pas de barre.
	Progress io.Writer
}

func (c *RunnerConfig) Validate() error {
	if c.Logger == nil {
		return errors.New("logger is required")
	}
	if c.Customers == nil {
		return errors.New("customer source is required")
	}
	if c.History == nil {
		return errors.New("history store is required")
	}
	if c.Clock == nil {
		c.Clock = clockwork.NewRealClock()
	}
	return nil
}

// Runner exécute "analyse quotidienne pour la date D".
type Runner struct {
	log *slog.Logger
	cfg RunnerConfig
}

func NewRunner(cfg RunnerConfig) (*Runner, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Runner{log: cfg.Logger, cfg: cfg}, nil
}

// Result décrit l'entrée écrite pour la date.
type Result struct {
	Entry    models.ChurnHistoryEntry
	Inserted bool
	Snapshot models.DailyChurnSnapshot
}

// Run calcule le snapshot puis l'enregistre. Une date zéro signifie "aujourd'hui" selon l'horloge.
// Toute erreur est un *RunError; rien n'est écrit en cas d'échec.
func (r *Runner) Run(ctx context.Context, d time.Time) (res Result, err error) {
	if d.IsZero() {
		d = r.cfg.Clock.Now()
	}
	d = models.Day(d)
	start := r.cfg.Clock.Now()
	defer func() {
		metrics.RecordRun(KindOf(err), r.cfg.Clock.Since(start))
	}()

	log := r.log.With("analysis_date", d.Format(models.DateLayout))
	log.Debug("churn: extracting snapshot")

	snap, err := r.extract(ctx)
	if err != nil {
		re := NewRunError(d, models.KindDataSourceUnavailable, err)
		log.Error("churn: extraction failed", "kind", re.Kind, "error", err)
		return Result{}, re
	}
	log.Debug("churn: snapshot computed", "total_customers", snap.TotalCustomers, "churned_customers", snap.ChurnedCustomers)

	rec, err := Record(ctx, r.cfg.History, d, snap)
	if err != nil {
		re := NewRunError(d, models.KindHistoryStoreUnavailable, err)
		log.Error("churn: history write failed, rolled back", "kind", re.Kind, "error", err)
		return Result{}, re
	}

	if rec.Existed {
		log.Info("churn: updated existing churn analysis")
	} else {
		log.Info("churn: inserted new churn analysis")
	}
	e := rec.Entry
	log.Info("churn: key insights",
		"churn_rate", e.ChurnRate.StringFixed(2),
		"churn_rate_7day_avg", e.ChurnRate7DayAvg.StringFixed(2),
		"churn_rate_change", e.ChurnRateChange.StringFixed(2),
		"revenue_loss", e.RevenueLost.StringFixed(2),
		"high_risk_churn_rate", e.HighRiskChurnRate.StringFixed(2),
	)
	metrics.RecordEntry(e)

	return Result{Entry: e, Inserted: !rec.Existed, Snapshot: snap}, nil
}

func (r *Runner) extract(ctx context.Context) (models.DailyChurnSnapshot, error) {
	total, err := r.cfg.Customers.Count(ctx)
	if err != nil {
		return models.DailyChurnSnapshot{}, fmt.Errorf("count customers: %w", err)
	}

	w := r.cfg.Progress
	if w == nil {
		w = io.Discard
	}
	size := total
	if size <= 0 {
		size = -1
	}
	bar := progressbar.NewOptions64(size,
		progressbar.OptionSetWriter(w),
		progressbar.OptionSetVisibility(r.cfg.Progress != nil),
		progressbar.OptionSetDescription("customers"),
		progressbar.OptionShowCount(),
		progressbar.OptionThrottle(100*time.Millisecond),
	)

	var acc Accumulator
	err = r.cfg.Customers.Each(ctx, func(rec models.CustomerRecord) error {
		if err := acc.Add(rec); err != nil {
			return err
		}
		_ = bar.Add(1)
		return nil
	})
	_ = bar.Finish()
	if err != nil {
		return models.DailyChurnSnapshot{}, fmt.Errorf("scan customers: %w", err)
	}
	return acc.Snapshot(), nil
}
