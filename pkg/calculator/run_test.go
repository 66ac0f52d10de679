package calculator

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/jonboulle/clockwork"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"churn-history/pkg/metrics"
	"churn-history/pkg/models"
)

var decimalEqual = cmp.Comparer(func(a, b decimal.Decimal) bool { return a.Equal(b) })

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newTestRunner(t *testing.T, src *fakeSource, store *memStore, clock clockwork.Clock) *Runner {
	t.Helper()
	r, err := NewRunner(RunnerConfig{
		Logger:    testLogger(),
		Clock:     clock,
		Customers: src,
		History:   store,
	})
	require.NoError(t, err)
	return r
}

func TestRunnerConfig_Validate(t *testing.T) {
	_, err := NewRunner(RunnerConfig{Customers: &fakeSource{}, History: newMemStore()})
	require.Error(t, err)
	_, err = NewRunner(RunnerConfig{Logger: testLogger(), History: newMemStore()})
	require.Error(t, err)
	_, err = NewRunner(RunnerConfig{Logger: testLogger(), Customers: &fakeSource{}})
	require.Error(t, err)

	cfg := RunnerConfig{Logger: testLogger(), Customers: &fakeSource{}, History: newMemStore()}
	require.NoError(t, cfg.Validate())
	require.NotNil(t, cfg.Clock)
}

func TestRun_InsertsThenIdempotent(t *testing.T) {
	ctx := context.Background()
	d := day(2025, 3, 1)
	src := &fakeSource{records: population(100, 20, 8)}
	store := newMemStore()
	r := newTestRunner(t, src, store, clockwork.NewFakeClockAt(d))

	first, err := r.Run(ctx, d)
	require.NoError(t, err)
	require.True(t, first.Inserted)
	requireDecimal(t, "20.00", first.Entry.ChurnRate)
	require.Equal(t, int64(8), first.Entry.ChurnMonthToMonth)

	second, err := r.Run(ctx, d)
	require.NoError(t, err)
	require.False(t, second.Inserted)
	if diff := cmp.Diff(first.Entry, second.Entry, decimalEqual); diff != "" {
		t.Fatalf("rerun changed the entry (-first +second):\n%s", diff)
	}

	got, ok := store.get(d)
	require.True(t, ok)
	require.Len(t, store.rows, 1)
	if diff := cmp.Diff(first.Entry, got, decimalEqual); diff != "" {
		t.Fatalf("stored entry mismatch (-want +got):\n%s", diff)
	}
}

func TestRun_OverwritesSameDate(t *testing.T) {
	ctx := context.Background()
	d := day(2025, 3, 1)
	src := &fakeSource{records: population(100, 20, 8)}
	store := newMemStore()
	r := newTestRunner(t, src, store, clockwork.NewFakeClockAt(d))

	_, err := r.Run(ctx, d)
	require.NoError(t, err)

	src.records = population(101, 21, 8)
	res, err := r.Run(ctx, d)
	require.NoError(t, err)
	require.False(t, res.Inserted)

	got, _ := store.get(d)
	require.Equal(t, int64(101), got.TotalCustomers)
	require.Equal(t, int64(21), got.ChurnedCustomers)
	requireDecimal(t, "20.79", got.ChurnRate)
	require.Len(t, store.rows, 1)
}

func TestRun_TrendFromHistory(t *testing.T) {
	d := day(2025, 3, 10)
	store := newMemStore(
		stored(day(2025, 3, 7), "10"),
		stored(day(2025, 3, 8), "20"),
		stored(day(2025, 3, 9), "30"),
	)
	r := newTestRunner(t, &fakeSource{records: population(100, 25, 0)}, store, clockwork.NewFakeClockAt(d))

	res, err := r.Run(context.Background(), d)
	require.NoError(t, err)
	requireDecimal(t, "20.00", res.Entry.ChurnRate7DayAvg)
	requireDecimal(t, "-5.00", res.Entry.ChurnRateChange)
}

func TestRun_DefaultsToClockDate(t *testing.T) {
	now := time.Date(2025, 6, 15, 23, 30, 0, 0, time.UTC)
	store := newMemStore()
	r := newTestRunner(t, &fakeSource{records: population(10, 1, 1)}, store, clockwork.NewFakeClockAt(now))

	res, err := r.Run(context.Background(), time.Time{})
	require.NoError(t, err)
	require.Equal(t, day(2025, 6, 15), res.Entry.AnalysisDate)
	_, ok := store.get(day(2025, 6, 15))
	require.True(t, ok)
}

func TestRun_DataSourceUnavailable(t *testing.T) {
	cause := errors.New("connection refused")
	store := newMemStore()
	r := newTestRunner(t, &fakeSource{countErr: cause}, store, clockwork.NewFakeClock())

	_, err := r.Run(context.Background(), day(2025, 3, 1))
	require.ErrorIs(t, err, models.ErrDataSourceUnavailable)
	require.ErrorIs(t, err, cause)
	require.Equal(t, models.KindDataSourceUnavailable, KindOf(err))
	require.Zero(t, store.commits)
	require.Empty(t, store.rows)

	var re *RunError
	require.True(t, errors.As(err, &re))
	require.Equal(t, day(2025, 3, 1), re.Date)
	require.Contains(t, err.Error(), "2025-03-01")
}

func TestRun_DataSourceFailsMidScan(t *testing.T) {
	cause := errors.New("connection reset")
	store := newMemStore()
	src := &fakeSource{records: population(10, 2, 1), eachErr: cause}
	r := newTestRunner(t, src, store, clockwork.NewFakeClock())

	_, err := r.Run(context.Background(), day(2025, 3, 1))
	require.ErrorIs(t, err, models.ErrDataSourceUnavailable)
	require.Empty(t, store.rows)
}

func TestRun_HistoryStoreUnavailable(t *testing.T) {
	cause := errors.New("deadlock")
	prev := stored(day(2025, 2, 28), "5")
	store := newMemStore(prev)
	store.upsertErr = cause
	r := newTestRunner(t, &fakeSource{records: population(10, 2, 1)}, store, clockwork.NewFakeClock())

	_, err := r.Run(context.Background(), day(2025, 3, 1))
	require.ErrorIs(t, err, models.ErrHistoryStoreUnavailable)
	require.ErrorIs(t, err, cause)
	require.Equal(t, models.KindHistoryStoreUnavailable, KindOf(err))
	require.Zero(t, store.commits)
	require.Len(t, store.rows, 1)
	_, ok := store.get(day(2025, 3, 1))
	require.False(t, ok)
}

func TestRun_HistoryStoreBeginFails(t *testing.T) {
	store := newMemStore()
	store.beginErr = errors.New("too many connections")
	r := newTestRunner(t, &fakeSource{records: population(10, 2, 1)}, store, clockwork.NewFakeClock())

	_, err := r.Run(context.Background(), day(2025, 3, 1))
	require.Equal(t, models.KindHistoryStoreUnavailable, KindOf(err))
}

func TestRun_MalformedRecord(t *testing.T) {
	recs := population(10, 2, 1)
	recs[5].TenureMonths = -3
	store := newMemStore()
	r := newTestRunner(t, &fakeSource{records: recs}, store, clockwork.NewFakeClock())

	_, err := r.Run(context.Background(), day(2025, 3, 1))
	require.ErrorIs(t, err, models.ErrMalformedRecord)
	require.Equal(t, models.KindMalformedRecord, KindOf(err))
	var recErr *models.RecordError
	require.True(t, errors.As(err, &recErr))
	require.Equal(t, "C0005", recErr.CustomerID)
	require.Empty(t, store.rows)
}

func TestRun_RecordsMetrics(t *testing.T) {
	rec := newRecordingBackend()
	metrics.SetBackend(rec)
	t.Cleanup(func() { metrics.SetBackend(nil) })

	r := newTestRunner(t, &fakeSource{records: population(100, 20, 8)}, newMemStore(), clockwork.NewFakeClock())
	_, err := r.Run(context.Background(), day(2025, 3, 1))
	require.NoError(t, err)
	require.Equal(t, 1.0, rec.counters[metrics.RunTotal])
	require.Equal(t, "success", rec.labels[metrics.RunTotal]["status"])
	require.InDelta(t, 20.0, rec.gauges[metrics.RatePercent], 1e-9)
	require.InDelta(t, 100.0, rec.gauges[metrics.CustomersTotal], 1e-9)

	r = newTestRunner(t, &fakeSource{countErr: errors.New("down")}, newMemStore(), clockwork.NewFakeClock())
	_, err = r.Run(context.Background(), day(2025, 3, 1))
	require.Error(t, err)
	require.Equal(t, 2.0, rec.counters[metrics.RunTotal])
	require.Equal(t, metrics.Labels{"status": "failure", "kind": "DataSourceUnavailable"}, rec.labels[metrics.RunTotal])
}

func TestRun_ProgressBar(t *testing.T) {
	var buf bytes.Buffer
	r, err := NewRunner(RunnerConfig{
		Logger:    testLogger(),
		Clock:     clockwork.NewFakeClock(),
		Customers: &fakeSource{records: population(5, 1, 1)},
		History:   newMemStore(),
		Progress:  &buf,
	})
	require.NoError(t, err)
	_, err = r.Run(context.Background(), day(2025, 3, 1))
	require.NoError(t, err)
	require.Contains(t, buf.String(), "customers")
}
