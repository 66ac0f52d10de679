package calculator

import (
	"context"
	"fmt"
	"sort"
	"time"

	"churn-history/pkg/database"
	"churn-history/pkg/metrics"
	"churn-history/pkg/models"
)

// fakeSource sert une liste de clients en mémoire.
type fakeSource struct {
	records  []models.CustomerRecord
	countErr error
	eachErr  error // renvoyée après avoir servi toutes les lignes
}

func (s *fakeSource) Count(context.Context) (int64, error) {
	if s.countErr != nil {
		return 0, s.countErr
	}
	return int64(len(s.records)), nil
}

func (s *fakeSource) Each(_ context.Context, fn func(models.CustomerRecord) error) error {
	for _, r := range s.records {
		if err := fn(r); err != nil {
			return err
		}
	}
	return s.eachErr
}

// memStore est un HistoryStore transactionnel en mémoire : fn travaille sur une copie,
// publiée seulement si fn réussit.
type memStore struct {
	rows map[string]models.ChurnHistoryEntry

	beginErr  error
	upsertErr error
	commits   int
}

func newMemStore(entries ...models.ChurnHistoryEntry) *memStore {
	s := &memStore{rows: map[string]models.ChurnHistoryEntry{}}
	for _, e := range entries {
		s.rows[key(e.AnalysisDate)] = e
	}
	return s
}

func key(d time.Time) string { return models.Day(d).Format(models.DateLayout) }

func (s *memStore) InTx(_ context.Context, fn func(database.HistoryTx) error) error {
	if s.beginErr != nil {
		return s.beginErr
	}
	work := make(map[string]models.ChurnHistoryEntry, len(s.rows))
	for k, v := range s.rows {
		work[k] = v
	}
	if err := fn(&memTx{rows: work, upsertErr: s.upsertErr}); err != nil {
		return err
	}
	s.rows = work
	s.commits++
	return nil
}

func (s *memStore) get(d time.Time) (models.ChurnHistoryEntry, bool) {
	e, ok := s.rows[key(d)]
	return e, ok
}

type memTx struct {
	rows      map[string]models.ChurnHistoryEntry
	upsertErr error
}

func (t *memTx) EntryByDate(_ context.Context, d time.Time) (*models.ChurnHistoryEntry, error) {
	e, ok := t.rows[key(d)]
	if !ok {
		return nil, nil
	}
	return &e, nil
}

func (t *memTx) EntriesBetween(_ context.Context, from, to time.Time) ([]models.ChurnHistoryEntry, error) {
	var out []models.ChurnHistoryEntry
	for _, e := range t.rows {
		d := models.Day(e.AnalysisDate)
		if !d.Before(models.Day(from)) && !d.After(models.Day(to)) {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AnalysisDate.Before(out[j].AnalysisDate) })
	return out, nil
}

func (t *memTx) Upsert(_ context.Context, e models.ChurnHistoryEntry) (models.UpsertResult, error) {
	if t.upsertErr != nil {
		return models.UpsertResult{}, t.upsertErr
	}
	_, existed := t.rows[key(e.AnalysisDate)]
	t.rows[key(e.AnalysisDate)] = e
	return models.UpsertResult{Existed: existed}, nil
}

// population construit n clients dont churned partis; les premiers m2m partis sont
// mensuels, les autres partis sont sur deux ans. Les restants sont sur un an.
func population(n, churned, m2m int) []models.CustomerRecord {
	out := make([]models.CustomerRecord, 0, n)
	for i := 0; i < n; i++ {
		r := models.CustomerRecord{
			CustomerID:     fmt.Sprintf("C%04d", i),
			Churn:          models.Retained,
			Contract:       models.OneYear,
			OnlineSecurity: models.ServiceYes,
			TechSupport:    models.ServiceYes,
			TenureMonths:   24,
			MonthlyCharges: 50,
		}
		if i < churned {
			r.Churn = models.Churned
			r.Contract = models.TwoYear
			r.TenureMonths = 6
			r.MonthlyCharges = 80
			if i < m2m {
				r.Contract = models.MonthToMonth
			}
		}
		out = append(out, r)
	}
	return out
}

// recordingBackend capture les métriques émises par Run.
type recordingBackend struct {
	counters map[string]float64
	labels   map[string]metrics.Labels
	gauges   map[string]float64
}

func newRecordingBackend() *recordingBackend {
	return &recordingBackend{
		counters: map[string]float64{},
		labels:   map[string]metrics.Labels{},
		gauges:   map[string]float64{},
	}
}

func (r *recordingBackend) IncCounter(name string, delta float64, labels metrics.Labels) {
	r.counters[name] += delta
	r.labels[name] = labels
}

func (r *recordingBackend) ObserveHistogram(string, float64, metrics.Labels) {}

func (r *recordingBackend) SetGauge(name string, value float64, _ metrics.Labels) {
	r.gauges[name] = value
}

func (r *recordingBackend) Flush() error { return nil }
