// Package metrics expose les métriques d'exécution du job churn derrière une
// interface Backend minimale. Le backend par défaut ne fait rien, les appels
// sont donc toujours sûrs même sans Pushgateway ni agent Datadog configuré.
package metrics

import (
	"sync"
	"time"

	"churn-history/pkg/models"
)

// Noms des métriques émises.
const (
	RunTotal           = "churn_run_total"
	RunDurationSeconds = "churn_run_duration_seconds"

	CustomersTotal    = "churn_customers_total"
	CustomersChurned  = "churn_customers_churned"
	RatePercent       = "churn_rate_percent"
	RateChangePoints  = "churn_rate_change_points"
	Rate7DayAvg       = "churn_rate_7day_avg_percent"
	HighRiskRate      = "churn_high_risk_rate_percent"
	RevenueLoss       = "churn_revenue_loss"
	HighRiskCustomers = "churn_high_risk_customers"
)

// GaugeNames liste les jauges publiées après une exécution réussie.
var GaugeNames = []string{
	CustomersTotal, CustomersChurned, RatePercent, RateChangePoints,
	Rate7DayAvg, HighRiskRate, RevenueLoss, HighRiskCustomers,
}

type Labels map[string]string

type Backend interface {
	IncCounter(name string, delta float64, labels Labels)
	ObserveHistogram(name string, value float64, labels Labels)
	SetGauge(name string, value float64, labels Labels)
	// Flush pousse les métriques si le backend en a besoin (Pushgateway).
	Flush() error
}

type nopBackend struct{}

func (nopBackend) IncCounter(string, float64, Labels)       {}
func (nopBackend) ObserveHistogram(string, float64, Labels) {}
func (nopBackend) SetGauge(string, float64, Labels)         {}
func (nopBackend) Flush() error                             { return nil }

var (
	mu      sync.RWMutex
	backend Backend = nopBackend{}
)

// SetBackend installe un backend. nil remet le backend no-op.
func SetBackend(b Backend) {
	mu.Lock()
	defer mu.Unlock()
	if b == nil {
		backend = nopBackend{}
		return
	}
	backend = b
}

func current() Backend {
	mu.RLock()
	defer mu.RUnlock()
	return backend
}

func Flush() error {
	return current().Flush()
}

// RecordRun compte une exécution et sa durée; kind = 0 pour un succès.
func RecordRun(kind models.ErrorKind, d time.Duration) {
	lbls := Labels{"status": "success"}
	if kind != 0 {
		lbls = Labels{"status": "failure", "kind": kind.String()}
	}
	b := current()
	b.IncCounter(RunTotal, 1, lbls)
	b.ObserveHistogram(RunDurationSeconds, d.Seconds(), Labels{"status": lbls["status"]})
}

// RecordEntry publie les valeurs de l'entrée écrite.
func RecordEntry(e models.ChurnHistoryEntry) {
	b := current()
	b.SetGauge(CustomersTotal, float64(e.TotalCustomers), nil)
	b.SetGauge(CustomersChurned, float64(e.ChurnedCustomers), nil)
	b.SetGauge(HighRiskCustomers, float64(e.HighRiskCustomers), nil)
	b.SetGauge(RatePercent, e.ChurnRate.InexactFloat64(), nil)
	b.SetGauge(RateChangePoints, e.ChurnRateChange.InexactFloat64(), nil)
	b.SetGauge(Rate7DayAvg, e.ChurnRate7DayAvg.InexactFloat64(), nil)
	b.SetGauge(HighRiskRate, e.HighRiskChurnRate.InexactFloat64(), nil)
	b.SetGauge(RevenueLoss, e.RevenueLost.InexactFloat64(), nil)
}

// Multi diffuse vers plusieurs backends (Pushgateway et Datadog en même temps).
type Multi []Backend

func (m Multi) IncCounter(name string, delta float64, labels Labels) {
	for _, b := range m {
		b.IncCounter(name, delta, labels)
	}
}

func (m Multi) ObserveHistogram(name string, value float64, labels Labels) {
	for _, b := range m {
		b.ObserveHistogram(name, value, labels)
	}
}

func (m Multi) SetGauge(name string, value float64, labels Labels) {
	for _, b := range m {
		b.SetGauge(name, value, labels)
	}
}

func (m Multi) Flush() error {
	var first error
	for _, b := range m {
		if err := b.Flush(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
