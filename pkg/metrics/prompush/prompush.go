// Package prompush publie les métriques du job vers une Prometheus Pushgateway.
// Un job quotidien n'expose pas d'endpoint de scrape : il pousse en fin d'exécution.
package prompush

import (
	"fmt"

	"churn-history/pkg/metrics"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

type Backend struct {
	gatewayURL string
	jobName    string
	reg        *prometheus.Registry

	runCounter  *prometheus.CounterVec
	runDuration *prometheus.HistogramVec
	gauges      map[string]prometheus.Gauge
}

var gaugeHelp = map[string]string{
	metrics.CustomersTotal:    "Customers in the source table at the last run.",
	metrics.CustomersChurned:  "Churned customers at the last run.",
	metrics.RatePercent:       "Churn rate (percent) recorded for the analysis date.",
	metrics.RateChangePoints:  "Churn rate change vs previous day, in percentage points.",
	metrics.Rate7DayAvg:       "Rolling 7-day average churn rate (percent).",
	metrics.HighRiskRate:      "High-risk segment churn rate (percent).",
	metrics.RevenueLoss:       "Monthly revenue lost to churned customers.",
	metrics.HighRiskCustomers: "Customers in the high-risk segment.",
}

// NewBackend construit le backend; gatewayURL est obligatoire.
func NewBackend(jobName, gatewayURL string) (*Backend, error) {
	if gatewayURL == "" {
		return nil, fmt.Errorf("prompush: gateway URL is required")
	}
	if jobName == "" {
		jobName = "churn_history"
	}

	reg := prometheus.NewRegistry()
	runCounter := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: metrics.RunTotal,
		Help: "Daily churn analysis runs, partitioned by status and failure kind.",
	}, []string{"status", "kind"})
	runDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    metrics.RunDurationSeconds,
		Help:    "Duration of daily churn analysis runs in seconds.",
		Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
	}, []string{"status"})

	if err := reg.Register(runCounter); err != nil {
		return nil, fmt.Errorf("prompush: register run counter: %w", err)
	}
	if err := reg.Register(runDuration); err != nil {
		return nil, fmt.Errorf("prompush: register run histogram: %w", err)
	}

	gauges := make(map[string]prometheus.Gauge, len(metrics.GaugeNames))
	for _, name := range metrics.GaugeNames {
		g := prometheus.NewGauge(prometheus.GaugeOpts{Name: name, Help: gaugeHelp[name]})
		if err := reg.Register(g); err != nil {
			return nil, fmt.Errorf("prompush: register gauge %s: %w", name, err)
		}
		gauges[name] = g
	}

	return &Backend{
		gatewayURL:  gatewayURL,
		jobName:     jobName,
		reg:         reg,
		runCounter:  runCounter,
		runDuration: runDuration,
		gauges:      gauges,
	}, nil
}

func (b *Backend) IncCounter(name string, delta float64, labels metrics.Labels) {
	if name != metrics.RunTotal {
		return
	}
	b.runCounter.WithLabelValues(labels["status"], labels["kind"]).Add(delta)
}

func (b *Backend) ObserveHistogram(name string, value float64, labels metrics.Labels) {
	if name != metrics.RunDurationSeconds {
		return
	}
	b.runDuration.WithLabelValues(labels["status"]).Observe(value)
}

func (b *Backend) SetGauge(name string, value float64, _ metrics.Labels) {
	if g, ok := b.gauges[name]; ok {
		g.Set(value)
	}
}

// Flush pousse le registre vers la Pushgateway (remplace le groupe du job).
func (b *Backend) Flush() error {
	return push.New(b.gatewayURL, b.jobName).
		Gatherer(b.reg).
		Push()
}
