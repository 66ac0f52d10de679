// Package datadog envoie les métriques du job à un agent DogStatsD.
package datadog

import (
	"fmt"
	"sort"

	"churn-history/pkg/metrics"

	"github.com/DataDog/datadog-go/v5/statsd"
)

type Config struct {
	// Addr : "127.0.0.1:8125" ou "unix:///var/run/datadog/dsd.socket".
	Addr       string
	Namespace  string
	GlobalTags []string
}

// client couvre les méthodes statsd utilisées (remplaçable en test).
type client interface {
	Count(name string, value int64, tags []string, rate float64) error
	Histogram(name string, value float64, tags []string, rate float64) error
	Gauge(name string, value float64, tags []string, rate float64) error
	Flush() error
}

type Backend struct {
	client client
}

func NewBackend(cfg Config) (*Backend, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("datadog: Addr is required")
	}
	opts := []statsd.Option{}
	if cfg.Namespace != "" {
		opts = append(opts, statsd.WithNamespace(cfg.Namespace))
	}
	if len(cfg.GlobalTags) > 0 {
		opts = append(opts, statsd.WithTags(cfg.GlobalTags))
	}
	c, err := statsd.New(cfg.Addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("datadog: create client: %w", err)
	}
	return &Backend{client: c}, nil
}

func (b *Backend) IncCounter(name string, delta float64, labels metrics.Labels) {
	_ = b.client.Count(name, int64(delta), labelsToTags(labels), 1)
}

func (b *Backend) ObserveHistogram(name string, value float64, labels metrics.Labels) {
	_ = b.client.Histogram(name, value, labelsToTags(labels), 1)
}

func (b *Backend) SetGauge(name string, value float64, labels metrics.Labels) {
	_ = b.client.Gauge(name, value, labelsToTags(labels), 1)
}

func (b *Backend) Flush() error {
	return b.client.Flush()
}

// labelsToTags : {"status":"success"} → ["status:success"], trié pour rester stable.
func labelsToTags(labels metrics.Labels) []string {
	if len(labels) == 0 {
		return nil
	}
	tags := make([]string, 0, len(labels))
	for k, v := range labels {
		tags = append(tags, k+":"+v)
	}
	sort.Strings(tags)
	return tags
}
