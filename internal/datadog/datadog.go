package datadog

import (
	"github.com/DataDog/datadog-go/statsd"
	"github.com/rs/zerolog/log"
)

type Config struct {
	Enabled   bool     `json:"enabled" yaml:"enabled"`
	AgentAddr string   `json:"agent_addr" yaml:"agent_addr"`
	Namespace string   `json:"namespace" yaml:"namespace"`
	Tags      []string `json:"tags" yaml:"tags"`
}

// Metrics emits DogStatsD metrics. A nil *Metrics drops everything.
type Metrics struct {
	client *statsd.Client
}

// Init returns nil when metrics are disabled or the client cannot be created.
func Init(cfg Config) *Metrics {
	if !cfg.Enabled {
		log.Info().Msg("Datadog metrics disabled")
		return nil
	}

	client, err := statsd.New(cfg.AgentAddr,
		statsd.WithNamespace(cfg.Namespace),
		statsd.WithTags(cfg.Tags),
	)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to create DogStatsD client")
		return nil
	}

	log.Info().
		Str("addr", cfg.AgentAddr).
		Str("namespace", cfg.Namespace).
		Strs("tags", cfg.Tags).
		Msg("Datadog metrics initialized")
	return &Metrics{client: client}
}

func (m *Metrics) Gauge(name string, value float64, tags ...string) {
	if m == nil {
		return
	}
	if err := m.client.Gauge(name, value, tags, 1); err != nil {
		log.Warn().Err(err).Str("metric", name).Msg("Failed to emit gauge metric")
	}
}

func (m *Metrics) Count(name string, value int64, tags ...string) {
	if m == nil {
		return
	}
	if err := m.client.Count(name, value, tags, 1); err != nil {
		log.Warn().Err(err).Str("metric", name).Msg("Failed to emit count metric")
	}
}

func (m *Metrics) Close() error {
	if m == nil {
		return nil
	}
	return m.client.Close()
}
