package datadog

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInit_Disabled(t *testing.T) {
	m := Init(Config{Enabled: false, AgentAddr: "127.0.0.1:8125"})
	assert.Nil(t, m)

	// nil metrics are safe to use
	m.Gauge("manifold.temp", 40)
	m.Count("manifold.anomalies", 1)
	assert.NoError(t, m.Close())
}

func TestInit_UDP(t *testing.T) {
	m := Init(Config{Enabled: true, AgentAddr: "127.0.0.1:8125", Namespace: "manifold.", Tags: []string{"env:test"}})
	if assert.NotNil(t, m) {
		m.Gauge("cycle.candidates", 2, "gas_mode:gas_on")
		m.Count("valve.transitions", 1)
		assert.NoError(t, m.Close())
	}
}
