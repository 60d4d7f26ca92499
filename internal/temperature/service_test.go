package temperature

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Mock notification sender
type MockNotifier struct {
	calls []string
}

func (m *MockNotifier) Send(title, message string) error {
	m.calls = append(m.calls, title)
	return nil
}

func newTestSensor(n Notifier, readings ...float64) *Sensor {
	s := NewSensor("28-000000000001", n)
	s.retryDelay = 0
	i := 0
	s.read = func(string) (float64, error) {
		v := readings[i]
		if i < len(readings)-1 {
			i++
		}
		return v, nil
	}
	return s
}

func TestParseW1Slave(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		want    float64
		wantErr bool
	}{
		{
			name: "valid",
			data: "72 01 4b 46 7f ff 0e 10 57 : crc=57 YES\n72 01 4b 46 7f ff 0e 10 57 t=23125\n",
			want: 23.125,
		},
		{
			name: "negative",
			data: "ff ff : crc=aa YES\nff ff t=-1250\n",
			want: -1.25,
		},
		{
			name:    "crc failure",
			data:    "72 01 : crc=57 NO\n72 01 t=23125\n",
			wantErr: true,
		},
		{
			name:    "truncated",
			data:    "72 01 : crc=57 YES\n",
			wantErr: true,
		},
		{
			name:    "garbage value",
			data:    "72 01 : crc=57 YES\n72 01 t=abc\n",
			wantErr: true,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := parseW1Slave(tc.data)
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.InDelta(t, tc.want, got, 0.0001)
		})
	}
}

func TestSensor_NormalReadings(t *testing.T) {
	s := newTestSensor(nil)
	now := time.Now()

	_, ok := s.Temperature()
	assert.False(t, ok)

	for i, v := range []float64{40, 42, 45, 44} {
		assert.True(t, s.processReading(v, now.Add(time.Duration(i)*time.Second)))
	}
	temp, ok := s.Temperature()
	assert.True(t, ok)
	assert.Equal(t, 44.0, temp)
}

func TestSensor_SpikeRejected(t *testing.T) {
	s := newTestSensor(nil)
	now := time.Now()

	s.processReading(40, now)
	assert.False(t, s.processReading(85, now))
	assert.True(t, s.processReading(41, now))

	temp, _ := s.Temperature()
	assert.Equal(t, 41.0, temp)
}

func TestSensor_StableNewBaseline(t *testing.T) {
	s := newTestSensor(nil)
	now := time.Now()

	s.processReading(25, now)
	assert.False(t, s.processReading(50, now))
	assert.False(t, s.processReading(51, now))
	assert.True(t, s.processReading(52, now))

	temp, ok := s.Temperature()
	assert.True(t, ok)
	assert.Equal(t, 52.0, temp)
}

func TestSensor_DisableAndRecover(t *testing.T) {
	n := &MockNotifier{}
	s := newTestSensor(n)
	now := time.Now()

	s.processReading(40, now)
	for _, v := range []float64{85, 0, 85, 0, 85, 0} {
		assert.False(t, s.processReading(v, now))
	}
	_, ok := s.Temperature()
	assert.False(t, ok)
	assert.Equal(t, []string{"Manifold sensor disabled"}, n.calls)

	assert.True(t, s.processReading(41, now))
	_, ok = s.Temperature()
	assert.True(t, ok)
	assert.Equal(t, []string{"Manifold sensor disabled", "Manifold sensor recovered"}, n.calls)
}

func TestSensor_PollRetries(t *testing.T) {
	s := NewSensor("28-x", nil)
	s.retryDelay = 0
	attempts := 0
	s.read = func(string) (float64, error) {
		attempts++
		if attempts < 3 {
			return 0, errors.New("bus busy")
		}
		return 38.5, nil
	}

	assert.True(t, s.Poll(time.Now()))
	assert.Equal(t, 3, attempts)
	temp, _ := s.Temperature()
	assert.Equal(t, 38.5, temp)

	s.read = func(string) (float64, error) { return 0, errors.New("gone") }
	assert.False(t, s.Poll(time.Now()))
}
