package temperature

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

const w1Devices = "/sys/bus/w1/devices"

type Reading struct {
	Temperature float64 // Celsius
	Timestamp   time.Time
}

// Notifier interface for sending notifications
type Notifier interface {
	Send(title, message string) error
}

// Sensor polls one 1-wire probe on the manifold supply and filters out
// implausible jumps before publishing a reading.
type Sensor struct {
	deviceID string
	read     func(path string) (float64, error)
	notifier Notifier

	maxDelta     float64
	maxAnomalies int
	retries      int
	retryDelay   time.Duration

	mutex     sync.RWMutex
	lastGood  Reading
	anomalies []float64
	disabled  bool
}

func NewSensor(deviceID string, notifier Notifier) *Sensor {
	return &Sensor{
		deviceID:     deviceID,
		read:         ReadSensorTemp,
		notifier:     notifier,
		maxDelta:     8.0,
		maxAnomalies: 6,
		retries:      3,
		retryDelay:   2 * time.Second,
	}
}

// Run polls the sensor every interval until ctx is cancelled.
func (s *Sensor) Run(ctx context.Context, interval time.Duration) {
	log.Info().Str("sensor", s.deviceID).Dur("interval", interval).Msg("Starting manifold temperature polling")
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		s.Poll(time.Now())
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Poll reads the probe once, retrying transient read errors.
func (s *Sensor) Poll(now time.Time) bool {
	path := filepath.Join(w1Devices, s.deviceID)

	var temp float64
	var err error
	for attempt := 0; attempt <= s.retries; attempt++ {
		if attempt > 0 {
			time.Sleep(s.retryDelay)
		}
		if temp, err = s.read(path); err == nil {
			break
		}
	}
	if err != nil {
		log.Error().Err(err).Str("sensor", s.deviceID).Msg("Failed to read manifold sensor")
		return false
	}

	return s.processReading(temp, now)
}

// Temperature returns the last accepted reading. ok is false before the first
// reading and while the sensor is disabled.
func (s *Sensor) Temperature() (float64, bool) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	if s.disabled || s.lastGood.Timestamp.IsZero() {
		return 0, false
	}
	return s.lastGood.Temperature, true
}

func (s *Sensor) processReading(temp float64, ts time.Time) bool {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.lastGood.Timestamp.IsZero() || math.Abs(temp-s.lastGood.Temperature) <= s.maxDelta {
		s.accept(temp, ts)
		return true
	}

	s.anomalies = append(s.anomalies, temp)

	// Several consecutive readings agreeing with each other means the water
	// temperature really moved.
	if n := len(s.anomalies); n >= 3 && spread(s.anomalies[n-3:]) <= s.maxDelta {
		log.Info().Str("sensor", s.deviceID).Float64("temp", temp).Msg("Stable new baseline detected, accepting temperature")
		s.accept(temp, ts)
		return true
	}

	log.Warn().Str("sensor", s.deviceID).Float64("temp", temp).
		Float64("last_good", s.lastGood.Temperature).Msg("Manifold reading rejected as anomalous")

	if len(s.anomalies) >= s.maxAnomalies && !s.disabled {
		s.disabled = true
		s.notify("Manifold sensor disabled",
			fmt.Sprintf("Sensor %s reported %.1f°C, last good reading %.1f°C", s.deviceID, temp, s.lastGood.Temperature))
	}
	return false
}

func (s *Sensor) accept(temp float64, ts time.Time) {
	if s.disabled {
		s.disabled = false
		s.notify("Manifold sensor recovered", fmt.Sprintf("Sensor %s back at %.1f°C", s.deviceID, temp))
	}
	s.anomalies = s.anomalies[:0]
	s.lastGood = Reading{Temperature: temp, Timestamp: ts}
}

func (s *Sensor) notify(title, msg string) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Send(title, msg); err != nil {
		log.Debug().Err(err).Str("title", title).Msg("Notification not sent")
	}
}

func spread(vals []float64) float64 {
	lo, hi := vals[0], vals[0]
	for _, v := range vals[1:] {
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	return hi - lo
}

// ReadSensorTemp reads a DS18B20 w1_slave file under sensorPath, in Celsius.
func ReadSensorTemp(sensorPath string) (float64, error) {
	data, err := os.ReadFile(filepath.Join(sensorPath, "w1_slave"))
	if err != nil {
		return 0, fmt.Errorf("failed to read sensor data: %w", err)
	}
	return parseW1Slave(string(data))
}

func parseW1Slave(data string) (float64, error) {
	lines := strings.Split(strings.TrimSpace(data), "\n")
	if len(lines) < 2 {
		return 0, fmt.Errorf("temperature data missing or malformed")
	}
	if !strings.HasSuffix(strings.TrimSpace(lines[0]), "YES") {
		return 0, fmt.Errorf("sensor CRC check failed")
	}

	parts := strings.Split(lines[1], "t=")
	if len(parts) != 2 {
		return 0, fmt.Errorf("could not parse temperature line %q", lines[1])
	}

	milliC, err := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil {
		return 0, fmt.Errorf("failed to convert temperature to int: %w", err)
	}
	return float64(milliC) / 1000.0, nil
}
