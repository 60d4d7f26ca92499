// Package remote talks to the thermostat proxy that fronts the remote
// thermostat service.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/manifold-controller/internal/model"
)

const DefaultTimeout = 2500 * time.Millisecond

var ErrRequestInProgress = errors.New("remote request already in progress")

type Client struct {
	baseURL  string
	http     *http.Client
	inFlight atomic.Bool
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

// Fetch retrieves every room from the proxy. Only one fetch runs at a time;
// overlapping calls return ErrRequestInProgress without issuing a request.
// Returned records carry no Forced value; callers keep their own.
func (c *Client) Fetch(ctx context.Context) ([]model.ZoneRecord, error) {
	if !c.inFlight.CompareAndSwap(false, true) {
		return nil, ErrRequestInProgress
	}
	defer c.inFlight.Store(false)

	body, err := c.get(ctx, c.baseURL+"/getdata")
	if err != nil {
		return nil, err
	}

	var doc payload
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode rooms: %w", err)
	}

	recs := make([]model.ZoneRecord, 0, len(doc.Rooms))
	for _, r := range doc.Rooms {
		if r.ID == nil {
			log.Warn().Str("name", r.Name).Msg("Skipping room without id")
			continue
		}
		recs = append(recs, r.record())
	}

	log.Debug().Int("rooms", len(recs)).Msg("Fetched remote rooms")
	return recs, nil
}

// InFlight reports whether a fetch is currently running.
func (c *Client) InFlight() bool {
	return c.inFlight.Load()
}

// SetRoomTemperature pushes a manual setpoint for one room.
func (c *Client) SetRoomTemperature(ctx context.Context, roomID int, temp float64) error {
	q := url.Values{}
	q.Set("mode", "manual")
	q.Set("temperature", strconv.FormatFloat(temp, 'f', 1, 64))
	q.Set("room_id", strconv.Itoa(roomID))

	if _, err := c.get(ctx, c.baseURL+"/setRoomTemperature?"+q.Encode()); err != nil {
		return fmt.Errorf("failed to set temperature for room %d: %w", roomID, err)
	}
	log.Info().Int("zone", roomID).Float64("temp", temp).Msg("Pushed remote setpoint")
	return nil
}

func (c *Client) get(ctx context.Context, u string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, bytes.TrimSpace(body))
	}
	return body, nil
}

type payload struct {
	Rooms []room `json:"rooms"`
}

type room struct {
	ID           *flexID         `json:"id"`
	Name         string          `json:"name"`
	Type         string          `json:"type"`
	Measured     float64         `json:"therm_measured_temperature"`
	Setpoint     float64         `json:"therm_setpoint_temperature"`
	BatteryState string          `json:"battery_state"`
	BatteryLevel int             `json:"battery_level"`
	RFStrength   int             `json:"rf_strength"`
	Reachable    bool            `json:"reachable"`
	Anticipating json.RawMessage `json:"anticipating"`
}

func (r room) record() model.ZoneRecord {
	z := model.NewZoneRecord(int(*r.ID))
	z.Name = r.Name
	z.Type = r.Type
	z.CurrentTemp = r.Measured
	z.TargetRemote = r.Setpoint
	z.BatteryState = r.BatteryState
	z.BatteryLevel = r.BatteryLevel
	z.RFStrength = r.RFStrength
	z.Reachable = r.Reachable
	z.Anticipating = rawString(r.Anticipating)
	return z
}

// flexID accepts room ids encoded either as JSON numbers or strings.
type flexID int

func (f *flexID) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid room id %s: %w", b, err)
	}
	*f = flexID(n)
	return nil
}

func rawString(b json.RawMessage) string {
	s := string(bytes.TrimSpace(b))
	if s == "" || s == "null" {
		return ""
	}
	return strings.Trim(s, `"`)
}
