package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Schedule is the kiosk's view of today's bookings.
type Schedule struct {
	Revision int64            `json:"revision"`
	Date     string           `json:"date"`
	Entries  []*ScheduleEntry `json:"entries"`
}

type ScheduleEntry struct {
	Booking   int64  `json:"booking"`
	Resource  string `json:"resource"`
	Member    string `json:"member"`
	StartTime string `json:"startTime"`
	EndTime   string `json:"endTime"`
	Status    string `json:"status"`
}

type KioskEvent struct {
	UID       string `json:"uid"`
	Timestamp int64  `json:"timestamp"` // UTC unix epoch millis

	// Only one field can be set per event
	Scan *ScanEvent `json:"scan"`
}

// ScanEvent records one QR code scanned at the kiosk.
type ScanEvent struct {
	Token string `json:"token"`
}

// KioskClient caches the schedule on disk and buffers scan events so the
// kiosk keeps working through server outages.
type KioskClient struct {
	baseURL, token, stateDir string
	ScheduleChanged          chan struct{}
}

func NewKioskClient(baseURL, token, stateDir string) *KioskClient {
	if err := os.MkdirAll(filepath.Join(stateDir, "events"), 0755); err != nil {
		panic(err)
	}
	return &KioskClient{baseURL, token, stateDir, make(chan struct{}, 2)}
}

// GetSchedule returns the cached schedule, or nil if nothing has been cached
// yet.
func (c *KioskClient) GetSchedule() *Schedule {
	sched := &Schedule{}
	f, err := os.Open(filepath.Join(c.stateDir, "schedule.json"))
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		slog.Error("unexpected error while reading cached schedule", "error", err)
		return nil
	}
	defer f.Close()

	err = json.NewDecoder(f).Decode(sched)
	if err != nil {
		slog.Error("unexpected error while parsing cached schedule", "error", err)
		return nil
	}
	return sched
}

// WarmCache refreshes the cached schedule if the server has a newer one.
func (c *KioskClient) WarmCache() error {
	var after int64
	if sched := c.GetSchedule(); sched != nil {
		after = sched.Revision
	}

	resp, err := c.roundtrip(http.MethodGet, fmt.Sprintf("/api/kiosk/schedule?after=%d", after), nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNoContent {
		return nil // schedule hasn't changed since we last saw it
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	// Write the response to a temp file
	tmpPath := filepath.Join(c.stateDir, ".schedule.json")
	file, err := os.Create(tmpPath)
	if err != nil {
		return err
	}
	_, err = io.Copy(file, resp.Body)
	if err != nil {
		file.Close()
		return err
	}
	file.Close()

	// Swap the temp file into place (atomic)
	err = os.Rename(tmpPath, filepath.Join(c.stateDir, "schedule.json"))
	if err != nil {
		return err
	}
	slog.Info("updated cached schedule")

	// Signal the change if someone is listening
	select {
	case c.ScheduleChanged <- struct{}{}:
	default:
	}

	return nil
}

var eventLock sync.Mutex

// BufferEvent writes the event to disk so it survives restarts until flushed.
func (c *KioskClient) BufferEvent(event *KioskEvent) {
	eventLock.Lock()
	defer eventLock.Unlock()

	js, err := json.Marshal(event)
	if err != nil {
		panic(err)
	}

	tmp := filepath.Join(c.stateDir, "events", ".tmp")
	fp := filepath.Join(c.stateDir, "events", time.Now().Format(time.RFC3339Nano))
	if err := os.WriteFile(tmp, js, 0644); err != nil {
		panic(fmt.Sprintf("buffering event to disk: %s", err))
	}
	if err := os.Rename(tmp, fp); err != nil {
		panic(fmt.Sprintf("swapping temp event file: %s", err))
	}

	time.Sleep(time.Nanosecond) // dirty hack to make sure every timestamp is unique
}

// FlushEvents sends buffered events to the server and removes them on
// success.
func (c *KioskClient) FlushEvents() error {
	filenames := []string{}
	events := [][]byte{}

	files, err := os.ReadDir(filepath.Join(c.stateDir, "events"))
	if err != nil {
		return err
	}
	for _, file := range files {
		fullPath := filepath.Join(c.stateDir, "events", file.Name())
		js, err := os.ReadFile(fullPath)
		if err != nil {
			return err
		}
		events = append(events, js)
		filenames = append(filenames, fullPath)
		if len(events) >= 100 {
			break // limit the batch size
		}
	}

	if len(files) == 0 {
		return nil // nothing to do
	}

	resp, err := c.roundtrip(http.MethodPost, "/api/kiosk/events", bytes.NewReader(bytes.Join(events, []byte("\n"))))
	if err != nil {
		return err
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		return fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}
	slog.Info("flushed events to server", "count", len(events))

	for _, name := range filenames {
		err = os.Remove(name)
		if err != nil {
			return err
		}
	}

	return nil
}

var client = &http.Client{Timeout: 5 * time.Second}

func (c *KioskClient) roundtrip(method, path string, body io.Reader) (*http.Response, error) {
	uri := fmt.Sprintf("%s%s", c.baseURL, path)
	req, err := http.NewRequest(method, uri, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)

	return client.Do(req)
}
