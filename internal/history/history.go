// Package history implements the sender's persistent record of the last
// successful backup time per (service, cadence) pair.
package history

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/natefinch/atomic"

	"github.com/haldane-labs/backupd/internal/wire"
)

// History is a single-threaded, file-backed map from (service, cadence)
// to the time of the last successful upload. It is exclusively owned by
// the scheduler loop; the type does not protect itself against concurrent
// access.
type History struct {
	path    string
	entries map[string]time.Time
}

// Key joins service and cadence with "::". The string charset used for
// service names forbids ":", so this join is always unambiguous to decode.
func Key(service string, cadence wire.Cadence) string {
	return fmt.Sprintf("%s::%s", service, cadence.String())
}

// LoadOrCreate loads history.json from path, creating an empty file if
// none exists yet.
func LoadOrCreate(path string) (*History, error) {
	h := &History{path: path, entries: map[string]time.Time{}}

	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		if err := h.persist(); err != nil {
			return nil, fmt.Errorf("creating history file: %w", err)
		}
		return h, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading history file: %w", err)
	}

	if len(raw) == 0 {
		return h, nil
	}

	raw2 := map[string]time.Time{}
	if err := json.Unmarshal(raw, &raw2); err != nil {
		return nil, fmt.Errorf("parsing history file %s: %w", path, err)
	}
	h.entries = raw2
	return h, nil
}

// NeedsBackup reports whether a backup of this (service, cadence) pair is
// due: no prior entry, the cadence's minimum interval has elapsed since
// the last one, or the clock has gone backwards relative to the recorded
// entry.
func (h *History) NeedsBackup(service string, cadence wire.Cadence) bool {
	last, ok := h.entries[Key(service, cadence)]
	if !ok {
		return true
	}

	now := time.Now()
	if now.Before(last) {
		return true
	}
	return now.Sub(last) >= cadence.MinInterval()
}

// Update sets the entry for (service, cadence) to now and persists.
// In-memory state is updated even if the persist fails; the error is
// returned to the caller but does not roll back the in-memory entry.
func (h *History) Update(service string, cadence wire.Cadence) error {
	h.entries[Key(service, cadence)] = time.Now()
	return h.persist()
}

func (h *History) persist() error {
	raw, err := json.MarshalIndent(h.entries, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding history: %w", err)
	}
	if err := atomic.WriteFile(h.path, bytes.NewReader(raw)); err != nil {
		return fmt.Errorf("writing history file %s: %w", h.path, err)
	}
	return nil
}
