// Package progress persists the single-slot state that makes interrupted
// runs resumable. Two plain-text files per run kind live in the state
// directory:
//
//	.in-flight-<kind>      the date of the unit currently being fetched;
//	                       written before the unit's first network call,
//	                       removed only after every configured sink has
//	                       confirmed the unit's output
//	.last-completed-<kind> the end date of the most recently completed unit
//
// On startup an in-flight marker names the last attempted, possibly
// incomplete unit and is re-fetched from scratch; absent that, the run
// resumes the day after the last completed unit. Keyed-upsert sinks absorb
// the at-least-once replay.
package progress

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"txdata/internal/domain"
)

const (
	inFlightPrefix  = ".in-flight"
	completedPrefix = ".last-completed"
)

// Tracker manages the marker files. Single-writer, single-reader within one
// run; concurrent runs against the same state directory are not supported.
type Tracker struct {
	inFlight  string
	completed string
	log       *slog.Logger
}

// NewTracker creates a tracker rooted at stateDir, creating the directory
// if needed. kind namespaces the marker files so tick, bar, and
// continuous-bar runs each keep their own progress.
func NewTracker(stateDir, kind string, log *slog.Logger) (*Tracker, error) {
	if kind == "" {
		return nil, fmt.Errorf("tracker kind is empty")
	}
	if err := os.MkdirAll(stateDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating state dir: %w", err)
	}
	if log == nil {
		log = slog.Default()
	}
	return &Tracker{
		inFlight:  filepath.Join(stateDir, inFlightPrefix+"-"+kind),
		completed: filepath.Join(stateDir, completedPrefix+"-"+kind),
		log:       log.With("component", "progress", "kind", kind),
	}, nil
}

// Begin durably records date as the in-flight unit, overwriting any
// previous marker. It must be called before the unit's first network call.
func (t *Tracker) Begin(date time.Time) error {
	if err := writeDate(t.inFlight, date); err != nil {
		return fmt.Errorf("writing in-flight marker: %w", err)
	}
	t.log.Debug("unit begun", "date", date.Format(domain.DateLayout))
	return nil
}

// Complete records end as the last completed date and clears the in-flight
// marker. Call only after the unit's output has been durably written to
// every configured sink.
func (t *Tracker) Complete(end time.Time) error {
	if err := writeDate(t.completed, end); err != nil {
		return fmt.Errorf("writing last-completed marker: %w", err)
	}
	if err := os.Remove(t.inFlight); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("clearing in-flight marker: %w", err)
	}
	return nil
}

// Resume reports the date the run should start from: the in-flight unit's
// date when a run died mid-unit, otherwise the day after the last completed
// unit. ok is false when no state exists.
func (t *Tracker) Resume() (time.Time, bool, error) {
	date, found, err := readDate(t.inFlight)
	if err != nil {
		return time.Time{}, false, err
	}
	if found {
		t.log.Info("resuming interrupted unit", "date", date.Format(domain.DateLayout))
		return date, true, nil
	}

	date, found, err = readDate(t.completed)
	if err != nil {
		return time.Time{}, false, err
	}
	if found {
		next := date.AddDate(0, 0, 1)
		t.log.Info("resuming after completed unit",
			"completed", date.Format(domain.DateLayout),
			"next", next.Format(domain.DateLayout))
		return next, true, nil
	}

	return time.Time{}, false, nil
}

// Reset discards all progress state, forcing the next run to start from the
// user-selected date.
func (t *Tracker) Reset() error {
	for _, p := range []string{t.inFlight, t.completed} {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("removing %s: %w", p, err)
		}
	}
	return nil
}

func writeDate(path string, date time.Time) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, []byte(date.Format(domain.DateLayout)+"\n"), 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func readDate(path string) (time.Time, bool, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("reading %s: %w", path, err)
	}

	date, err := domain.ParseDate(strings.TrimSpace(string(data)))
	if err != nil {
		return time.Time{}, false, fmt.Errorf("corrupt marker %s: %w", path, err)
	}
	return date, true, nil
}
