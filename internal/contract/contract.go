// Package contract maps calendar days onto the futures contract that is
// active on that day, either through a broker-native continuous symbol or
// through manual rollover-window stitching, and merges per-contract series
// into one monotonic stream.
package contract

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"txdata/internal/domain"
)

// ErrWindowOverlap signals a misconfigured contract list whose rollover
// windows would overlap. Overlap is treated as a fatal configuration error
// rather than resolved by precedence.
var ErrWindowOverlap = errors.New("contract rollover windows overlap")

// ErrNoContract signals that no usable contract exists for the run at all.
var ErrNoContract = errors.New("no contract found")

// Resolver maps a calendar day to the contract identifier to fetch for that
// day. ok is false when the date falls outside every window: not an error,
// the day simply yields no data.
type Resolver interface {
	Resolve(date time.Time) (code string, ok bool)
}

// Native resolves every date to one fixed broker-native continuous symbol
// (e.g. TXFR1). The returned series is already continuous.
type Native struct {
	Code string
}

// Resolve returns the continuous code for any date.
func (n Native) Resolve(time.Time) (string, bool) { return n.Code, true }

// Stitcher resolves dates against manually built rollover windows.
type Stitcher struct {
	windows []domain.ContractWindow
}

// NewStitcher builds rollover windows from discrete contracts: contract k's
// window runs from the day after contract k-1's delivery through its own
// delivery. The first window starts at earliest (the first date history is
// available for). Continuous R1/R2 codes are excluded. Duplicate or
// non-increasing delivery dates produce ErrWindowOverlap.
func NewStitcher(contracts []domain.Contract, earliest time.Time) (*Stitcher, error) {
	regular := Regular(contracts)
	if len(regular) == 0 {
		return nil, fmt.Errorf("%w: contract list has no regular contracts", ErrNoContract)
	}

	sort.Slice(regular, func(i, j int) bool {
		return regular[i].Delivery.Before(regular[j].Delivery)
	})

	windows := make([]domain.ContractWindow, 0, len(regular))
	from := earliest
	for i, c := range regular {
		if i > 0 && !c.Delivery.After(regular[i-1].Delivery) {
			return nil, fmt.Errorf("%w: %s and %s both deliver on %s",
				ErrWindowOverlap, regular[i-1].Code, c.Code, c.Delivery.Format(domain.DateLayout))
		}
		if c.Delivery.Before(from) {
			// Already-expired contract: nothing of its window remains.
			from = c.Delivery.AddDate(0, 0, 1)
			continue
		}
		windows = append(windows, domain.ContractWindow{Code: c.Code, From: from, To: c.Delivery})
		from = c.Delivery.AddDate(0, 0, 1)
	}

	if len(windows) == 0 {
		return nil, fmt.Errorf("%w: all contracts deliver before %s",
			ErrNoContract, earliest.Format(domain.DateLayout))
	}

	return &Stitcher{windows: windows}, nil
}

// Resolve returns the contract whose window contains date.
func (s *Stitcher) Resolve(date time.Time) (string, bool) {
	for _, w := range s.windows {
		if w.Contains(date) {
			return w.Code, true
		}
	}
	return "", false
}

// Windows exposes the computed windows, ordered by From.
func (s *Stitcher) Windows() []domain.ContractWindow {
	return s.windows
}

// Regular filters out continuous-series codes (suffix R1/R2), returning only
// discrete monthly contracts.
func Regular(contracts []domain.Contract) []domain.Contract {
	out := make([]domain.Contract, 0, len(contracts))
	for _, c := range contracts {
		if strings.HasSuffix(c.Code, "R1") || strings.HasSuffix(c.Code, "R2") {
			continue
		}
		out = append(out, c)
	}
	return out
}

// NearMonth returns the regular contract with the earliest delivery on or
// after date.
func NearMonth(contracts []domain.Contract, date time.Time) (domain.Contract, error) {
	regular := Regular(contracts)
	sort.Slice(regular, func(i, j int) bool {
		return regular[i].Delivery.Before(regular[j].Delivery)
	})
	for _, c := range regular {
		if !c.Delivery.Before(date) {
			return c, nil
		}
	}
	return domain.Contract{}, fmt.Errorf("%w: no regular contract delivers on or after %s",
		ErrNoContract, date.Format(domain.DateLayout))
}
