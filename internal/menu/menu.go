// Package menu implements the interactive prompts that turn console input
// into a run specification. Input lines are NFKC-normalized so full-width
// digits typed under a CJK input method select the same options as ASCII.
package menu

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"

	"txdata/internal/domain"
	"txdata/internal/util"
)

// DataKind selects what a run retrieves.
type DataKind string

const (
	KindTicks          DataKind = "ticks"
	KindBars           DataKind = "bars"
	KindContinuousBars DataKind = "continuous-bars"
)

// StorageTarget selects which sinks receive the output.
type StorageTarget string

const (
	TargetMongo StorageTarget = "mongo"
	TargetCSV   StorageTarget = "csv"
	TargetBoth  StorageTarget = "both"
)

// RunSpec is the fully resolved outcome of the interactive session.
type RunSpec struct {
	Kind   DataKind
	Target StorageTarget
	Range  domain.DateRange
}

// Menu reads selections line by line. Invalid input re-prompts; EOF on the
// input stream aborts with io.EOF.
type Menu struct {
	in  *bufio.Scanner
	out io.Writer
	now func() time.Time
}

func New(in io.Reader, out io.Writer) *Menu {
	return &Menu{
		in:  bufio.NewScanner(in),
		out: out,
		now: func() time.Time { return time.Now().In(util.MarketLocation()) },
	}
}

// Run walks the user through data kind, period, and storage selection.
func (m *Menu) Run() (RunSpec, error) {
	kind, err := m.askKind()
	if err != nil {
		return RunSpec{}, err
	}
	r, err := m.askPeriod()
	if err != nil {
		return RunSpec{}, err
	}
	target, err := m.askTarget()
	if err != nil {
		return RunSpec{}, err
	}
	return RunSpec{Kind: kind, Target: target, Range: r}, nil
}

func (m *Menu) askKind() (DataKind, error) {
	for {
		fmt.Fprintln(m.out, "Data to download:")
		fmt.Fprintln(m.out, "  1) Ticks")
		fmt.Fprintln(m.out, "  2) Minute bars (provider)")
		fmt.Fprintln(m.out, "  3) Minute bars (synthesized from ticks)")
		choice, err := m.readLine("> ")
		if err != nil {
			return "", err
		}
		switch choice {
		case "1":
			return KindTicks, nil
		case "2":
			return KindBars, nil
		case "3":
			return KindContinuousBars, nil
		}
		fmt.Fprintf(m.out, "invalid choice %q\n", choice)
	}
}

func (m *Menu) askPeriod() (domain.DateRange, error) {
	for {
		fmt.Fprintln(m.out, "Period:")
		fmt.Fprintln(m.out, "  1) Last trading day")
		fmt.Fprintln(m.out, "  2) This week")
		fmt.Fprintln(m.out, "  3) This month")
		fmt.Fprintln(m.out, "  4) Last 6 months")
		fmt.Fprintln(m.out, "  5) Last year")
		fmt.Fprintln(m.out, "  6) Last 5 years")
		fmt.Fprintln(m.out, "  7) Custom range")
		choice, err := m.readLine("> ")
		if err != nil {
			return domain.DateRange{}, err
		}

		today := dateOf(m.now())
		switch choice {
		case "1":
			d := util.LastTradingDay(today)
			return domain.DateRange{Start: d, End: d}, nil
		case "2":
			return domain.DateRange{Start: util.WeekStart(today), End: today}, nil
		case "3":
			first := time.Date(today.Year(), today.Month(), 1, 0, 0, 0, 0, time.UTC)
			return domain.DateRange{Start: first, End: today}, nil
		case "4":
			return domain.DateRange{Start: today.AddDate(0, -6, 0), End: today}, nil
		case "5":
			return domain.DateRange{Start: today.AddDate(-1, 0, 0), End: today}, nil
		case "6":
			return domain.DateRange{Start: today.AddDate(-5, 0, 0), End: today}, nil
		case "7":
			r, err := m.askCustomRange()
			if err != nil {
				return domain.DateRange{}, err
			}
			return r, nil
		}
		fmt.Fprintf(m.out, "invalid choice %q\n", choice)
	}
}

func (m *Menu) askCustomRange() (domain.DateRange, error) {
	for {
		startStr, err := m.readLine("start date (YYYY-MM-DD): ")
		if err != nil {
			return domain.DateRange{}, err
		}
		start, err := domain.ParseDate(startStr)
		if err != nil {
			fmt.Fprintf(m.out, "invalid date %q\n", startStr)
			continue
		}

		endStr, err := m.readLine("end date (YYYY-MM-DD): ")
		if err != nil {
			return domain.DateRange{}, err
		}
		end, err := domain.ParseDate(endStr)
		if err != nil {
			fmt.Fprintf(m.out, "invalid date %q\n", endStr)
			continue
		}

		r := domain.DateRange{Start: start, End: end}
		if err := r.Validate(); err != nil {
			fmt.Fprintf(m.out, "%v\n", err)
			continue
		}
		return r, nil
	}
}

// ConfirmResume asks whether to continue from a previous run's saved
// progress. Returns false to start fresh.
func (m *Menu) ConfirmResume(next time.Time) (bool, error) {
	for {
		fmt.Fprintf(m.out, "Found progress from a previous run (next unit %s).\n",
			next.Format(domain.DateLayout))
		fmt.Fprintln(m.out, "  1) Resume")
		fmt.Fprintln(m.out, "  2) Start fresh")
		choice, err := m.readLine("> ")
		if err != nil {
			return false, err
		}
		switch choice {
		case "1":
			return true, nil
		case "2":
			return false, nil
		}
		fmt.Fprintf(m.out, "invalid choice %q\n", choice)
	}
}

func (m *Menu) askTarget() (StorageTarget, error) {
	for {
		fmt.Fprintln(m.out, "Store results to:")
		fmt.Fprintln(m.out, "  1) Database")
		fmt.Fprintln(m.out, "  2) CSV files")
		fmt.Fprintln(m.out, "  3) Both")
		choice, err := m.readLine("> ")
		if err != nil {
			return "", err
		}
		switch choice {
		case "1":
			return TargetMongo, nil
		case "2":
			return TargetCSV, nil
		case "3":
			return TargetBoth, nil
		}
		fmt.Fprintf(m.out, "invalid choice %q\n", choice)
	}
}

func (m *Menu) readLine(prompt string) (string, error) {
	fmt.Fprint(m.out, prompt)
	if !m.in.Scan() {
		if err := m.in.Err(); err != nil {
			return "", err
		}
		return "", io.EOF
	}
	return norm.NFKC.String(strings.TrimSpace(m.in.Text())), nil
}

func dateOf(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
