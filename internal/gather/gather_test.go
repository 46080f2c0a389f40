package gather

import (
	"context"
	"errors"
	"testing"
	"time"

	"txdata/internal/contract"
	"txdata/internal/domain"
	"txdata/internal/progress"
	"txdata/internal/sink"
	"txdata/internal/store"
	"txdata/internal/util"
)

type fakeFetcher struct {
	ticks     map[string][]domain.Tick // keyed by date
	tickErrs  map[string]error
	kbars     []domain.Bar
	kbarErr   error
	tickCalls []string
	kbarCalls int
}

func (f *fakeFetcher) FetchTicks(_ context.Context, _ string, date time.Time) ([]domain.Tick, error) {
	key := date.Format(domain.DateLayout)
	f.tickCalls = append(f.tickCalls, key)
	if err := f.tickErrs[key]; err != nil {
		return nil, err
	}
	return f.ticks[key], nil
}

func (f *fakeFetcher) FetchKBars(context.Context, string, time.Time, time.Time) ([]domain.Bar, error) {
	f.kbarCalls++
	return f.kbars, f.kbarErr
}

type tickWrite struct {
	ticks []domain.Tick
	chunk domain.DateRange
}

type fakeTickSink struct {
	writes []tickWrite
	err    error
}

func (s *fakeTickSink) Name() string { return "fake" }

func (s *fakeTickSink) WriteTicks(_ context.Context, ticks []domain.Tick, chunk domain.DateRange) error {
	if s.err != nil {
		return s.err
	}
	s.writes = append(s.writes, tickWrite{ticks, chunk})
	return nil
}

type fakeBarSink struct {
	bars   []domain.Bar
	ranges []domain.DateRange
	err    error
}

func (s *fakeBarSink) Name() string { return "fake" }

func (s *fakeBarSink) WriteBars(_ context.Context, bars []domain.Bar, r domain.DateRange) error {
	if s.err != nil {
		return s.err
	}
	s.bars = bars
	s.ranges = append(s.ranges, r)
	return nil
}

func tickAt(t *testing.T, date string, hour, minute int, price float64, size int64) domain.Tick {
	t.Helper()
	d, err := domain.ParseDate(date)
	if err != nil {
		t.Fatalf("ParseDate(%q): %v", date, err)
	}
	ts := time.Date(d.Year(), d.Month(), d.Day(), hour, minute, 0, 0, util.MarketLocation())
	return domain.Tick{TimestampNS: ts.UnixNano(), Price: price, Size: size, Side: domain.SideDeal}
}

func newTestOrchestrator(t *testing.T, f *fakeFetcher) *Orchestrator {
	t.Helper()
	tr, err := progress.NewTracker(t.TempDir(), "ticks", nil)
	if err != nil {
		t.Fatalf("NewTracker: %v", err)
	}
	return New(Params{
		Fetcher:  f,
		Tracker:  tr,
		Resolver: contract.Native{Code: "TXFR1"},
		Symbol:   "TXF",
	})
}

func TestRunTicksSingleChunk(t *testing.T) {
	// Monday through Tuesday: one chunk, two trading days.
	f := &fakeFetcher{ticks: map[string][]domain.Tick{
		"2024-03-04": {tickAt(t, "2024-03-04", 9, 0, 100, 1)},
		"2024-03-05": {tickAt(t, "2024-03-05", 9, 0, 101, 2)},
	}}
	o := newTestOrchestrator(t, f)
	ts := &fakeTickSink{}
	r := domain.DateRange{Start: domain.Date(2024, 3, 4), End: domain.Date(2024, 3, 5)}

	if err := o.RunTicks(context.Background(), r, []sink.TickSink{ts}); err != nil {
		t.Fatalf("RunTicks: %v", err)
	}

	if len(f.tickCalls) != 2 {
		t.Fatalf("tick fetches = %v, want 2 days", f.tickCalls)
	}
	if len(ts.writes) != 1 {
		t.Fatalf("sink writes = %d, want 1", len(ts.writes))
	}
	w := ts.writes[0]
	if len(w.ticks) != 2 {
		t.Fatalf("ticks written = %d, want 2", len(w.ticks))
	}
	if !w.chunk.Start.Equal(r.Start) || !w.chunk.End.Equal(r.End) {
		t.Fatalf("chunk range = %v..%v, want %v..%v", w.chunk.Start, w.chunk.End, r.Start, r.End)
	}

	// A completed run resumes past the range end.
	resume, ok, err := o.tracker.Resume()
	if err != nil || !ok {
		t.Fatalf("Resume = %v, %v, %v", resume, ok, err)
	}
	if want := domain.Date(2024, 3, 6); !resume.Equal(want) {
		t.Fatalf("resume point = %v, want %v", resume, want)
	}
}

func TestRunTicksSkipsWeekends(t *testing.T) {
	f := &fakeFetcher{ticks: map[string][]domain.Tick{
		"2024-03-08": {tickAt(t, "2024-03-08", 9, 0, 100, 1)},
		"2024-03-11": {tickAt(t, "2024-03-11", 9, 0, 101, 1)},
	}}
	o := newTestOrchestrator(t, f)
	ts := &fakeTickSink{}
	// Friday through Monday: crosses a weekend and a chunk boundary.
	r := domain.DateRange{Start: domain.Date(2024, 3, 8), End: domain.Date(2024, 3, 11)}

	if err := o.RunTicks(context.Background(), r, []sink.TickSink{ts}); err != nil {
		t.Fatalf("RunTicks: %v", err)
	}

	want := []string{"2024-03-08", "2024-03-11"}
	if len(f.tickCalls) != len(want) || f.tickCalls[0] != want[0] || f.tickCalls[1] != want[1] {
		t.Fatalf("tick fetches = %v, want %v", f.tickCalls, want)
	}
	if len(ts.writes) != 1 {
		t.Fatalf("sink writes = %d, want a single short-range chunk", len(ts.writes))
	}
	if len(ts.writes[0].ticks) != 2 {
		t.Fatalf("ticks written = %d, want both trading days merged", len(ts.writes[0].ticks))
	}
}

func TestRunTicksEmptyChunkWritesNothing(t *testing.T) {
	f := &fakeFetcher{}
	o := newTestOrchestrator(t, f)
	ts := &fakeTickSink{}
	r := domain.DateRange{Start: domain.Date(2024, 3, 4), End: domain.Date(2024, 3, 5)}

	if err := o.RunTicks(context.Background(), r, []sink.TickSink{ts}); err != nil {
		t.Fatalf("RunTicks: %v", err)
	}
	if len(ts.writes) != 0 {
		t.Fatalf("sink writes = %d, want none for empty chunk", len(ts.writes))
	}

	// The empty chunk still completes so the run can make progress.
	resume, ok, err := o.tracker.Resume()
	if err != nil || !ok {
		t.Fatalf("Resume = %v, %v, %v", resume, ok, err)
	}
	if want := domain.Date(2024, 3, 6); !resume.Equal(want) {
		t.Fatalf("resume point = %v, want %v", resume, want)
	}
}

func TestRunTicksFetchErrorPreservesMarker(t *testing.T) {
	fetchErr := errors.New("bridge unreachable")
	f := &fakeFetcher{tickErrs: map[string]error{"2024-03-05": fetchErr}}
	o := newTestOrchestrator(t, f)
	r := domain.DateRange{Start: domain.Date(2024, 3, 4), End: domain.Date(2024, 3, 5)}

	err := o.RunTicks(context.Background(), r, []sink.TickSink{&fakeTickSink{}})
	if !errors.Is(err, fetchErr) {
		t.Fatalf("RunTicks error = %v, want wrapped fetch error", err)
	}

	// The in-flight marker still names the failed chunk.
	resume, ok, rerr := o.tracker.Resume()
	if rerr != nil || !ok {
		t.Fatalf("Resume = %v, %v, %v", resume, ok, rerr)
	}
	if !resume.Equal(r.Start) {
		t.Fatalf("resume point = %v, want failed chunk start %v", resume, r.Start)
	}
}

func TestRunTicksSinkErrorPreservesMarker(t *testing.T) {
	sinkErr := errors.New("disk full")
	f := &fakeFetcher{ticks: map[string][]domain.Tick{
		"2024-03-04": {tickAt(t, "2024-03-04", 9, 0, 100, 1)},
	}}
	o := newTestOrchestrator(t, f)
	r := domain.DateRange{Start: domain.Date(2024, 3, 4), End: domain.Date(2024, 3, 4)}

	err := o.RunTicks(context.Background(), r, []sink.TickSink{&fakeTickSink{err: sinkErr}})
	if !errors.Is(err, sinkErr) {
		t.Fatalf("RunTicks error = %v, want wrapped sink error", err)
	}

	resume, ok, rerr := o.tracker.Resume()
	if rerr != nil || !ok {
		t.Fatalf("Resume = %v, %v, %v", resume, ok, rerr)
	}
	if !resume.Equal(r.Start) {
		t.Fatalf("resume point = %v, want failed chunk start %v", resume, r.Start)
	}
}

func TestRunTicksResumesAfterCompletedChunk(t *testing.T) {
	f := &fakeFetcher{ticks: map[string][]domain.Tick{
		"2024-03-11": {tickAt(t, "2024-03-11", 9, 0, 100, 1)},
	}}
	o := newTestOrchestrator(t, f)
	// First chunk of the two-week range already completed.
	if err := o.tracker.Complete(domain.Date(2024, 3, 10)); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	r := domain.DateRange{Start: domain.Date(2024, 3, 4), End: domain.Date(2024, 3, 11)}

	if err := o.RunTicks(context.Background(), r, []sink.TickSink{&fakeTickSink{}}); err != nil {
		t.Fatalf("RunTicks: %v", err)
	}

	for _, d := range f.tickCalls {
		if d < "2024-03-11" {
			t.Fatalf("re-fetched completed day %s", d)
		}
	}
	if len(f.tickCalls) != 1 {
		t.Fatalf("tick fetches = %v, want only the second chunk", f.tickCalls)
	}
}

func TestRunTicksRangeAlreadyComplete(t *testing.T) {
	f := &fakeFetcher{}
	o := newTestOrchestrator(t, f)
	if err := o.tracker.Complete(domain.Date(2024, 3, 10)); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	r := domain.DateRange{Start: domain.Date(2024, 3, 4), End: domain.Date(2024, 3, 8)}

	if err := o.RunTicks(context.Background(), r, []sink.TickSink{&fakeTickSink{}}); err != nil {
		t.Fatalf("RunTicks: %v", err)
	}
	if len(f.tickCalls) != 0 {
		t.Fatalf("tick fetches = %v, want none for completed range", f.tickCalls)
	}
}

func TestRunBars(t *testing.T) {
	loc := util.MarketLocation()
	f := &fakeFetcher{kbars: []domain.Bar{
		{Timestamp: time.Date(2024, 3, 4, 9, 0, 0, 0, loc), Open: 100, High: 101, Low: 100, Close: 101, Volume: 5},
		{Timestamp: time.Date(2024, 3, 4, 9, 1, 0, 0, loc), Open: 101, High: 102, Low: 101, Close: 102, Volume: 3},
	}}
	o := newTestOrchestrator(t, f)
	bs := &fakeBarSink{}
	r := domain.DateRange{Start: domain.Date(2024, 3, 4), End: domain.Date(2024, 3, 5)}

	if err := o.RunBars(context.Background(), r, []sink.BarSink{bs}); err != nil {
		t.Fatalf("RunBars: %v", err)
	}

	if f.kbarCalls != 1 {
		t.Fatalf("kbar fetches = %d, want a single unit", f.kbarCalls)
	}
	if len(bs.bars) != 2 {
		t.Fatalf("bars written = %d, want 2", len(bs.bars))
	}
	if len(bs.ranges) != 1 || !bs.ranges[0].Start.Equal(r.Start) || !bs.ranges[0].End.Equal(r.End) {
		t.Fatalf("sink range = %v, want %v..%v", bs.ranges, r.Start, r.End)
	}
}

func TestRunContinuousBars(t *testing.T) {
	f := &fakeFetcher{ticks: map[string][]domain.Tick{
		"2024-03-04": {
			tickAt(t, "2024-03-04", 9, 0, 100, 2),
			tickAt(t, "2024-03-04", 9, 0, 102, 3),
		},
		"2024-03-05": {
			tickAt(t, "2024-03-05", 9, 0, 101, 4),
		},
	}}
	o := newTestOrchestrator(t, f)
	st, err := store.NewBarStore(t.TempDir()+"/bars.db", util.MarketLocation())
	if err != nil {
		t.Fatalf("NewBarStore: %v", err)
	}
	defer st.Close()
	bs := &fakeBarSink{}
	// Monday through Sunday: weekend days must not trigger fetches.
	r := domain.DateRange{Start: domain.Date(2024, 3, 4), End: domain.Date(2024, 3, 10)}

	if err := o.RunContinuousBars(context.Background(), r, st, []sink.BarSink{bs}); err != nil {
		t.Fatalf("RunContinuousBars: %v", err)
	}

	if len(f.tickCalls) != 5 {
		t.Fatalf("tick fetches = %v, want weekdays only", f.tickCalls)
	}
	if len(bs.bars) != 2 {
		t.Fatalf("bars exported = %d, want one per trading day with ticks", len(bs.bars))
	}
	first := bs.bars[0]
	if first.Open != 100 || first.High != 102 || first.Close != 102 || first.Volume != 5 {
		t.Fatalf("synthesized bar = %+v", first)
	}
	if len(bs.ranges) != 1 || !bs.ranges[0].Start.Equal(r.Start) {
		t.Fatalf("export range = %v, want full requested range", bs.ranges)
	}
}

func TestRunContinuousBarsResumeExportsFullRange(t *testing.T) {
	f := &fakeFetcher{ticks: map[string][]domain.Tick{
		"2024-03-05": {tickAt(t, "2024-03-05", 9, 0, 101, 1)},
	}}
	o := newTestOrchestrator(t, f)
	dbPath := t.TempDir() + "/bars.db"
	st, err := store.NewBarStore(dbPath, util.MarketLocation())
	if err != nil {
		t.Fatalf("NewBarStore: %v", err)
	}
	defer st.Close()

	// Monday already fetched and staged by a previous run.
	staged := tickAt(t, "2024-03-04", 9, 0, 100, 1)
	bar := domain.Bar{
		Timestamp: time.Unix(0, staged.TimestampNS).In(util.MarketLocation()).Truncate(time.Minute),
		Open:      100, High: 100, Low: 100, Close: 100, Volume: 1,
	}
	if err := st.UpsertBars(context.Background(), []domain.Bar{bar}); err != nil {
		t.Fatalf("UpsertBars: %v", err)
	}
	if err := o.tracker.Complete(domain.Date(2024, 3, 4)); err != nil {
		t.Fatalf("Complete: %v", err)
	}

	bs := &fakeBarSink{}
	r := domain.DateRange{Start: domain.Date(2024, 3, 4), End: domain.Date(2024, 3, 5)}
	if err := o.RunContinuousBars(context.Background(), r, st, []sink.BarSink{bs}); err != nil {
		t.Fatalf("RunContinuousBars: %v", err)
	}

	if len(f.tickCalls) != 1 || f.tickCalls[0] != "2024-03-05" {
		t.Fatalf("tick fetches = %v, want only the unfinished day", f.tickCalls)
	}
	// Export still covers both days, read back from staging.
	if len(bs.bars) != 2 {
		t.Fatalf("bars exported = %d, want staged Monday plus fresh Tuesday", len(bs.bars))
	}
}

func TestRunContinuousBarsCompletedRangeStillExports(t *testing.T) {
	f := &fakeFetcher{}
	o := newTestOrchestrator(t, f)
	st, err := store.NewBarStore(t.TempDir()+"/bars.db", util.MarketLocation())
	if err != nil {
		t.Fatalf("NewBarStore: %v", err)
	}
	defer st.Close()

	// All units staged by a previous run that died before the export.
	staged := tickAt(t, "2024-03-04", 9, 0, 100, 1)
	bar := domain.Bar{
		Timestamp: time.Unix(0, staged.TimestampNS).In(util.MarketLocation()).Truncate(time.Minute),
		Open:      100, High: 100, Low: 100, Close: 100, Volume: 1,
	}
	if err := st.UpsertBars(context.Background(), []domain.Bar{bar}); err != nil {
		t.Fatalf("UpsertBars: %v", err)
	}
	r := domain.DateRange{Start: domain.Date(2024, 3, 4), End: domain.Date(2024, 3, 4)}
	if err := o.tracker.Complete(r.End); err != nil {
		t.Fatalf("Complete: %v", err)
	}

	bs := &fakeBarSink{}
	if err := o.RunContinuousBars(context.Background(), r, st, []sink.BarSink{bs}); err != nil {
		t.Fatalf("RunContinuousBars: %v", err)
	}

	if len(f.tickCalls) != 0 {
		t.Fatalf("tick fetches = %v, want none for completed range", f.tickCalls)
	}
	if len(bs.bars) != 1 {
		t.Fatalf("bars exported = %d, want staged output despite completed range", len(bs.bars))
	}
}

func TestRunInvalidRange(t *testing.T) {
	o := newTestOrchestrator(t, &fakeFetcher{})
	r := domain.DateRange{Start: domain.Date(2024, 3, 5), End: domain.Date(2024, 3, 4)}

	if err := o.RunTicks(context.Background(), r, nil); err == nil {
		t.Fatal("expected error for inverted range")
	}
	if err := o.RunBars(context.Background(), r, nil); err == nil {
		t.Fatal("expected error for inverted range")
	}
}
