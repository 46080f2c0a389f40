// Package gather drives the retrieval runs: it partitions the requested
// date range into work units, resolves the contract for each unit, fetches
// through the session guard, and hands merged results to the configured
// sinks. Units run strictly in order; the first hard failure aborts the run
// with the in-flight marker left in place for the next resume.
package gather

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"txdata/internal/bars"
	"txdata/internal/contract"
	"txdata/internal/domain"
	"txdata/internal/partition"
	"txdata/internal/progress"
	"txdata/internal/sink"
	"txdata/internal/store"
	"txdata/internal/util"
)

// Fetcher is the guarded fetch surface the orchestrator consumes.
// session.Guard satisfies it.
type Fetcher interface {
	FetchTicks(ctx context.Context, contractID string, date time.Time) ([]domain.Tick, error)
	FetchKBars(ctx context.Context, contractID string, start, end time.Time) ([]domain.Bar, error)
}

// Params collects the orchestrator's collaborators.
type Params struct {
	Fetcher  Fetcher
	Tracker  *progress.Tracker
	Resolver contract.Resolver
	Limiter  *util.RateLimiter // optional; nil disables pacing
	Log      *slog.Logger

	Symbol      string        // output naming only, e.g. "TXF"
	Interval    time.Duration // bar interval for synthesis; 0 means one minute
	SessionOnly bool          // drop ticks outside trading sessions before synthesis
}

// Orchestrator runs retrieval passes over a date range, one work unit at a
// time. It is not safe for concurrent use.
type Orchestrator struct {
	fetcher     Fetcher
	tracker     *progress.Tracker
	resolver    contract.Resolver
	limiter     *util.RateLimiter
	log         *slog.Logger
	symbol      string
	interval    time.Duration
	sessionOnly bool
}

func New(p Params) *Orchestrator {
	log := p.Log
	if log == nil {
		log = slog.Default()
	}
	interval := p.Interval
	if interval <= 0 {
		interval = time.Minute
	}
	return &Orchestrator{
		fetcher:     p.Fetcher,
		tracker:     p.Tracker,
		resolver:    p.Resolver,
		limiter:     p.Limiter,
		log:         log.With("component", "gather"),
		symbol:      p.Symbol,
		interval:    interval,
		sessionOnly: p.SessionOnly,
	}
}

// effectiveRange applies persisted progress to the requested range. done is
// true when the resume point is already past the end of the range.
func (o *Orchestrator) effectiveRange(requested domain.DateRange) (domain.DateRange, bool, error) {
	resume, ok, err := o.tracker.Resume()
	if err != nil {
		return domain.DateRange{}, false, err
	}
	if !ok || !resume.After(requested.Start) {
		// No state, or the resume point precedes the requested range;
		// the requested start stands.
		return requested, false, nil
	}
	if resume.After(requested.End) {
		o.log.Info("range already complete",
			"start", requested.Start.Format(domain.DateLayout),
			"end", requested.End.Format(domain.DateLayout))
		return domain.DateRange{}, true, nil
	}
	return domain.DateRange{Start: resume, End: requested.End}, false, nil
}

func (o *Orchestrator) pace(ctx context.Context) error {
	if o.limiter == nil {
		return nil
	}
	return o.limiter.Wait(ctx)
}

// RunTicks retrieves raw ticks over the range. The work unit is a weekly
// chunk; every trading day inside it is fetched, the results merged and
// deduplicated, and the chunk written to each sink before its marker clears.
func (o *Orchestrator) RunTicks(ctx context.Context, r domain.DateRange, sinks []sink.TickSink) error {
	if err := r.Validate(); err != nil {
		return err
	}
	eff, done, err := o.effectiveRange(r)
	if err != nil {
		return err
	}
	if done {
		return nil
	}

	units, err := partition.Split(eff, partition.WeeklyChunk)
	if err != nil {
		return err
	}
	o.log.Info("tick run starting",
		"symbol", o.symbol,
		"start", eff.Start.Format(domain.DateLayout),
		"end", eff.End.Format(domain.DateLayout),
		"units", len(units))

	for _, u := range units {
		if err := o.tracker.Begin(u.Date()); err != nil {
			return err
		}

		ticks, err := o.fetchChunkTicks(ctx, u)
		if err != nil {
			return fmt.Errorf("unit %s: %w", u, err)
		}

		merged := contract.MergeTicks(ticks)
		if len(merged) == 0 {
			o.log.Warn("no ticks in unit, nothing written", "unit", u.String())
			if err := o.tracker.Complete(u.End); err != nil {
				return err
			}
			continue
		}

		for _, s := range sinks {
			if err := s.WriteTicks(ctx, merged, u.Range()); err != nil {
				return fmt.Errorf("sink %s: unit %s: %w", s.Name(), u, err)
			}
		}
		if err := o.tracker.Complete(u.End); err != nil {
			return err
		}
		o.log.Info("unit complete", "unit", u.String(), "ticks", len(merged))
	}
	return nil
}

// fetchChunkTicks fetches every trading day inside the chunk, paced by the
// rate limiter. Days without an active contract window yield nothing.
func (o *Orchestrator) fetchChunkTicks(ctx context.Context, u partition.WorkUnit) ([]domain.Tick, error) {
	var all []domain.Tick
	for day := u.Start; !day.After(u.End); day = day.AddDate(0, 0, 1) {
		if !util.IsTradingDay(day) {
			continue
		}
		code, ok := o.resolver.Resolve(day)
		if !ok {
			o.log.Debug("no contract window for day", "date", day.Format(domain.DateLayout))
			continue
		}
		if err := o.pace(ctx); err != nil {
			return nil, err
		}
		ticks, err := o.fetcher.FetchTicks(ctx, code, day)
		if err != nil {
			return nil, err
		}
		o.log.Debug("day fetched",
			"date", day.Format(domain.DateLayout),
			"contract", code,
			"ticks", len(ticks))
		all = append(all, ticks...)
	}
	return all, nil
}

// RunBars retrieves provider-side minute bars for the whole range as a
// single work unit. Only native continuous contracts support this path; the
// resolver decides which code serves the range.
func (o *Orchestrator) RunBars(ctx context.Context, r domain.DateRange, sinks []sink.BarSink) error {
	if err := r.Validate(); err != nil {
		return err
	}
	eff, done, err := o.effectiveRange(r)
	if err != nil {
		return err
	}
	if done {
		return nil
	}

	units, err := partition.Split(eff, partition.Single)
	if err != nil {
		return err
	}
	u := units[0]

	code, ok := o.resolver.Resolve(u.Start)
	if !ok {
		o.log.Warn("no contract for range, nothing written",
			"start", u.Start.Format(domain.DateLayout))
		return nil
	}

	if err := o.tracker.Begin(u.Date()); err != nil {
		return err
	}
	if err := o.pace(ctx); err != nil {
		return err
	}
	fetched, err := o.fetcher.FetchKBars(ctx, code, u.Start, u.End)
	if err != nil {
		return fmt.Errorf("unit %s: %w", u, err)
	}

	merged := contract.MergeBars(fetched)
	if len(merged) == 0 {
		o.log.Warn("no bars in range, nothing written", "unit", u.String())
		return o.tracker.Complete(u.End)
	}

	for _, s := range sinks {
		if err := s.WriteBars(ctx, merged, u.Range()); err != nil {
			return fmt.Errorf("sink %s: unit %s: %w", s.Name(), u, err)
		}
	}
	if err := o.tracker.Complete(u.End); err != nil {
		return err
	}
	o.log.Info("bar run complete", "unit", u.String(), "bars", len(merged))
	return nil
}

// RunContinuousBars builds minute bars from ticks day by day, stitching
// across contract rollovers via the resolver. Each day's bars are staged
// durably before the unit completes; the final export reads the whole
// requested range back from staging so a resumed run still produces one
// continuous output.
func (o *Orchestrator) RunContinuousBars(ctx context.Context, r domain.DateRange, staging *store.BarStore, sinks []sink.BarSink) error {
	if err := r.Validate(); err != nil {
		return err
	}
	eff, done, err := o.effectiveRange(r)
	if err != nil {
		return err
	}
	if done {
		// Every unit is staged; a run killed between the last unit and
		// the export still owes the sinks their output.
		return o.exportStaged(ctx, r, staging, sinks)
	}

	units, err := partition.Split(eff, partition.Daily)
	if err != nil {
		return err
	}
	o.log.Info("continuous bar run starting",
		"symbol", o.symbol,
		"start", eff.Start.Format(domain.DateLayout),
		"end", eff.End.Format(domain.DateLayout),
		"units", len(units))

	for _, u := range units {
		day := u.Start
		if !util.IsTradingDay(day) {
			continue
		}
		code, ok := o.resolver.Resolve(day)
		if !ok {
			o.log.Debug("no contract window for day", "date", day.Format(domain.DateLayout))
			continue
		}

		if err := o.tracker.Begin(u.Date()); err != nil {
			return err
		}
		if err := o.pace(ctx); err != nil {
			return err
		}
		ticks, err := o.fetcher.FetchTicks(ctx, code, day)
		if err != nil {
			return fmt.Errorf("unit %s: %w", u, err)
		}

		if o.sessionOnly {
			ticks = bars.FilterSession(ticks)
		}
		synthesized := bars.Synthesize(ticks, o.interval, util.MarketLocation())
		if err := staging.UpsertBars(ctx, synthesized); err != nil {
			return fmt.Errorf("staging unit %s: %w", u, err)
		}
		if err := o.tracker.Complete(u.End); err != nil {
			return err
		}
		o.log.Debug("unit staged",
			"date", day.Format(domain.DateLayout),
			"contract", code,
			"bars", len(synthesized))
	}

	return o.exportStaged(ctx, r, staging, sinks)
}

// exportStaged reads the full requested range back from staging and writes
// it through each bar sink.
func (o *Orchestrator) exportStaged(ctx context.Context, r domain.DateRange, staging *store.BarStore, sinks []sink.BarSink) error {
	staged, err := staging.ReadRange(ctx, r.Start, r.End)
	if err != nil {
		return fmt.Errorf("reading staged bars: %w", err)
	}
	if len(staged) == 0 {
		o.log.Warn("no bars staged for range, nothing written",
			"start", r.Start.Format(domain.DateLayout),
			"end", r.End.Format(domain.DateLayout))
		return nil
	}

	for _, s := range sinks {
		if err := s.WriteBars(ctx, staged, r); err != nil {
			return fmt.Errorf("sink %s: %w", s.Name(), err)
		}
	}
	o.log.Info("continuous bar run complete", "bars", len(staged))
	return nil
}
