// Package monitor runs the periodic rollback sweep: it finds ledger entries
// whose monitoring window has elapsed, compares before/after performance
// from the analytical store, and reverses changes that regressed the
// client's primary KPI.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ChristopherHoole/gads-data-layer-sub001/internal/alert"
	"github.com/ChristopherHoole/gads-data-layer-sub001/internal/executor"
	"github.com/ChristopherHoole/gads-data-layer-sub001/internal/ledger"
	"github.com/ChristopherHoole/gads-data-layer-sub001/internal/model"
	"github.com/ChristopherHoole/gads-data-layer-sub001/internal/perf"
	"github.com/ChristopherHoole/gads-data-layer-sub001/internal/policy"
)

// Ledger is the monitor's view of the store: the due query, the attribution
// check, and the two forward-only transitions it owns.
type Ledger interface {
	DueForMonitoring(ctx context.Context, now time.Time, minAge time.Duration) ([]ledger.Entry, error)
	LastOtherLeverChange(ctx context.Context, entityID string, lever model.Lever, since time.Time) (model.Lever, time.Time, bool, error)
	MarkRolledBack(ctx context.Context, changeID, rollbackOfID int64, reason string, completedAt time.Time) error
	MarkConfirmedGood(ctx context.Context, changeID int64, reason string, completedAt time.Time) error
}

// BatchRunner routes synthesized inverse actions back through the executor.
type BatchRunner interface {
	Execute(ctx context.Context, batch []model.CandidateAction, pol *policy.ClientPolicy, policyHash string, mode executor.Mode) (model.BatchResult, error)
}

// Monitor sweeps monitored ledger entries on a schedule.
type Monitor struct {
	ledger     Ledger
	perf       perf.Reader
	runner     BatchRunner
	dispatcher *alert.Dispatcher // optional
	reportDir  string
	now        func() time.Time
}

// Config wires a Monitor.
type Config struct {
	Ledger     Ledger
	Perf       perf.Reader
	Runner     BatchRunner
	Dispatcher *alert.Dispatcher
	ReportDir  string
}

// New creates a Monitor.
func New(cfg Config) *Monitor {
	return &Monitor{
		ledger:     cfg.Ledger,
		perf:       cfg.Perf,
		runner:     cfg.Runner,
		dispatcher: cfg.Dispatcher,
		reportDir:  cfg.ReportDir,
		now:        time.Now,
	}
}

// Sweep evaluates every due entry for one customer and returns the sweep
// report. A sweep may be interrupted between entries without corrupting
// state: each transition is a complete single-row update.
func (m *Monitor) Sweep(ctx context.Context, pol *policy.ClientPolicy, policyHash string) (alert.Report, error) {
	report := alert.Report{
		SweepID:    uuid.NewString(),
		CustomerID: pol.CustomerID,
		StartedAt:  m.now().UTC(),
	}

	if err := pol.Validate(); err != nil {
		return report, err
	}

	due, err := m.ledger.DueForMonitoring(ctx, m.now().UTC(), pol.Monitoring.MinWindow())
	if err != nil {
		return report, fmt.Errorf("monitor: query due entries: %w", err)
	}

	for _, entry := range due {
		if err := ctx.Err(); err != nil {
			report.FinishedAt = m.now().UTC()
			return report, err
		}
		if entry.CustomerID != pol.CustomerID {
			continue
		}
		m.evaluateEntry(ctx, entry, pol, policyHash, &report)
	}

	report.FinishedAt = m.now().UTC()

	if path, err := alert.WriteReport(m.reportDir, report); err != nil {
		report.Notes = append(report.Notes, fmt.Sprintf("report write failed: %v", err))
	} else if path != "" {
		report.Notes = append(report.Notes, "report: "+path)
	}

	if m.dispatcher != nil {
		m.dispatcher.Dispatch(alert.Event{
			Type:          alert.TypeSweepCompleted,
			Timestamp:     m.now().UTC(),
			CustomerID:    pol.CustomerID,
			SweepID:       report.SweepID,
			Examined:      report.Examined,
			RolledBack:    report.RolledBack,
			ConfirmedGood: report.ConfirmedGood,
			Deferred:      report.Deferred,
		})
	}
	return report, nil
}

func (m *Monitor) evaluateEntry(ctx context.Context, entry ledger.Entry, pol *policy.ClientPolicy, policyHash string, report *alert.Report) {
	now := m.now().UTC()
	age := now.Sub(entry.ExecutedAt)
	report.Examined++

	// Aged-out entries are force-confirmed: data never arrived and waiting
	// longer will not make the attribution cleaner.
	if age >= pol.Monitoring.MaxAge() {
		reason := fmt.Sprintf("monitoring aged out after %s without a computable delta", pol.Monitoring.MaxAge())
		m.confirm(ctx, entry, reason, report)
		return
	}

	// Stretch the floor by the entity's conversion lag so slow-converting
	// entities are not judged on incomplete data.
	lag, err := m.perf.MedianConversionLagDays(ctx, entry.EntityID)
	if err != nil {
		m.postpone(report, fmt.Sprintf("conversion lag lookup failed: %v", err))
		return
	}
	floor := pol.Monitoring.MinWindow()
	if lagWindow := time.Duration(lag*24) * time.Hour; lagWindow > floor {
		floor = lagWindow
	}
	if age < floor {
		m.postpone(report, fmt.Sprintf("change %d not yet past its %s monitoring floor", entry.ChangeID, floor))
		return
	}

	windowDays := pol.Monitoring.DeltaWindowDays
	window := time.Duration(windowDays) * 24 * time.Hour

	baselineFrom := entry.ExecutedAt.Add(-window)
	baseline, err := m.perf.Window(ctx, entry.EntityID, baselineFrom, entry.ExecutedAt)
	if err != nil {
		m.postpone(report, fmt.Sprintf("baseline window query failed: %v", err))
		return
	}

	// The current window ends at now and never reaches back before the
	// change itself.
	currentFrom := now.Add(-window)
	if currentFrom.Before(entry.ExecutedAt) {
		currentFrom = entry.ExecutedAt
	}
	current, err := m.perf.Window(ctx, entry.EntityID, currentFrom, now)
	if err != nil {
		m.postpone(report, fmt.Sprintf("current window query failed: %v", err))
		return
	}

	delta, err := perf.Compute(baseline, current)
	if err != nil {
		if errors.Is(err, perf.ErrInsufficientData) {
			// Stays in monitoring; re-checked next sweep until data arrives
			// or the age cap fires.
			m.postpone(report, fmt.Sprintf("change %d: %v", entry.ChangeID, err))
			return
		}
		m.postpone(report, fmt.Sprintf("delta computation failed: %v", err))
		return
	}

	// The ROAS trigger needs value-side ratios. When the baseline tracked no
	// conversion value the entry stays in monitoring, like any other
	// insufficient-data case, until value arrives or the age cap fires.
	if pol.PrimaryKPI == model.KPIROAS && !delta.ROASKnown {
		m.postpone(report, fmt.Sprintf("change %d: %v: baseline has zero conversion value", entry.ChangeID, perf.ErrInsufficientData))
		return
	}

	fired, reason := triggered(pol, delta)
	if !fired {
		m.confirm(ctx, entry, reason, report)
		return
	}

	// Anti-oscillation: if another lever moved since this change, the
	// regression cannot be attributed unambiguously. Defer to human review
	// rather than reversing blindly.
	otherLever, _, found, err := m.ledger.LastOtherLeverChange(ctx, entry.EntityID, entry.Lever, entry.ExecutedAt)
	if err != nil {
		m.postpone(report, fmt.Sprintf("attribution check failed: %v", err))
		return
	}
	if found {
		note := fmt.Sprintf("regression detected (%s) but %s also changed since; cannot attribute, deferring to human review", delta, otherLever)
		m.confirm(ctx, entry, note, report)
		report.Notes = append(report.Notes, fmt.Sprintf("change %d: %s", entry.ChangeID, note))
		return
	}

	m.rollBack(ctx, entry, pol, policyHash, reason, delta, baseline, current, report)
}

func (m *Monitor) rollBack(ctx context.Context, entry ledger.Entry, pol *policy.ClientPolicy, policyHash, reason string, delta perf.Delta, baseline, current perf.Metrics, report *alert.Report) {
	inverse := entry.InverseAction(fmt.Sprintf("automatic rollback of change %d: %s", entry.ChangeID, reason))

	res, err := m.runner.Execute(ctx, []model.CandidateAction{inverse}, pol, policyHash, executor.Live)
	if err != nil {
		m.postpone(report, fmt.Sprintf("rollback execution aborted: %v", err))
		return
	}
	if len(res.Successful) != 1 {
		// Blocked (e.g. protected entity, insights mode) or failed at the
		// API. The entry stays in monitoring and is retried next sweep.
		detail := "rollback not applied"
		if len(res.Failed) > 0 {
			detail = res.Failed[0].Err
		} else if len(res.Blocked) > 0 {
			detail = fmt.Sprintf("rollback blocked: %v", res.Blocked[0].Reasons)
		} else if len(res.Manual) > 0 {
			detail = "rollback requires manual application (suggest mode)"
		}
		m.postpone(report, fmt.Sprintf("change %d: %s", entry.ChangeID, detail))
		return
	}

	inverseID := res.Successful[0].ChangeID
	if err := m.ledger.MarkRolledBack(ctx, entry.ChangeID, inverseID, reason, m.now().UTC()); err != nil {
		report.Notes = append(report.Notes, fmt.Sprintf("change %d: inverse %d applied but status update failed: %v", entry.ChangeID, inverseID, err))
		return
	}
	report.RolledBack++

	event := alert.Event{
		Type:       alert.TypeRollbackTriggered,
		Timestamp:  m.now().UTC(),
		CustomerID: entry.CustomerID,
		ChangeID:   entry.ChangeID,
		EntityType: string(entry.EntityType),
		EntityID:   entry.EntityID,
		Lever:      string(entry.Lever),
		Reason:     reason,
		Baseline:   baseline,
		Current:    current,
		Delta:      delta.String(),
	}
	report.Rollbacks = append(report.Rollbacks, event)
	if m.dispatcher != nil {
		m.dispatcher.Dispatch(event)
	}
}

// confirm finalizes an entry as confirmed_good.
func (m *Monitor) confirm(ctx context.Context, entry ledger.Entry, reason string, report *alert.Report) {
	if err := m.ledger.MarkConfirmedGood(ctx, entry.ChangeID, reason, m.now().UTC()); err != nil {
		report.Notes = append(report.Notes, fmt.Sprintf("change %d: confirm failed: %v", entry.ChangeID, err))
		return
	}
	report.ConfirmedGood++
}

// postpone leaves an entry in monitoring for the next sweep.
func (m *Monitor) postpone(report *alert.Report, note string) {
	report.Deferred++
	report.Notes = append(report.Notes, note)
}
