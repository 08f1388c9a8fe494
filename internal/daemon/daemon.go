// Package daemon runs the pipeline on a schedule: periodic rollback sweeps
// per customer, with policy hot reload driven by file events.
package daemon

import (
	"context"
	"fmt"
	"time"
)

// defaultInterval is how often sweeps run when unconfigured.
const defaultInterval = time.Hour

// SweepFunc runs one rollback sweep for one customer.
type SweepFunc func(ctx context.Context, customerID string) error

// Scheduler drives periodic sweeps for a fixed set of customers.
// Customers run sequentially: a single logical writer per customer is the
// shared-resource rule, and sequencing all of them through one loop is the
// simplest arrangement that honors it.
type Scheduler struct {
	customers []string
	interval  time.Duration
	sweep     SweepFunc
	onError   func(customerID string, err error)
}

// NewScheduler creates a scheduler. interval <= 0 uses the default.
func NewScheduler(customers []string, interval time.Duration, sweep SweepFunc, onError func(string, error)) *Scheduler {
	if interval <= 0 {
		interval = defaultInterval
	}
	if onError == nil {
		onError = func(string, error) {}
	}
	return &Scheduler{
		customers: customers,
		interval:  interval,
		sweep:     sweep,
		onError:   onError,
	}
}

// Run sweeps immediately, then on every tick. Blocks until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	if len(s.customers) == 0 {
		return fmt.Errorf("daemon: no customers configured")
	}

	s.sweepAll(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.sweepAll(ctx)
		}
	}
}

func (s *Scheduler) sweepAll(ctx context.Context) {
	for _, customerID := range s.customers {
		if ctx.Err() != nil {
			return
		}
		if err := s.sweep(ctx, customerID); err != nil {
			s.onError(customerID, err)
		}
	}
}
