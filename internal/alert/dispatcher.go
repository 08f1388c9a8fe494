package alert

import "sync"

// Dispatcher fans out events to matching webhook sinks.
type Dispatcher struct {
	sinks []SinkConfig
	wg    sync.WaitGroup
}

// NewDispatcher creates a Dispatcher from sink configurations.
// Returns nil if sinks is empty (callers nil-check before dispatching).
func NewDispatcher(sinks []SinkConfig) *Dispatcher {
	if len(sinks) == 0 {
		return nil
	}
	return &Dispatcher{sinks: sinks}
}

// Dispatch sends the event to every sink whose Events list matches.
// Delivery runs in goroutines and does not block the caller; Wait flushes.
func (d *Dispatcher) Dispatch(event Event) {
	for _, sink := range d.sinks {
		if !matches(sink.Events, event.Type) {
			continue
		}
		d.wg.Add(1)
		go func(sink SinkConfig) {
			defer d.wg.Done()
			_ = Send(sink, event)
		}(sink)
	}
}

// Wait blocks until all in-flight deliveries finish. Called before a batch
// or sweep process exits so short-lived CLI runs do not drop alerts.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

func matches(events []string, eventType string) bool {
	if len(events) == 0 {
		return true
	}
	for _, e := range events {
		if e == eventType {
			return true
		}
	}
	return false
}
