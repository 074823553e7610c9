package session

import (
	"context"
	"time"
)

// Runtime pairs the network pump with a session so one call advances both.
type Runtime struct {
	Pump    Pump
	Session *Session
}

// NewRuntime bundles pump and session. Either may be nil.
func NewRuntime(pump Pump, s *Session) *Runtime {
	return &Runtime{Pump: pump, Session: s}
}

// IsReady reports whether the underlying network stack is up.
func (r *Runtime) IsReady() bool {
	return r.Pump != nil && r.Pump.IsReady()
}

// Tick services pump callbacks first so membership changes are visible to
// the dispatch pass that follows.
func (r *Runtime) Tick() {
	if r.Pump != nil {
		r.Pump.Tick()
	}
	if r.Session != nil {
		r.Session.Tick()
	}
}

// Shutdown stops the pump.
func (r *Runtime) Shutdown() {
	if r.Pump != nil {
		r.Pump.Shutdown()
	}
}

// Run ticks at hz until ctx is done, then shuts the pump down. after, when
// set, runs on the same goroutine right after every tick.
func (r *Runtime) Run(ctx context.Context, hz int, after func()) {
	if hz <= 0 {
		hz = 30
	}
	ticker := time.NewTicker(time.Second / time.Duration(hz))
	defer ticker.Stop()
	defer r.Shutdown()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Tick()
			if after != nil {
				after()
			}
		}
	}
}
