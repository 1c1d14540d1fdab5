// Package health serves the gateway's liveness and readiness probes.
// Readiness tracks the serving lifecycle; registered component probes
// surface degraded state (missing credentials, stale inventory) in the
// readiness body without flipping it, since the gateway keeps serving
// through both.
package health

import (
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
)

const (
	stateStarting int32 = iota
	stateReady
	stateDraining
)

// Probe reports one component's condition; a non-nil error marks the
// component degraded.
type Probe func() error

type probe struct {
	name string
	fn   Probe
}

// Checker tracks the gateway's serving state and its component probes.
// It is safe for concurrent use.
type Checker struct {
	state atomic.Int32

	mu     sync.Mutex
	probes []probe
}

// NewChecker creates a Checker in the starting state with no probes.
func NewChecker() *Checker {
	return &Checker{}
}

// Register adds a named component probe, evaluated on every readiness
// request.
func (c *Checker) Register(name string, fn Probe) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.probes = append(c.probes, probe{name: name, fn: fn})
}

// SetReady transitions to the ready state.
func (c *Checker) SetReady() {
	c.state.Store(stateReady)
}

// SetDraining transitions to the draining state, used during shutdown.
func (c *Checker) SetDraining() {
	c.state.Store(stateDraining)
}

// IsReady returns true when the gateway is accepting traffic.
func (c *Checker) IsReady() bool {
	return c.state.Load() == stateReady
}

// State returns the current serving state as a string.
func (c *Checker) State() string {
	switch c.state.Load() {
	case stateReady:
		return "ready"
	case stateDraining:
		return "draining"
	default:
		return "starting"
	}
}

type componentStatus struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

type readinessReport struct {
	Status     string                     `json:"status"`
	Components map[string]componentStatus `json:"components,omitempty"`
}

func (c *Checker) runProbes() map[string]componentStatus {
	c.mu.Lock()
	probes := c.probes
	c.mu.Unlock()

	if len(probes) == 0 {
		return nil
	}
	components := make(map[string]componentStatus, len(probes))
	for _, p := range probes {
		if err := p.fn(); err != nil {
			components[p.name] = componentStatus{Status: "degraded", Error: err.Error()}
			continue
		}
		components[p.name] = componentStatus{Status: "ok"}
	}
	return components
}

// LivenessHandler always responds 200; the process is alive.
func (*Checker) LivenessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, readinessReport{Status: "ok"})
	}
}

// ReadinessHandler responds 200 when ready and 503 while starting or
// draining, with per-component probe results in the body either way.
func (c *Checker) ReadinessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		report := readinessReport{
			Status:     c.State(),
			Components: c.runProbes(),
		}
		code := http.StatusOK
		if !c.IsReady() {
			code = http.StatusServiceUnavailable
		}
		writeJSON(w, code, report)
	}
}

func writeJSON(w http.ResponseWriter, code int, report readinessReport) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(report)
}
