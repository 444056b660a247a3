// Package history keeps the bounded moving windows the controller smooths
// and trends over. Windows are plain FIFO slices owned by the control loop;
// nothing here does I/O or survives a restart.
package history

import (
	"math"

	"github.com/wattscale/wattscale/internal/telemetry"
	"gonum.org/v1/gonum/stat"
)

// Window is a fixed-capacity FIFO of float64 samples. The oldest sample is
// evicted when a push exceeds capacity.
type Window struct {
	capacity int
	values   []float64
}

// NewWindow creates a window holding at most capacity samples.
func NewWindow(capacity int) *Window {
	if capacity < 1 {
		capacity = 1
	}
	return &Window{
		capacity: capacity,
		values:   make([]float64, 0, capacity),
	}
}

// Push appends a sample, evicting the oldest when full. Non-finite values
// (infinite EPR at zero RPS) are skipped so they cannot poison averages.
func (w *Window) Push(v float64) {
	if math.IsInf(v, 0) || math.IsNaN(v) {
		return
	}
	if len(w.values) == w.capacity {
		copy(w.values, w.values[1:])
		w.values = w.values[:w.capacity-1]
	}
	w.values = append(w.values, v)
}

// Average returns the arithmetic mean of the retained samples, 0 if empty.
func (w *Window) Average() float64 {
	if len(w.values) == 0 {
		return 0
	}
	return stat.Mean(w.values, nil)
}

// Len reports the number of retained samples.
func (w *Window) Len() int { return len(w.values) }

// Values returns the retained samples oldest-first. The returned slice is
// a copy; callers may not mutate window state through it.
func (w *Window) Values() []float64 {
	out := make([]float64, len(w.values))
	copy(out, w.values)
	return out
}

// First returns the oldest retained sample, 0 if empty.
func (w *Window) First() float64 {
	if len(w.values) == 0 {
		return 0
	}
	return w.values[0]
}

// Last returns the newest retained sample, 0 if empty.
func (w *Window) Last() float64 {
	if len(w.values) == 0 {
		return 0
	}
	return w.values[len(w.values)-1]
}

// ServiceHistory holds one service's EPR and efficiency windows.
type ServiceHistory struct {
	EPR        *Window
	Efficiency *Window
}

// Store is the controller's moving-window state: per-service indicator
// windows plus a global window of system snapshots.
type Store struct {
	serviceCap int
	services   map[string]*ServiceHistory

	systemCap int
	system    []telemetry.SystemTotals
}

// NewStore creates a store with the given per-service and system capacities.
func NewStore(serviceCap, systemCap int) *Store {
	if serviceCap < 1 {
		serviceCap = 1
	}
	if systemCap < 1 {
		systemCap = 1
	}
	return &Store{
		serviceCap: serviceCap,
		services:   make(map[string]*ServiceHistory),
		systemCap:  systemCap,
	}
}

// Record appends one tick's derived indicators for a service.
func (s *Store) Record(service string, epr, efficiency float64) {
	h := s.Service(service)
	h.EPR.Push(epr)
	h.Efficiency.Push(efficiency)
}

// RecordSystem appends one tick's system-wide snapshot.
func (s *Store) RecordSystem(totals telemetry.SystemTotals) {
	if len(s.system) == s.systemCap {
		copy(s.system, s.system[1:])
		s.system = s.system[:s.systemCap-1]
	}
	s.system = append(s.system, totals)
}

// Service returns the history for a service, creating it on first use.
func (s *Store) Service(service string) *ServiceHistory {
	h, ok := s.services[service]
	if !ok {
		h = &ServiceHistory{
			EPR:        NewWindow(s.serviceCap),
			Efficiency: NewWindow(s.serviceCap),
		}
		s.services[service] = h
	}
	return h
}

// System returns the retained system snapshots oldest-first.
func (s *Store) System() []telemetry.SystemTotals {
	out := make([]telemetry.SystemTotals, len(s.system))
	copy(out, s.system)
	return out
}

// GlobalAverages returns the mean EPR and efficiency across every retained
// per-service sample. Both are 0 when no history exists yet.
func (s *Store) GlobalAverages() (avgEPR, avgEfficiency float64, ok bool) {
	var eprs, effs []float64
	for _, h := range s.services {
		eprs = append(eprs, h.EPR.Values()...)
		effs = append(effs, h.Efficiency.Values()...)
	}
	if len(eprs) == 0 && len(effs) == 0 {
		return 0, 0, false
	}
	if len(eprs) > 0 {
		avgEPR = stat.Mean(eprs, nil)
	}
	if len(effs) > 0 {
		avgEfficiency = stat.Mean(effs, nil)
	}
	return avgEPR, avgEfficiency, true
}
