// Package progress keeps the run counters that are printed after each phase
// and served by the status API. Every update is also delivered as an Event to
// the registered sinks, such as structured logs or Prometheus collectors.
package progress
