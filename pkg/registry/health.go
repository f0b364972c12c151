package registry

import (
	"time"
)

// Health reports whether the registry is frozen and serving.
func (r *Registry) Health() *HealthOutput {
	frozen := r.frozen.Load()
	if !frozen {
		r.mu.Lock()
		defer r.mu.Unlock()
	}

	status := "healthy"
	if !frozen || len(r.procedures) == 0 {
		status = "unhealthy"
	}

	return &HealthOutput{
		Status: status,
		Checks: HealthChecks{
			Frozen: frozen,
		},
		Procedures: len(r.procedures),
		Receivers:  len(r.receivers),
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
	}
}
