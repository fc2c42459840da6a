package health

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

const checkTimeout = 2 * time.Second

type ReadinessReporter interface {
	Readiness() (ready bool, partitions []int32)
}

// Check probes one dependency. A nil Probe is skipped.
type Check struct {
	Name  string
	Probe func(ctx context.Context) error
}

// Readiness reports ready only when the invalidation consumer holds its
// assignment (rr may be nil) and every check passes.
func Readiness(rr ReadinessReporter, checks ...Check) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		type resp struct {
			Status     string   `json:"status"`
			Partitions []int32  `json:"partitions,omitempty"`
			Failing    []string `json:"failing,omitempty"`
		}
		ready, parts := true, []int32(nil)
		if rr != nil {
			ready, parts = rr.Readiness()
		}
		out := resp{Status: "not_ready"}
		if !ready {
			out.Failing = append(out.Failing, "invalidation")
		}

		ctx, cancel := context.WithTimeout(r.Context(), checkTimeout)
		defer cancel()
		for _, c := range checks {
			if c.Probe == nil {
				continue
			}
			if err := c.Probe(ctx); err != nil {
				ready = false
				out.Failing = append(out.Failing, c.Name)
			}
		}

		if ready {
			out.Status = "ready"
			out.Partitions = parts
		}
		w.Header().Set("Content-Type", "application/json")
		if !ready {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		_ = json.NewEncoder(w).Encode(out)
	}
}
