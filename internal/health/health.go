// Package health serves the voice runtime's liveness and readiness probes.
//
// Two routes are exposed on the local control server:
//
//   - /healthz — liveness; answers 200 whenever the process serves HTTP.
//   - /readyz  — readiness; answers 200 only while every registered
//     [Checker] passes, e.g. no provider circuit breaker is open.
//
// Bodies are small JSON documents: a top-level "status" of "ok" or "fail"
// plus a "checks" map with one entry per named probe, so a failing readiness
// response names the exact subsystem (say, the breaker guarding the active
// transcription provider) that degraded.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

// checkTimeout bounds a single readiness probe. Probes are local state reads
// today, but the limit keeps a future remote probe from wedging /readyz.
const checkTimeout = 5 * time.Second

// Checker is one named readiness probe. Check returns nil while the subsystem
// can take part in a voice turn and an error describing the degradation
// otherwise.
type Checker struct {
	// Name keys the probe's entry in the JSON "checks" map ("breakers",
	// "capture").
	Name string

	// Check inspects the subsystem. It must honor ctx cancellation.
	Check func(ctx context.Context) error
}

// report is the JSON body written by both routes.
type report struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// Handler evaluates the runtime's probes. Safe for concurrent use; the probe
// set is fixed when the handler is built.
type Handler struct {
	checkers []Checker
}

// New builds a [Handler] over the given probes. /readyz runs them one at a
// time in the order given.
func New(checkers ...Checker) *Handler {
	c := make([]Checker, len(checkers))
	copy(c, checkers)
	return &Handler{checkers: c}
}

// Healthz always answers 200: a process that reached this handler is alive,
// whatever state the session pipeline is in.
func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, report{Status: "ok"})
}

// Readyz runs every probe and answers 200 only when all of them pass. Each
// probe gets its own [checkTimeout] deadline derived from the request context.
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	checks := make(map[string]string, len(h.checkers))
	allOK := true

	for _, c := range h.checkers {
		ctx, cancel := context.WithTimeout(r.Context(), checkTimeout)
		err := c.Check(ctx)
		cancel()

		if err != nil {
			checks[c.Name] = "fail: " + err.Error()
			allOK = false
		} else {
			checks[c.Name] = "ok"
		}
	}

	res := report{
		Status: "ok",
		Checks: checks,
	}
	status := http.StatusOK
	if !allOK {
		res.Status = "fail"
		status = http.StatusServiceUnavailable
	}

	writeJSON(w, status, res)
}

// Register mounts both probe routes on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", h.Healthz)
	mux.HandleFunc("GET /readyz", h.Readyz)
}

// writeJSON encodes v with the given status code, degrading to a plain-text
// 500 if encoding fails.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"status":"error"}`, http.StatusInternalServerError)
	}
}
