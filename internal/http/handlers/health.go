package handlers

import (
	"context"
	"net/http"
	"sort"
	"time"
)

const readinessTimeout = 2 * time.Second

// ReadinessCheck reports whether a backing service is reachable.
type ReadinessCheck func(ctx context.Context) error

func (api *API) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (api *API) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
	defer cancel()

	names := make([]string, 0, len(api.checks))
	for name := range api.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	status := http.StatusOK
	components := make(map[string]string, len(names))
	for _, name := range names {
		if err := api.checks[name](ctx); err != nil {
			components[name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		components[name] = "ok"
	}

	overall := "ok"
	if status != http.StatusOK {
		overall = "degraded"
	}
	writeJSON(w, status, map[string]any{"status": overall, "components": components})
}
