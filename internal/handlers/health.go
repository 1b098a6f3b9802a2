package handlers

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"
)

// Pinger reports whether the database is reachable. *sql.DB implements it.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// Health responds with status 200 when the service and its database are up.
// A nil pinger skips the database check.
func Health(db Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		payload := map[string]any{
			"status":    "ok",
			"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
		}
		status := http.StatusOK

		if db != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := db.PingContext(ctx); err != nil {
				log.Printf("Health: database ping failed: %v", err)
				payload["status"] = "degraded"
				payload["database"] = "unreachable"
				status = http.StatusServiceUnavailable
			} else {
				payload["database"] = "ok"
			}
		}

		writeJSON(w, status, payload, "Health")
	}
}

// writeJSON encodes v as the response body. name prefixes the log line when
// encoding fails.
func writeJSON(w http.ResponseWriter, status int, v any, name string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("%s: failed to encode response: %v", name, err)
	}
}
