package controller

import (
	"net/http"
	"time"

	"github.com/go-jose/go-jose/v4/json"
)

// HandleHealthz reports process liveness.
func (c *Controller) HandleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// HandleReadyz reports whether the ledger template passed its latest check.
func (c *Controller) HandleReadyz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	checkedAt, err := c.App.TemplateStatus()
	body := map[string]interface{}{
		"status":      "ok",
		"feedClients": c.FeedClients.Size(),
	}
	if !checkedAt.IsZero() {
		body["checkedAt"] = checkedAt.Format(time.RFC3339)
	}
	if c.App.RedisClient != nil {
		if rerr := c.App.RedisClient.Health(r.Context()); rerr != nil {
			body["redis"] = "unavailable"
		} else {
			body["redis"] = "ok"
		}
	}

	if err != nil {
		body["status"] = "errored"
		body["error"] = err.Error()
		w.WriteHeader(http.StatusServiceUnavailable)
		_ = json.NewEncoder(w).Encode(body)
		return
	}

	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(body)
}
