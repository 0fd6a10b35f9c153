package controller

import (
	"errors"
	"net/http"

	"github.com/go-jose/go-jose/v4/json"
	"go.uber.org/zap"

	"github.com/questbot/questbot/pkg/command"
	"github.com/questbot/questbot/pkg/ledger"
)

// CommandRequest is a chat command submitted over HTTP by an authenticated admin.
type CommandRequest struct {
	Command      string            `json:"command"`
	Args         []string          `json:"args"`
	Participants []ledger.Identity `json:"participants"`
	// Issuer defaults to the authenticated user.
	Issuer *ledger.Identity `json:"issuer,omitempty"`
}

// CommandResponse is the rendered outcome of a command.
type CommandResponse struct {
	command.Outcome
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

// HandleCommand runs one command through the dispatcher. Authenticated callers are privileged.
func (c *Controller) HandleCommand(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	var in CommandRequest
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "bad json"})
		return
	}
	if in.Command == "" {
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "command is required"})
		return
	}

	user := c.currentUser(r)
	issuer := ledger.Identity{Nickname: user, Username: user}
	if in.Issuer != nil {
		issuer = *in.Issuer
	}

	out := c.App.Dispatcher.Handle(r.Context(), command.Event{
		Issuer:           issuer,
		IssuerPrivileged: true,
		Command:          in.Command,
		Args:             in.Args,
		Participants:     in.Participants,
	})
	c.App.Logger.Info("HTTP command handled",
		zap.String("user", user),
		zap.String("command", out.Command),
		zap.Bool("ok", out.OK()))

	resp := CommandResponse{Outcome: out, OK: out.OK()}
	if out.Err != nil {
		resp.Error = out.Err.Error()
	}
	w.WriteHeader(commandStatus(out.Err))
	_ = json.NewEncoder(w).Encode(resp)
}

// HandleLayout returns the active ledger layout.
func (c *Controller) HandleLayout(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"layout":   c.App.Layout,
		"commands": c.App.Layout.CommandNames(),
		"header":   c.App.Layout.Header(),
	})
}

func commandStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, command.ErrUnknownCommand):
		return http.StatusNotFound
	case errors.Is(err, command.ErrNoTargets), errors.Is(err, command.ErrMagnitudeOutOfRange):
		return http.StatusBadRequest
	case errors.Is(err, command.ErrNotPrivileged):
		return http.StatusForbidden
	case errors.Is(err, ledger.ErrColumnNotFound):
		return http.StatusConflict
	default:
		return http.StatusBadGateway
	}
}
