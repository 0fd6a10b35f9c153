package command

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/questbot/questbot/pkg/ledger"
)

// Summarize renders the one-line reply for an outcome: a success summary or a
// failure reason. It never reports per-participant partial success.
func Summarize(o Outcome) string {
	if o.Err != nil {
		return failureReason(o.Err)
	}
	if o.Standings != nil {
		return standingsSummary(o.Standings)
	}
	if len(o.Affected) == 0 {
		return "Nothing to change: none of the mentioned participants are on the ledger yet."
	}

	n := o.Delta
	verb, prep := "Added", "for"
	if n < 0 {
		n = -n
		verb, prep = "Removed", "from"
	}
	unit := "points"
	if n == 1 {
		unit = "point"
	}
	return fmt.Sprintf("%s %d %s %s %s %s.", verb, n, o.Column, unit, prep, boldList(o.Affected))
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, ledger.ErrColumnNotFound):
		return "The points sheet template is misconfigured (" + err.Error() + "). Ask an admin to fix the header row."
	case errors.Is(err, ErrNoTargets):
		return "Mention at least one participant."
	case errors.Is(err, ErrMagnitudeOutOfRange):
		return fmt.Sprintf("Point amounts must be between 1 and %d.", MaxMagnitude)
	case errors.Is(err, ErrNotPrivileged):
		return "Only staff can change points."
	case errors.Is(err, ErrUnknownCommand):
		return "Unknown command."
	default:
		return "Could not update the points sheet. Please try again later."
	}
}

func standingsSummary(standings []ledger.Standing) string {
	lines := make([]string, 0, len(standings))
	for _, s := range standings {
		if !s.Found {
			lines = append(lines, fmt.Sprintf("**%s** is not on the ledger yet.", s.Identity.Key()))
			continue
		}
		total := s.Total
		if total == "" {
			total = "0"
		}
		lines = append(lines, fmt.Sprintf("**%s**: %s points", s.Identity.Key(), total))
	}
	return strings.Join(lines, "\n")
}

func boldList(ids []ledger.Identity) string {
	names := make([]string, len(ids))
	for i, id := range ids {
		names[i] = "**" + id.Key() + "**"
	}
	return strings.Join(names, ", ")
}

// FeedMessage is the live feed payload for an applied outcome.
type FeedMessage struct {
	Command  string    `json:"command"`
	Column   string    `json:"column"`
	Delta    int       `json:"delta"`
	Affected []string  `json:"affected"`
	Created  []string  `json:"created,omitempty"`
	Summary  string    `json:"summary"`
	At       time.Time `json:"at"`
}

// NewFeedMessage builds the feed payload for o.
func NewFeedMessage(o Outcome) FeedMessage {
	msg := FeedMessage{
		Command: o.Command,
		Column:  o.Column,
		Delta:   o.Delta,
		Summary: o.Summary,
		At:      time.Now().UTC(),
	}
	for _, id := range o.Affected {
		msg.Affected = append(msg.Affected, id.Key())
	}
	for _, id := range o.Created {
		msg.Created = append(msg.Created, id.Key())
	}
	return msg
}

// MarshalBinary lets the message be published to redis as JSON.
func (m FeedMessage) MarshalBinary() ([]byte, error) {
	return json.Marshal(m)
}
