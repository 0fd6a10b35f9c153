package command

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/questbot/questbot/pkg/ledger"
)

var (
	// ErrNoTargets means the command named nobody to apply points to.
	ErrNoTargets = errors.New("no participants mentioned")
	// ErrMagnitudeOutOfRange means the point amount is zero or above MaxMagnitude.
	ErrMagnitudeOutOfRange = errors.New("point amount out of range")
)

// MaxMagnitude is the largest point amount one command may apply.
const MaxMagnitude = 1_000_000

// RemoveToken flips the sign of a command when it is the first argument.
const RemoveToken = "remove"

type parseState int

const (
	expectSignOrMagnitudeOrTargets parseState = iota
	expectMagnitudeOrTargets
	expectTargets
	parseDone
)

func (s parseState) String() string {
	switch s {
	case expectSignOrMagnitudeOrTargets:
		return "EXPECT_SIGN_OR_MAGNITUDE_OR_TARGETS"
	case expectMagnitudeOrTargets:
		return "EXPECT_MAGNITUDE_OR_TARGETS"
	case expectTargets:
		return "EXPECT_TARGETS"
	case parseDone:
		return "DONE"
	default:
		return "UNKNOWN"
	}
}

// Instruction is a parsed points command.
type Instruction struct {
	Sign         int
	Magnitude    int
	Delta        int
	Participants []ledger.Identity
}

// Parse reads the argument tokens of a points command:
//
//	[remove] [N] <participants...>
//
// A leading "remove" makes the delta negative. The first all-digit token is the
// magnitude (default 1), which must lie in [1, MaxMagnitude]. All other tokens are
// mention text; the participants themselves arrive already resolved by the transport.
func Parse(args []string, participants []ledger.Identity) (Instruction, error) {
	in := Instruction{Sign: 1, Magnitude: 1}
	state := expectSignOrMagnitudeOrTargets

	for i := 0; state != parseDone; i++ {
		// Once the magnitude is known every remaining token is mention text.
		if state == expectTargets || i == len(args) {
			state = parseDone
			continue
		}
		tok := strings.TrimSpace(args[i])
		if tok == "" {
			continue
		}
		switch state {
		case expectSignOrMagnitudeOrTargets:
			if strings.EqualFold(tok, RemoveToken) {
				in.Sign = -1
				state = expectMagnitudeOrTargets
			} else if n, ok := magnitude(tok); ok {
				in.Magnitude = n
				state = expectTargets
			} else {
				state = expectMagnitudeOrTargets
			}
		case expectMagnitudeOrTargets:
			if n, ok := magnitude(tok); ok {
				in.Magnitude = n
				state = expectTargets
			}
		}
	}

	for _, p := range participants {
		if p.Key() != "" {
			in.Participants = append(in.Participants, p)
		}
	}
	if len(in.Participants) == 0 {
		return Instruction{}, ErrNoTargets
	}
	if in.Magnitude < 1 || in.Magnitude > MaxMagnitude {
		return Instruction{}, fmt.Errorf("%w: %d", ErrMagnitudeOutOfRange, in.Magnitude)
	}
	in.Delta = in.Sign * in.Magnitude
	return in, nil
}

// magnitude reads an all-digit token. Values too large for an int report
// MaxMagnitude+1 so they fail the range check instead of reading as mention text.
func magnitude(tok string) (int, bool) {
	for _, r := range tok {
		if r < '0' || r > '9' {
			return 0, false
		}
	}
	n, err := strconv.Atoi(tok)
	if err != nil || n > MaxMagnitude {
		return MaxMagnitude + 1, true
	}
	return n, true
}
