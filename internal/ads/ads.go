// Package ads describes the rewarded-ad collaborator and turns its failures
// into errors the user can act on.
package ads

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"pepeearn/internal/models"
)

var (
	ErrNotReady    = fmt.Errorf("%w: ad system not ready", models.ErrValidation)
	ErrClosedEarly = fmt.Errorf("%w: ad closed before completion", models.ErrValidation)
	ErrBlocked     = fmt.Errorf("%w: ad blocked", models.ErrValidation)
	ErrUnavailable = errors.New("no ads available")
	ErrFailed      = errors.New("ad failed to load")
)

// Player shows one rewarded ad. PlayRewarded returns nil only when the ad
// was watched to the end.
type Player interface {
	IsReady() bool
	PlayRewarded(ctx context.Context) error
}

// Classify maps a raw provider error onto one of the package errors.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	for _, known := range []error{ErrNotReady, ErrClosedEarly, ErrBlocked, ErrUnavailable, ErrFailed} {
		if errors.Is(err, known) {
			return err
		}
	}

	text := strings.ToLower(err.Error())
	switch {
	case strings.Contains(text, "closed"):
		return fmt.Errorf("%w: %v", ErrClosedEarly, err)
	case strings.Contains(text, "blocked"):
		return fmt.Errorf("%w: %v", ErrBlocked, err)
	case strings.Contains(text, "unavailable"):
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	default:
		return fmt.Errorf("%w: %v", ErrFailed, err)
	}
}

// Message is the text shown to the user for an ad failure.
func Message(err error) string {
	switch {
	case errors.Is(err, ErrNotReady):
		return "Ad system not ready. Please refresh the page."
	case errors.Is(err, ErrClosedEarly):
		return "Ad was closed before completion. Please watch the full ad to earn rewards."
	case errors.Is(err, ErrBlocked):
		return "Ad blocker detected. Please disable your ad blocker to earn rewards."
	case errors.Is(err, ErrUnavailable):
		return "No ads available right now. Please try again in a moment."
	default:
		return "Failed to load ad. Please check your internet connection."
	}
}

const (
	OutcomeCompleted = "completed"
	OutcomeNotReady  = "not_ready"
)

// Reported is a Player for ads shown by the client: the outcome the ad SDK
// reported is replayed as the result of PlayRewarded.
type Reported struct {
	Outcome string
}

func (r Reported) IsReady() bool {
	return strings.TrimSpace(r.Outcome) != OutcomeNotReady
}

func (r Reported) PlayRewarded(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	outcome := strings.TrimSpace(r.Outcome)
	switch outcome {
	case OutcomeCompleted:
		return nil
	case "":
		return ErrFailed
	}
	return Classify(errors.New(outcome))
}
