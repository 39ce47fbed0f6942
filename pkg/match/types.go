package match

import (
	"fmt"
	"strings"
	"time"
)

// Mode selects which ranking factors apply.
type Mode string

// Supported ranking modes.
const (
	ModeSearch    Mode = "search"
	ModeRecommend Mode = "recommend"
)

// ParseMode normalizes a mode name. An empty name selects ModeSearch.
func ParseMode(raw string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(raw))) {
	case "", ModeSearch:
		return ModeSearch, nil
	case ModeRecommend:
		return ModeRecommend, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidMode, raw)
	}
}

// Candidate is a read-only snapshot of a listing under consideration.
type Candidate struct {
	ID              string
	Title           string
	Description     string
	Category        string
	Location        string
	DietaryTags     []string
	Allergens       []string
	TicketsRequired int64
	CreatedAt       time.Time
}

// Profile is the requester's declared preferences.
type Profile struct {
	Location            string
	DietaryRequirements []string
	Allergies           []string
}

// Query carries the caller-supplied ranking inputs.
type Query struct {
	Term string
	Mode Mode
	// Now anchors the recency factor; zero disables it.
	Now time.Time
	// Budget is the caller's ticket budget; nil means unstated.
	Budget *int64
}

// Ranked pairs a candidate with its score.
type Ranked struct {
	Candidate Candidate
	Score     int
}
