package match

import (
	"sort"
	"strings"
	"time"
)

const (
	weightLocation        = 3
	weightDietary         = 2
	weightTermTitle       = 5
	weightTermDescription = 3
	weightTermCategory    = 2
	weightNoTerm          = 1
	weightAffordable      = 1
	weightSingleTicket    = 1
	weightRecentDay       = 2
	weightRecentTwoDays   = 1
	recencyDayWindow      = 24 * time.Hour
	recencyTwoDaysWindow  = 48 * time.Hour
	singleTicketThreshold = 1
)

// Score sums the weighted factors for one candidate. It does not apply the allergen filter; see Excluded.
func Score(candidate Candidate, profile Profile, query Query) int {
	score := 0
	if locationMatches(candidate.Location, profile.Location) {
		score += weightLocation
	}
	tags := normalizedSet(candidate.DietaryTags)
	for _, requirement := range profile.DietaryRequirements {
		if _, ok := tags[normalize(requirement)]; ok {
			score += weightDietary
		}
	}
	score += termScore(candidate, query.Term)
	if query.Budget != nil && candidate.TicketsRequired <= *query.Budget {
		score += weightAffordable
		if candidate.TicketsRequired <= singleTicketThreshold {
			score += weightSingleTicket
		}
	}
	if query.Mode == ModeRecommend && !query.Now.IsZero() && !candidate.CreatedAt.IsZero() {
		age := query.Now.Sub(candidate.CreatedAt)
		switch {
		case age <= recencyDayWindow:
			score += weightRecentDay
		case age <= recencyTwoDaysWindow:
			score += weightRecentTwoDays
		}
	}
	return score
}

// Excluded reports whether the candidate carries an allergen the requester declared.
func Excluded(candidate Candidate, profile Profile) bool {
	if len(profile.Allergies) == 0 || len(candidate.Allergens) == 0 {
		return false
	}
	allergens := normalizedSet(candidate.Allergens)
	for _, allergy := range profile.Allergies {
		key := normalize(allergy)
		if key == "" {
			continue
		}
		if _, ok := allergens[key]; ok {
			return true
		}
	}
	return false
}

// Rank filters out excluded candidates and orders the rest by score, newest first on ties.
// Candidates sharing score and creation time are ordered by id so the output is reproducible.
func Rank(profile Profile, query Query, candidates []Candidate) []Ranked {
	ranked := make([]Ranked, 0, len(candidates))
	for _, candidate := range candidates {
		if Excluded(candidate, profile) {
			continue
		}
		ranked = append(ranked, Ranked{Candidate: candidate, Score: Score(candidate, profile, query)})
	}
	sort.SliceStable(ranked, func(left, right int) bool {
		if ranked[left].Score != ranked[right].Score {
			return ranked[left].Score > ranked[right].Score
		}
		leftCreated := ranked[left].Candidate.CreatedAt
		rightCreated := ranked[right].Candidate.CreatedAt
		if !leftCreated.Equal(rightCreated) {
			return leftCreated.After(rightCreated)
		}
		return ranked[left].Candidate.ID < ranked[right].Candidate.ID
	})
	return ranked
}

func termScore(candidate Candidate, term string) int {
	needle := normalize(term)
	if needle == "" {
		return weightNoTerm
	}
	switch {
	case strings.Contains(normalize(candidate.Title), needle):
		return weightTermTitle
	case strings.Contains(normalize(candidate.Description), needle):
		return weightTermDescription
	case strings.Contains(normalize(candidate.Category), needle):
		return weightTermCategory
	default:
		return 0
	}
}

func locationMatches(candidateLocation string, requesterLocation string) bool {
	candidateValue := normalize(candidateLocation)
	requesterValue := normalize(requesterLocation)
	if candidateValue == "" || requesterValue == "" {
		return false
	}
	return strings.Contains(candidateValue, requesterValue) || strings.Contains(requesterValue, candidateValue)
}

func normalizedSet(values []string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, value := range values {
		if key := normalize(value); key != "" {
			set[key] = struct{}{}
		}
	}
	return set
}

func normalize(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}
