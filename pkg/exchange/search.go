package exchange

import (
	"context"

	"github.com/MarkoPoloResearchLab/mealswap/pkg/ledger"
	"github.com/MarkoPoloResearchLab/mealswap/pkg/match"
)

// SearchListings ranks other users' available listings for the requester using the stored profile.
// When the query states no budget, the profile budget applies, then the current balance.
func (service *Service) SearchListings(ctx context.Context, requesterID ledger.UserID, query match.Query) ([]RankedListing, error) {
	if err := requireUser(requesterID); err != nil {
		return nil, err
	}
	profile, err := service.GetProfile(ctx, requesterID)
	if err != nil {
		return nil, err
	}
	if query.Budget == nil {
		budget, err := service.budgetFor(ctx, profile)
		if err != nil {
			return nil, err
		}
		query.Budget = &budget
	}
	if query.Now.IsZero() {
		query.Now = service.now()
	}
	listings, err := service.store.QueryListings(ctx, ListingFilter{
		ExcludeOwner:  requesterID,
		AvailableOnly: true,
		Page:          ledger.Page{Limit: searchCandidateLimit},
	})
	if err != nil {
		return nil, err
	}
	candidates := make([]match.Candidate, 0, len(listings))
	byID := make(map[string]Listing, len(listings))
	for _, listing := range listings {
		if listing.expired(query.Now) {
			continue
		}
		candidates = append(candidates, listing.Candidate())
		byID[listing.ID] = listing
	}
	ranked := match.Rank(profile.matchProfile(), query, candidates)
	results := make([]RankedListing, 0, len(ranked))
	for _, entry := range ranked {
		results = append(results, RankedListing{Listing: byID[entry.Candidate.ID], Score: entry.Score})
	}
	return results, nil
}

func (service *Service) budgetFor(ctx context.Context, profile Profile) (int64, error) {
	if profile.TicketBudget != nil {
		return profile.TicketBudget.Int64(), nil
	}
	balance, err := service.ledger.GetBalance(ctx, profile.UserID)
	if err != nil {
		return 0, err
	}
	return balance.Int64(), nil
}
