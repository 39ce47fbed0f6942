package gormstore

import (
	"time"

	"github.com/MarkoPoloResearchLab/mealswap/pkg/exchange"
	"github.com/MarkoPoloResearchLab/mealswap/pkg/ledger"
)

func listingModel(listing exchange.Listing) (FoodListing, error) {
	dietary, err := encodeList(listing.DietaryTags)
	if err != nil {
		return FoodListing{}, err
	}
	allergens, err := encodeList(listing.Allergens)
	if err != nil {
		return FoodListing{}, err
	}
	var expiresAt *time.Time
	if listing.ExpiresAt != nil {
		expiresAt = optionalTime(*listing.ExpiresAt)
	}
	return FoodListing{
		ListingID:       listing.ID,
		OwnerID:         listing.OwnerID.String(),
		FoodType:        string(listing.FoodType),
		Title:           listing.Title,
		Description:     listing.Description,
		Category:        string(listing.Category),
		DietaryTags:     dietary,
		Allergens:       allergens,
		Location:        listing.Location,
		IsHomemade:      listing.IsHomemade,
		TicketsRequired: listing.TicketsRequired.Int64(),
		IsAvailable:     listing.IsAvailable,
		FulfilledBy:     optionalString(listing.FulfilledBy.String()),
		FulfilledAt:     optionalTime(listing.FulfilledAt),
		ExpiresAt:       expiresAt,
		Version:         listing.Version,
		CreatedAt:       listing.CreatedAt.UTC(),
		UpdatedAt:       listing.UpdatedAt.UTC(),
	}, nil
}

func mapListing(model FoodListing) (exchange.Listing, error) {
	ownerID, err := ledger.NewUserID(model.OwnerID)
	if err != nil {
		return exchange.Listing{}, err
	}
	dietary, err := decodeList(model.DietaryTags)
	if err != nil {
		return exchange.Listing{}, err
	}
	allergens, err := decodeList(model.Allergens)
	if err != nil {
		return exchange.Listing{}, err
	}
	listing := exchange.Listing{
		ID:              model.ListingID,
		OwnerID:         ownerID,
		FoodType:        exchange.FoodType(model.FoodType),
		Title:           model.Title,
		Description:     model.Description,
		Category:        exchange.Category(model.Category),
		DietaryTags:     dietary,
		Allergens:       allergens,
		Location:        model.Location,
		IsHomemade:      model.IsHomemade,
		TicketsRequired: ledger.Tickets(model.TicketsRequired),
		IsAvailable:     model.IsAvailable,
		Version:         model.Version,
		CreatedAt:       model.CreatedAt.UTC(),
		UpdatedAt:       model.UpdatedAt.UTC(),
	}
	if model.FulfilledBy != nil {
		fulfilledBy, err := ledger.NewUserID(*model.FulfilledBy)
		if err != nil {
			return exchange.Listing{}, err
		}
		listing.FulfilledBy = fulfilledBy
	}
	if model.FulfilledAt != nil {
		listing.FulfilledAt = model.FulfilledAt.UTC()
	}
	if model.ExpiresAt != nil {
		expiresAt := model.ExpiresAt.UTC()
		listing.ExpiresAt = &expiresAt
	}
	return listing, nil
}

func mapClaim(model FoodClaim) (exchange.Claim, error) {
	claimerID, err := ledger.NewUserID(model.ClaimerID)
	if err != nil {
		return exchange.Claim{}, err
	}
	providerID, err := ledger.NewUserID(model.ProviderID)
	if err != nil {
		return exchange.Claim{}, err
	}
	return exchange.Claim{
		ID:           model.ClaimID,
		ListingID:    model.ListingID,
		ClaimerID:    claimerID,
		ProviderID:   providerID,
		TicketsSpent: ledger.Tickets(model.TicketsSpent),
		Status:       exchange.ClaimStatus(model.Status),
		CreatedAt:    model.CreatedAt.UTC(),
	}, nil
}

func swapModel(proposal exchange.SwapProposal) SwapProposal {
	return SwapProposal{
		ProposalID:         proposal.ID,
		RequesterID:        proposal.RequesterID.String(),
		ProviderID:         proposal.ProviderID.String(),
		RequesterListingID: proposal.RequesterListingID,
		ProviderListingID:  proposal.ProviderListingID,
		Status:             string(proposal.Status),
		Message:            proposal.Message,
		ResponseMessage:    proposal.ResponseMessage,
		Version:            proposal.Version,
		CreatedAt:          proposal.CreatedAt.UTC(),
		UpdatedAt:          proposal.UpdatedAt.UTC(),
	}
}

func mapSwap(model SwapProposal) (exchange.SwapProposal, error) {
	requesterID, err := ledger.NewUserID(model.RequesterID)
	if err != nil {
		return exchange.SwapProposal{}, err
	}
	providerID, err := ledger.NewUserID(model.ProviderID)
	if err != nil {
		return exchange.SwapProposal{}, err
	}
	status, err := exchange.ParseSwapStatus(model.Status)
	if err != nil {
		return exchange.SwapProposal{}, err
	}
	return exchange.SwapProposal{
		ID:                 model.ProposalID,
		RequesterID:        requesterID,
		ProviderID:         providerID,
		RequesterListingID: model.RequesterListingID,
		ProviderListingID:  model.ProviderListingID,
		Status:             status,
		Message:            model.Message,
		ResponseMessage:    model.ResponseMessage,
		Version:            model.Version,
		CreatedAt:          model.CreatedAt.UTC(),
		UpdatedAt:          model.UpdatedAt.UTC(),
	}, nil
}

func mapProfile(model RequesterProfile) (exchange.Profile, error) {
	userID, err := ledger.NewUserID(model.UserID)
	if err != nil {
		return exchange.Profile{}, err
	}
	dietary, err := decodeList(model.DietaryRequirements)
	if err != nil {
		return exchange.Profile{}, err
	}
	allergies, err := decodeList(model.Allergies)
	if err != nil {
		return exchange.Profile{}, err
	}
	profile := exchange.Profile{
		UserID:              userID,
		Location:            model.Location,
		DietaryRequirements: dietary,
		Allergies:           allergies,
		UpdatedAt:           model.UpdatedAt.UTC(),
	}
	if model.TicketBudget != nil {
		budget := ledger.Tickets(*model.TicketBudget)
		profile.TicketBudget = &budget
	}
	return profile, nil
}

func mapTransaction(model TicketTransaction) (ledger.Transaction, error) {
	userID, err := ledger.NewUserID(model.UserID)
	if err != nil {
		return ledger.Transaction{}, err
	}
	kind, err := ledger.ParseTransactionKind(model.Kind)
	if err != nil {
		return ledger.Transaction{}, err
	}
	idempotencyKey, err := ledger.NewIdempotencyKey(model.IdempotencyKey)
	if err != nil {
		return ledger.Transaction{}, err
	}
	transaction := ledger.Transaction{
		TransactionID:  model.TransactionID,
		Sequence:       model.Sequence,
		UserID:         userID,
		Amount:         ledger.Tickets(model.Amount),
		Kind:           kind,
		IdempotencyKey: idempotencyKey,
		Description:    model.Description,
		CreatedUnixUTC: model.CreatedAt.Unix(),
	}
	if model.RelatedListingID != nil {
		transaction.RelatedListingID = *model.RelatedListingID
	}
	return transaction, nil
}
