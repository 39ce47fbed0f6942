package httpapi

import (
	"time"

	"github.com/MarkoPoloResearchLab/mealswap/internal/store/gormstore"
	"github.com/MarkoPoloResearchLab/mealswap/pkg/exchange"
	"github.com/MarkoPoloResearchLab/mealswap/pkg/ledger"
)

type listingRequest struct {
	FoodType        string     `json:"food_type"`
	Title           string     `json:"title"`
	Description     string     `json:"description"`
	Category        string     `json:"category"`
	DietaryTags     []string   `json:"dietary_tags"`
	Allergens       []string   `json:"allergens"`
	Location        string     `json:"location"`
	IsHomemade      bool       `json:"is_homemade"`
	TicketsRequired *int64     `json:"tickets_required"`
	ExpiresAt       *time.Time `json:"expires_at"`
}

type listingPatchRequest struct {
	Title           *string    `json:"title"`
	Description     *string    `json:"description"`
	Category        *string    `json:"category"`
	DietaryTags     *[]string  `json:"dietary_tags"`
	Allergens       *[]string  `json:"allergens"`
	Location        *string    `json:"location"`
	IsHomemade      *bool      `json:"is_homemade"`
	TicketsRequired *int64     `json:"tickets_required"`
	ExpiresAt       *time.Time `json:"expires_at"`
	IsAvailable     *bool      `json:"is_available"`
}

type swapRequest struct {
	RequesterListingID string `json:"requester_listing_id"`
	ProviderListingID  string `json:"provider_listing_id"`
	ProviderID         string `json:"provider_id"`
	Message            string `json:"message"`
}

type swapResponseRequest struct {
	Decision        string `json:"decision"`
	ResponseMessage string `json:"response_message"`
}

type profileRequest struct {
	Location            string   `json:"location"`
	DietaryRequirements []string `json:"dietary_requirements"`
	Allergies           []string `json:"allergies"`
	TicketBudget        *int64   `json:"ticket_budget"`
}

type searchRequest struct {
	Term   string `json:"term"`
	Mode   string `json:"mode"`
	Budget *int64 `json:"budget"`
}

type listingPayload struct {
	ID              string     `json:"id"`
	OwnerID         string     `json:"owner_id"`
	FoodType        string     `json:"food_type"`
	Title           string     `json:"title"`
	Description     string     `json:"description"`
	Category        string     `json:"category"`
	DietaryTags     []string   `json:"dietary_tags"`
	Allergens       []string   `json:"allergens"`
	Location        string     `json:"location"`
	IsHomemade      bool       `json:"is_homemade"`
	TicketsRequired int64      `json:"tickets_required"`
	IsAvailable     bool       `json:"is_available"`
	FulfilledBy     string     `json:"fulfilled_by,omitempty"`
	FulfilledAt     *time.Time `json:"fulfilled_at,omitempty"`
	ExpiresAt       *time.Time `json:"expires_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

type rankedListingPayload struct {
	Listing listingPayload `json:"listing"`
	Score   int            `json:"score"`
}

type claimPayload struct {
	ID           string    `json:"id"`
	ListingID    string    `json:"listing_id"`
	ClaimerID    string    `json:"claimer_id"`
	ProviderID   string    `json:"provider_id"`
	TicketsSpent int64     `json:"tickets_spent"`
	Status       string    `json:"status"`
	CreatedAt    time.Time `json:"created_at"`
}

type swapPayload struct {
	ID                 string    `json:"id"`
	RequesterID        string    `json:"requester_id"`
	ProviderID         string    `json:"provider_id"`
	RequesterListingID string    `json:"requester_listing_id"`
	ProviderListingID  string    `json:"provider_listing_id"`
	Status             string    `json:"status"`
	Message            string    `json:"message,omitempty"`
	ResponseMessage    string    `json:"response_message,omitempty"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

type profilePayload struct {
	UserID              string   `json:"user_id"`
	Location            string   `json:"location"`
	DietaryRequirements []string `json:"dietary_requirements"`
	Allergies           []string `json:"allergies"`
	TicketBudget        *int64   `json:"ticket_budget"`
}

type transactionPayload struct {
	ID               string    `json:"id"`
	Amount           int64     `json:"amount"`
	Kind             string    `json:"kind"`
	RelatedListingID string    `json:"related_listing_id,omitempty"`
	Description      string    `json:"description"`
	CreatedAt        time.Time `json:"created_at"`
}

type notificationPayload struct {
	ID        string            `json:"id"`
	Kind      string            `json:"kind"`
	Title     string            `json:"title"`
	Message   string            `json:"message"`
	Payload   map[string]string `json:"payload"`
	IsRead    bool              `json:"is_read"`
	CreatedAt time.Time         `json:"created_at"`
}

func (request listingRequest) draft() (exchange.ListingDraft, error) {
	foodType, err := exchange.ParseFoodType(request.FoodType)
	if err != nil {
		return exchange.ListingDraft{}, err
	}
	category, err := exchange.ParseCategory(request.Category)
	if err != nil {
		return exchange.ListingDraft{}, err
	}
	return exchange.ListingDraft{
		FoodType:        foodType,
		Title:           request.Title,
		Description:     request.Description,
		Category:        category,
		DietaryTags:     request.DietaryTags,
		Allergens:       request.Allergens,
		Location:        request.Location,
		IsHomemade:      request.IsHomemade,
		TicketsRequired: ticketsPointer(request.TicketsRequired),
		ExpiresAt:       request.ExpiresAt,
	}, nil
}

func (request listingPatchRequest) update() (exchange.ListingUpdate, error) {
	update := exchange.ListingUpdate{
		Title:           request.Title,
		Description:     request.Description,
		DietaryTags:     request.DietaryTags,
		Allergens:       request.Allergens,
		Location:        request.Location,
		IsHomemade:      request.IsHomemade,
		TicketsRequired: ticketsPointer(request.TicketsRequired),
		ExpiresAt:       request.ExpiresAt,
		IsAvailable:     request.IsAvailable,
	}
	if request.Category != nil {
		category, err := exchange.ParseCategory(*request.Category)
		if err != nil {
			return exchange.ListingUpdate{}, err
		}
		update.Category = &category
	}
	return update, nil
}

func ticketsPointer(value *int64) *ledger.Tickets {
	if value == nil {
		return nil
	}
	tickets := ledger.Tickets(*value)
	return &tickets
}

func toListingPayload(listing exchange.Listing) listingPayload {
	payload := listingPayload{
		ID:              listing.ID,
		OwnerID:         listing.OwnerID.String(),
		FoodType:        string(listing.FoodType),
		Title:           listing.Title,
		Description:     listing.Description,
		Category:        string(listing.Category),
		DietaryTags:     nonNil(listing.DietaryTags),
		Allergens:       nonNil(listing.Allergens),
		Location:        listing.Location,
		IsHomemade:      listing.IsHomemade,
		TicketsRequired: listing.TicketsRequired.Int64(),
		IsAvailable:     listing.IsAvailable,
		FulfilledBy:     listing.FulfilledBy.String(),
		ExpiresAt:       listing.ExpiresAt,
		CreatedAt:       listing.CreatedAt,
		UpdatedAt:       listing.UpdatedAt,
	}
	if !listing.FulfilledAt.IsZero() {
		fulfilledAt := listing.FulfilledAt
		payload.FulfilledAt = &fulfilledAt
	}
	return payload
}

func toListingPayloads(listings []exchange.Listing) []listingPayload {
	payloads := make([]listingPayload, 0, len(listings))
	for _, listing := range listings {
		payloads = append(payloads, toListingPayload(listing))
	}
	return payloads
}

func toClaimPayload(claim exchange.Claim) claimPayload {
	return claimPayload{
		ID:           claim.ID,
		ListingID:    claim.ListingID,
		ClaimerID:    claim.ClaimerID.String(),
		ProviderID:   claim.ProviderID.String(),
		TicketsSpent: claim.TicketsSpent.Int64(),
		Status:       string(claim.Status),
		CreatedAt:    claim.CreatedAt,
	}
}

func toSwapPayload(proposal exchange.SwapProposal) swapPayload {
	return swapPayload{
		ID:                 proposal.ID,
		RequesterID:        proposal.RequesterID.String(),
		ProviderID:         proposal.ProviderID.String(),
		RequesterListingID: proposal.RequesterListingID,
		ProviderListingID:  proposal.ProviderListingID,
		Status:             string(proposal.Status),
		Message:            proposal.Message,
		ResponseMessage:    proposal.ResponseMessage,
		CreatedAt:          proposal.CreatedAt,
		UpdatedAt:          proposal.UpdatedAt,
	}
}

func toProfilePayload(profile exchange.Profile) profilePayload {
	payload := profilePayload{
		UserID:              profile.UserID.String(),
		Location:            profile.Location,
		DietaryRequirements: nonNil(profile.DietaryRequirements),
		Allergies:           nonNil(profile.Allergies),
	}
	if profile.TicketBudget != nil {
		budget := profile.TicketBudget.Int64()
		payload.TicketBudget = &budget
	}
	return payload
}

func toTransactionPayload(transaction ledger.Transaction) transactionPayload {
	return transactionPayload{
		ID:               transaction.TransactionID,
		Amount:           transaction.Amount.Int64(),
		Kind:             transaction.Kind.String(),
		RelatedListingID: transaction.RelatedListingID,
		Description:      transaction.Description,
		CreatedAt:        time.Unix(transaction.CreatedUnixUTC, 0).UTC(),
	}
}

func toNotificationPayload(entry gormstore.InboxEntry) notificationPayload {
	return notificationPayload{
		ID:        entry.ID,
		Kind:      string(entry.Kind),
		Title:     entry.Title,
		Message:   entry.Message,
		Payload:   entry.Payload,
		IsRead:    entry.IsRead,
		CreatedAt: entry.CreatedAt,
	}
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
