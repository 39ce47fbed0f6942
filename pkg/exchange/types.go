package exchange

import (
	"fmt"
	"strings"
	"time"

	"github.com/MarkoPoloResearchLab/mealswap/pkg/ledger"
	"github.com/MarkoPoloResearchLab/mealswap/pkg/match"
)

// FoodType distinguishes food given away from food asked for.
type FoodType string

// Supported listing types.
const (
	FoodTypeOffering FoodType = "offering"
	FoodTypeRequest  FoodType = "request"
)

// ParseFoodType normalizes a listing type. An empty value selects FoodTypeOffering.
func ParseFoodType(raw string) (FoodType, error) {
	switch FoodType(strings.ToLower(strings.TrimSpace(raw))) {
	case "", FoodTypeOffering:
		return FoodTypeOffering, nil
	case FoodTypeRequest:
		return FoodTypeRequest, nil
	default:
		return "", fmt.Errorf("%w: unknown food type %q", ErrInvalidListing, raw)
	}
}

func (foodType FoodType) claimable() bool {
	return foodType == FoodTypeOffering || foodType == FoodTypeRequest
}

// Category groups listings for browsing.
type Category string

// Supported categories.
const (
	CategoryMeal     Category = "meal"
	CategorySnack    Category = "snack"
	CategoryDessert  Category = "dessert"
	CategoryDrink    Category = "drink"
	CategoryLeftover Category = "leftover"
)

// ParseCategory normalizes a category. An empty value selects CategoryMeal.
func ParseCategory(raw string) (Category, error) {
	category := Category(strings.ToLower(strings.TrimSpace(raw)))
	switch category {
	case "":
		return CategoryMeal, nil
	case CategoryMeal, CategorySnack, CategoryDessert, CategoryDrink, CategoryLeftover:
		return category, nil
	default:
		return "", fmt.Errorf("%w: unknown category %q", ErrInvalidListing, raw)
	}
}

// Listing is a postable unit of food.
type Listing struct {
	ID              string
	OwnerID         ledger.UserID
	FoodType        FoodType
	Title           string
	Description     string
	Category        Category
	DietaryTags     []string
	Allergens       []string
	Location        string
	IsHomemade      bool
	TicketsRequired ledger.Tickets
	IsAvailable     bool
	// FulfilledBy is zero until the listing is claimed or swapped.
	FulfilledBy ledger.UserID
	FulfilledAt time.Time
	ExpiresAt   *time.Time
	Version     int64
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (listing Listing) expired(now time.Time) bool {
	return listing.ExpiresAt != nil && !now.Before(*listing.ExpiresAt)
}

// Candidate exposes the listing to the match scorer.
func (listing Listing) Candidate() match.Candidate {
	return match.Candidate{
		ID:              listing.ID,
		Title:           listing.Title,
		Description:     listing.Description,
		Category:        string(listing.Category),
		Location:        listing.Location,
		DietaryTags:     listing.DietaryTags,
		Allergens:       listing.Allergens,
		TicketsRequired: listing.TicketsRequired.Int64(),
		CreatedAt:       listing.CreatedAt,
	}
}

// ListingDraft carries the owner-supplied fields of a new listing.
type ListingDraft struct {
	FoodType    FoodType
	Title       string
	Description string
	Category    Category
	DietaryTags []string
	Allergens   []string
	Location    string
	IsHomemade  bool
	// TicketsRequired defaults to one when nil.
	TicketsRequired *ledger.Tickets
	ExpiresAt       *time.Time
}

func (draft ListingDraft) validate() error {
	if strings.TrimSpace(draft.Title) == "" {
		return fmt.Errorf("%w: title is required", ErrInvalidListing)
	}
	if draft.FoodType != "" && !draft.FoodType.claimable() {
		return fmt.Errorf("%w: unknown food type %q", ErrInvalidListing, draft.FoodType)
	}
	if draft.Category != "" {
		if _, err := ParseCategory(string(draft.Category)); err != nil {
			return err
		}
	}
	if draft.TicketsRequired != nil && *draft.TicketsRequired < 0 {
		return fmt.Errorf("%w: tickets required must be non-negative", ErrInvalidListing)
	}
	return nil
}

// ListingUpdate carries owner edits; nil fields stay unchanged.
type ListingUpdate struct {
	Title           *string
	Description     *string
	Category        *Category
	DietaryTags     *[]string
	Allergens       *[]string
	Location        *string
	IsHomemade      *bool
	TicketsRequired *ledger.Tickets
	ExpiresAt       *time.Time
	// IsAvailable may only withdraw a listing; reopening is rejected.
	IsAvailable *bool
}

// ListingFilter selects listings. Zero fields do not filter.
type ListingFilter struct {
	OwnerID       ledger.UserID
	ExcludeOwner  ledger.UserID
	FoodType      FoodType
	Category      Category
	AvailableOnly bool
	Location      string
	DietaryTag    string
	AllergenFree  string
	Search        string
	Page          ledger.Page
}

// ClaimStatus is the lifecycle state of a claim record.
type ClaimStatus string

// ClaimStatusClaimed is the only state a claim takes.
const ClaimStatusClaimed ClaimStatus = "claimed"

// Claim records one successful ticket-for-listing exchange.
type Claim struct {
	ID           string
	ListingID    string
	ClaimerID    ledger.UserID
	ProviderID   ledger.UserID
	TicketsSpent ledger.Tickets
	Status       ClaimStatus
	CreatedAt    time.Time
}

// ClaimResult is returned by ClaimListing.
type ClaimResult struct {
	Claim      Claim
	NewBalance ledger.Tickets
}

// ClaimFilter selects claims where the participant is the claimer or provider.
type ClaimFilter struct {
	ParticipantID ledger.UserID
	Page          ledger.Page
}

// SwapStatus is a swap proposal state.
type SwapStatus string

// Swap proposal states.
const (
	SwapPending   SwapStatus = "pending"
	SwapAccepted  SwapStatus = "accepted"
	SwapRejected  SwapStatus = "rejected"
	SwapCompleted SwapStatus = "completed"
)

// ParseSwapStatus normalizes a status name.
func ParseSwapStatus(raw string) (SwapStatus, error) {
	status := SwapStatus(strings.ToLower(strings.TrimSpace(raw)))
	switch status {
	case SwapPending, SwapAccepted, SwapRejected, SwapCompleted:
		return status, nil
	default:
		return "", fmt.Errorf("%w: unknown swap status %q", ErrInvalidFilter, raw)
	}
}

// SwapDecision is an event applied to a swap proposal.
type SwapDecision string

// Swap events.
const (
	DecisionAccept   SwapDecision = "accept"
	DecisionReject   SwapDecision = "reject"
	DecisionComplete SwapDecision = "complete"
)

// ParseSwapDecision normalizes a decision. Status names are accepted as aliases.
func ParseSwapDecision(raw string) (SwapDecision, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case string(DecisionAccept), string(SwapAccepted):
		return DecisionAccept, nil
	case string(DecisionReject), string(SwapRejected):
		return DecisionReject, nil
	case string(DecisionComplete), string(SwapCompleted):
		return DecisionComplete, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidDecision, raw)
	}
}

// SwapProposal is a two-party offer to trade listings.
type SwapProposal struct {
	ID                 string
	RequesterID        ledger.UserID
	ProviderID         ledger.UserID
	RequesterListingID string
	ProviderListingID  string
	Status             SwapStatus
	Message            string
	ResponseMessage    string
	Version            int64
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// SwapRole selects one side of a proposal.
type SwapRole string

// Swap roles. SwapRoleAny matches either side.
const (
	SwapRoleAny       SwapRole = ""
	SwapRoleRequester SwapRole = "requester"
	SwapRoleProvider  SwapRole = "provider"
)

// ParseSwapRole normalizes a role filter.
func ParseSwapRole(raw string) (SwapRole, error) {
	role := SwapRole(strings.ToLower(strings.TrimSpace(raw)))
	switch role {
	case SwapRoleAny, SwapRoleRequester, SwapRoleProvider:
		return role, nil
	default:
		return "", fmt.Errorf("%w: unknown role %q", ErrInvalidFilter, raw)
	}
}

// CreateSwapInput describes a new swap proposal.
type CreateSwapInput struct {
	RequesterID        ledger.UserID
	RequesterListingID string
	ProviderListingID  string
	// ProviderID is optional; when set it must own the provider listing.
	ProviderID ledger.UserID
	Message    string
}

// RespondInput applies a decision to a proposal.
type RespondInput struct {
	ProposalID      string
	ActorID         ledger.UserID
	Decision        SwapDecision
	ResponseMessage string
}

// SwapFilter selects proposals visible to a participant.
type SwapFilter struct {
	ParticipantID ledger.UserID
	Role          SwapRole
	Status        SwapStatus
	Page          ledger.Page
}

// Profile is a requester's stored preferences.
type Profile struct {
	UserID              ledger.UserID
	Location            string
	DietaryRequirements []string
	Allergies           []string
	TicketBudget        *ledger.Tickets
	UpdatedAt           time.Time
}

func (profile Profile) matchProfile() match.Profile {
	return match.Profile{
		Location:            profile.Location,
		DietaryRequirements: profile.DietaryRequirements,
		Allergies:           profile.Allergies,
	}
}

// RankedListing pairs a listing with its match score.
type RankedListing struct {
	Listing Listing
	Score   int
}
