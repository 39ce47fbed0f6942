package exchange

import (
	"context"
	"fmt"
	"strings"

	"github.com/MarkoPoloResearchLab/mealswap/pkg/ledger"
)

// CreateListing stores a new available listing owned by ownerID.
func (service *Service) CreateListing(ctx context.Context, ownerID ledger.UserID, draft ListingDraft) (Listing, error) {
	created, err := service.createListing(ctx, ownerID, draft)
	service.logOperation(ctx, OperationLog{Operation: operationCreateList, ActorID: ownerID, ListingID: created.ID, Error: err})
	return created, err
}

func (service *Service) createListing(ctx context.Context, ownerID ledger.UserID, draft ListingDraft) (Listing, error) {
	if err := requireUser(ownerID); err != nil {
		return Listing{}, err
	}
	if err := draft.validate(); err != nil {
		return Listing{}, err
	}
	foodType, err := ParseFoodType(string(draft.FoodType))
	if err != nil {
		return Listing{}, err
	}
	category, err := ParseCategory(string(draft.Category))
	if err != nil {
		return Listing{}, err
	}
	ticketsRequired := ledger.Tickets(defaultTicketsRequired)
	if draft.TicketsRequired != nil {
		ticketsRequired = *draft.TicketsRequired
	}
	now := service.now()
	return service.store.InsertListing(ctx, Listing{
		OwnerID:         ownerID,
		FoodType:        foodType,
		Title:           strings.TrimSpace(draft.Title),
		Description:     strings.TrimSpace(draft.Description),
		Category:        category,
		DietaryTags:     cleanList(draft.DietaryTags),
		Allergens:       cleanList(draft.Allergens),
		Location:        strings.TrimSpace(draft.Location),
		IsHomemade:      draft.IsHomemade,
		TicketsRequired: ticketsRequired,
		IsAvailable:     true,
		ExpiresAt:       draft.ExpiresAt,
		CreatedAt:       now,
		UpdatedAt:       now,
	})
}

// GetListing returns a listing by id.
func (service *Service) GetListing(ctx context.Context, listingID string) (Listing, error) {
	normalizedID, err := normalizeID(listingID, ErrInvalidListingID)
	if err != nil {
		return Listing{}, err
	}
	return service.store.GetListing(ctx, normalizedID)
}

// ListListings returns listings matching the filter, newest first.
func (service *Service) ListListings(ctx context.Context, filter ListingFilter) ([]Listing, error) {
	if filter.FoodType != "" && !filter.FoodType.claimable() {
		return nil, fmt.Errorf("%w: unknown food type %q", ErrInvalidFilter, filter.FoodType)
	}
	filter.Page = normalizePage(filter.Page)
	return service.store.QueryListings(ctx, filter)
}

// UpdateListing applies owner edits. An unavailable listing can be edited but never reopened.
func (service *Service) UpdateListing(ctx context.Context, actorID ledger.UserID, listingID string, update ListingUpdate) (Listing, error) {
	var updated Listing
	operationError := service.updateListing(ctx, actorID, listingID, update, &updated)
	service.logOperation(ctx, OperationLog{Operation: operationUpdateList, ActorID: actorID, ListingID: listingID, Error: operationError})
	if operationError != nil {
		return Listing{}, operationError
	}
	return updated, nil
}

func (service *Service) updateListing(ctx context.Context, actorID ledger.UserID, listingID string, update ListingUpdate, result *Listing) error {
	if err := requireUser(actorID); err != nil {
		return err
	}
	normalizedID, err := normalizeID(listingID, ErrInvalidListingID)
	if err != nil {
		return err
	}
	return service.store.WithTx(ctx, func(ctx context.Context, txStore Store) error {
		current, err := txStore.LockListing(ctx, normalizedID)
		if err != nil {
			return err
		}
		if current.OwnerID != actorID {
			return fmt.Errorf("%w: listing %s is owned by another user", ErrForbidden, normalizedID)
		}
		next, err := applyListingUpdate(current, update)
		if err != nil {
			return err
		}
		next.UpdatedAt = service.now()
		stored, err := txStore.PutListing(ctx, next, current.Version)
		if err != nil {
			return err
		}
		*result = stored
		return nil
	})
}

// DeleteListing withdraws an available listing on its owner's request. The row is kept so
// claims and swap proposals that name it still resolve. A listing that is already
// unavailable is left untouched.
func (service *Service) DeleteListing(ctx context.Context, actorID ledger.UserID, listingID string) (Listing, error) {
	var withdrawn Listing
	operationError := service.deleteListing(ctx, actorID, listingID, &withdrawn)
	service.logOperation(ctx, OperationLog{Operation: operationDeleteList, ActorID: actorID, ListingID: listingID, Error: operationError})
	if operationError != nil {
		return Listing{}, operationError
	}
	return withdrawn, nil
}

func (service *Service) deleteListing(ctx context.Context, actorID ledger.UserID, listingID string, result *Listing) error {
	if err := requireUser(actorID); err != nil {
		return err
	}
	normalizedID, err := normalizeID(listingID, ErrInvalidListingID)
	if err != nil {
		return err
	}
	return service.store.WithTx(ctx, func(ctx context.Context, txStore Store) error {
		current, err := txStore.LockListing(ctx, normalizedID)
		if err != nil {
			return err
		}
		if current.OwnerID != actorID {
			return fmt.Errorf("%w: listing %s is owned by another user", ErrForbidden, normalizedID)
		}
		if !current.IsAvailable {
			return fmt.Errorf("%w: listing %s", ErrListingUnavailable, normalizedID)
		}
		next := current
		next.IsAvailable = false
		next.UpdatedAt = service.now()
		stored, err := txStore.PutListing(ctx, next, current.Version)
		if err != nil {
			return err
		}
		*result = stored
		return nil
	})
}

func applyListingUpdate(listing Listing, update ListingUpdate) (Listing, error) {
	if update.Title != nil {
		title := strings.TrimSpace(*update.Title)
		if title == "" {
			return Listing{}, fmt.Errorf("%w: title is required", ErrInvalidListing)
		}
		listing.Title = title
	}
	if update.Description != nil {
		listing.Description = strings.TrimSpace(*update.Description)
	}
	if update.Category != nil {
		category, err := ParseCategory(string(*update.Category))
		if err != nil {
			return Listing{}, err
		}
		listing.Category = category
	}
	if update.DietaryTags != nil {
		listing.DietaryTags = cleanList(*update.DietaryTags)
	}
	if update.Allergens != nil {
		listing.Allergens = cleanList(*update.Allergens)
	}
	if update.Location != nil {
		listing.Location = strings.TrimSpace(*update.Location)
	}
	if update.IsHomemade != nil {
		listing.IsHomemade = *update.IsHomemade
	}
	if update.TicketsRequired != nil {
		if *update.TicketsRequired < 0 {
			return Listing{}, fmt.Errorf("%w: tickets required must be non-negative", ErrInvalidListing)
		}
		listing.TicketsRequired = *update.TicketsRequired
	}
	if update.ExpiresAt != nil {
		expiresAt := *update.ExpiresAt
		listing.ExpiresAt = &expiresAt
	}
	if update.IsAvailable != nil {
		if *update.IsAvailable && !listing.IsAvailable {
			return Listing{}, fmt.Errorf("%w: listing cannot be reopened", ErrInvalidState)
		}
		listing.IsAvailable = *update.IsAvailable
	}
	return listing, nil
}

func cleanList(values []string) []string {
	cleaned := make([]string, 0, len(values))
	seen := make(map[string]struct{}, len(values))
	for _, value := range values {
		trimmed := strings.TrimSpace(value)
		if trimmed == "" {
			continue
		}
		key := strings.ToLower(trimmed)
		if _, duplicate := seen[key]; duplicate {
			continue
		}
		seen[key] = struct{}{}
		cleaned = append(cleaned, trimmed)
	}
	return cleaned
}
