package exchange

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/MarkoPoloResearchLab/mealswap/pkg/ledger"
)

// ClaimListing spends the claimer's tickets to take an available listing.
//
// Preconditions are checked once before the transaction and again against the locked row
// inside it. The listing's available-to-unavailable write is a versioned compare-and-set;
// ledger movements and the claim record are written only after it succeeds, in the same
// transaction. A price edit between the two checks is reported as a concurrent modification
// so the claimer is never charged an amount it did not check. The owner is notified after commit.
func (service *Service) ClaimListing(ctx context.Context, claimerID ledger.UserID, listingID string) (ClaimResult, error) {
	result, listing, operationError := service.claimListing(ctx, claimerID, listingID)
	service.logOperation(ctx, OperationLog{Operation: operationClaim, ActorID: claimerID, ListingID: listingID, Error: operationError})
	if operationError != nil {
		return ClaimResult{}, operationError
	}
	service.notify(ctx, Notification{
		UserID:  listing.OwnerID,
		Kind:    NotificationFoodClaimed,
		Title:   "Food claimed",
		Message: fmt.Sprintf(claimEarnedDescFormat, listing.Title),
		Payload: map[string]string{
			payloadListingID: listing.ID,
			payloadClaimID:   result.Claim.ID,
			payloadActorID:   claimerID.String(),
			payloadTickets:   strconv.FormatInt(result.Claim.TicketsSpent.Int64(), 10),
		},
	})
	return result, nil
}

func (service *Service) claimListing(ctx context.Context, claimerID ledger.UserID, listingID string) (ClaimResult, Listing, error) {
	if err := requireUser(claimerID); err != nil {
		return ClaimResult{}, Listing{}, err
	}
	normalizedID, err := normalizeID(listingID, ErrInvalidListingID)
	if err != nil {
		return ClaimResult{}, Listing{}, err
	}

	listing, err := service.store.GetListing(ctx, normalizedID)
	if err != nil {
		return ClaimResult{}, Listing{}, err
	}
	if err := checkClaimable(listing, claimerID, service.now()); err != nil {
		return ClaimResult{}, Listing{}, err
	}
	balance, err := service.ledger.GetBalance(ctx, claimerID)
	if err != nil {
		return ClaimResult{}, Listing{}, err
	}
	if balance < listing.TicketsRequired {
		return ClaimResult{}, Listing{}, insufficientBalance(listing.TicketsRequired, balance)
	}

	var result ClaimResult
	var claimed Listing
	err = service.store.WithTx(ctx, func(ctx context.Context, txStore Store) error {
		now := service.now()
		current, err := txStore.LockListing(ctx, normalizedID)
		if err != nil {
			return err
		}
		if err := checkClaimable(current, claimerID, now); err != nil {
			return err
		}
		if current.TicketsRequired != listing.TicketsRequired {
			return fmt.Errorf("%w: listing %s price changed from %d to %d", ErrConcurrentModification, current.ID, listing.TicketsRequired, current.TicketsRequired)
		}
		ledgerStore := txStore.Ledger()
		available, err := service.lockAccounts(ctx, ledgerStore, claimerID, current)
		if err != nil {
			return err
		}
		if available < current.TicketsRequired {
			return insufficientBalance(current.TicketsRequired, available)
		}

		next := current
		next.IsAvailable = false
		next.FulfilledBy = claimerID
		next.FulfilledAt = now
		next.UpdatedAt = now
		claimed, err = withdrawListing(ctx, txStore, next, current.Version, ErrAlreadyClaimed)
		if err != nil {
			return err
		}

		newBalance := available
		if current.TicketsRequired > 0 {
			newBalance, err = service.transferTickets(ctx, ledgerStore, current, claimerID)
			if err != nil {
				return err
			}
		}

		claim, err := txStore.InsertClaim(ctx, Claim{
			ListingID:    current.ID,
			ClaimerID:    claimerID,
			ProviderID:   current.OwnerID,
			TicketsSpent: current.TicketsRequired,
			Status:       ClaimStatusClaimed,
			CreatedAt:    now,
		})
		if err != nil {
			return err
		}
		result = ClaimResult{Claim: claim, NewBalance: newBalance}
		return nil
	})
	if err != nil {
		return ClaimResult{}, Listing{}, err
	}
	return result, claimed, nil
}

// lockAccounts opens and locks the accounts a claim moves tickets between, in user id order,
// and returns the claimer's balance. Two users claiming each other's listings lock the same
// pair in the same order. A free listing touches only the claimer.
func (service *Service) lockAccounts(ctx context.Context, ledgerStore ledger.Store, claimerID ledger.UserID, listing Listing) (ledger.Tickets, error) {
	participants := []ledger.UserID{claimerID}
	if listing.TicketsRequired > 0 {
		participants = append(participants, listing.OwnerID)
		sort.Slice(participants, func(left, right int) bool {
			return participants[left].String() < participants[right].String()
		})
	}
	var available ledger.Tickets
	for _, userID := range participants {
		balance, err := service.ledger.BalanceTx(ctx, ledgerStore, userID)
		if err != nil {
			return 0, err
		}
		if userID == claimerID {
			available = balance
		}
	}
	return available, nil
}

// transferTickets debits the claimer and credits the owner. Both movements carry keys
// derived from the listing id, so a replayed claim collides instead of charging twice.
func (service *Service) transferTickets(ctx context.Context, ledgerStore ledger.Store, listing Listing, claimerID ledger.UserID) (ledger.Tickets, error) {
	spentKey, err := ledger.NewIdempotencyKey(fmt.Sprintf(claimSpentKeyFormat, listing.ID))
	if err != nil {
		return 0, err
	}
	earnedKey, err := ledger.NewIdempotencyKey(fmt.Sprintf(claimEarnedKeyFormat, listing.ID))
	if err != nil {
		return 0, err
	}
	_, newBalance, err := service.ledger.RecordTx(ctx, ledgerStore, ledger.RecordInput{
		UserID:           claimerID,
		Amount:           listing.TicketsRequired.Negated(),
		Kind:             ledger.KindSpent,
		RelatedListingID: listing.ID,
		Description:      fmt.Sprintf(claimSpentDescFormat, listing.Title),
		IdempotencyKey:   spentKey,
	})
	if err != nil {
		return 0, alreadyClaimedOnReplay(err)
	}
	_, _, err = service.ledger.RecordTx(ctx, ledgerStore, ledger.RecordInput{
		UserID:           listing.OwnerID,
		Amount:           listing.TicketsRequired,
		Kind:             ledger.KindEarned,
		RelatedListingID: listing.ID,
		Description:      fmt.Sprintf(claimEarnedDescFormat, listing.Title),
		IdempotencyKey:   earnedKey,
	})
	if err != nil {
		return 0, alreadyClaimedOnReplay(err)
	}
	return newBalance, nil
}

// ListClaims returns claims where the user is the claimer or the provider, newest first.
func (service *Service) ListClaims(ctx context.Context, userID ledger.UserID, page ledger.Page) ([]Claim, error) {
	if err := requireUser(userID); err != nil {
		return nil, err
	}
	return service.store.QueryClaims(ctx, ClaimFilter{ParticipantID: userID, Page: normalizePage(page)})
}

func checkClaimable(listing Listing, claimerID ledger.UserID, now time.Time) error {
	if !listing.FoodType.claimable() {
		return fmt.Errorf("%w: listing %s has type %q", ErrInvalidState, listing.ID, listing.FoodType)
	}
	if listing.IsAvailable && listing.expired(now) {
		return fmt.Errorf("%w: listing %s expired", ErrInvalidState, listing.ID)
	}
	if !listing.IsAvailable {
		return fmt.Errorf("%w: listing %s", ErrAlreadyClaimed, listing.ID)
	}
	if listing.OwnerID == claimerID {
		return fmt.Errorf("%w: listing %s", ErrSelfClaimDenied, listing.ID)
	}
	return nil
}

// withdrawListing writes an unavailable listing with a version check. A conflict whose
// re-read shows the listing already withdrawn is reported as lost, the rest as retryable.
func withdrawListing(ctx context.Context, txStore Store, next Listing, expectedVersion int64, lost error) (Listing, error) {
	stored, err := txStore.PutListing(ctx, next, expectedVersion)
	if err == nil {
		return stored, nil
	}
	if !errors.Is(err, ErrConcurrentModification) {
		return Listing{}, err
	}
	latest, readErr := txStore.GetListing(ctx, next.ID)
	if readErr == nil && !latest.IsAvailable {
		return Listing{}, fmt.Errorf("%w: listing %s", lost, next.ID)
	}
	return Listing{}, err
}

func alreadyClaimedOnReplay(err error) error {
	if errors.Is(err, ledger.ErrDuplicateIdempotencyKey) {
		return fmt.Errorf("%w: %v", ErrAlreadyClaimed, err)
	}
	return err
}

func insufficientBalance(required ledger.Tickets, available ledger.Tickets) error {
	return fmt.Errorf("%w: required %d, available %d", ErrInsufficientBalance, required, available)
}
