package exchange

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/MarkoPoloResearchLab/mealswap/pkg/ledger"
)

type swapRole int

const (
	roleNone swapRole = iota
	roleRequester
	roleProvider
)

type swapTransition struct {
	to               SwapStatus
	providerOnly     bool
	withdrawListings bool
	notification     NotificationKind
}

// swapTransitions is the complete set of legal moves. Anything absent is an invalid transition.
var swapTransitions = map[SwapStatus]map[SwapDecision]swapTransition{
	SwapPending: {
		DecisionAccept: {to: SwapAccepted, providerOnly: true, withdrawListings: true, notification: NotificationSwapAccepted},
		DecisionReject: {to: SwapRejected, providerOnly: true, notification: NotificationSwapRejected},
	},
	SwapAccepted: {
		DecisionComplete: {to: SwapCompleted, notification: NotificationSwapCompleted},
	},
}

func lookupTransition(from SwapStatus, decision SwapDecision) (swapTransition, error) {
	transition, ok := swapTransitions[from][decision]
	if !ok {
		return swapTransition{}, fmt.Errorf("%w: cannot %s a %s proposal", ErrInvalidTransition, decision, from)
	}
	return transition, nil
}

func roleOf(proposal SwapProposal, actorID ledger.UserID) swapRole {
	switch actorID {
	case proposal.ProviderID:
		return roleProvider
	case proposal.RequesterID:
		return roleRequester
	default:
		return roleNone
	}
}

// CreateSwapProposal offers the requester's listing in exchange for another user's listing.
// Listings are only read here; availability changes on acceptance.
func (service *Service) CreateSwapProposal(ctx context.Context, input CreateSwapInput) (SwapProposal, error) {
	proposal, operationError := service.createSwapProposal(ctx, input)
	service.logOperation(ctx, OperationLog{
		Operation:  operationCreateSwap,
		ActorID:    input.RequesterID,
		ListingID:  input.ProviderListingID,
		ProposalID: proposal.ID,
		Error:      operationError,
	})
	if operationError != nil {
		return SwapProposal{}, operationError
	}
	service.notify(ctx, Notification{
		UserID:  proposal.ProviderID,
		Kind:    NotificationSwapRequest,
		Title:   "New Swap Request",
		Message: "You have a new swap request",
		Payload: map[string]string{
			payloadProposalID: proposal.ID,
			payloadListingID:  proposal.ProviderListingID,
			payloadActorID:    proposal.RequesterID.String(),
		},
	})
	return proposal, nil
}

func (service *Service) createSwapProposal(ctx context.Context, input CreateSwapInput) (SwapProposal, error) {
	if err := requireUser(input.RequesterID); err != nil {
		return SwapProposal{}, err
	}
	requesterListingID, err := normalizeID(input.RequesterListingID, ErrInvalidListingID)
	if err != nil {
		return SwapProposal{}, err
	}
	providerListingID, err := normalizeID(input.ProviderListingID, ErrInvalidListingID)
	if err != nil {
		return SwapProposal{}, err
	}

	requesterListing, err := service.store.GetListing(ctx, requesterListingID)
	if err != nil {
		return SwapProposal{}, err
	}
	if requesterListing.OwnerID != input.RequesterID {
		return SwapProposal{}, fmt.Errorf("%w: requester does not own listing %s", ErrForbidden, requesterListingID)
	}
	providerListing, err := service.store.GetListing(ctx, providerListingID)
	if err != nil {
		return SwapProposal{}, err
	}
	if !input.ProviderID.IsZero() && input.ProviderID != providerListing.OwnerID {
		return SwapProposal{}, fmt.Errorf("%w: provider does not own listing %s", ErrForbidden, providerListingID)
	}
	if providerListing.OwnerID == input.RequesterID {
		return SwapProposal{}, fmt.Errorf("%w: cannot swap with yourself", ErrForbidden)
	}
	if !providerListing.IsAvailable {
		return SwapProposal{}, fmt.Errorf("%w: listing %s", ErrListingUnavailable, providerListingID)
	}
	if !requesterListing.IsAvailable {
		return SwapProposal{}, fmt.Errorf("%w: listing %s", ErrListingUnavailable, requesterListingID)
	}

	now := service.now()
	return service.store.InsertSwap(ctx, SwapProposal{
		RequesterID:        input.RequesterID,
		ProviderID:         providerListing.OwnerID,
		RequesterListingID: requesterListingID,
		ProviderListingID:  providerListingID,
		Status:             SwapPending,
		Message:            strings.TrimSpace(input.Message),
		CreatedAt:          now,
		UpdatedAt:          now,
	})
}

// RespondToSwap applies a decision through the transition table. Acceptance withdraws
// both listings and updates the proposal in one transaction.
func (service *Service) RespondToSwap(ctx context.Context, input RespondInput) (SwapProposal, error) {
	updated, transition, operationError := service.respondToSwap(ctx, input)
	service.logOperation(ctx, OperationLog{
		Operation:  operationRespondSwap,
		ActorID:    input.ActorID,
		ProposalID: input.ProposalID,
		Decision:   input.Decision,
		Error:      operationError,
	})
	if operationError != nil {
		return SwapProposal{}, operationError
	}
	recipient := updated.RequesterID
	if input.ActorID == updated.RequesterID {
		recipient = updated.ProviderID
	}
	service.notify(ctx, Notification{
		UserID:  recipient,
		Kind:    transition.notification,
		Title:   "Swap " + string(updated.Status),
		Message: fmt.Sprintf("Your swap request was %s", updated.Status),
		Payload: map[string]string{
			payloadProposalID: updated.ID,
			payloadActorID:    input.ActorID.String(),
			payloadStatus:     string(updated.Status),
		},
	})
	return updated, nil
}

func (service *Service) respondToSwap(ctx context.Context, input RespondInput) (SwapProposal, swapTransition, error) {
	if err := requireUser(input.ActorID); err != nil {
		return SwapProposal{}, swapTransition{}, err
	}
	proposalID, err := normalizeID(input.ProposalID, ErrInvalidProposalID)
	if err != nil {
		return SwapProposal{}, swapTransition{}, err
	}
	decision, err := ParseSwapDecision(string(input.Decision))
	if err != nil {
		return SwapProposal{}, swapTransition{}, err
	}

	proposal, err := service.store.GetSwap(ctx, proposalID)
	if err != nil {
		return SwapProposal{}, swapTransition{}, err
	}
	if _, err := authorizeTransition(proposal, input.ActorID, decision); err != nil {
		return SwapProposal{}, swapTransition{}, err
	}

	var updated SwapProposal
	var applied swapTransition
	err = service.store.WithTx(ctx, func(ctx context.Context, txStore Store) error {
		current, err := txStore.GetSwap(ctx, proposalID)
		if err != nil {
			return err
		}
		transition, err := authorizeTransition(current, input.ActorID, decision)
		if err != nil {
			return err
		}
		now := service.now()
		if transition.withdrawListings {
			if err := service.withdrawSwapListings(ctx, txStore, current); err != nil {
				return err
			}
		}
		next := current
		next.Status = transition.to
		if message := strings.TrimSpace(input.ResponseMessage); message != "" {
			next.ResponseMessage = message
		}
		next.UpdatedAt = now
		stored, err := txStore.PutSwap(ctx, next, current.Version)
		if err != nil {
			return err
		}
		updated = stored
		applied = transition
		return nil
	})
	if err != nil {
		return SwapProposal{}, swapTransition{}, err
	}
	return updated, applied, nil
}

// authorizeTransition rejects non-participants first, then unlisted moves, then wrong roles.
func authorizeTransition(proposal SwapProposal, actorID ledger.UserID, decision SwapDecision) (swapTransition, error) {
	role := roleOf(proposal, actorID)
	if role == roleNone {
		return swapTransition{}, fmt.Errorf("%w: not a participant of proposal %s", ErrForbidden, proposal.ID)
	}
	transition, err := lookupTransition(proposal.Status, decision)
	if err != nil {
		return swapTransition{}, err
	}
	if transition.providerOnly && role != roleProvider {
		return swapTransition{}, fmt.Errorf("%w: only the provider can %s", ErrForbidden, decision)
	}
	return transition, nil
}

// withdrawSwapListings marks both listings unavailable. Rows are locked in id order so two
// acceptances touching the same pair cannot deadlock.
func (service *Service) withdrawSwapListings(ctx context.Context, txStore Store, proposal SwapProposal) error {
	fulfilledBy := map[string]ledger.UserID{
		proposal.RequesterListingID: proposal.ProviderID,
		proposal.ProviderListingID:  proposal.RequesterID,
	}
	listingIDs := []string{proposal.RequesterListingID, proposal.ProviderListingID}
	sort.Strings(listingIDs)

	locked := make([]Listing, 0, len(listingIDs))
	for _, listingID := range listingIDs {
		listing, err := txStore.LockListing(ctx, listingID)
		if err != nil {
			return err
		}
		if !listing.IsAvailable {
			return fmt.Errorf("%w: listing %s", ErrListingUnavailable, listingID)
		}
		locked = append(locked, listing)
	}
	now := service.now()
	for _, listing := range locked {
		next := listing
		next.IsAvailable = false
		next.FulfilledBy = fulfilledBy[listing.ID]
		next.FulfilledAt = now
		next.UpdatedAt = now
		if _, err := withdrawListing(ctx, txStore, next, listing.Version, ErrListingUnavailable); err != nil {
			return err
		}
	}
	return nil
}

// GetSwap returns a proposal visible to one of its participants.
func (service *Service) GetSwap(ctx context.Context, actorID ledger.UserID, proposalID string) (SwapProposal, error) {
	if err := requireUser(actorID); err != nil {
		return SwapProposal{}, err
	}
	normalizedID, err := normalizeID(proposalID, ErrInvalidProposalID)
	if err != nil {
		return SwapProposal{}, err
	}
	proposal, err := service.store.GetSwap(ctx, normalizedID)
	if err != nil {
		return SwapProposal{}, err
	}
	if roleOf(proposal, actorID) == roleNone {
		return SwapProposal{}, fmt.Errorf("%w: not a participant of proposal %s", ErrForbidden, normalizedID)
	}
	return proposal, nil
}

// ListSwaps returns the actor's proposals, newest first.
func (service *Service) ListSwaps(ctx context.Context, actorID ledger.UserID, filter SwapFilter) ([]SwapProposal, error) {
	if err := requireUser(actorID); err != nil {
		return nil, err
	}
	if _, err := ParseSwapRole(string(filter.Role)); err != nil {
		return nil, err
	}
	if filter.Status != "" {
		if _, err := ParseSwapStatus(string(filter.Status)); err != nil {
			return nil, err
		}
	}
	filter.ParticipantID = actorID
	filter.Page = normalizePage(filter.Page)
	return service.store.QuerySwaps(ctx, filter)
}
