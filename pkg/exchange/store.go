package exchange

import (
	"context"

	"github.com/MarkoPoloResearchLab/mealswap/pkg/ledger"
)

// Store is the record store used by Service.
// Get methods return ErrNotFound for missing rows. Put methods are compare-and-set writes:
// they fail with ErrConcurrentModification unless the stored version equals expectedVersion,
// and persist the entity with its version incremented.
type Store interface {
	WithTx(ctx context.Context, fn func(ctx context.Context, txStore Store) error) error
	// Ledger returns a ledger store enrolled in the same transaction.
	Ledger() ledger.Store

	InsertListing(ctx context.Context, listing Listing) (Listing, error)
	GetListing(ctx context.Context, listingID string) (Listing, error)
	// LockListing reads the listing and holds its row lock for the rest of the transaction.
	LockListing(ctx context.Context, listingID string) (Listing, error)
	PutListing(ctx context.Context, listing Listing, expectedVersion int64) (Listing, error)
	QueryListings(ctx context.Context, filter ListingFilter) ([]Listing, error)

	// InsertClaim fails with ErrAlreadyClaimed when the listing already has a claim.
	InsertClaim(ctx context.Context, claim Claim) (Claim, error)
	QueryClaims(ctx context.Context, filter ClaimFilter) ([]Claim, error)

	InsertSwap(ctx context.Context, proposal SwapProposal) (SwapProposal, error)
	GetSwap(ctx context.Context, proposalID string) (SwapProposal, error)
	PutSwap(ctx context.Context, proposal SwapProposal, expectedVersion int64) (SwapProposal, error)
	QuerySwaps(ctx context.Context, filter SwapFilter) ([]SwapProposal, error)

	GetProfile(ctx context.Context, userID ledger.UserID) (Profile, error)
	PutProfile(ctx context.Context, profile Profile) (Profile, error)
}

// NotificationKind names a message sent to a participant.
type NotificationKind string

// Notification kinds emitted by the exchange core.
const (
	NotificationFoodClaimed   NotificationKind = "food_claimed"
	NotificationSwapRequest   NotificationKind = "swap_request"
	NotificationSwapAccepted  NotificationKind = "swap_accepted"
	NotificationSwapRejected  NotificationKind = "swap_rejected"
	NotificationSwapCompleted NotificationKind = "swap_completed"
)

// Notification is a fire-and-forget message addressed to one user.
type Notification struct {
	UserID  ledger.UserID
	Kind    NotificationKind
	Title   string
	Message string
	Payload map[string]string
}

// Notifier delivers notifications at most once. Errors are logged by the caller and never retried.
type Notifier interface {
	Send(ctx context.Context, notification Notification) error
}
