package exchange

import (
	"errors"

	"github.com/MarkoPoloResearchLab/mealswap/pkg/ledger"
)

// Domain-level error values returned by the exchange core.
var (
	ErrNotFound           = errors.New("not found")
	ErrForbidden          = errors.New("forbidden")
	ErrInvalidState       = errors.New("invalid state")
	ErrInvalidTransition  = errors.New("invalid transition")
	ErrAlreadyClaimed     = errors.New("already claimed")
	ErrListingUnavailable = errors.New("listing unavailable")
	ErrSelfClaimDenied    = errors.New("cannot claim own listing")

	ErrInvalidListing       = errors.New("invalid listing")
	ErrInvalidListingID     = errors.New("invalid listing id")
	ErrInvalidProposalID    = errors.New("invalid proposal id")
	ErrInvalidDecision      = errors.New("invalid swap decision")
	ErrInvalidProfile       = errors.New("invalid profile")
	ErrInvalidFilter        = errors.New("invalid filter")
	ErrInvalidServiceConfig = errors.New("invalid service config")

	// ErrInsufficientBalance and ErrConcurrentModification are shared with the ledger
	// so one errors.Is check covers both layers.
	ErrInsufficientBalance    = ledger.ErrInsufficientBalance
	ErrConcurrentModification = ledger.ErrConcurrentModification
)
