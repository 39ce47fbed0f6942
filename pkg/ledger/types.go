package ledger

import (
	"context"
	"fmt"
	"strings"
)

// Tickets is a signed ticket count.
type Tickets int64

// Int64 returns the raw value.
func (tickets Tickets) Int64() int64 {
	return int64(tickets)
}

// Negated flips the sign.
func (tickets Tickets) Negated() Tickets {
	return -tickets
}

// UserID identifies an account owner.
type UserID struct {
	value string
}

// NewUserID validates and normalizes a user id.
func NewUserID(raw string) (UserID, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return UserID{}, fmt.Errorf("%w: empty value", ErrInvalidUserID)
	}
	return UserID{value: trimmed}, nil
}

// String returns the normalized identifier.
func (id UserID) String() string {
	return id.value
}

// IsZero reports whether the id was never set.
func (id UserID) IsZero() bool {
	return id.value == ""
}

// IdempotencyKey scopes duplicate detection per user.
type IdempotencyKey struct {
	value string
}

// NewIdempotencyKey validates and normalizes an idempotency key.
func NewIdempotencyKey(raw string) (IdempotencyKey, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return IdempotencyKey{}, fmt.Errorf("%w: empty value", ErrInvalidIdempotencyKey)
	}
	return IdempotencyKey{value: trimmed}, nil
}

// String returns the normalized key.
func (key IdempotencyKey) String() string {
	return key.value
}

// TransactionKind enumerates ledger transaction kinds.
type TransactionKind string

const (
	KindInitial TransactionKind = "initial"
	KindEarned  TransactionKind = "earned"
	KindSpent   TransactionKind = "spent"
	KindAdmin   TransactionKind = "admin"
)

// ParseTransactionKind validates a raw kind.
func ParseTransactionKind(raw string) (TransactionKind, error) {
	kind := TransactionKind(strings.ToLower(strings.TrimSpace(raw)))
	switch kind {
	case KindInitial, KindEarned, KindSpent, KindAdmin:
		return kind, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidTransactionKind, raw)
	}
}

// String returns the stored representation.
func (kind TransactionKind) String() string {
	return string(kind)
}

// validateAmount enforces the sign convention of each kind.
func (kind TransactionKind) validateAmount(amount Tickets) error {
	switch kind {
	case KindInitial, KindEarned:
		if amount <= 0 {
			return fmt.Errorf("%w: %s requires a positive amount", ErrInvalidAmount, kind)
		}
	case KindSpent:
		if amount >= 0 {
			return fmt.Errorf("%w: %s requires a negative amount", ErrInvalidAmount, kind)
		}
	case KindAdmin:
		if amount == 0 {
			return fmt.Errorf("%w: %s requires a non-zero amount", ErrInvalidAmount, kind)
		}
	default:
		return fmt.Errorf("%w: %q", ErrInvalidTransactionKind, string(kind))
	}
	return nil
}

// Transaction is a single immutable line in the ticket ledger.
type Transaction struct {
	TransactionID    string
	Sequence         int64
	UserID           UserID
	Amount           Tickets
	Kind             TransactionKind
	RelatedListingID string
	IdempotencyKey   IdempotencyKey
	Description      string
	CreatedUnixUTC   int64
}

// Account is the cached balance view of a user's transaction log.
type Account struct {
	UserID  UserID
	Balance Tickets
	Version int64
}

// NewAccount validates an account snapshot loaded from storage.
func NewAccount(userID UserID, balance Tickets, version int64) (Account, error) {
	if userID.IsZero() {
		return Account{}, fmt.Errorf("%w: empty value", ErrInvalidUserID)
	}
	if balance < 0 {
		return Account{}, fmt.Errorf("%w: negative balance %d", ErrInvalidBalance, balance)
	}
	return Account{UserID: userID, Balance: balance, Version: version}, nil
}

// Page selects a window of a newest-first listing.
type Page struct {
	Skip  int
	Limit int
}

// NewPage validates pagination, defaulting a zero limit.
func NewPage(skip int, limit int) (Page, error) {
	if skip < 0 {
		return Page{}, fmt.Errorf("%w: skip must be non-negative", ErrInvalidPage)
	}
	if limit == 0 {
		limit = defaultPageLimit
	}
	if limit < 0 || limit > maxPageLimit {
		return Page{}, fmt.Errorf("%w: limit must be between 1 and %d", ErrInvalidPage, maxPageLimit)
	}
	return Page{Skip: skip, Limit: limit}, nil
}

// bounded applies the default and maximum limit and a non-negative skip to a hand-built Page.
func (page Page) bounded() Page {
	if page.Limit <= 0 {
		page.Limit = defaultPageLimit
	}
	if page.Limit > maxPageLimit {
		page.Limit = maxPageLimit
	}
	if page.Skip < 0 {
		page.Skip = 0
	}
	return page
}

// RecordInput describes one ticket movement.
type RecordInput struct {
	UserID           UserID
	Amount           Tickets
	Kind             TransactionKind
	RelatedListingID string
	Description      string
	IdempotencyKey   IdempotencyKey
}

func (input RecordInput) validate() error {
	if input.UserID.IsZero() {
		return fmt.Errorf("%w: empty value", ErrInvalidUserID)
	}
	if input.IdempotencyKey.String() == "" {
		return fmt.Errorf("%w: empty value", ErrInvalidIdempotencyKey)
	}
	return input.Kind.validateAmount(input.Amount)
}

// Store is the persistence contract used by Service.
type Store interface {
	WithTx(ctx context.Context, fn func(ctx context.Context, txStore Store) error) error
	// CreateAccountIfMissing reports true only for the call that inserted the row.
	CreateAccountIfMissing(ctx context.Context, userID UserID) (bool, error)
	// GetAccount locks the account row for the rest of the transaction.
	GetAccount(ctx context.Context, userID UserID) (Account, error)
	UpdateAccountBalance(ctx context.Context, userID UserID, balance Tickets, expectedVersion int64) error
	InsertTransaction(ctx context.Context, transaction Transaction) (Transaction, error)
	SumTransactions(ctx context.Context, userID UserID) (Tickets, error)
	ListTransactions(ctx context.Context, userID UserID, page Page) ([]Transaction, error)
}
