package gormstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MarkoPoloResearchLab/mealswap/pkg/ledger"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// LedgerStore implements ledger.Store using GORM.
type LedgerStore struct {
	db *gorm.DB
}

// NewLedgerStore returns a LedgerStore backed by gorm.DB.
func NewLedgerStore(db *gorm.DB) *LedgerStore {
	return &LedgerStore{db: db}
}

// WithTx executes fn within a transaction.
func (store *LedgerStore) WithTx(ctx context.Context, fn func(ctx context.Context, txStore ledger.Store) error) error {
	err := store.db.WithContext(ctx).Transaction(func(transaction *gorm.DB) error {
		return fn(ctx, &LedgerStore{db: transaction})
	})
	return retryableConflict(err)
}

func (store *LedgerStore) CreateAccountIfMissing(ctx context.Context, userID ledger.UserID) (bool, error) {
	now := time.Now().UTC()
	result := store.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "user_id"}}, DoNothing: true}).
		Create(&TicketAccount{UserID: userID.String(), CreatedAt: now, UpdatedAt: now})
	if result.Error != nil {
		return false, wrapStoreError(errorSubjectAccount, errorCodeCreate, result.Error)
	}
	return result.RowsAffected == 1, nil
}

func (store *LedgerStore) GetAccount(ctx context.Context, userID ledger.UserID) (ledger.Account, error) {
	var model TicketAccount
	err := store.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("user_id = ?", userID.String()).
		Take(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ledger.Account{}, wrapStoreError(errorSubjectAccount, errorCodeGet, ledger.ErrUnknownAccount)
		}
		return ledger.Account{}, wrapStoreError(errorSubjectAccount, errorCodeGet, err)
	}
	account, err := ledger.NewAccount(userID, ledger.Tickets(model.Balance), model.Version)
	if err != nil {
		return ledger.Account{}, wrapStoreError(errorSubjectAccount, errorCodeInvalid, err)
	}
	return account, nil
}

func (store *LedgerStore) UpdateAccountBalance(ctx context.Context, userID ledger.UserID, balance ledger.Tickets, expectedVersion int64) error {
	result := store.db.WithContext(ctx).
		Model(&TicketAccount{}).
		Where("user_id = ? AND version = ?", userID.String(), expectedVersion).
		Updates(map[string]interface{}{
			"balance":    balance.Int64(),
			"version":    expectedVersion + 1,
			"updated_at": time.Now().UTC(),
		})
	if result.Error != nil {
		return wrapStoreError(errorSubjectAccount, errorCodeUpdate, result.Error)
	}
	if result.RowsAffected == 0 {
		return wrapStoreError(errorSubjectAccount, errorCodeVersion, fmt.Errorf("%w: account %s", ledger.ErrConcurrentModification, userID))
	}
	return nil
}

func (store *LedgerStore) InsertTransaction(ctx context.Context, transaction ledger.Transaction) (ledger.Transaction, error) {
	model := TicketTransaction{
		UserID:           transaction.UserID.String(),
		Amount:           transaction.Amount.Int64(),
		Kind:             transaction.Kind.String(),
		RelatedListingID: optionalString(transaction.RelatedListingID),
		IdempotencyKey:   transaction.IdempotencyKey.String(),
		Description:      transaction.Description,
		CreatedAt:        time.Unix(transaction.CreatedUnixUTC, 0).UTC(),
	}
	if transaction.CreatedUnixUTC == 0 {
		model.CreatedAt = time.Now().UTC()
	}
	err := store.db.WithContext(ctx).Create(&model).Error
	if isUniqueConflict(err, constraintTransactionIdempotencyKey) {
		return ledger.Transaction{}, wrapStoreError(errorSubjectTransaction, errorCodeDuplicate, ledger.ErrDuplicateIdempotencyKey)
	}
	if err != nil {
		return ledger.Transaction{}, wrapStoreError(errorSubjectTransaction, errorCodeInsert, err)
	}
	recorded, err := mapTransaction(model)
	if err != nil {
		return ledger.Transaction{}, wrapStoreError(errorSubjectTransaction, errorCodeInvalid, err)
	}
	return recorded, nil
}

func (store *LedgerStore) SumTransactions(ctx context.Context, userID ledger.UserID) (ledger.Tickets, error) {
	var sum sqlSum
	err := store.db.WithContext(ctx).
		Model(&TicketTransaction{}).
		Select("coalesce(sum(amount),0) as total").
		Where("user_id = ?", userID.String()).
		Scan(&sum).Error
	if err != nil {
		return 0, wrapStoreError(errorSubjectBalance, errorCodeSum, err)
	}
	return ledger.Tickets(sum.Total), nil
}

func (store *LedgerStore) ListTransactions(ctx context.Context, userID ledger.UserID, page ledger.Page) ([]ledger.Transaction, error) {
	var rows []TicketTransaction
	err := applyPage(store.db.WithContext(ctx).
		Where("user_id = ?", userID.String()).
		Order("sequence DESC"), page).
		Find(&rows).Error
	if err != nil {
		return nil, wrapStoreError(errorSubjectTransaction, errorCodeList, err)
	}
	transactions := make([]ledger.Transaction, 0, len(rows))
	for _, row := range rows {
		transaction, err := mapTransaction(row)
		if err != nil {
			return nil, wrapStoreError(errorSubjectTransaction, errorCodeInvalid, err)
		}
		transactions = append(transactions, transaction)
	}
	return transactions, nil
}

type sqlSum struct {
	Total int64
}

// AccountIDs pages through every account in user id order.
func (store *LedgerStore) AccountIDs(ctx context.Context, page ledger.Page) ([]ledger.UserID, error) {
	var rawIDs []string
	err := applyPage(store.db.WithContext(ctx).
		Model(&TicketAccount{}).
		Order("user_id ASC"), page).
		Pluck("user_id", &rawIDs).Error
	if err != nil {
		return nil, wrapStoreError(errorSubjectAccount, errorCodeList, err)
	}
	userIDs := make([]ledger.UserID, 0, len(rawIDs))
	for _, rawID := range rawIDs {
		userID, err := ledger.NewUserID(rawID)
		if err != nil {
			return nil, wrapStoreError(errorSubjectAccount, errorCodeInvalid, err)
		}
		userIDs = append(userIDs, userID)
	}
	return userIDs, nil
}
