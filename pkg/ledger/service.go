package ledger

import (
	"context"
	"fmt"
)

// Service contains the ticket ledger rules over a Store.
type Service struct {
	store          Store
	nowFn          func() int64
	initialTickets Tickets
	logger         OperationLogger
}

// NewService wires a Service.
func NewService(store Store, now func() int64, options ...ServiceOption) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: store dependency is nil", ErrInvalidServiceConfig)
	}
	if now == nil {
		return nil, fmt.Errorf("%w: clock dependency is nil", ErrInvalidServiceConfig)
	}
	service := &Service{store: store, nowFn: now, initialTickets: DefaultInitialTickets}
	for _, option := range options {
		if option != nil {
			option(service)
		}
	}
	if service.initialTickets < 0 {
		return nil, fmt.Errorf("%w: initial tickets must be non-negative", ErrInvalidServiceConfig)
	}
	return service, nil
}

// GetBalance returns the cached balance, opening the account with its initial grant on first use.
func (service *Service) GetBalance(ctx context.Context, userID UserID) (Tickets, error) {
	var balance Tickets
	operationError := service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		var err error
		balance, err = service.BalanceTx(ctx, transactionStore, userID)
		return err
	})
	if operationError != nil {
		service.logOperation(ctx, OperationLog{Operation: operationBalance, UserID: userID, Error: operationError})
		return 0, operationError
	}
	return balance, nil
}

// BalanceTx reads the balance inside a caller-owned transaction.
func (service *Service) BalanceTx(ctx context.Context, transactionStore Store, userID UserID) (Tickets, error) {
	account, err := service.ensureAccount(ctx, transactionStore, userID)
	if err != nil {
		return 0, err
	}
	return account.Balance, nil
}

// Record appends one transaction and moves the cached balance with it.
func (service *Service) Record(ctx context.Context, input RecordInput) (Transaction, error) {
	var recorded Transaction
	operationError := service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		var err error
		recorded, _, err = service.RecordTx(ctx, transactionStore, input)
		return err
	})
	service.logOperation(ctx, OperationLog{
		Operation:        operationRecord,
		UserID:           input.UserID,
		Kind:             input.Kind,
		Amount:           input.Amount,
		RelatedListingID: input.RelatedListingID,
		IdempotencyKey:   input.IdempotencyKey,
		Error:            operationError,
	})
	if operationError != nil {
		return Transaction{}, operationError
	}
	return recorded, nil
}

// RecordTx applies Record inside a caller-owned transaction and returns the new balance.
// The caller decides whether the surrounding unit commits.
func (service *Service) RecordTx(ctx context.Context, transactionStore Store, input RecordInput) (Transaction, Tickets, error) {
	if err := input.validate(); err != nil {
		return Transaction{}, 0, err
	}
	if _, err := service.ensureAccount(ctx, transactionStore, input.UserID); err != nil {
		return Transaction{}, 0, err
	}
	return service.apply(ctx, transactionStore, input)
}

func (service *Service) ensureAccount(ctx context.Context, transactionStore Store, userID UserID) (Account, error) {
	created, err := transactionStore.CreateAccountIfMissing(ctx, userID)
	if err != nil {
		return Account{}, err
	}
	if created && service.initialTickets > 0 {
		initialKey, err := NewIdempotencyKey(initialIdempotencyKey)
		if err != nil {
			return Account{}, err
		}
		_, _, err = service.apply(ctx, transactionStore, RecordInput{
			UserID:         userID,
			Amount:         service.initialTickets,
			Kind:           KindInitial,
			Description:    initialDescription,
			IdempotencyKey: initialKey,
		})
		if err != nil {
			return Account{}, err
		}
	}
	return transactionStore.GetAccount(ctx, userID)
}

func (service *Service) apply(ctx context.Context, transactionStore Store, input RecordInput) (Transaction, Tickets, error) {
	account, err := transactionStore.GetAccount(ctx, input.UserID)
	if err != nil {
		return Transaction{}, 0, err
	}
	updatedBalance := account.Balance + input.Amount
	if updatedBalance < 0 {
		return Transaction{}, 0, fmt.Errorf("%w: required %d, available %d", ErrInsufficientBalance, input.Amount.Negated(), account.Balance)
	}
	recorded, err := transactionStore.InsertTransaction(ctx, Transaction{
		UserID:           input.UserID,
		Amount:           input.Amount,
		Kind:             input.Kind,
		RelatedListingID: input.RelatedListingID,
		IdempotencyKey:   input.IdempotencyKey,
		Description:      input.Description,
		CreatedUnixUTC:   service.nowFn(),
	})
	if err != nil {
		return Transaction{}, 0, err
	}
	if err := transactionStore.UpdateAccountBalance(ctx, input.UserID, updatedBalance, account.Version); err != nil {
		return Transaction{}, 0, err
	}
	return recorded, updatedBalance, nil
}

func (service *Service) logOperation(ctx context.Context, entry OperationLog) {
	if service.logger == nil {
		return
	}
	if entry.Status == "" {
		if entry.Error != nil {
			entry.Status = operationStatusError
		} else {
			entry.Status = operationStatusOK
		}
	}
	service.logger.LogOperation(ctx, entry)
}
