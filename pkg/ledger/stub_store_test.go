package ledger

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"testing"
)

type stubStore struct {
	txMutex   sync.Mutex
	dataMutex sync.Mutex

	accounts     map[UserID]Account
	transactions []Transaction
	idempotency  map[string]struct{}
	sequence     int64

	createAccountError error
	insertError        error
	updateError        error

	listedPages []Page
}

type stubTxStore struct {
	*stubStore
}

func newStubStore(test *testing.T) *stubStore {
	test.Helper()
	return &stubStore{
		accounts:    make(map[UserID]Account),
		idempotency: make(map[string]struct{}),
	}
}

func (store *stubStore) WithTx(ctx context.Context, fn func(ctx context.Context, txStore Store) error) error {
	store.txMutex.Lock()
	defer store.txMutex.Unlock()
	snapshot := store.snapshot()
	if err := fn(ctx, &stubTxStore{stubStore: store}); err != nil {
		store.restore(snapshot)
		return err
	}
	return nil
}

func (store *stubTxStore) WithTx(ctx context.Context, fn func(ctx context.Context, txStore Store) error) error {
	return fn(ctx, store)
}

type stubSnapshot struct {
	accounts     map[UserID]Account
	transactions []Transaction
	idempotency  map[string]struct{}
	sequence     int64
}

func (store *stubStore) snapshot() stubSnapshot {
	store.dataMutex.Lock()
	defer store.dataMutex.Unlock()
	accounts := make(map[UserID]Account, len(store.accounts))
	for key, value := range store.accounts {
		accounts[key] = value
	}
	idempotency := make(map[string]struct{}, len(store.idempotency))
	for key := range store.idempotency {
		idempotency[key] = struct{}{}
	}
	return stubSnapshot{
		accounts:     accounts,
		transactions: append([]Transaction(nil), store.transactions...),
		idempotency:  idempotency,
		sequence:     store.sequence,
	}
}

func (store *stubStore) restore(snapshot stubSnapshot) {
	store.dataMutex.Lock()
	defer store.dataMutex.Unlock()
	store.accounts = snapshot.accounts
	store.transactions = snapshot.transactions
	store.idempotency = snapshot.idempotency
	store.sequence = snapshot.sequence
}

func (store *stubStore) CreateAccountIfMissing(ctx context.Context, userID UserID) (bool, error) {
	store.dataMutex.Lock()
	defer store.dataMutex.Unlock()
	if store.createAccountError != nil {
		return false, store.createAccountError
	}
	if _, exists := store.accounts[userID]; exists {
		return false, nil
	}
	store.accounts[userID] = Account{UserID: userID}
	return true, nil
}

func (store *stubStore) GetAccount(ctx context.Context, userID UserID) (Account, error) {
	store.dataMutex.Lock()
	defer store.dataMutex.Unlock()
	account, ok := store.accounts[userID]
	if !ok {
		return Account{}, ErrUnknownAccount
	}
	return account, nil
}

func (store *stubStore) UpdateAccountBalance(ctx context.Context, userID UserID, balance Tickets, expectedVersion int64) error {
	store.dataMutex.Lock()
	defer store.dataMutex.Unlock()
	if store.updateError != nil {
		return store.updateError
	}
	account, ok := store.accounts[userID]
	if !ok {
		return ErrUnknownAccount
	}
	if account.Version != expectedVersion {
		return ErrConcurrentModification
	}
	updated, err := NewAccount(userID, balance, expectedVersion+1)
	if err != nil {
		return err
	}
	store.accounts[userID] = updated
	return nil
}

func (store *stubStore) InsertTransaction(ctx context.Context, transaction Transaction) (Transaction, error) {
	store.dataMutex.Lock()
	defer store.dataMutex.Unlock()
	if store.insertError != nil {
		return Transaction{}, store.insertError
	}
	key := transaction.UserID.String() + "|" + transaction.IdempotencyKey.String()
	if _, exists := store.idempotency[key]; exists {
		return Transaction{}, ErrDuplicateIdempotencyKey
	}
	store.idempotency[key] = struct{}{}
	store.sequence++
	transaction.Sequence = store.sequence
	transaction.TransactionID = fmt.Sprintf("tx-%d", store.sequence)
	store.transactions = append(store.transactions, transaction)
	return transaction, nil
}

func (store *stubStore) SumTransactions(ctx context.Context, userID UserID) (Tickets, error) {
	store.dataMutex.Lock()
	defer store.dataMutex.Unlock()
	var sum Tickets
	for _, transaction := range store.transactions {
		if transaction.UserID == userID {
			sum += transaction.Amount
		}
	}
	return sum, nil
}

func (store *stubStore) ListTransactions(ctx context.Context, userID UserID, page Page) ([]Transaction, error) {
	store.dataMutex.Lock()
	defer store.dataMutex.Unlock()
	store.listedPages = append(store.listedPages, page)
	matching := make([]Transaction, 0)
	for _, transaction := range store.transactions {
		if transaction.UserID == userID {
			matching = append(matching, transaction)
		}
	}
	sort.Slice(matching, func(left, right int) bool {
		return matching[left].Sequence > matching[right].Sequence
	})
	if page.Skip >= len(matching) {
		return []Transaction{}, nil
	}
	end := page.Skip + page.Limit
	if end > len(matching) {
		end = len(matching)
	}
	return matching[page.Skip:end], nil
}

func (store *stubStore) transactionsFor(userID UserID) []Transaction {
	store.dataMutex.Lock()
	defer store.dataMutex.Unlock()
	matching := make([]Transaction, 0)
	for _, transaction := range store.transactions {
		if transaction.UserID == userID {
			matching = append(matching, transaction)
		}
	}
	return matching
}

func mustNewService(test *testing.T, store Store, options ...ServiceOption) *Service {
	test.Helper()
	service, err := NewService(store, func() int64 { return 100 }, options...)
	if err != nil {
		test.Fatalf("new service: %v", err)
	}
	return service
}

func mustUserID(test *testing.T, raw string) UserID {
	test.Helper()
	value, err := NewUserID(raw)
	if err != nil {
		test.Fatalf("user id: %v", err)
	}
	return value
}

func mustIdempotencyKey(test *testing.T, raw string) IdempotencyKey {
	test.Helper()
	value, err := NewIdempotencyKey(raw)
	if err != nil {
		test.Fatalf("idempotency key: %v", err)
	}
	return value
}
