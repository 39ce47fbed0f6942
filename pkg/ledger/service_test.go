package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
)

const (
	errorMismatchMessage = "expected %v, got %v"
)

var errStoreFailure = errors.New("store error")

func TestGetBalanceGrantsInitialTicketsOnce(test *testing.T) {
	test.Parallel()
	store := newStubStore(test)
	service := mustNewService(test, store)
	userID := mustUserID(test, "new-user")

	for attempt := 0; attempt < 2; attempt++ {
		balance, err := service.GetBalance(context.Background(), userID)
		if err != nil {
			test.Fatalf("balance: %v", err)
		}
		if balance != DefaultInitialTickets {
			test.Fatalf("expected %d tickets, got %d", DefaultInitialTickets, balance)
		}
	}
	transactions := store.transactionsFor(userID)
	if len(transactions) != 1 {
		test.Fatalf("expected a single initial transaction, got %d", len(transactions))
	}
	if transactions[0].Kind != KindInitial || transactions[0].Amount != DefaultInitialTickets {
		test.Fatalf("unexpected initial transaction: %+v", transactions[0])
	}
}

func TestGetBalanceConcurrentInitializationGrantsOnce(test *testing.T) {
	test.Parallel()
	store := newStubStore(test)
	service := mustNewService(test, store)
	userID := mustUserID(test, "racing-user")

	const workers = 8
	var waitGroup sync.WaitGroup
	errs := make(chan error, workers)
	for worker := 0; worker < workers; worker++ {
		waitGroup.Add(1)
		go func() {
			defer waitGroup.Done()
			balance, err := service.GetBalance(context.Background(), userID)
			if err != nil {
				errs <- err
				return
			}
			if balance != DefaultInitialTickets {
				errs <- fmt.Errorf("unexpected balance %d", balance)
			}
		}()
	}
	waitGroup.Wait()
	close(errs)
	for err := range errs {
		test.Fatalf("concurrent balance: %v", err)
	}
	if got := len(store.transactionsFor(userID)); got != 1 {
		test.Fatalf("expected one initial grant, got %d transactions", got)
	}
}

func TestGetBalanceWithoutInitialGrant(test *testing.T) {
	test.Parallel()
	store := newStubStore(test)
	service := mustNewService(test, store, WithInitialTickets(0))
	userID := mustUserID(test, "no-grant")

	balance, err := service.GetBalance(context.Background(), userID)
	if err != nil {
		test.Fatalf("balance: %v", err)
	}
	if balance != 0 {
		test.Fatalf("expected zero balance, got %d", balance)
	}
	if got := len(store.transactionsFor(userID)); got != 0 {
		test.Fatalf("expected no transactions, got %d", got)
	}
}

func TestRecordMovesBalance(test *testing.T) {
	test.Parallel()
	store := newStubStore(test)
	service := mustNewService(test, store)
	userID := mustUserID(test, "spender")

	recorded, err := service.Record(context.Background(), RecordInput{
		UserID:           userID,
		Amount:           -3,
		Kind:             KindSpent,
		RelatedListingID: "listing-1",
		Description:      "Claimed food: soup",
		IdempotencyKey:   mustIdempotencyKey(test, "claim:listing-1:spent"),
	})
	if err != nil {
		test.Fatalf("record: %v", err)
	}
	if recorded.Amount != -3 || recorded.Kind != KindSpent || recorded.RelatedListingID != "listing-1" {
		test.Fatalf("unexpected recorded transaction: %+v", recorded)
	}
	if recorded.CreatedUnixUTC != 100 {
		test.Fatalf("expected clock timestamp, got %d", recorded.CreatedUnixUTC)
	}
	balance, err := service.GetBalance(context.Background(), userID)
	if err != nil {
		test.Fatalf("balance: %v", err)
	}
	if balance != 2 {
		test.Fatalf("expected balance 2, got %d", balance)
	}
}

func TestRecordInsufficientBalance(test *testing.T) {
	test.Parallel()
	store := newStubStore(test)
	service := mustNewService(test, store)
	userID := mustUserID(test, "short-user")

	_, err := service.Record(context.Background(), RecordInput{
		UserID:         userID,
		Amount:         -6,
		Kind:           KindSpent,
		IdempotencyKey: mustIdempotencyKey(test, "too-much"),
	})
	if !errors.Is(err, ErrInsufficientBalance) {
		test.Fatalf(errorMismatchMessage, ErrInsufficientBalance, err)
	}
	if got := len(store.transactionsFor(userID)); got != 0 {
		test.Fatalf("expected rolled back account creation, got %d transactions", got)
	}
}

func TestRecordRollsBackWhenBalanceUpdateFails(test *testing.T) {
	test.Parallel()
	store := newStubStore(test)
	service := mustNewService(test, store)
	userID := mustUserID(test, "rollback-user")
	if _, err := service.GetBalance(context.Background(), userID); err != nil {
		test.Fatalf("balance: %v", err)
	}
	store.updateError = errStoreFailure

	_, err := service.Record(context.Background(), RecordInput{
		UserID:         userID,
		Amount:         2,
		Kind:           KindEarned,
		IdempotencyKey: mustIdempotencyKey(test, "earn-1"),
	})
	if !errors.Is(err, errStoreFailure) {
		test.Fatalf(errorMismatchMessage, errStoreFailure, err)
	}
	if got := len(store.transactionsFor(userID)); got != 1 {
		test.Fatalf("expected only the initial transaction to survive, got %d", got)
	}
}

func TestRecordRejectsDuplicateIdempotencyKey(test *testing.T) {
	test.Parallel()
	store := newStubStore(test)
	service := mustNewService(test, store)
	userID := mustUserID(test, "dup-user")
	input := RecordInput{
		UserID:         userID,
		Amount:         1,
		Kind:           KindAdmin,
		Description:    "goodwill",
		IdempotencyKey: mustIdempotencyKey(test, "admin-1"),
	}
	if _, err := service.Record(context.Background(), input); err != nil {
		test.Fatalf("record: %v", err)
	}
	if _, err := service.Record(context.Background(), input); !errors.Is(err, ErrDuplicateIdempotencyKey) {
		test.Fatalf(errorMismatchMessage, ErrDuplicateIdempotencyKey, err)
	}
	balance, err := service.GetBalance(context.Background(), userID)
	if err != nil {
		test.Fatalf("balance: %v", err)
	}
	if balance != DefaultInitialTickets+1 {
		test.Fatalf("expected a single admin credit, got balance %d", balance)
	}
}

func TestRecordValidatesInput(test *testing.T) {
	test.Parallel()
	testCases := []struct {
		name    string
		input   RecordInput
		wantErr error
	}{
		{
			name:    "missing user",
			input:   RecordInput{Amount: 1, Kind: KindEarned, IdempotencyKey: mustIdempotencyKey(test, "k")},
			wantErr: ErrInvalidUserID,
		},
		{
			name:    "missing key",
			input:   RecordInput{UserID: mustUserID(test, "u"), Amount: 1, Kind: KindEarned},
			wantErr: ErrInvalidIdempotencyKey,
		},
		{
			name:    "wrong sign",
			input:   RecordInput{UserID: mustUserID(test, "u"), Amount: 1, Kind: KindSpent, IdempotencyKey: mustIdempotencyKey(test, "k")},
			wantErr: ErrInvalidAmount,
		},
	}
	for _, testCase := range testCases {
		testCase := testCase
		test.Run(testCase.name, func(test *testing.T) {
			test.Parallel()
			service := mustNewService(test, newStubStore(test))
			_, err := service.Record(context.Background(), testCase.input)
			if !errors.Is(err, testCase.wantErr) {
				test.Fatalf(errorMismatchMessage, testCase.wantErr, err)
			}
		})
	}
}

func TestRecordReturnsStoreErrors(test *testing.T) {
	test.Parallel()
	testCases := []struct {
		name      string
		configure func(store *stubStore)
	}{
		{name: "account creation error", configure: func(store *stubStore) { store.createAccountError = errStoreFailure }},
		{name: "insert error", configure: func(store *stubStore) { store.insertError = errStoreFailure }},
	}
	for _, testCase := range testCases {
		testCase := testCase
		test.Run(testCase.name, func(test *testing.T) {
			test.Parallel()
			store := newStubStore(test)
			testCase.configure(store)
			service := mustNewService(test, store)
			_, err := service.Record(context.Background(), RecordInput{
				UserID:         mustUserID(test, "user-1"),
				Amount:         1,
				Kind:           KindEarned,
				IdempotencyKey: mustIdempotencyKey(test, "earn"),
			})
			if !errors.Is(err, errStoreFailure) {
				test.Fatalf(errorMismatchMessage, errStoreFailure, err)
			}
		})
	}
}

func TestListTransactionsNewestFirst(test *testing.T) {
	test.Parallel()
	store := newStubStore(test)
	service := mustNewService(test, store)
	userID := mustUserID(test, "history-user")
	for index := 1; index <= 3; index++ {
		_, err := service.Record(context.Background(), RecordInput{
			UserID:         userID,
			Amount:         Tickets(index),
			Kind:           KindEarned,
			IdempotencyKey: mustIdempotencyKey(test, fmt.Sprintf("earn-%d", index)),
		})
		if err != nil {
			test.Fatalf("record %d: %v", index, err)
		}
	}

	page, err := NewPage(1, 2)
	if err != nil {
		test.Fatalf("page: %v", err)
	}
	transactions, err := service.ListTransactions(context.Background(), userID, page)
	if err != nil {
		test.Fatalf("list: %v", err)
	}
	if len(transactions) != 2 {
		test.Fatalf("expected 2 transactions, got %d", len(transactions))
	}
	if transactions[0].Amount != 2 || transactions[1].Amount != 1 {
		test.Fatalf("expected newest-first window [2 1], got [%d %d]", transactions[0].Amount, transactions[1].Amount)
	}
}

func TestListTransactionsBoundsHandBuiltPages(test *testing.T) {
	test.Parallel()
	testCases := []struct {
		name string
		page Page
		want Page
	}{
		{name: "zero value", page: Page{}, want: Page{Skip: 0, Limit: defaultPageLimit}},
		{name: "oversized limit", page: Page{Skip: 3, Limit: 100000}, want: Page{Skip: 3, Limit: maxPageLimit}},
		{name: "negative skip", page: Page{Skip: -4, Limit: 5}, want: Page{Skip: 0, Limit: 5}},
		{name: "negative limit", page: Page{Skip: 1, Limit: -1}, want: Page{Skip: 1, Limit: defaultPageLimit}},
	}
	for _, testCase := range testCases {
		store := newStubStore(test)
		service := mustNewService(test, store)
		if _, err := service.ListTransactions(context.Background(), mustUserID(test, "pager"), testCase.page); err != nil {
			test.Fatalf("%s: list: %v", testCase.name, err)
		}
		if len(store.listedPages) != 1 || store.listedPages[0] != testCase.want {
			test.Fatalf("%s: expected store page %+v, got %+v", testCase.name, testCase.want, store.listedPages)
		}
	}
}

func TestBalanceMatchesTransactionLog(test *testing.T) {
	test.Parallel()
	store := newStubStore(test)
	service := mustNewService(test, store)
	userID := mustUserID(test, "audited-user")
	movements := []RecordInput{
		{UserID: userID, Amount: 4, Kind: KindEarned, IdempotencyKey: mustIdempotencyKey(test, "a")},
		{UserID: userID, Amount: -7, Kind: KindSpent, IdempotencyKey: mustIdempotencyKey(test, "b")},
		{UserID: userID, Amount: -10, Kind: KindSpent, IdempotencyKey: mustIdempotencyKey(test, "c")},
		{UserID: userID, Amount: -2, Kind: KindAdmin, IdempotencyKey: mustIdempotencyKey(test, "d")},
	}
	for _, movement := range movements {
		_, _ = service.Record(context.Background(), movement)
	}

	balance, err := service.GetBalance(context.Background(), userID)
	if err != nil {
		test.Fatalf("balance: %v", err)
	}
	var sum Tickets
	for _, transaction := range store.transactionsFor(userID) {
		sum += transaction.Amount
		if sum < 0 {
			test.Fatalf("running sum went negative at %+v", transaction)
		}
	}
	if sum != balance {
		test.Fatalf("expected balance %d to equal log sum %d", balance, sum)
	}
	if err := service.VerifyBalance(context.Background(), userID); err != nil {
		test.Fatalf("verify balance: %v", err)
	}
}

func TestVerifyBalanceDetectsDrift(test *testing.T) {
	test.Parallel()
	store := newStubStore(test)
	service := mustNewService(test, store)
	userID := mustUserID(test, "drift-user")
	if _, err := service.GetBalance(context.Background(), userID); err != nil {
		test.Fatalf("balance: %v", err)
	}
	store.accounts[userID] = Account{UserID: userID, Balance: 99, Version: 1}

	if err := service.VerifyBalance(context.Background(), userID); !errors.Is(err, ErrBalanceMismatch) {
		test.Fatalf(errorMismatchMessage, ErrBalanceMismatch, err)
	}
}

func TestNewServiceRequiresDependencies(test *testing.T) {
	test.Parallel()
	_, err := NewService(nil, func() int64 { return 0 })
	if !errors.Is(err, ErrInvalidServiceConfig) {
		test.Fatalf("expected invalid service config error, got %v", err)
	}
	_, err = NewService(newStubStore(test), nil)
	if !errors.Is(err, ErrInvalidServiceConfig) {
		test.Fatalf("expected invalid service config error, got %v", err)
	}
	_, err = NewService(newStubStore(test), func() int64 { return 0 }, WithInitialTickets(-1))
	if !errors.Is(err, ErrInvalidServiceConfig) {
		test.Fatalf("expected invalid service config error, got %v", err)
	}
}
