package exchange

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/MarkoPoloResearchLab/mealswap/pkg/ledger"
)

type memoryState struct {
	accounts     map[ledger.UserID]ledger.Account
	transactions []ledger.Transaction
	keys         map[string]struct{}
	sequence     int64
	listings     map[string]Listing
	claims       []Claim
	swaps        map[string]SwapProposal
	profiles     map[ledger.UserID]Profile
	nextID       int
}

func newMemoryState() *memoryState {
	return &memoryState{
		accounts: make(map[ledger.UserID]ledger.Account),
		keys:     make(map[string]struct{}),
		listings: make(map[string]Listing),
		swaps:    make(map[string]SwapProposal),
		profiles: make(map[ledger.UserID]Profile),
	}
}

func (state *memoryState) clone() *memoryState {
	cloned := newMemoryState()
	for key, value := range state.accounts {
		cloned.accounts[key] = value
	}
	cloned.transactions = append([]ledger.Transaction(nil), state.transactions...)
	for key := range state.keys {
		cloned.keys[key] = struct{}{}
	}
	cloned.sequence = state.sequence
	for key, value := range state.listings {
		cloned.listings[key] = value
	}
	cloned.claims = append([]Claim(nil), state.claims...)
	for key, value := range state.swaps {
		cloned.swaps[key] = value
	}
	for key, value := range state.profiles {
		cloned.profiles[key] = value
	}
	cloned.nextID = state.nextID
	return cloned
}

// memoryStore serializes transactions with one mutex and restores a snapshot on error.
type memoryStore struct {
	txMutex   sync.Mutex
	dataMutex sync.Mutex
	state     *memoryState

	insertClaimError error
	// accountLocks lists GetAccount calls made inside transactions, in order.
	accountLocks []ledger.UserID
	// afterReadListing runs after a GetListing made outside a transaction.
	afterReadListing func(state *memoryState, listingID string)
	// beforePutListing runs inside PutListing before the version check.
	beforePutListing func(state *memoryState, listing Listing)
}

func newMemoryStore(test *testing.T) *memoryStore {
	test.Helper()
	return &memoryStore{state: newMemoryState()}
}

func (store *memoryStore) exchange() Store {
	return &memoryExchange{store: store}
}

func (store *memoryStore) runTx(fn func() error) error {
	store.txMutex.Lock()
	defer store.txMutex.Unlock()
	store.dataMutex.Lock()
	snapshot := store.state.clone()
	store.dataMutex.Unlock()
	if err := fn(); err != nil {
		store.dataMutex.Lock()
		store.state = snapshot
		store.dataMutex.Unlock()
		return err
	}
	return nil
}

func (store *memoryStore) read(fn func(state *memoryState)) {
	store.dataMutex.Lock()
	defer store.dataMutex.Unlock()
	fn(store.state)
}

func (store *memoryStore) newID(prefix string) string {
	store.state.nextID++
	return fmt.Sprintf("%s-%03d", prefix, store.state.nextID)
}

type memoryExchange struct {
	store *memoryStore
	inTx  bool
}

func (view *memoryExchange) WithTx(ctx context.Context, fn func(ctx context.Context, txStore Store) error) error {
	if view.inTx {
		return fn(ctx, view)
	}
	return view.store.runTx(func() error {
		return fn(ctx, &memoryExchange{store: view.store, inTx: true})
	})
}

func (view *memoryExchange) Ledger() ledger.Store {
	return &memoryLedger{store: view.store, inTx: view.inTx}
}

func (view *memoryExchange) InsertListing(ctx context.Context, listing Listing) (Listing, error) {
	view.store.dataMutex.Lock()
	defer view.store.dataMutex.Unlock()
	listing.ID = view.store.newID("listing")
	view.store.state.listings[listing.ID] = listing
	return listing, nil
}

func (view *memoryExchange) GetListing(ctx context.Context, listingID string) (Listing, error) {
	view.store.dataMutex.Lock()
	defer view.store.dataMutex.Unlock()
	listing, ok := view.store.state.listings[listingID]
	if !ok {
		return Listing{}, fmt.Errorf("%w: listing %s", ErrNotFound, listingID)
	}
	if !view.inTx && view.store.afterReadListing != nil {
		view.store.afterReadListing(view.store.state, listingID)
	}
	return listing, nil
}

func (view *memoryExchange) LockListing(ctx context.Context, listingID string) (Listing, error) {
	return view.GetListing(ctx, listingID)
}

func (view *memoryExchange) PutListing(ctx context.Context, listing Listing, expectedVersion int64) (Listing, error) {
	view.store.dataMutex.Lock()
	defer view.store.dataMutex.Unlock()
	if view.store.beforePutListing != nil {
		view.store.beforePutListing(view.store.state, listing)
	}
	current, ok := view.store.state.listings[listing.ID]
	if !ok {
		return Listing{}, fmt.Errorf("%w: listing %s", ErrNotFound, listing.ID)
	}
	if current.Version != expectedVersion {
		return Listing{}, fmt.Errorf("%w: listing %s", ErrConcurrentModification, listing.ID)
	}
	listing.Version = expectedVersion + 1
	view.store.state.listings[listing.ID] = listing
	return listing, nil
}

func (view *memoryExchange) QueryListings(ctx context.Context, filter ListingFilter) ([]Listing, error) {
	view.store.dataMutex.Lock()
	defer view.store.dataMutex.Unlock()
	matching := make([]Listing, 0)
	for _, listing := range view.store.state.listings {
		if !filter.OwnerID.IsZero() && listing.OwnerID != filter.OwnerID {
			continue
		}
		if !filter.ExcludeOwner.IsZero() && listing.OwnerID == filter.ExcludeOwner {
			continue
		}
		if filter.AvailableOnly && !listing.IsAvailable {
			continue
		}
		if filter.FoodType != "" && listing.FoodType != filter.FoodType {
			continue
		}
		if filter.Category != "" && listing.Category != filter.Category {
			continue
		}
		if filter.Search != "" && !strings.Contains(strings.ToLower(listing.Title+" "+listing.Description), strings.ToLower(filter.Search)) {
			continue
		}
		matching = append(matching, listing)
	}
	sort.Slice(matching, func(left, right int) bool { return matching[left].ID > matching[right].ID })
	return pageOf(matching, filter.Page), nil
}

func (view *memoryExchange) InsertClaim(ctx context.Context, claim Claim) (Claim, error) {
	view.store.dataMutex.Lock()
	defer view.store.dataMutex.Unlock()
	if view.store.insertClaimError != nil {
		return Claim{}, view.store.insertClaimError
	}
	for _, existing := range view.store.state.claims {
		if existing.ListingID == claim.ListingID {
			return Claim{}, fmt.Errorf("%w: listing %s", ErrAlreadyClaimed, claim.ListingID)
		}
	}
	claim.ID = view.store.newID("claim")
	view.store.state.claims = append(view.store.state.claims, claim)
	return claim, nil
}

func (view *memoryExchange) QueryClaims(ctx context.Context, filter ClaimFilter) ([]Claim, error) {
	view.store.dataMutex.Lock()
	defer view.store.dataMutex.Unlock()
	matching := make([]Claim, 0)
	for index := len(view.store.state.claims) - 1; index >= 0; index-- {
		claim := view.store.state.claims[index]
		if claim.ClaimerID == filter.ParticipantID || claim.ProviderID == filter.ParticipantID {
			matching = append(matching, claim)
		}
	}
	return pageOf(matching, filter.Page), nil
}

func (view *memoryExchange) InsertSwap(ctx context.Context, proposal SwapProposal) (SwapProposal, error) {
	view.store.dataMutex.Lock()
	defer view.store.dataMutex.Unlock()
	proposal.ID = view.store.newID("swap")
	view.store.state.swaps[proposal.ID] = proposal
	return proposal, nil
}

func (view *memoryExchange) GetSwap(ctx context.Context, proposalID string) (SwapProposal, error) {
	view.store.dataMutex.Lock()
	defer view.store.dataMutex.Unlock()
	proposal, ok := view.store.state.swaps[proposalID]
	if !ok {
		return SwapProposal{}, fmt.Errorf("%w: proposal %s", ErrNotFound, proposalID)
	}
	return proposal, nil
}

func (view *memoryExchange) PutSwap(ctx context.Context, proposal SwapProposal, expectedVersion int64) (SwapProposal, error) {
	view.store.dataMutex.Lock()
	defer view.store.dataMutex.Unlock()
	current, ok := view.store.state.swaps[proposal.ID]
	if !ok {
		return SwapProposal{}, fmt.Errorf("%w: proposal %s", ErrNotFound, proposal.ID)
	}
	if current.Version != expectedVersion {
		return SwapProposal{}, fmt.Errorf("%w: proposal %s", ErrConcurrentModification, proposal.ID)
	}
	proposal.Version = expectedVersion + 1
	view.store.state.swaps[proposal.ID] = proposal
	return proposal, nil
}

func (view *memoryExchange) QuerySwaps(ctx context.Context, filter SwapFilter) ([]SwapProposal, error) {
	view.store.dataMutex.Lock()
	defer view.store.dataMutex.Unlock()
	matching := make([]SwapProposal, 0)
	for _, proposal := range view.store.state.swaps {
		switch filter.Role {
		case SwapRoleRequester:
			if proposal.RequesterID != filter.ParticipantID {
				continue
			}
		case SwapRoleProvider:
			if proposal.ProviderID != filter.ParticipantID {
				continue
			}
		default:
			if proposal.RequesterID != filter.ParticipantID && proposal.ProviderID != filter.ParticipantID {
				continue
			}
		}
		if filter.Status != "" && proposal.Status != filter.Status {
			continue
		}
		matching = append(matching, proposal)
	}
	sort.Slice(matching, func(left, right int) bool { return matching[left].ID > matching[right].ID })
	return pageOf(matching, filter.Page), nil
}

func (view *memoryExchange) GetProfile(ctx context.Context, userID ledger.UserID) (Profile, error) {
	view.store.dataMutex.Lock()
	defer view.store.dataMutex.Unlock()
	profile, ok := view.store.state.profiles[userID]
	if !ok {
		return Profile{}, fmt.Errorf("%w: profile %s", ErrNotFound, userID)
	}
	return profile, nil
}

func (view *memoryExchange) PutProfile(ctx context.Context, profile Profile) (Profile, error) {
	view.store.dataMutex.Lock()
	defer view.store.dataMutex.Unlock()
	view.store.state.profiles[profile.UserID] = profile
	return profile, nil
}

type memoryLedger struct {
	store *memoryStore
	inTx  bool
}

func (view *memoryLedger) WithTx(ctx context.Context, fn func(ctx context.Context, txStore ledger.Store) error) error {
	if view.inTx {
		return fn(ctx, view)
	}
	return view.store.runTx(func() error {
		return fn(ctx, &memoryLedger{store: view.store, inTx: true})
	})
}

func (view *memoryLedger) CreateAccountIfMissing(ctx context.Context, userID ledger.UserID) (bool, error) {
	view.store.dataMutex.Lock()
	defer view.store.dataMutex.Unlock()
	if _, exists := view.store.state.accounts[userID]; exists {
		return false, nil
	}
	view.store.state.accounts[userID] = ledger.Account{UserID: userID}
	return true, nil
}

func (view *memoryLedger) GetAccount(ctx context.Context, userID ledger.UserID) (ledger.Account, error) {
	view.store.dataMutex.Lock()
	defer view.store.dataMutex.Unlock()
	if view.inTx {
		view.store.accountLocks = append(view.store.accountLocks, userID)
	}
	account, ok := view.store.state.accounts[userID]
	if !ok {
		return ledger.Account{}, ledger.ErrUnknownAccount
	}
	return account, nil
}

func (view *memoryLedger) UpdateAccountBalance(ctx context.Context, userID ledger.UserID, balance ledger.Tickets, expectedVersion int64) error {
	view.store.dataMutex.Lock()
	defer view.store.dataMutex.Unlock()
	account, ok := view.store.state.accounts[userID]
	if !ok {
		return ledger.ErrUnknownAccount
	}
	if account.Version != expectedVersion {
		return ledger.ErrConcurrentModification
	}
	view.store.state.accounts[userID] = ledger.Account{UserID: userID, Balance: balance, Version: expectedVersion + 1}
	return nil
}

func (view *memoryLedger) InsertTransaction(ctx context.Context, transaction ledger.Transaction) (ledger.Transaction, error) {
	view.store.dataMutex.Lock()
	defer view.store.dataMutex.Unlock()
	key := transaction.UserID.String() + "|" + transaction.IdempotencyKey.String()
	if _, exists := view.store.state.keys[key]; exists {
		return ledger.Transaction{}, ledger.ErrDuplicateIdempotencyKey
	}
	view.store.state.keys[key] = struct{}{}
	view.store.state.sequence++
	transaction.Sequence = view.store.state.sequence
	transaction.TransactionID = fmt.Sprintf("tx-%d", transaction.Sequence)
	view.store.state.transactions = append(view.store.state.transactions, transaction)
	return transaction, nil
}

func (view *memoryLedger) SumTransactions(ctx context.Context, userID ledger.UserID) (ledger.Tickets, error) {
	view.store.dataMutex.Lock()
	defer view.store.dataMutex.Unlock()
	var sum ledger.Tickets
	for _, transaction := range view.store.state.transactions {
		if transaction.UserID == userID {
			sum += transaction.Amount
		}
	}
	return sum, nil
}

func (view *memoryLedger) ListTransactions(ctx context.Context, userID ledger.UserID, page ledger.Page) ([]ledger.Transaction, error) {
	view.store.dataMutex.Lock()
	defer view.store.dataMutex.Unlock()
	matching := make([]ledger.Transaction, 0)
	for index := len(view.store.state.transactions) - 1; index >= 0; index-- {
		if view.store.state.transactions[index].UserID == userID {
			matching = append(matching, view.store.state.transactions[index])
		}
	}
	return pageOf(matching, page), nil
}

func pageOf[T any](items []T, page ledger.Page) []T {
	if page.Limit <= 0 {
		page.Limit = len(items)
	}
	if page.Skip >= len(items) {
		return []T{}
	}
	end := page.Skip + page.Limit
	if end > len(items) {
		end = len(items)
	}
	return items[page.Skip:end]
}

type recordingNotifier struct {
	mutex         sync.Mutex
	notifications []Notification
	err           error
}

func (notifier *recordingNotifier) Send(_ context.Context, notification Notification) error {
	notifier.mutex.Lock()
	defer notifier.mutex.Unlock()
	notifier.notifications = append(notifier.notifications, notification)
	return notifier.err
}

func (notifier *recordingNotifier) sent() []Notification {
	notifier.mutex.Lock()
	defer notifier.mutex.Unlock()
	return append([]Notification(nil), notifier.notifications...)
}

type recordingLogger struct {
	mutex   sync.Mutex
	entries []OperationLog
}

func (logger *recordingLogger) LogExchangeOperation(_ context.Context, entry OperationLog) {
	logger.mutex.Lock()
	defer logger.mutex.Unlock()
	logger.entries = append(logger.entries, entry)
}

func (logger *recordingLogger) operations(operation string) []OperationLog {
	logger.mutex.Lock()
	defer logger.mutex.Unlock()
	matching := make([]OperationLog, 0)
	for _, entry := range logger.entries {
		if entry.Operation == operation {
			matching = append(matching, entry)
		}
	}
	return matching
}

var fixedNow = time.Date(2026, time.May, 4, 18, 30, 0, 0, time.UTC)

type harness struct {
	store    *memoryStore
	ledger   *ledger.Service
	service  *Service
	notifier *recordingNotifier
	logger   *recordingLogger
}

// newHarness builds a service whose new accounts start empty; fund grants tickets explicitly.
func newHarness(test *testing.T) *harness {
	test.Helper()
	store := newMemoryStore(test)
	ledgerService, err := ledger.NewService(store.exchange().Ledger(), func() int64 { return fixedNow.Unix() }, ledger.WithInitialTickets(0))
	if err != nil {
		test.Fatalf("ledger service: %v", err)
	}
	notifier := &recordingNotifier{}
	logger := &recordingLogger{}
	service, err := NewService(store.exchange(), ledgerService, func() time.Time { return fixedNow }, WithNotifier(notifier), WithOperationLogger(logger))
	if err != nil {
		test.Fatalf("exchange service: %v", err)
	}
	return &harness{store: store, ledger: ledgerService, service: service, notifier: notifier, logger: logger}
}

func (h *harness) fund(test *testing.T, userID ledger.UserID, amount ledger.Tickets) {
	test.Helper()
	key, err := ledger.NewIdempotencyKey(fmt.Sprintf("fund:%s:%d", userID, amount))
	if err != nil {
		test.Fatalf("key: %v", err)
	}
	_, err = h.ledger.Record(context.Background(), ledger.RecordInput{
		UserID:         userID,
		Amount:         amount,
		Kind:           ledger.KindAdmin,
		Description:    "test funding",
		IdempotencyKey: key,
	})
	if err != nil {
		test.Fatalf("fund %s: %v", userID, err)
	}
}

func (h *harness) balance(test *testing.T, userID ledger.UserID) ledger.Tickets {
	test.Helper()
	balance, err := h.ledger.GetBalance(context.Background(), userID)
	if err != nil {
		test.Fatalf("balance %s: %v", userID, err)
	}
	return balance
}

func (h *harness) listing(test *testing.T, ownerID ledger.UserID, title string, tickets ledger.Tickets) Listing {
	test.Helper()
	listing, err := h.service.CreateListing(context.Background(), ownerID, ListingDraft{
		Title:           title,
		TicketsRequired: &tickets,
	})
	if err != nil {
		test.Fatalf("create listing: %v", err)
	}
	return listing
}

func (h *harness) reload(test *testing.T, listingID string) Listing {
	test.Helper()
	listing, err := h.service.GetListing(context.Background(), listingID)
	if err != nil {
		test.Fatalf("get listing: %v", err)
	}
	return listing
}

func (h *harness) claimCount() int {
	count := 0
	h.store.read(func(state *memoryState) { count = len(state.claims) })
	return count
}

func mustUserID(test *testing.T, raw string) ledger.UserID {
	test.Helper()
	userID, err := ledger.NewUserID(raw)
	if err != nil {
		test.Fatalf("user id: %v", err)
	}
	return userID
}
