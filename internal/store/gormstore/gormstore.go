package gormstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MarkoPoloResearchLab/mealswap/pkg/exchange"
	"github.com/MarkoPoloResearchLab/mealswap/pkg/ledger"
	gosqlite "github.com/glebarez/go-sqlite"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	constraintTransactionIdempotencyKey = "uniq_ticket_transactions_user_key"
	constraintClaimListing              = "uniq_food_claims_listing"
	emptyListJSON                       = "[]"
	emptyObjectJSON                     = "{}"
	pgUniqueViolationCode               = "23505"
	pgDeadlockDetectedCode              = "40P01"
	pgSerializationFailureCode          = "40001"
	sqliteConstraintUniqueCode          = 2067
	sqliteConstraintPrimaryKeyCode      = 1555
	errorOperationStore                 = "store"
	errorSubjectAccount                 = "account"
	errorSubjectBalance                 = "balance"
	errorSubjectTransaction             = "transaction"
	errorSubjectListing                 = "listing"
	errorSubjectClaim                   = "claim"
	errorSubjectSwap                    = "swap"
	errorSubjectProfile                 = "profile"
	errorSubjectNotification            = "notification"
	errorCodeCreate                     = "create"
	errorCodeDelete                     = "delete"
	errorCodeDuplicate                  = "duplicate"
	errorCodeGet                        = "get"
	errorCodeInsert                     = "insert"
	errorCodeInvalid                    = "invalid"
	errorCodeList                       = "list"
	errorCodeLock                       = "lock"
	errorCodeSum                        = "sum"
	errorCodeUpdate                     = "update"
	errorCodeVersion                    = "version"
)

// Store implements exchange.Store using GORM.
type Store struct {
	db *gorm.DB
}

// New returns a Store backed by gorm.DB.
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// WithTx executes fn within a transaction.
func (store *Store) WithTx(ctx context.Context, fn func(ctx context.Context, txStore exchange.Store) error) error {
	err := store.db.WithContext(ctx).Transaction(func(transaction *gorm.DB) error {
		return fn(ctx, &Store{db: transaction})
	})
	return retryableConflict(err)
}

// Ledger returns a ledger store sharing this store's connection or transaction.
func (store *Store) Ledger() ledger.Store {
	return &LedgerStore{db: store.db}
}

func (store *Store) InsertListing(ctx context.Context, listing exchange.Listing) (exchange.Listing, error) {
	model, err := listingModel(listing)
	if err != nil {
		return exchange.Listing{}, wrapStoreError(errorSubjectListing, errorCodeInvalid, err)
	}
	if err := store.db.WithContext(ctx).Create(&model).Error; err != nil {
		return exchange.Listing{}, wrapStoreError(errorSubjectListing, errorCodeCreate, err)
	}
	return mapListing(model)
}

func (store *Store) GetListing(ctx context.Context, listingID string) (exchange.Listing, error) {
	return store.findListing(store.db.WithContext(ctx), listingID, errorCodeGet)
}

func (store *Store) LockListing(ctx context.Context, listingID string) (exchange.Listing, error) {
	return store.findListing(store.db.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}), listingID, errorCodeLock)
}

func (store *Store) findListing(query *gorm.DB, listingID string, code string) (exchange.Listing, error) {
	var model FoodListing
	err := query.Where("listing_id = ?", listingID).Take(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return exchange.Listing{}, wrapStoreError(errorSubjectListing, code, fmt.Errorf("%w: listing %s", exchange.ErrNotFound, listingID))
		}
		return exchange.Listing{}, wrapStoreError(errorSubjectListing, code, err)
	}
	listing, err := mapListing(model)
	if err != nil {
		return exchange.Listing{}, wrapStoreError(errorSubjectListing, errorCodeInvalid, err)
	}
	return listing, nil
}

func (store *Store) PutListing(ctx context.Context, listing exchange.Listing, expectedVersion int64) (exchange.Listing, error) {
	model, err := listingModel(listing)
	if err != nil {
		return exchange.Listing{}, wrapStoreError(errorSubjectListing, errorCodeInvalid, err)
	}
	model.Version = expectedVersion + 1
	result := store.db.WithContext(ctx).
		Model(&FoodListing{}).
		Where("listing_id = ? AND version = ?", listing.ID, expectedVersion).
		Updates(map[string]interface{}{
			"food_type":        model.FoodType,
			"title":            model.Title,
			"description":      model.Description,
			"category":         model.Category,
			"dietary_tags":     model.DietaryTags,
			"allergens":        model.Allergens,
			"location":         model.Location,
			"is_homemade":      model.IsHomemade,
			"tickets_required": model.TicketsRequired,
			"is_available":     model.IsAvailable,
			"fulfilled_by":     model.FulfilledBy,
			"fulfilled_at":     model.FulfilledAt,
			"expires_at":       model.ExpiresAt,
			"version":          model.Version,
			"updated_at":       model.UpdatedAt,
		})
	if result.Error != nil {
		return exchange.Listing{}, wrapStoreError(errorSubjectListing, errorCodeUpdate, result.Error)
	}
	if result.RowsAffected == 0 {
		return exchange.Listing{}, store.versionConflict(ctx, &FoodListing{}, "listing_id = ?", listing.ID, errorSubjectListing)
	}
	return mapListing(model)
}

func (store *Store) QueryListings(ctx context.Context, filter exchange.ListingFilter) ([]exchange.Listing, error) {
	query := store.db.WithContext(ctx).Model(&FoodListing{})
	if !filter.OwnerID.IsZero() {
		query = query.Where("owner_id = ?", filter.OwnerID.String())
	}
	if !filter.ExcludeOwner.IsZero() {
		query = query.Where("owner_id <> ?", filter.ExcludeOwner.String())
	}
	if filter.FoodType != "" {
		query = query.Where("food_type = ?", string(filter.FoodType))
	}
	if filter.Category != "" {
		query = query.Where("category = ?", string(filter.Category))
	}
	if filter.AvailableOnly {
		query = query.Where("is_available = ?", true)
	}
	if location := strings.TrimSpace(filter.Location); location != "" {
		query = query.Where("LOWER(location) LIKE ?", likePattern(location))
	}
	if search := strings.TrimSpace(filter.Search); search != "" {
		pattern := likePattern(search)
		query = query.Where("(LOWER(title) LIKE ? OR LOWER(description) LIKE ?)", pattern, pattern)
	}
	query = query.Order("created_at DESC").Order("listing_id ASC")

	// Tag filters run over decoded JSON, so paging moves after them.
	filterInMemory := strings.TrimSpace(filter.DietaryTag) != "" || strings.TrimSpace(filter.AllergenFree) != ""
	if !filterInMemory {
		query = applyPage(query, filter.Page)
	}

	var rows []FoodListing
	if err := query.Find(&rows).Error; err != nil {
		return nil, wrapStoreError(errorSubjectListing, errorCodeList, err)
	}
	listings := make([]exchange.Listing, 0, len(rows))
	for _, row := range rows {
		listing, err := mapListing(row)
		if err != nil {
			return nil, wrapStoreError(errorSubjectListing, errorCodeInvalid, err)
		}
		if filterInMemory && !matchesTags(listing, filter) {
			continue
		}
		listings = append(listings, listing)
	}
	if filterInMemory {
		listings = pageSlice(listings, filter.Page)
	}
	return listings, nil
}

func (store *Store) InsertClaim(ctx context.Context, claim exchange.Claim) (exchange.Claim, error) {
	model := FoodClaim{
		ListingID:    claim.ListingID,
		ClaimerID:    claim.ClaimerID.String(),
		ProviderID:   claim.ProviderID.String(),
		TicketsSpent: claim.TicketsSpent.Int64(),
		Status:       string(claim.Status),
		CreatedAt:    claim.CreatedAt.UTC(),
	}
	err := store.db.WithContext(ctx).Create(&model).Error
	if isUniqueConflict(err, constraintClaimListing) {
		return exchange.Claim{}, wrapStoreError(errorSubjectClaim, errorCodeDuplicate, fmt.Errorf("%w: listing %s", exchange.ErrAlreadyClaimed, claim.ListingID))
	}
	if err != nil {
		return exchange.Claim{}, wrapStoreError(errorSubjectClaim, errorCodeInsert, err)
	}
	return mapClaim(model)
}

func (store *Store) QueryClaims(ctx context.Context, filter exchange.ClaimFilter) ([]exchange.Claim, error) {
	participant := filter.ParticipantID.String()
	var rows []FoodClaim
	err := applyPage(store.db.WithContext(ctx).
		Where("claimer_id = ? OR provider_id = ?", participant, participant).
		Order("created_at DESC").Order("claim_id ASC"), filter.Page).
		Find(&rows).Error
	if err != nil {
		return nil, wrapStoreError(errorSubjectClaim, errorCodeList, err)
	}
	claims := make([]exchange.Claim, 0, len(rows))
	for _, row := range rows {
		claim, err := mapClaim(row)
		if err != nil {
			return nil, wrapStoreError(errorSubjectClaim, errorCodeInvalid, err)
		}
		claims = append(claims, claim)
	}
	return claims, nil
}

func (store *Store) InsertSwap(ctx context.Context, proposal exchange.SwapProposal) (exchange.SwapProposal, error) {
	model := swapModel(proposal)
	if err := store.db.WithContext(ctx).Create(&model).Error; err != nil {
		return exchange.SwapProposal{}, wrapStoreError(errorSubjectSwap, errorCodeCreate, err)
	}
	return mapSwap(model)
}

func (store *Store) GetSwap(ctx context.Context, proposalID string) (exchange.SwapProposal, error) {
	var model SwapProposal
	err := store.db.WithContext(ctx).Where("proposal_id = ?", proposalID).Take(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return exchange.SwapProposal{}, wrapStoreError(errorSubjectSwap, errorCodeGet, fmt.Errorf("%w: proposal %s", exchange.ErrNotFound, proposalID))
		}
		return exchange.SwapProposal{}, wrapStoreError(errorSubjectSwap, errorCodeGet, err)
	}
	proposal, err := mapSwap(model)
	if err != nil {
		return exchange.SwapProposal{}, wrapStoreError(errorSubjectSwap, errorCodeInvalid, err)
	}
	return proposal, nil
}

func (store *Store) PutSwap(ctx context.Context, proposal exchange.SwapProposal, expectedVersion int64) (exchange.SwapProposal, error) {
	model := swapModel(proposal)
	model.Version = expectedVersion + 1
	result := store.db.WithContext(ctx).
		Model(&SwapProposal{}).
		Where("proposal_id = ? AND version = ?", proposal.ID, expectedVersion).
		Updates(map[string]interface{}{
			"status":           model.Status,
			"response_message": model.ResponseMessage,
			"version":          model.Version,
			"updated_at":       model.UpdatedAt,
		})
	if result.Error != nil {
		return exchange.SwapProposal{}, wrapStoreError(errorSubjectSwap, errorCodeUpdate, result.Error)
	}
	if result.RowsAffected == 0 {
		return exchange.SwapProposal{}, store.versionConflict(ctx, &SwapProposal{}, "proposal_id = ?", proposal.ID, errorSubjectSwap)
	}
	return mapSwap(model)
}

func (store *Store) QuerySwaps(ctx context.Context, filter exchange.SwapFilter) ([]exchange.SwapProposal, error) {
	participant := filter.ParticipantID.String()
	query := store.db.WithContext(ctx).Model(&SwapProposal{})
	switch filter.Role {
	case exchange.SwapRoleRequester:
		query = query.Where("requester_id = ?", participant)
	case exchange.SwapRoleProvider:
		query = query.Where("provider_id = ?", participant)
	default:
		query = query.Where("(requester_id = ? OR provider_id = ?)", participant, participant)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", string(filter.Status))
	}
	var rows []SwapProposal
	if err := applyPage(query.Order("created_at DESC").Order("proposal_id ASC"), filter.Page).Find(&rows).Error; err != nil {
		return nil, wrapStoreError(errorSubjectSwap, errorCodeList, err)
	}
	proposals := make([]exchange.SwapProposal, 0, len(rows))
	for _, row := range rows {
		proposal, err := mapSwap(row)
		if err != nil {
			return nil, wrapStoreError(errorSubjectSwap, errorCodeInvalid, err)
		}
		proposals = append(proposals, proposal)
	}
	return proposals, nil
}

func (store *Store) GetProfile(ctx context.Context, userID ledger.UserID) (exchange.Profile, error) {
	var model RequesterProfile
	err := store.db.WithContext(ctx).Where("user_id = ?", userID.String()).Take(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return exchange.Profile{}, wrapStoreError(errorSubjectProfile, errorCodeGet, fmt.Errorf("%w: profile %s", exchange.ErrNotFound, userID))
		}
		return exchange.Profile{}, wrapStoreError(errorSubjectProfile, errorCodeGet, err)
	}
	profile, err := mapProfile(model)
	if err != nil {
		return exchange.Profile{}, wrapStoreError(errorSubjectProfile, errorCodeInvalid, err)
	}
	return profile, nil
}

func (store *Store) PutProfile(ctx context.Context, profile exchange.Profile) (exchange.Profile, error) {
	dietary, err := encodeList(profile.DietaryRequirements)
	if err != nil {
		return exchange.Profile{}, wrapStoreError(errorSubjectProfile, errorCodeInvalid, err)
	}
	allergies, err := encodeList(profile.Allergies)
	if err != nil {
		return exchange.Profile{}, wrapStoreError(errorSubjectProfile, errorCodeInvalid, err)
	}
	var budget *int64
	if profile.TicketBudget != nil {
		value := profile.TicketBudget.Int64()
		budget = &value
	}
	model := RequesterProfile{
		UserID:              profile.UserID.String(),
		Location:            profile.Location,
		DietaryRequirements: dietary,
		Allergies:           allergies,
		TicketBudget:        budget,
		UpdatedAt:           profile.UpdatedAt.UTC(),
	}
	err = store.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"location", "dietary_requirements", "allergies", "ticket_budget", "updated_at"}),
		}).
		Create(&model).Error
	if err != nil {
		return exchange.Profile{}, wrapStoreError(errorSubjectProfile, errorCodeUpdate, err)
	}
	return mapProfile(model)
}

func (store *Store) versionConflict(ctx context.Context, model interface{}, where string, id string, subject string) error {
	var count int64
	if err := store.db.WithContext(ctx).Model(model).Where(where, id).Count(&count).Error; err != nil {
		return wrapStoreError(subject, errorCodeVersion, err)
	}
	if count == 0 {
		return wrapStoreError(subject, errorCodeVersion, fmt.Errorf("%w: %s %s", exchange.ErrNotFound, subject, id))
	}
	return wrapStoreError(subject, errorCodeVersion, fmt.Errorf("%w: %s %s", exchange.ErrConcurrentModification, subject, id))
}

func wrapStoreError(subject string, code string, err error) error {
	return ledger.WrapError(errorOperationStore, subject, code, retryableConflict(err))
}

// retryableConflict reports deadlock and serialization aborts as concurrent modifications
// so callers can retry them.
func retryableConflict(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || errors.Is(err, ledger.ErrConcurrentModification) {
		return err
	}
	if pgErr.Code == pgDeadlockDetectedCode || pgErr.Code == pgSerializationFailureCode {
		return fmt.Errorf("%w: %w", ledger.ErrConcurrentModification, err)
	}
	return err
}

func applyPage(query *gorm.DB, page ledger.Page) *gorm.DB {
	if page.Skip > 0 {
		query = query.Offset(page.Skip)
	}
	if page.Limit > 0 {
		query = query.Limit(page.Limit)
	}
	return query
}

func pageSlice[T any](items []T, page ledger.Page) []T {
	if page.Skip >= len(items) {
		return []T{}
	}
	end := len(items)
	if page.Limit > 0 && page.Skip+page.Limit < end {
		end = page.Skip + page.Limit
	}
	return items[page.Skip:end]
}

func likePattern(value string) string {
	return "%" + strings.ToLower(value) + "%"
}

func matchesTags(listing exchange.Listing, filter exchange.ListingFilter) bool {
	if tag := strings.TrimSpace(filter.DietaryTag); tag != "" && !containsFold(listing.DietaryTags, tag) {
		return false
	}
	if allergen := strings.TrimSpace(filter.AllergenFree); allergen != "" && containsFold(listing.Allergens, allergen) {
		return false
	}
	return true
}

func containsFold(values []string, target string) bool {
	for _, value := range values {
		if strings.EqualFold(strings.TrimSpace(value), target) {
			return true
		}
	}
	return false
}

func encodeList(values []string) (datatypes.JSON, error) {
	if len(values) == 0 {
		return datatypes.JSON([]byte(emptyListJSON)), nil
	}
	raw, err := json.Marshal(values)
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(raw), nil
}

func decodeList(raw datatypes.JSON) ([]string, error) {
	if len(raw) == 0 {
		return []string{}, nil
	}
	values := []string{}
	if err := json.Unmarshal(raw, &values); err != nil {
		return nil, err
	}
	return values, nil
}

func optionalString(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}

func optionalTime(value time.Time) *time.Time {
	if value.IsZero() {
		return nil
	}
	utc := value.UTC()
	return &utc
}

func isUniqueConflict(err error, constraint string) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolationCode && pgErr.ConstraintName == constraint
	}
	var sqliteErr *gosqlite.Error
	if errors.As(err, &sqliteErr) {
		code := sqliteErr.Code()
		if code != sqliteConstraintUniqueCode && code != sqliteConstraintPrimaryKeyCode {
			return false
		}
		columns, known := sqliteUniqueColumns[constraint]
		return known && strings.Contains(sqliteErr.Error(), columns)
	}
	return false
}

// sqliteUniqueColumns holds the column list SQLite reports when a named unique index is violated.
var sqliteUniqueColumns = map[string]string{
	constraintTransactionIdempotencyKey: "ticket_transactions.user_id, ticket_transactions.idempotency_key",
	constraintClaimListing:              "food_claims.listing_id",
}
