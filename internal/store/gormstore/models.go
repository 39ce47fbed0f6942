package gormstore

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// TicketAccount caches a user's balance. The transaction log is authoritative.
type TicketAccount struct {
	UserID    string    `gorm:"primaryKey"`
	Balance   int64     `gorm:"not null;check:chk_ticket_accounts_balance,balance >= 0"`
	Version   int64     `gorm:"not null"`
	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

func (TicketAccount) TableName() string { return "ticket_accounts" }

// TicketTransaction mirrors the append-only ticket_transactions table.
type TicketTransaction struct {
	Sequence         int64     `gorm:"primaryKey;autoIncrement"`
	TransactionID    string    `gorm:"not null;uniqueIndex:uniq_ticket_transactions_id"`
	UserID           string    `gorm:"not null;index:uniq_ticket_transactions_user_key,unique,priority:1;index:idx_ticket_transactions_user"`
	Amount           int64     `gorm:"not null"`
	Kind             string    `gorm:"not null"`
	RelatedListingID *string   `gorm:"index:idx_ticket_transactions_listing"`
	IdempotencyKey   string    `gorm:"not null;index:uniq_ticket_transactions_user_key,unique,priority:2"`
	Description      string    `gorm:"not null"`
	CreatedAt        time.Time `gorm:"not null"`
}

func (TicketTransaction) TableName() string { return "ticket_transactions" }

func (transaction *TicketTransaction) BeforeCreate(tx *gorm.DB) error {
	if transaction.TransactionID == "" {
		transaction.TransactionID = uuid.NewString()
	}
	return nil
}

// FoodListing mirrors the food_listings table.
type FoodListing struct {
	ListingID       string         `gorm:"primaryKey"`
	OwnerID         string         `gorm:"not null;index:idx_food_listings_owner"`
	FoodType        string         `gorm:"not null"`
	Title           string         `gorm:"not null"`
	Description     string         `gorm:"not null"`
	Category        string         `gorm:"not null;index:idx_food_listings_category"`
	DietaryTags     datatypes.JSON `gorm:"not null"`
	Allergens       datatypes.JSON `gorm:"not null"`
	Location        string         `gorm:"not null"`
	IsHomemade      bool           `gorm:"not null"`
	TicketsRequired int64          `gorm:"not null;check:chk_food_listings_tickets,tickets_required >= 0"`
	IsAvailable     bool           `gorm:"not null;index:idx_food_listings_available"`
	FulfilledBy     *string
	FulfilledAt     *time.Time
	ExpiresAt       *time.Time
	Version         int64     `gorm:"not null"`
	CreatedAt       time.Time `gorm:"not null;index:idx_food_listings_created"`
	UpdatedAt       time.Time `gorm:"not null"`
}

func (FoodListing) TableName() string { return "food_listings" }

func (listing *FoodListing) BeforeCreate(tx *gorm.DB) error {
	if listing.ListingID == "" {
		listing.ListingID = uuid.NewString()
	}
	return nil
}

// FoodClaim mirrors the food_claims table. A listing is claimed at most once.
type FoodClaim struct {
	ClaimID      string    `gorm:"primaryKey"`
	ListingID    string    `gorm:"not null;uniqueIndex:uniq_food_claims_listing"`
	ClaimerID    string    `gorm:"not null;index:idx_food_claims_claimer"`
	ProviderID   string    `gorm:"not null;index:idx_food_claims_provider"`
	TicketsSpent int64     `gorm:"not null"`
	Status       string    `gorm:"not null"`
	CreatedAt    time.Time `gorm:"not null"`
}

func (FoodClaim) TableName() string { return "food_claims" }

func (claim *FoodClaim) BeforeCreate(tx *gorm.DB) error {
	if claim.ClaimID == "" {
		claim.ClaimID = uuid.NewString()
	}
	return nil
}

// SwapProposal mirrors the swap_proposals table.
type SwapProposal struct {
	ProposalID         string    `gorm:"primaryKey"`
	RequesterID        string    `gorm:"not null;index:idx_swap_proposals_requester"`
	ProviderID         string    `gorm:"not null;index:idx_swap_proposals_provider"`
	RequesterListingID string    `gorm:"not null"`
	ProviderListingID  string    `gorm:"not null"`
	Status             string    `gorm:"not null"`
	Message            string    `gorm:"not null"`
	ResponseMessage    string    `gorm:"not null"`
	Version            int64     `gorm:"not null"`
	CreatedAt          time.Time `gorm:"not null"`
	UpdatedAt          time.Time `gorm:"not null"`
}

func (SwapProposal) TableName() string { return "swap_proposals" }

func (proposal *SwapProposal) BeforeCreate(tx *gorm.DB) error {
	if proposal.ProposalID == "" {
		proposal.ProposalID = uuid.NewString()
	}
	return nil
}

// RequesterProfile mirrors the requester_profiles table.
type RequesterProfile struct {
	UserID              string         `gorm:"primaryKey"`
	Location            string         `gorm:"not null"`
	DietaryRequirements datatypes.JSON `gorm:"not null"`
	Allergies           datatypes.JSON `gorm:"not null"`
	TicketBudget        *int64
	UpdatedAt           time.Time `gorm:"not null"`
}

func (RequesterProfile) TableName() string { return "requester_profiles" }

// Notification mirrors the notifications table.
type Notification struct {
	NotificationID string         `gorm:"primaryKey"`
	UserID         string         `gorm:"not null;index:idx_notifications_user"`
	Kind           string         `gorm:"not null"`
	Title          string         `gorm:"not null"`
	Message        string         `gorm:"not null"`
	Payload        datatypes.JSON `gorm:"not null"`
	IsRead         bool           `gorm:"not null"`
	CreatedAt      time.Time      `gorm:"not null;index:idx_notifications_created"`
}

func (Notification) TableName() string { return "notifications" }

func (notification *Notification) BeforeCreate(tx *gorm.DB) error {
	if notification.NotificationID == "" {
		notification.NotificationID = uuid.NewString()
	}
	return nil
}

// Models lists every table managed by this package, in migration order.
func Models() []any {
	return []any{
		&TicketAccount{},
		&TicketTransaction{},
		&FoodListing{},
		&FoodClaim{},
		&SwapProposal{},
		&RequesterProfile{},
		&Notification{},
	}
}
