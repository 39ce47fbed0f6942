package grpcserver

// BalanceRequest identifies the account to read.
type BalanceRequest struct {
	UserID string `json:"user_id"`
}

type BalanceResponse struct {
	Balance int64 `json:"balance"`
}

type ListTransactionsRequest struct {
	UserID string `json:"user_id"`
	Skip   int    `json:"skip"`
	Limit  int    `json:"limit"`
}

type Transaction struct {
	TransactionID    string `json:"transaction_id"`
	Amount           int64  `json:"amount"`
	Kind             string `json:"kind"`
	RelatedListingID string `json:"related_listing_id,omitempty"`
	IdempotencyKey   string `json:"idempotency_key"`
	Description      string `json:"description"`
	CreatedUnixUTC   int64  `json:"created_unix_utc"`
}

type ListTransactionsResponse struct {
	Transactions []Transaction `json:"transactions"`
}

type ClaimListingRequest struct {
	ClaimerID string `json:"claimer_id"`
	ListingID string `json:"listing_id"`
}

type Claim struct {
	ClaimID        string `json:"claim_id"`
	ListingID      string `json:"listing_id"`
	ClaimerID      string `json:"claimer_id"`
	ProviderID     string `json:"provider_id"`
	TicketsSpent   int64  `json:"tickets_spent"`
	CreatedUnixUTC int64  `json:"created_unix_utc"`
}

type ClaimListingResponse struct {
	Claim      Claim `json:"claim"`
	NewBalance int64 `json:"new_balance"`
}

type CreateSwapProposalRequest struct {
	RequesterID        string `json:"requester_id"`
	RequesterListingID string `json:"requester_listing_id"`
	ProviderListingID  string `json:"provider_listing_id"`
	ProviderID         string `json:"provider_id,omitempty"`
	Message            string `json:"message,omitempty"`
}

type RespondToSwapRequest struct {
	ProposalID      string `json:"proposal_id"`
	ActorID         string `json:"actor_id"`
	Decision        string `json:"decision"`
	ResponseMessage string `json:"response_message,omitempty"`
}

type SwapProposal struct {
	ProposalID         string `json:"proposal_id"`
	RequesterID        string `json:"requester_id"`
	ProviderID         string `json:"provider_id"`
	RequesterListingID string `json:"requester_listing_id"`
	ProviderListingID  string `json:"provider_listing_id"`
	Status             string `json:"status"`
	Message            string `json:"message,omitempty"`
	ResponseMessage    string `json:"response_message,omitempty"`
	UpdatedUnixUTC     int64  `json:"updated_unix_utc"`
}

type SwapProposalResponse struct {
	Proposal SwapProposal `json:"proposal"`
}

// Candidate is a listing snapshot submitted for scoring.
type Candidate struct {
	ID              string   `json:"id"`
	Title           string   `json:"title"`
	Description     string   `json:"description"`
	Category        string   `json:"category"`
	Location        string   `json:"location"`
	DietaryTags     []string `json:"dietary_tags"`
	Allergens       []string `json:"allergens"`
	TicketsRequired int64    `json:"tickets_required"`
	CreatedUnixUTC  int64    `json:"created_unix_utc"`
}

type Profile struct {
	Location            string   `json:"location"`
	DietaryRequirements []string `json:"dietary_requirements"`
	Allergies           []string `json:"allergies"`
}

// ScoreCandidatesRequest scores candidates without touching storage.
// NowUnixUTC of zero means the server clock.
type ScoreCandidatesRequest struct {
	Profile    Profile     `json:"profile"`
	Term       string      `json:"term"`
	Mode       string      `json:"mode"`
	Budget     *int64      `json:"budget,omitempty"`
	NowUnixUTC int64       `json:"now_unix_utc"`
	Candidates []Candidate `json:"candidates"`
}

type ScoredCandidate struct {
	ID    string `json:"id"`
	Score int    `json:"score"`
}

type ScoreCandidatesResponse struct {
	Ranked []ScoredCandidate `json:"ranked"`
}
