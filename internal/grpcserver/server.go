// Package grpcserver exposes the exchange over gRPC with a JSON codec.
package grpcserver

import (
	"context"
	"errors"
	"time"

	"github.com/MarkoPoloResearchLab/mealswap/pkg/exchange"
	"github.com/MarkoPoloResearchLab/mealswap/pkg/ledger"
	"github.com/MarkoPoloResearchLab/mealswap/pkg/match"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	errorInvalidUserID           = "invalid_user_id"
	errorInvalidPage             = "invalid_page"
	errorInvalidListingID        = "invalid_listing_id"
	errorInvalidProposalID       = "invalid_proposal_id"
	errorInvalidDecision         = "invalid_decision"
	errorInvalidMode             = "invalid_mode"
	errorNotFound                = "not_found"
	errorForbidden               = "forbidden"
	errorSelfClaimDenied         = "self_claim_denied"
	errorInsufficientBalance     = "insufficient_balance"
	errorListingUnavailable      = "listing_unavailable"
	errorInvalidState            = "invalid_state"
	errorInvalidTransition       = "invalid_transition"
	errorAlreadyClaimed          = "already_claimed"
	errorDuplicateIdempotencyKey = "duplicate_idempotency_key"
	errorConcurrentModification  = "concurrent_modification"
)

// ExchangeServiceServer exposes the ledger, claim, swap, and scoring operations over gRPC.
type ExchangeServiceServer struct {
	ledgerService   *ledger.Service
	exchangeService *exchange.Service
	nowFn           func() time.Time
}

// NewExchangeServiceServer constructs a gRPC server for the exchange services.
func NewExchangeServiceServer(ledgerService *ledger.Service, exchangeService *exchange.Service, now func() time.Time) *ExchangeServiceServer {
	if now == nil {
		now = time.Now
	}
	return &ExchangeServiceServer{ledgerService: ledgerService, exchangeService: exchangeService, nowFn: now}
}

func (service *ExchangeServiceServer) GetBalance(ctx context.Context, request *BalanceRequest) (*BalanceResponse, error) {
	userID, err := ledger.NewUserID(request.UserID)
	if err != nil {
		return nil, mapToGRPCError(err)
	}
	balance, err := service.ledgerService.GetBalance(ctx, userID)
	if err != nil {
		return nil, mapToGRPCError(err)
	}
	return &BalanceResponse{Balance: balance.Int64()}, nil
}

func (service *ExchangeServiceServer) ListTransactions(ctx context.Context, request *ListTransactionsRequest) (*ListTransactionsResponse, error) {
	userID, err := ledger.NewUserID(request.UserID)
	if err != nil {
		return nil, mapToGRPCError(err)
	}
	page, err := ledger.NewPage(request.Skip, request.Limit)
	if err != nil {
		return nil, mapToGRPCError(err)
	}
	transactions, err := service.ledgerService.ListTransactions(ctx, userID, page)
	if err != nil {
		return nil, mapToGRPCError(err)
	}
	response := &ListTransactionsResponse{Transactions: make([]Transaction, 0, len(transactions))}
	for _, transaction := range transactions {
		response.Transactions = append(response.Transactions, Transaction{
			TransactionID:    transaction.TransactionID,
			Amount:           transaction.Amount.Int64(),
			Kind:             transaction.Kind.String(),
			RelatedListingID: transaction.RelatedListingID,
			IdempotencyKey:   transaction.IdempotencyKey.String(),
			Description:      transaction.Description,
			CreatedUnixUTC:   transaction.CreatedUnixUTC,
		})
	}
	return response, nil
}

func (service *ExchangeServiceServer) ClaimListing(ctx context.Context, request *ClaimListingRequest) (*ClaimListingResponse, error) {
	claimerID, err := ledger.NewUserID(request.ClaimerID)
	if err != nil {
		return nil, mapToGRPCError(err)
	}
	result, err := service.exchangeService.ClaimListing(ctx, claimerID, request.ListingID)
	if err != nil {
		return nil, mapToGRPCError(err)
	}
	return &ClaimListingResponse{
		Claim: Claim{
			ClaimID:        result.Claim.ID,
			ListingID:      result.Claim.ListingID,
			ClaimerID:      result.Claim.ClaimerID.String(),
			ProviderID:     result.Claim.ProviderID.String(),
			TicketsSpent:   result.Claim.TicketsSpent.Int64(),
			CreatedUnixUTC: result.Claim.CreatedAt.Unix(),
		},
		NewBalance: result.NewBalance.Int64(),
	}, nil
}

func (service *ExchangeServiceServer) CreateSwapProposal(ctx context.Context, request *CreateSwapProposalRequest) (*SwapProposalResponse, error) {
	requesterID, err := ledger.NewUserID(request.RequesterID)
	if err != nil {
		return nil, mapToGRPCError(err)
	}
	input := exchange.CreateSwapInput{
		RequesterID:        requesterID,
		RequesterListingID: request.RequesterListingID,
		ProviderListingID:  request.ProviderListingID,
		Message:            request.Message,
	}
	if request.ProviderID != "" {
		providerID, err := ledger.NewUserID(request.ProviderID)
		if err != nil {
			return nil, mapToGRPCError(err)
		}
		input.ProviderID = providerID
	}
	proposal, err := service.exchangeService.CreateSwapProposal(ctx, input)
	if err != nil {
		return nil, mapToGRPCError(err)
	}
	return &SwapProposalResponse{Proposal: toSwapProposal(proposal)}, nil
}

func (service *ExchangeServiceServer) RespondToSwap(ctx context.Context, request *RespondToSwapRequest) (*SwapProposalResponse, error) {
	actorID, err := ledger.NewUserID(request.ActorID)
	if err != nil {
		return nil, mapToGRPCError(err)
	}
	decision, err := exchange.ParseSwapDecision(request.Decision)
	if err != nil {
		return nil, mapToGRPCError(err)
	}
	proposal, err := service.exchangeService.RespondToSwap(ctx, exchange.RespondInput{
		ProposalID:      request.ProposalID,
		ActorID:         actorID,
		Decision:        decision,
		ResponseMessage: request.ResponseMessage,
	})
	if err != nil {
		return nil, mapToGRPCError(err)
	}
	return &SwapProposalResponse{Proposal: toSwapProposal(proposal)}, nil
}

func (service *ExchangeServiceServer) ScoreCandidates(_ context.Context, request *ScoreCandidatesRequest) (*ScoreCandidatesResponse, error) {
	mode, err := match.ParseMode(request.Mode)
	if err != nil {
		return nil, mapToGRPCError(err)
	}
	now := service.nowFn().UTC()
	if request.NowUnixUTC != 0 {
		now = time.Unix(request.NowUnixUTC, 0).UTC()
	}
	candidates := make([]match.Candidate, 0, len(request.Candidates))
	for _, candidate := range request.Candidates {
		candidates = append(candidates, match.Candidate{
			ID:              candidate.ID,
			Title:           candidate.Title,
			Description:     candidate.Description,
			Category:        candidate.Category,
			Location:        candidate.Location,
			DietaryTags:     candidate.DietaryTags,
			Allergens:       candidate.Allergens,
			TicketsRequired: candidate.TicketsRequired,
			CreatedAt:       time.Unix(candidate.CreatedUnixUTC, 0).UTC(),
		})
	}
	profile := match.Profile{
		Location:            request.Profile.Location,
		DietaryRequirements: request.Profile.DietaryRequirements,
		Allergies:           request.Profile.Allergies,
	}
	ranked := match.Rank(profile, match.Query{Term: request.Term, Mode: mode, Now: now, Budget: request.Budget}, candidates)
	response := &ScoreCandidatesResponse{Ranked: make([]ScoredCandidate, 0, len(ranked))}
	for _, entry := range ranked {
		response.Ranked = append(response.Ranked, ScoredCandidate{ID: entry.Candidate.ID, Score: entry.Score})
	}
	return response, nil
}

func toSwapProposal(proposal exchange.SwapProposal) SwapProposal {
	return SwapProposal{
		ProposalID:         proposal.ID,
		RequesterID:        proposal.RequesterID.String(),
		ProviderID:         proposal.ProviderID.String(),
		RequesterListingID: proposal.RequesterListingID,
		ProviderListingID:  proposal.ProviderListingID,
		Status:             string(proposal.Status),
		Message:            proposal.Message,
		ResponseMessage:    proposal.ResponseMessage,
		UpdatedUnixUTC:     proposal.UpdatedAt.Unix(),
	}
}

func mapToGRPCError(source error) error {
	if errors.Is(source, ledger.ErrInvalidUserID) {
		return status.Error(codes.InvalidArgument, errorInvalidUserID)
	}
	if errors.Is(source, ledger.ErrInvalidPage) {
		return status.Error(codes.InvalidArgument, errorInvalidPage)
	}
	if errors.Is(source, exchange.ErrInvalidListingID) {
		return status.Error(codes.InvalidArgument, errorInvalidListingID)
	}
	if errors.Is(source, exchange.ErrInvalidProposalID) {
		return status.Error(codes.InvalidArgument, errorInvalidProposalID)
	}
	if errors.Is(source, exchange.ErrInvalidDecision) {
		return status.Error(codes.InvalidArgument, errorInvalidDecision)
	}
	if errors.Is(source, match.ErrInvalidMode) {
		return status.Error(codes.InvalidArgument, errorInvalidMode)
	}
	if errors.Is(source, exchange.ErrNotFound) {
		return status.Error(codes.NotFound, errorNotFound)
	}
	if errors.Is(source, exchange.ErrSelfClaimDenied) {
		return status.Error(codes.PermissionDenied, errorSelfClaimDenied)
	}
	if errors.Is(source, exchange.ErrForbidden) {
		return status.Error(codes.PermissionDenied, errorForbidden)
	}
	if errors.Is(source, ledger.ErrInsufficientBalance) {
		return status.Error(codes.FailedPrecondition, errorInsufficientBalance)
	}
	if errors.Is(source, exchange.ErrListingUnavailable) {
		return status.Error(codes.FailedPrecondition, errorListingUnavailable)
	}
	if errors.Is(source, exchange.ErrInvalidState) {
		return status.Error(codes.FailedPrecondition, errorInvalidState)
	}
	if errors.Is(source, exchange.ErrInvalidTransition) {
		return status.Error(codes.FailedPrecondition, errorInvalidTransition)
	}
	if errors.Is(source, exchange.ErrAlreadyClaimed) {
		return status.Error(codes.AlreadyExists, errorAlreadyClaimed)
	}
	if errors.Is(source, ledger.ErrDuplicateIdempotencyKey) {
		return status.Error(codes.AlreadyExists, errorDuplicateIdempotencyKey)
	}
	if errors.Is(source, ledger.ErrConcurrentModification) {
		return status.Error(codes.Aborted, errorConcurrentModification)
	}
	return status.Error(codes.Internal, source.Error())
}
