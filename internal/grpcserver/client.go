package grpcserver

import (
	"context"

	"google.golang.org/grpc"
)

// ExchangeServiceClient calls mealswap.v1.ExchangeService using the JSON codec.
type ExchangeServiceClient struct {
	conn grpc.ClientConnInterface
}

func NewExchangeServiceClient(conn grpc.ClientConnInterface) *ExchangeServiceClient {
	return &ExchangeServiceClient{conn: conn}
}

func (client *ExchangeServiceClient) invoke(ctx context.Context, method string, request any, response any, options ...grpc.CallOption) error {
	options = append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, options...)
	return client.conn.Invoke(ctx, fullMethodName(method), request, response, options...)
}

func (client *ExchangeServiceClient) GetBalance(ctx context.Context, request *BalanceRequest, options ...grpc.CallOption) (*BalanceResponse, error) {
	response := new(BalanceResponse)
	if err := client.invoke(ctx, methodGetBalance, request, response, options...); err != nil {
		return nil, err
	}
	return response, nil
}

func (client *ExchangeServiceClient) ListTransactions(ctx context.Context, request *ListTransactionsRequest, options ...grpc.CallOption) (*ListTransactionsResponse, error) {
	response := new(ListTransactionsResponse)
	if err := client.invoke(ctx, methodListTransactions, request, response, options...); err != nil {
		return nil, err
	}
	return response, nil
}

func (client *ExchangeServiceClient) ClaimListing(ctx context.Context, request *ClaimListingRequest, options ...grpc.CallOption) (*ClaimListingResponse, error) {
	response := new(ClaimListingResponse)
	if err := client.invoke(ctx, methodClaimListing, request, response, options...); err != nil {
		return nil, err
	}
	return response, nil
}

func (client *ExchangeServiceClient) CreateSwapProposal(ctx context.Context, request *CreateSwapProposalRequest, options ...grpc.CallOption) (*SwapProposalResponse, error) {
	response := new(SwapProposalResponse)
	if err := client.invoke(ctx, methodCreateSwapProposal, request, response, options...); err != nil {
		return nil, err
	}
	return response, nil
}

func (client *ExchangeServiceClient) RespondToSwap(ctx context.Context, request *RespondToSwapRequest, options ...grpc.CallOption) (*SwapProposalResponse, error) {
	response := new(SwapProposalResponse)
	if err := client.invoke(ctx, methodRespondToSwap, request, response, options...); err != nil {
		return nil, err
	}
	return response, nil
}

func (client *ExchangeServiceClient) ScoreCandidates(ctx context.Context, request *ScoreCandidatesRequest, options ...grpc.CallOption) (*ScoreCandidatesResponse, error) {
	response := new(ScoreCandidatesResponse)
	if err := client.invoke(ctx, methodScoreCandidates, request, response, options...); err != nil {
		return nil, err
	}
	return response, nil
}
