package grpcserver

import (
	"context"

	"google.golang.org/grpc"
)

const (
	serviceName = "mealswap.v1.ExchangeService"

	methodGetBalance         = "GetBalance"
	methodListTransactions   = "ListTransactions"
	methodClaimListing       = "ClaimListing"
	methodCreateSwapProposal = "CreateSwapProposal"
	methodRespondToSwap      = "RespondToSwap"
	methodScoreCandidates    = "ScoreCandidates"
)

// ExchangeServiceHandler is the server-side contract of mealswap.v1.ExchangeService.
type ExchangeServiceHandler interface {
	GetBalance(context.Context, *BalanceRequest) (*BalanceResponse, error)
	ListTransactions(context.Context, *ListTransactionsRequest) (*ListTransactionsResponse, error)
	ClaimListing(context.Context, *ClaimListingRequest) (*ClaimListingResponse, error)
	CreateSwapProposal(context.Context, *CreateSwapProposalRequest) (*SwapProposalResponse, error)
	RespondToSwap(context.Context, *RespondToSwapRequest) (*SwapProposalResponse, error)
	ScoreCandidates(context.Context, *ScoreCandidatesRequest) (*ScoreCandidatesResponse, error)
}

// ExchangeServiceDesc describes mealswap.v1.ExchangeService for grpc.ServiceRegistrar.
var ExchangeServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*ExchangeServiceHandler)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: methodGetBalance, Handler: unaryHandler(methodGetBalance, ExchangeServiceHandler.GetBalance)},
		{MethodName: methodListTransactions, Handler: unaryHandler(methodListTransactions, ExchangeServiceHandler.ListTransactions)},
		{MethodName: methodClaimListing, Handler: unaryHandler(methodClaimListing, ExchangeServiceHandler.ClaimListing)},
		{MethodName: methodCreateSwapProposal, Handler: unaryHandler(methodCreateSwapProposal, ExchangeServiceHandler.CreateSwapProposal)},
		{MethodName: methodRespondToSwap, Handler: unaryHandler(methodRespondToSwap, ExchangeServiceHandler.RespondToSwap)},
		{MethodName: methodScoreCandidates, Handler: unaryHandler(methodScoreCandidates, ExchangeServiceHandler.ScoreCandidates)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "mealswap/v1/exchange.json",
}

// RegisterExchangeServiceServer registers handler on registrar.
func RegisterExchangeServiceServer(registrar grpc.ServiceRegistrar, handler ExchangeServiceHandler) {
	registrar.RegisterService(&ExchangeServiceDesc, handler)
}

func fullMethodName(method string) string {
	return "/" + serviceName + "/" + method
}

// unaryHandler adapts a typed method expression to grpc's untyped handler signature.
func unaryHandler[Request any, Response any](method string, call func(ExchangeServiceHandler, context.Context, *Request) (*Response, error)) func(any, context.Context, func(any) error, grpc.UnaryServerInterceptor) (any, error) {
	return func(server any, ctx context.Context, decode func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		request := new(Request)
		if err := decode(request); err != nil {
			return nil, err
		}
		handler := server.(ExchangeServiceHandler)
		if interceptor == nil {
			return call(handler, ctx, request)
		}
		info := &grpc.UnaryServerInfo{Server: server, FullMethod: fullMethodName(method)}
		return interceptor(ctx, request, info, func(ctx context.Context, request any) (any, error) {
			return call(handler, ctx, request.(*Request))
		})
	}
}
