package grpcserver

import (
	"context"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/MarkoPoloResearchLab/mealswap/internal/store/gormstore"
	"github.com/MarkoPoloResearchLab/mealswap/pkg/exchange"
	"github.com/MarkoPoloResearchLab/mealswap/pkg/ledger"
	"github.com/glebarez/sqlite"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const bufferSize = 1024 * 1024

var fixedNow = time.Date(2026, time.May, 4, 18, 30, 0, 0, time.UTC)

type grpcHarness struct {
	client   *ExchangeServiceClient
	exchange *exchange.Service
}

func newGRPCHarness(test *testing.T) grpcHarness {
	test.Helper()
	database, err := gorm.Open(sqlite.Open(filepath.Join(test.TempDir(), "mealswap.db")), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		test.Fatalf("sqlite open failed: %v", err)
	}
	sqlDB, err := database.DB()
	if err != nil {
		test.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	test.Cleanup(func() { _ = sqlDB.Close() })
	if err := database.AutoMigrate(gormstore.Models()...); err != nil {
		test.Fatalf("automigrate failed: %v", err)
	}
	clock := func() time.Time { return fixedNow }
	ledgerService, err := ledger.NewService(gormstore.NewLedgerStore(database), func() int64 { return fixedNow.Unix() })
	if err != nil {
		test.Fatalf("ledger service: %v", err)
	}
	exchangeService, err := exchange.NewService(gormstore.New(database), ledgerService, clock)
	if err != nil {
		test.Fatalf("exchange service: %v", err)
	}

	listener := bufconn.Listen(bufferSize)
	server := grpc.NewServer()
	RegisterExchangeServiceServer(server, NewExchangeServiceServer(ledgerService, exchangeService, clock))
	go func() {
		if serveErr := server.Serve(listener); serveErr != nil {
			test.Logf("gRPC server error: %v", serveErr)
		}
	}()
	test.Cleanup(server.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return listener.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		test.Fatalf("dial: %v", err)
	}
	test.Cleanup(func() { _ = conn.Close() })
	return grpcHarness{client: NewExchangeServiceClient(conn), exchange: exchangeService}
}

func requireCode(test *testing.T, err error, wantCode codes.Code, wantMessage string) {
	test.Helper()
	statusInfo, ok := status.FromError(err)
	if !ok || statusInfo.Code() != wantCode || statusInfo.Message() != wantMessage {
		test.Fatalf("expected %s %q, got %v", wantCode, wantMessage, err)
	}
}

func TestClaimOverGRPC(test *testing.T) {
	test.Parallel()
	harness := newGRPCHarness(test)
	ctx := context.Background()
	owner, err := ledger.NewUserID("owner")
	if err != nil {
		test.Fatalf("user id: %v", err)
	}
	tickets := ledger.Tickets(3)
	listing, err := harness.exchange.CreateListing(ctx, owner, exchange.ListingDraft{Title: "Pho", TicketsRequired: &tickets})
	if err != nil {
		test.Fatalf("create listing: %v", err)
	}

	balance, err := harness.client.GetBalance(ctx, &BalanceRequest{UserID: "claimer"})
	if err != nil || balance.Balance != ledger.DefaultInitialTickets.Int64() {
		test.Fatalf("expected initial balance, got %+v (%v)", balance, err)
	}
	claimed, err := harness.client.ClaimListing(ctx, &ClaimListingRequest{ClaimerID: "claimer", ListingID: listing.ID})
	if err != nil {
		test.Fatalf("claim: %v", err)
	}
	if claimed.NewBalance != 2 || claimed.Claim.ProviderID != "owner" || claimed.Claim.TicketsSpent != 3 {
		test.Fatalf("unexpected claim response: %+v", claimed)
	}
	_, err = harness.client.ClaimListing(ctx, &ClaimListingRequest{ClaimerID: "other", ListingID: listing.ID})
	requireCode(test, err, codes.AlreadyExists, errorAlreadyClaimed)

	transactions, err := harness.client.ListTransactions(ctx, &ListTransactionsRequest{UserID: "claimer"})
	if err != nil {
		test.Fatalf("list: %v", err)
	}
	if len(transactions.Transactions) != 2 || transactions.Transactions[0].Kind != "spent" || transactions.Transactions[0].IdempotencyKey != "claim:"+listing.ID+":spent" {
		test.Fatalf("unexpected transactions: %+v", transactions.Transactions)
	}
}

func TestErrorMappingOverGRPC(test *testing.T) {
	test.Parallel()
	harness := newGRPCHarness(test)
	ctx := context.Background()

	_, err := harness.client.GetBalance(ctx, &BalanceRequest{UserID: " "})
	requireCode(test, err, codes.InvalidArgument, errorInvalidUserID)
	_, err = harness.client.ListTransactions(ctx, &ListTransactionsRequest{UserID: "user", Limit: 1000})
	requireCode(test, err, codes.InvalidArgument, errorInvalidPage)
	_, err = harness.client.ClaimListing(ctx, &ClaimListingRequest{ClaimerID: "user", ListingID: "missing"})
	requireCode(test, err, codes.NotFound, errorNotFound)
	_, err = harness.client.RespondToSwap(ctx, &RespondToSwapRequest{ProposalID: "missing", ActorID: "user", Decision: "later"})
	requireCode(test, err, codes.InvalidArgument, errorInvalidDecision)
	_, err = harness.client.ScoreCandidates(ctx, &ScoreCandidatesRequest{Mode: "random"})
	requireCode(test, err, codes.InvalidArgument, errorInvalidMode)
}

func TestSwapOverGRPC(test *testing.T) {
	test.Parallel()
	harness := newGRPCHarness(test)
	ctx := context.Background()
	requester, _ := ledger.NewUserID("requester")
	provider, _ := ledger.NewUserID("provider")
	offered, err := harness.exchange.CreateListing(ctx, requester, exchange.ListingDraft{Title: "Bagels"})
	if err != nil {
		test.Fatalf("create: %v", err)
	}
	wanted, err := harness.exchange.CreateListing(ctx, provider, exchange.ListingDraft{Title: "Lox"})
	if err != nil {
		test.Fatalf("create: %v", err)
	}

	created, err := harness.client.CreateSwapProposal(ctx, &CreateSwapProposalRequest{RequesterID: "requester", RequesterListingID: offered.ID, ProviderListingID: wanted.ID})
	if err != nil {
		test.Fatalf("propose: %v", err)
	}
	if created.Proposal.Status != string(exchange.SwapPending) || created.Proposal.ProviderID != "provider" {
		test.Fatalf("unexpected proposal: %+v", created.Proposal)
	}
	_, err = harness.client.RespondToSwap(ctx, &RespondToSwapRequest{ProposalID: created.Proposal.ProposalID, ActorID: "stranger", Decision: "accept"})
	requireCode(test, err, codes.PermissionDenied, errorForbidden)
	_, err = harness.client.RespondToSwap(ctx, &RespondToSwapRequest{ProposalID: created.Proposal.ProposalID, ActorID: "provider", Decision: "complete"})
	requireCode(test, err, codes.FailedPrecondition, errorInvalidTransition)

	rejected, err := harness.client.RespondToSwap(ctx, &RespondToSwapRequest{ProposalID: created.Proposal.ProposalID, ActorID: "provider", Decision: "reject", ResponseMessage: "no thanks"})
	if err != nil {
		test.Fatalf("reject: %v", err)
	}
	if rejected.Proposal.Status != string(exchange.SwapRejected) || rejected.Proposal.ResponseMessage != "no thanks" {
		test.Fatalf("unexpected rejection: %+v", rejected.Proposal)
	}
}

func TestScoreCandidatesOverGRPC(test *testing.T) {
	test.Parallel()
	harness := newGRPCHarness(test)
	budget := int64(2)
	response, err := harness.client.ScoreCandidates(context.Background(), &ScoreCandidatesRequest{
		Profile: Profile{Location: "Oakland", DietaryRequirements: []string{"vegan"}, Allergies: []string{"nuts"}},
		Mode:    "recommend",
		Budget:  &budget,
		Candidates: []Candidate{
			{ID: "fresh", Title: "Salad", Location: "Oakland", DietaryTags: []string{"vegan"}, TicketsRequired: 1, CreatedUnixUTC: fixedNow.Add(-time.Hour).Unix()},
			{ID: "old", Title: "Stew", TicketsRequired: 3, CreatedUnixUTC: fixedNow.Add(-72 * time.Hour).Unix()},
			{ID: "nutty", Title: "Brownies", Allergens: []string{"Nuts"}, TicketsRequired: 1},
		},
	})
	if err != nil {
		test.Fatalf("score: %v", err)
	}
	if len(response.Ranked) != 2 {
		test.Fatalf("expected allergen candidate removed, got %+v", response.Ranked)
	}
	if response.Ranked[0].ID != "fresh" || response.Ranked[0].Score != 3+2+1+1+1+2 {
		test.Fatalf("unexpected top candidate: %+v", response.Ranked[0])
	}
	if response.Ranked[1].ID != "old" || response.Ranked[1].Score != 1 {
		test.Fatalf("unexpected second candidate: %+v", response.Ranked[1])
	}
}
