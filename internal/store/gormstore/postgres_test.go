package gormstore

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/MarkoPoloResearchLab/mealswap/pkg/exchange"
	"github.com/MarkoPoloResearchLab/mealswap/pkg/ledger"
	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const postgresURLEnv = "MEALSWAP_TEST_POSTGRES_URL"

func newPostgresEnvironment(test *testing.T) testEnvironment {
	test.Helper()
	databaseURL := os.Getenv(postgresURLEnv)
	if databaseURL == "" {
		test.Skipf("%s not set", postgresURLEnv)
	}
	db, err := gorm.Open(postgres.Open(databaseURL), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		test.Fatalf("postgres open: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		test.Fatalf("sql db: %v", err)
	}
	test.Cleanup(func() { _ = sqlDB.Close() })
	if err := db.AutoMigrate(Models()...); err != nil {
		test.Fatalf("automigrate: %v", err)
	}
	clock := func() time.Time { return time.Now().UTC() }
	ledgerService, err := ledger.NewService(NewLedgerStore(db), func() int64 { return time.Now().UTC().Unix() })
	if err != nil {
		test.Fatalf("ledger service: %v", err)
	}
	inbox := NewInbox(db, clock)
	exchangeService, err := exchange.NewService(New(db), ledgerService, clock, exchange.WithNotifier(inbox))
	if err != nil {
		test.Fatalf("exchange service: %v", err)
	}
	return testEnvironment{db: db, ledger: ledgerService, exchange: exchangeService, inbox: inbox}
}

// TestCrossClaimsOnPostgres has two users claim each other's listings at the same time.
// Both claims lock the same pair of accounts, so neither may abort.
func TestCrossClaimsOnPostgres(test *testing.T) {
	environment := newPostgresEnvironment(test)
	ctx := context.Background()
	first := mustUserID(test, "cross-a-"+uuid.NewString())
	second := mustUserID(test, "cross-b-"+uuid.NewString())
	environment.balance(test, first)
	environment.balance(test, second)

	const rounds = 10
	for round := 0; round < rounds; round++ {
		firstListing := environment.createListing(test, first, exchange.ListingDraft{Title: "Soup", TicketsRequired: tickets(2)})
		secondListing := environment.createListing(test, second, exchange.ListingDraft{Title: "Bread", TicketsRequired: tickets(2)})

		var waitGroup sync.WaitGroup
		errs := make(chan error, 2)
		start := make(chan struct{})
		claim := func(claimerID ledger.UserID, listingID string) {
			defer waitGroup.Done()
			<-start
			_, err := environment.exchange.ClaimListing(ctx, claimerID, listingID)
			errs <- err
		}
		waitGroup.Add(2)
		go claim(first, secondListing.ID)
		go claim(second, firstListing.ID)
		close(start)
		waitGroup.Wait()
		close(errs)
		for err := range errs {
			if err != nil {
				test.Fatalf("round %d: cross claim failed: %v", round, err)
			}
		}
	}

	for _, userID := range []ledger.UserID{first, second} {
		if got := environment.balance(test, userID); got != ledger.DefaultInitialTickets {
			test.Fatalf("expected %s to end at %d, got %d", userID, ledger.DefaultInitialTickets, got)
		}
		if err := environment.ledger.VerifyBalance(ctx, userID); err != nil {
			test.Fatalf("verify %s: %v", userID, err)
		}
	}
}
