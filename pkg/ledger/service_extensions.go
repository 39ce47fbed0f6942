package ledger

import (
	"context"
	"fmt"
)

// ListTransactions lists a user's transactions newest first.
func (service *Service) ListTransactions(requestContext context.Context, userID UserID, page Page) ([]Transaction, error) {
	if userID.IsZero() {
		return nil, fmt.Errorf("%w: empty value", ErrInvalidUserID)
	}
	return service.store.ListTransactions(requestContext, userID, page.bounded())
}

// VerifyBalance recomputes the signed sum of the log and compares it with the cached balance.
func (service *Service) VerifyBalance(requestContext context.Context, userID UserID) error {
	return service.store.WithTx(requestContext, func(ctx context.Context, transactionStore Store) error {
		account, err := transactionStore.GetAccount(ctx, userID)
		if err != nil {
			return err
		}
		sum, err := transactionStore.SumTransactions(ctx, userID)
		if err != nil {
			return err
		}
		if sum != account.Balance {
			return fmt.Errorf("%w: log sum %d, cached %d", ErrBalanceMismatch, sum, account.Balance)
		}
		return nil
	})
}
