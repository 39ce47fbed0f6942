package pgstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MarkoPoloResearchLab/mealswap/pkg/ledger"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	constraintTransactionIdempotencyKey = "uniq_ticket_transactions_user_key"
	pgUniqueViolationCode               = "23505"
	pgDeadlockDetectedCode              = "40P01"
	pgSerializationFailureCode          = "40001"
	errorOperationStore                 = "store"
	errorSubjectAccount                 = "account"
	errorSubjectBalance                 = "balance"
	errorSubjectTransaction             = "transaction"
	errorCodeBegin                      = "begin"
	errorCodeCommit                     = "commit"
	errorCodeCreate                     = "create"
	errorCodeDuplicate                  = "duplicate"
	errorCodeGet                        = "get"
	errorCodeInsert                     = "insert"
	errorCodeInvalid                    = "invalid"
	errorCodeList                       = "list"
	errorCodeSum                        = "sum"
	errorCodeUpdate                     = "update"
	errorCodeVersion                    = "version"

	sqlInsertAccount = `
		insert into ticket_accounts(user_id, balance, version, created_at, updated_at)
		values ($1, 0, 0, now(), now())
		on conflict (user_id) do nothing
	`

	sqlSelectAccountForUpdate = `
		select balance, version from ticket_accounts
		where user_id = $1
		for update
	`

	sqlUpdateAccountBalance = `
		update ticket_accounts
		set balance = $2, version = $3 + 1, updated_at = now()
		where user_id = $1 and version = $3
	`

	sqlInsertTransaction = `
		insert into ticket_transactions(
			transaction_id, user_id, amount, kind, related_listing_id, idempotency_key, description, created_at
		)
		values ($1, $2, $3, $4, nullif($5, ''), $6, $7, to_timestamp($8))
		returning sequence
	`

	sqlSumTransactions = `
		select coalesce(sum(amount), 0) from ticket_transactions
		where user_id = $1
	`

	sqlListTransactions = `
		select
			sequence,
			transaction_id,
			amount,
			kind,
			coalesce(related_listing_id, ''),
			idempotency_key,
			description,
			extract(epoch from created_at)::bigint
		from ticket_transactions
		where user_id = $1
		order by sequence desc
		limit $2 offset $3
	`

	sqlListAccountIDs = `
		select user_id from ticket_accounts
		order by user_id
		limit $1 offset $2
	`
)

// querier is satisfied by *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store implements ledger.Store over the ticket tables using pgx directly.
// It reads the schema created by the gorm migrations.
type Store struct {
	pool *pgxpool.Pool
	db   querier
}

// New returns a Store backed by a pgx pool (autocommit).
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool, db: pool}
}

// WithTx runs fn in a transaction. Calls on a transaction-bound store join the open transaction.
func (store *Store) WithTx(ctx context.Context, fn func(ctx context.Context, txStore ledger.Store) error) error {
	if store.pool == nil {
		return fn(ctx, store)
	}
	tx, err := store.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return wrapStoreError(errorSubjectTransaction, errorCodeBegin, err)
	}
	transactionStore := &Store{db: tx}
	if err := fn(ctx, transactionStore); err != nil {
		_ = tx.Rollback(ctx)
		return retryableConflict(err)
	}
	if err := tx.Commit(ctx); err != nil {
		return wrapStoreError(errorSubjectTransaction, errorCodeCommit, err)
	}
	return nil
}

func (store *Store) CreateAccountIfMissing(ctx context.Context, userID ledger.UserID) (bool, error) {
	tag, err := store.db.Exec(ctx, sqlInsertAccount, userID.String())
	if err != nil {
		return false, wrapStoreError(errorSubjectAccount, errorCodeCreate, err)
	}
	return tag.RowsAffected() == 1, nil
}

func (store *Store) GetAccount(ctx context.Context, userID ledger.UserID) (ledger.Account, error) {
	var balance, version int64
	err := store.db.QueryRow(ctx, sqlSelectAccountForUpdate, userID.String()).Scan(&balance, &version)
	if errors.Is(err, pgx.ErrNoRows) {
		return ledger.Account{}, wrapStoreError(errorSubjectAccount, errorCodeGet, ledger.ErrUnknownAccount)
	}
	if err != nil {
		return ledger.Account{}, wrapStoreError(errorSubjectAccount, errorCodeGet, err)
	}
	account, err := ledger.NewAccount(userID, ledger.Tickets(balance), version)
	if err != nil {
		return ledger.Account{}, wrapStoreError(errorSubjectAccount, errorCodeInvalid, err)
	}
	return account, nil
}

func (store *Store) UpdateAccountBalance(ctx context.Context, userID ledger.UserID, balance ledger.Tickets, expectedVersion int64) error {
	tag, err := store.db.Exec(ctx, sqlUpdateAccountBalance, userID.String(), balance.Int64(), expectedVersion)
	if err != nil {
		return wrapStoreError(errorSubjectAccount, errorCodeUpdate, err)
	}
	if tag.RowsAffected() == 0 {
		return wrapStoreError(errorSubjectAccount, errorCodeVersion, fmt.Errorf("%w: account %s", ledger.ErrConcurrentModification, userID))
	}
	return nil
}

func (store *Store) InsertTransaction(ctx context.Context, transaction ledger.Transaction) (ledger.Transaction, error) {
	if transaction.TransactionID == "" {
		transaction.TransactionID = uuid.NewString()
	}
	if transaction.CreatedUnixUTC == 0 {
		transaction.CreatedUnixUTC = time.Now().UTC().Unix()
	}
	err := store.db.QueryRow(ctx, sqlInsertTransaction,
		transaction.TransactionID,
		transaction.UserID.String(),
		transaction.Amount.Int64(),
		transaction.Kind.String(),
		transaction.RelatedListingID,
		transaction.IdempotencyKey.String(),
		transaction.Description,
		transaction.CreatedUnixUTC,
	).Scan(&transaction.Sequence)
	if isIdempotencyConflict(err) {
		return ledger.Transaction{}, wrapStoreError(errorSubjectTransaction, errorCodeDuplicate, ledger.ErrDuplicateIdempotencyKey)
	}
	if err != nil {
		return ledger.Transaction{}, wrapStoreError(errorSubjectTransaction, errorCodeInsert, err)
	}
	return transaction, nil
}

func (store *Store) SumTransactions(ctx context.Context, userID ledger.UserID) (ledger.Tickets, error) {
	var sum int64
	if err := store.db.QueryRow(ctx, sqlSumTransactions, userID.String()).Scan(&sum); err != nil {
		return 0, wrapStoreError(errorSubjectBalance, errorCodeSum, err)
	}
	return ledger.Tickets(sum), nil
}

func (store *Store) ListTransactions(ctx context.Context, userID ledger.UserID, page ledger.Page) ([]ledger.Transaction, error) {
	rows, err := store.db.Query(ctx, sqlListTransactions, userID.String(), page.Limit, page.Skip)
	if err != nil {
		return nil, wrapStoreError(errorSubjectTransaction, errorCodeList, err)
	}
	defer rows.Close()
	return scanTransactions(rows, userID)
}

// AccountIDs pages through every account in user id order.
func (store *Store) AccountIDs(ctx context.Context, page ledger.Page) ([]ledger.UserID, error) {
	rows, err := store.db.Query(ctx, sqlListAccountIDs, page.Limit, page.Skip)
	if err != nil {
		return nil, wrapStoreError(errorSubjectAccount, errorCodeList, err)
	}
	defer rows.Close()
	var userIDs []ledger.UserID
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, wrapStoreError(errorSubjectAccount, errorCodeList, err)
		}
		userID, err := ledger.NewUserID(raw)
		if err != nil {
			return nil, wrapStoreError(errorSubjectAccount, errorCodeInvalid, err)
		}
		userIDs = append(userIDs, userID)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapStoreError(errorSubjectAccount, errorCodeList, err)
	}
	return userIDs, nil
}

func scanTransactions(rows pgx.Rows, userID ledger.UserID) ([]ledger.Transaction, error) {
	var transactions []ledger.Transaction
	for rows.Next() {
		var (
			transaction    ledger.Transaction
			amount         int64
			kindValue      string
			idempotencyKey string
		)
		if err := rows.Scan(
			&transaction.Sequence,
			&transaction.TransactionID,
			&amount,
			&kindValue,
			&transaction.RelatedListingID,
			&idempotencyKey,
			&transaction.Description,
			&transaction.CreatedUnixUTC,
		); err != nil {
			return nil, wrapStoreError(errorSubjectTransaction, errorCodeList, err)
		}
		kind, err := ledger.ParseTransactionKind(kindValue)
		if err != nil {
			return nil, wrapStoreError(errorSubjectTransaction, errorCodeInvalid, err)
		}
		key, err := ledger.NewIdempotencyKey(idempotencyKey)
		if err != nil {
			return nil, wrapStoreError(errorSubjectTransaction, errorCodeInvalid, err)
		}
		transaction.UserID = userID
		transaction.Amount = ledger.Tickets(amount)
		transaction.Kind = kind
		transaction.IdempotencyKey = key
		transactions = append(transactions, transaction)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapStoreError(errorSubjectTransaction, errorCodeList, err)
	}
	return transactions, nil
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

func isIdempotencyConflict(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == pgUniqueViolationCode && pgErr.ConstraintName == constraintTransactionIdempotencyKey
}
