package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/MarkoPoloResearchLab/mealswap/internal/store/gormstore"
	"github.com/MarkoPoloResearchLab/mealswap/internal/store/pgstore"
	"github.com/MarkoPoloResearchLab/mealswap/pkg/ledger"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const auditPageSize = 100

type auditStore interface {
	ledger.Store
	AccountIDs(ctx context.Context, page ledger.Page) ([]ledger.UserID, error)
}

func newAuditCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "audit [user-id...]",
		Short:         "Verify cached ticket balances against the transaction log",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			v := viper.New()
			v.SetEnvPrefix(envPrefix)
			v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
			v.AutomaticEnv()
			if err := v.BindPFlag(flagDatabaseURL, cmd.Flags().Lookup(flagDatabaseURL)); err != nil {
				return err
			}
			databaseURL := strings.TrimSpace(v.GetString(flagDatabaseURL))
			if databaseURL == "" {
				databaseURL = defaultDatabaseURL
			}
			return runAudit(cmd.Context(), databaseURL, args, cmd.OutOrStdout())
		},
	}
	cmd.Flags().String(flagDatabaseURL, defaultDatabaseURL, "postgres:// or sqlite:// URL, or a sqlite file path")
	return cmd
}

// runAudit checks the named users, or every account when none are named.
// Postgres databases are read through pgx; sqlite through gorm.
func runAudit(ctx context.Context, databaseURL string, rawUserIDs []string, out io.Writer) error {
	store, cleanup, err := openAuditStore(ctx, databaseURL)
	if err != nil {
		return err
	}
	defer cleanup()

	service, err := ledger.NewService(store, func() int64 { return time.Now().UTC().Unix() }, ledger.WithInitialTickets(0))
	if err != nil {
		return err
	}
	userIDs, err := auditTargets(ctx, store, rawUserIDs)
	if err != nil {
		return err
	}

	var failures []error
	for _, userID := range userIDs {
		if err := service.VerifyBalance(ctx, userID); err != nil {
			fmt.Fprintf(out, "%s\tFAIL\t%v\n", userID, err)
			failures = append(failures, fmt.Errorf("%s: %w", userID, err))
			continue
		}
		fmt.Fprintf(out, "%s\tok\n", userID)
	}
	if len(failures) > 0 {
		return fmt.Errorf("%d of %d accounts failed audit: %w", len(failures), len(userIDs), errors.Join(failures...))
	}
	return nil
}

func openAuditStore(ctx context.Context, databaseURL string) (auditStore, func(), error) {
	driver, _, err := resolveDriver(databaseURL)
	if err != nil {
		return nil, nil, err
	}
	if driver == driverPostgres {
		pool, err := pgxpool.New(ctx, databaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("pgx pool: %w", err)
		}
		return pgstore.New(pool), pool.Close, nil
	}
	db, closeDB, _, err := openDatabase(ctx, databaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("database open: %w", err)
	}
	if err := prepareSchema(db); err != nil {
		_ = closeDB()
		return nil, nil, err
	}
	return gormstore.NewLedgerStore(db), func() { _ = closeDB() }, nil
}

func auditTargets(ctx context.Context, store auditStore, rawUserIDs []string) ([]ledger.UserID, error) {
	if len(rawUserIDs) > 0 {
		userIDs := make([]ledger.UserID, 0, len(rawUserIDs))
		for _, raw := range rawUserIDs {
			userID, err := ledger.NewUserID(raw)
			if err != nil {
				return nil, err
			}
			userIDs = append(userIDs, userID)
		}
		return userIDs, nil
	}
	var userIDs []ledger.UserID
	for skip := 0; ; skip += auditPageSize {
		batch, err := store.AccountIDs(ctx, ledger.Page{Skip: skip, Limit: auditPageSize})
		if err != nil {
			return nil, err
		}
		userIDs = append(userIDs, batch...)
		if len(batch) < auditPageSize {
			return userIDs, nil
		}
	}
}
