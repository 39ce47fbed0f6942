// Package oplog forwards ledger and exchange operation callbacks to zap.
package oplog

import (
	"context"

	"github.com/MarkoPoloResearchLab/mealswap/pkg/exchange"
	"github.com/MarkoPoloResearchLab/mealswap/pkg/ledger"
	"go.uber.org/zap"
)

// ZapLogger implements ledger.OperationLogger and exchange.OperationLogger.
// Successful operations log at info, failures at warn.
type ZapLogger struct {
	logger *zap.Logger
}

func NewZapLogger(logger *zap.Logger) *ZapLogger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ZapLogger{logger: logger}
}

func (zapLogger *ZapLogger) LogOperation(_ context.Context, entry ledger.OperationLog) {
	fields := []zap.Field{
		zap.String("operation", entry.Operation),
		zap.String("status", entry.Status),
		zap.String("user_id", entry.UserID.String()),
	}
	if entry.Kind != "" {
		fields = append(fields, zap.String("kind", entry.Kind.String()), zap.Int64("amount", entry.Amount.Int64()))
	}
	if entry.RelatedListingID != "" {
		fields = append(fields, zap.String("listing_id", entry.RelatedListingID))
	}
	if key := entry.IdempotencyKey.String(); key != "" {
		fields = append(fields, zap.String("idempotency_key", key))
	}
	zapLogger.write("ledger operation", entry.Error, fields)
}

func (zapLogger *ZapLogger) LogExchangeOperation(_ context.Context, entry exchange.OperationLog) {
	fields := []zap.Field{
		zap.String("operation", entry.Operation),
		zap.String("status", entry.Status),
		zap.String("actor_id", entry.ActorID.String()),
	}
	if entry.ListingID != "" {
		fields = append(fields, zap.String("listing_id", entry.ListingID))
	}
	if entry.ProposalID != "" {
		fields = append(fields, zap.String("proposal_id", entry.ProposalID))
	}
	if entry.Decision != "" {
		fields = append(fields, zap.String("decision", string(entry.Decision)))
	}
	zapLogger.write("exchange operation", entry.Error, fields)
}

func (zapLogger *ZapLogger) write(message string, err error, fields []zap.Field) {
	if err != nil {
		zapLogger.logger.Warn(message, append(fields, zap.Error(err))...)
		return
	}
	zapLogger.logger.Info(message, fields...)
}
