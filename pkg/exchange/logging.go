package exchange

import (
	"context"

	"github.com/MarkoPoloResearchLab/mealswap/pkg/ledger"
)

// ServiceOption configures a Service instance.
type ServiceOption func(*Service)

// OperationLogger records domain-level events emitted by Service operations.
type OperationLogger interface {
	LogExchangeOperation(ctx context.Context, entry OperationLog)
}

// OperationLog describes a state-changing exchange operation.
type OperationLog struct {
	Operation  string
	ActorID    ledger.UserID
	ListingID  string
	ProposalID string
	Decision   SwapDecision
	Status     string
	Error      error
}

// WithOperationLogger wires a logger that receives callbacks for every operation.
func WithOperationLogger(logger OperationLogger) ServiceOption {
	return func(service *Service) {
		service.logger = logger
	}
}

// WithNotifier wires the notification sink used after commits.
func WithNotifier(notifier Notifier) ServiceOption {
	return func(service *Service) {
		service.notifier = notifier
	}
}
