package ledger

import "context"

// ServiceOption configures a Service instance.
type ServiceOption func(*Service)

// OperationLogger records domain-level events emitted by Service operations.
type OperationLogger interface {
	LogOperation(ctx context.Context, entry OperationLog)
}

// OperationLog describes a state-changing ledger operation.
type OperationLog struct {
	Operation        string
	UserID           UserID
	Kind             TransactionKind
	Amount           Tickets
	RelatedListingID string
	IdempotencyKey   IdempotencyKey
	Status           string
	Error            error
}

// WithOperationLogger wires a logger that receives callbacks for every operation.
func WithOperationLogger(logger OperationLogger) ServiceOption {
	return func(service *Service) {
		service.logger = logger
	}
}

// WithInitialTickets overrides the one-time grant given to new accounts.
// Zero disables the grant.
func WithInitialTickets(amount Tickets) ServiceOption {
	return func(service *Service) {
		service.initialTickets = amount
	}
}
