package ledger

const (
	operationBalance = "balance"
	operationRecord  = "record"

	operationStatusOK    = "ok"
	operationStatusError = "error"

	// DefaultInitialTickets is granted once to every new account.
	DefaultInitialTickets Tickets = 5

	initialIdempotencyKey = "initial"
	initialDescription    = "Initial ticket allocation"

	defaultPageLimit = 10
	maxPageLimit     = 100
)
