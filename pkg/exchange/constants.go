package exchange

const (
	operationClaim        = "claim"
	operationCreateSwap   = "create_swap"
	operationRespondSwap  = "respond_swap"
	operationCreateList   = "create_listing"
	operationUpdateList   = "update_listing"
	operationDeleteList   = "delete_listing"
	operationPutProfile   = "put_profile"
	operationNotification = "notify"

	operationStatusOK    = "ok"
	operationStatusError = "error"

	defaultTicketsRequired = 1
	defaultPageLimit       = 10
	maxPageLimit           = 100
	searchCandidateLimit   = 200

	claimSpentKeyFormat   = "claim:%s:spent"
	claimEarnedKeyFormat  = "claim:%s:earned"
	claimSpentDescFormat  = "Claimed food: %s"
	claimEarnedDescFormat = "Someone claimed your food: %s"
)

const (
	payloadListingID  = "listing_id"
	payloadProposalID = "proposal_id"
	payloadClaimID    = "claim_id"
	payloadActorID    = "actor_id"
	payloadTickets    = "tickets"
	payloadStatus     = "status"
)
