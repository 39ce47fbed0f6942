package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/MarkoPoloResearchLab/mealswap/pkg/exchange"
	"github.com/MarkoPoloResearchLab/mealswap/pkg/ledger"
	"github.com/MarkoPoloResearchLab/mealswap/pkg/match"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type httpHandler struct {
	logger   *zap.Logger
	services Services
	cfg      Config
}

// currentUser aborts with 401 when the session carries no usable user id.
func (handler *httpHandler) currentUser(ctx *gin.Context) (ledger.UserID, bool) {
	claims := getClaims(ctx)
	if claims == nil {
		ctx.JSON(http.StatusUnauthorized, errorResponse(errorCodeUnauthorized, "missing session"))
		return ledger.UserID{}, false
	}
	userID, err := ledger.NewUserID(claims.GetUserID())
	if err != nil {
		ctx.JSON(http.StatusUnauthorized, errorResponse(errorCodeUnauthorized, "session has no user id"))
		return ledger.UserID{}, false
	}
	return userID, true
}

func (handler *httpHandler) requestContext(ctx *gin.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx.Request.Context(), handler.cfg.RequestTimeout)
}

func (handler *httpHandler) bindJSON(ctx *gin.Context, target any) bool {
	if err := ctx.ShouldBindJSON(target); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse(errorCodeInvalidPayload, "expected JSON body"))
		return false
	}
	return true
}

func (handler *httpHandler) handleBalance(ctx *gin.Context) {
	userID, ok := handler.currentUser(ctx)
	if !ok {
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	balance, err := handler.services.Ledger.GetBalance(requestCtx, userID)
	if err != nil {
		handler.respondError(ctx, "balance", err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"user_id": userID.String(), "balance": balance.Int64()})
}

func (handler *httpHandler) handleTransactions(ctx *gin.Context) {
	userID, ok := handler.currentUser(ctx)
	if !ok {
		return
	}
	page, err := parsePage(ctx)
	if err != nil {
		handler.respondError(ctx, "transactions", err)
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	transactions, err := handler.services.Ledger.ListTransactions(requestCtx, userID, page)
	if err != nil {
		handler.respondError(ctx, "transactions", err)
		return
	}
	payloads := make([]transactionPayload, 0, len(transactions))
	for _, transaction := range transactions {
		payloads = append(payloads, toTransactionPayload(transaction))
	}
	ctx.JSON(http.StatusOK, gin.H{"transactions": payloads})
}

func (handler *httpHandler) handleListListings(ctx *gin.Context) {
	if _, ok := handler.currentUser(ctx); !ok {
		return
	}
	filter, err := parseListingFilter(ctx)
	if err != nil {
		handler.respondError(ctx, "list listings", err)
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	listings, err := handler.services.Exchange.ListListings(requestCtx, filter)
	if err != nil {
		handler.respondError(ctx, "list listings", err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"listings": toListingPayloads(listings)})
}

func (handler *httpHandler) handleCreateListing(ctx *gin.Context) {
	userID, ok := handler.currentUser(ctx)
	if !ok {
		return
	}
	var request listingRequest
	if !handler.bindJSON(ctx, &request) {
		return
	}
	draft, err := request.draft()
	if err != nil {
		handler.respondError(ctx, "create listing", err)
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	listing, err := handler.services.Exchange.CreateListing(requestCtx, userID, draft)
	if err != nil {
		handler.respondError(ctx, "create listing", err)
		return
	}
	ctx.JSON(http.StatusCreated, gin.H{"listing": toListingPayload(listing)})
}

func (handler *httpHandler) handleGetListing(ctx *gin.Context) {
	if _, ok := handler.currentUser(ctx); !ok {
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	listing, err := handler.services.Exchange.GetListing(requestCtx, ctx.Param("id"))
	if err != nil {
		handler.respondError(ctx, "get listing", err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"listing": toListingPayload(listing)})
}

func (handler *httpHandler) handleUpdateListing(ctx *gin.Context) {
	userID, ok := handler.currentUser(ctx)
	if !ok {
		return
	}
	var request listingPatchRequest
	if !handler.bindJSON(ctx, &request) {
		return
	}
	update, err := request.update()
	if err != nil {
		handler.respondError(ctx, "update listing", err)
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	listing, err := handler.services.Exchange.UpdateListing(requestCtx, userID, ctx.Param("id"), update)
	if err != nil {
		handler.respondError(ctx, "update listing", err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"listing": toListingPayload(listing)})
}

func (handler *httpHandler) handleDeleteListing(ctx *gin.Context) {
	userID, ok := handler.currentUser(ctx)
	if !ok {
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	listing, err := handler.services.Exchange.DeleteListing(requestCtx, userID, ctx.Param("id"))
	if err != nil {
		handler.respondError(ctx, "delete listing", err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"listing": toListingPayload(listing)})
}

func (handler *httpHandler) handleClaim(ctx *gin.Context) {
	userID, ok := handler.currentUser(ctx)
	if !ok {
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	result, err := handler.services.Exchange.ClaimListing(requestCtx, userID, ctx.Param("id"))
	if err != nil {
		handler.respondError(ctx, "claim", err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{
		"claim":       toClaimPayload(result.Claim),
		"new_balance": result.NewBalance.Int64(),
	})
}

func (handler *httpHandler) handleListClaims(ctx *gin.Context) {
	userID, ok := handler.currentUser(ctx)
	if !ok {
		return
	}
	page, err := parsePage(ctx)
	if err != nil {
		handler.respondError(ctx, "list claims", err)
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	claims, err := handler.services.Exchange.ListClaims(requestCtx, userID, page)
	if err != nil {
		handler.respondError(ctx, "list claims", err)
		return
	}
	payloads := make([]claimPayload, 0, len(claims))
	for _, claim := range claims {
		payloads = append(payloads, toClaimPayload(claim))
	}
	ctx.JSON(http.StatusOK, gin.H{"claims": payloads})
}

func (handler *httpHandler) handleListSwaps(ctx *gin.Context) {
	userID, ok := handler.currentUser(ctx)
	if !ok {
		return
	}
	filter, err := parseSwapFilter(ctx)
	if err != nil {
		handler.respondError(ctx, "list swaps", err)
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	proposals, err := handler.services.Exchange.ListSwaps(requestCtx, userID, filter)
	if err != nil {
		handler.respondError(ctx, "list swaps", err)
		return
	}
	payloads := make([]swapPayload, 0, len(proposals))
	for _, proposal := range proposals {
		payloads = append(payloads, toSwapPayload(proposal))
	}
	ctx.JSON(http.StatusOK, gin.H{"swaps": payloads})
}

func (handler *httpHandler) handleCreateSwap(ctx *gin.Context) {
	userID, ok := handler.currentUser(ctx)
	if !ok {
		return
	}
	var request swapRequest
	if !handler.bindJSON(ctx, &request) {
		return
	}
	input := exchange.CreateSwapInput{
		RequesterID:        userID,
		RequesterListingID: request.RequesterListingID,
		ProviderListingID:  request.ProviderListingID,
		Message:            request.Message,
	}
	if request.ProviderID != "" {
		providerID, err := ledger.NewUserID(request.ProviderID)
		if err != nil {
			handler.respondError(ctx, "create swap", err)
			return
		}
		input.ProviderID = providerID
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	proposal, err := handler.services.Exchange.CreateSwapProposal(requestCtx, input)
	if err != nil {
		handler.respondError(ctx, "create swap", err)
		return
	}
	ctx.JSON(http.StatusCreated, gin.H{"swap": toSwapPayload(proposal)})
}

func (handler *httpHandler) handleGetSwap(ctx *gin.Context) {
	userID, ok := handler.currentUser(ctx)
	if !ok {
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	proposal, err := handler.services.Exchange.GetSwap(requestCtx, userID, ctx.Param("id"))
	if err != nil {
		handler.respondError(ctx, "get swap", err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"swap": toSwapPayload(proposal)})
}

func (handler *httpHandler) handleRespondSwap(ctx *gin.Context) {
	userID, ok := handler.currentUser(ctx)
	if !ok {
		return
	}
	var request swapResponseRequest
	if !handler.bindJSON(ctx, &request) {
		return
	}
	decision, err := exchange.ParseSwapDecision(request.Decision)
	if err != nil {
		handler.respondError(ctx, "respond swap", err)
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	proposal, err := handler.services.Exchange.RespondToSwap(requestCtx, exchange.RespondInput{
		ProposalID:      ctx.Param("id"),
		ActorID:         userID,
		Decision:        decision,
		ResponseMessage: request.ResponseMessage,
	})
	if err != nil {
		handler.respondError(ctx, "respond swap", err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"swap": toSwapPayload(proposal)})
}

func (handler *httpHandler) handleGetProfile(ctx *gin.Context) {
	userID, ok := handler.currentUser(ctx)
	if !ok {
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	profile, err := handler.services.Exchange.GetProfile(requestCtx, userID)
	if err != nil {
		handler.respondError(ctx, "get profile", err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"profile": toProfilePayload(profile)})
}

func (handler *httpHandler) handlePutProfile(ctx *gin.Context) {
	userID, ok := handler.currentUser(ctx)
	if !ok {
		return
	}
	var request profileRequest
	if !handler.bindJSON(ctx, &request) {
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	profile, err := handler.services.Exchange.PutProfile(requestCtx, exchange.Profile{
		UserID:              userID,
		Location:            request.Location,
		DietaryRequirements: request.DietaryRequirements,
		Allergies:           request.Allergies,
		TicketBudget:        ticketsPointer(request.TicketBudget),
	})
	if err != nil {
		handler.respondError(ctx, "put profile", err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"profile": toProfilePayload(profile)})
}

func (handler *httpHandler) handleSearch(ctx *gin.Context) {
	userID, ok := handler.currentUser(ctx)
	if !ok {
		return
	}
	var request searchRequest
	if !handler.bindJSON(ctx, &request) {
		return
	}
	mode, err := match.ParseMode(request.Mode)
	if err != nil {
		handler.respondError(ctx, "search", err)
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	ranked, err := handler.services.Exchange.SearchListings(requestCtx, userID, match.Query{
		Term:   request.Term,
		Mode:   mode,
		Budget: request.Budget,
	})
	if err != nil {
		handler.respondError(ctx, "search", err)
		return
	}
	payloads := make([]rankedListingPayload, 0, len(ranked))
	for _, entry := range ranked {
		payloads = append(payloads, rankedListingPayload{Listing: toListingPayload(entry.Listing), Score: entry.Score})
	}
	ctx.JSON(http.StatusOK, gin.H{"results": payloads})
}

func (handler *httpHandler) handleListNotifications(ctx *gin.Context) {
	userID, ok := handler.currentUser(ctx)
	if !ok {
		return
	}
	if handler.services.Inbox == nil {
		ctx.JSON(http.StatusOK, gin.H{"notifications": []notificationPayload{}})
		return
	}
	page, err := parsePage(ctx)
	if err != nil {
		handler.respondError(ctx, "list notifications", err)
		return
	}
	unreadOnly, err := parseBoolQuery(ctx, "unread")
	if err != nil {
		handler.respondError(ctx, "list notifications", err)
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	entries, err := handler.services.Inbox.List(requestCtx, userID, unreadOnly, page)
	if err != nil {
		handler.respondError(ctx, "list notifications", err)
		return
	}
	payloads := make([]notificationPayload, 0, len(entries))
	for _, entry := range entries {
		payloads = append(payloads, toNotificationPayload(entry))
	}
	ctx.JSON(http.StatusOK, gin.H{"notifications": payloads})
}

func (handler *httpHandler) handleMarkNotificationRead(ctx *gin.Context) {
	userID, ok := handler.currentUser(ctx)
	if !ok {
		return
	}
	if handler.services.Inbox == nil {
		handler.respondError(ctx, "mark notification", fmt.Errorf("%w: notification %s", exchange.ErrNotFound, ctx.Param("id")))
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	if err := handler.services.Inbox.MarkRead(requestCtx, userID, ctx.Param("id")); err != nil {
		handler.respondError(ctx, "mark notification", err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (handler *httpHandler) handleMarkAllNotificationsRead(ctx *gin.Context) {
	userID, ok := handler.currentUser(ctx)
	if !ok {
		return
	}
	if handler.services.Inbox == nil {
		ctx.JSON(http.StatusOK, gin.H{"updated": 0})
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	updated, err := handler.services.Inbox.MarkAllRead(requestCtx, userID)
	if err != nil {
		handler.respondError(ctx, "mark notifications", err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"updated": updated})
}

func (handler *httpHandler) handleDeleteNotification(ctx *gin.Context) {
	userID, ok := handler.currentUser(ctx)
	if !ok {
		return
	}
	if handler.services.Inbox == nil {
		handler.respondError(ctx, "delete notification", fmt.Errorf("%w: notification %s", exchange.ErrNotFound, ctx.Param("id")))
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	if err := handler.services.Inbox.Delete(requestCtx, userID, ctx.Param("id")); err != nil {
		handler.respondError(ctx, "delete notification", err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func parsePage(ctx *gin.Context) (ledger.Page, error) {
	skip, err := parseIntQuery(ctx, "skip")
	if err != nil {
		return ledger.Page{}, err
	}
	limit, err := parseIntQuery(ctx, "limit")
	if err != nil {
		return ledger.Page{}, err
	}
	return ledger.NewPage(skip, limit)
}

func parseIntQuery(ctx *gin.Context, name string) (int, error) {
	raw := ctx.Query(name)
	if raw == "" {
		return 0, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be an integer", ledger.ErrInvalidPage, name)
	}
	return value, nil
}

func parseBoolQuery(ctx *gin.Context, name string) (bool, error) {
	raw := ctx.Query(name)
	if raw == "" {
		return false, nil
	}
	value, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("%w: %s must be a boolean", exchange.ErrInvalidFilter, name)
	}
	return value, nil
}

func parseListingFilter(ctx *gin.Context) (exchange.ListingFilter, error) {
	page, err := parsePage(ctx)
	if err != nil {
		return exchange.ListingFilter{}, err
	}
	availableOnly, err := parseBoolQuery(ctx, "available")
	if err != nil {
		return exchange.ListingFilter{}, err
	}
	filter := exchange.ListingFilter{
		AvailableOnly: availableOnly,
		Location:      ctx.Query("location"),
		DietaryTag:    ctx.Query("dietary_tag"),
		AllergenFree:  ctx.Query("allergen_free"),
		Search:        ctx.Query("search"),
		Page:          page,
	}
	if raw := ctx.Query("owner_id"); raw != "" {
		ownerID, err := ledger.NewUserID(raw)
		if err != nil {
			return exchange.ListingFilter{}, err
		}
		filter.OwnerID = ownerID
	}
	if raw := ctx.Query("food_type"); raw != "" {
		foodType, err := exchange.ParseFoodType(raw)
		if err != nil {
			return exchange.ListingFilter{}, fmt.Errorf("%w: %v", exchange.ErrInvalidFilter, err)
		}
		filter.FoodType = foodType
	}
	if raw := ctx.Query("category"); raw != "" {
		category, err := exchange.ParseCategory(raw)
		if err != nil {
			return exchange.ListingFilter{}, fmt.Errorf("%w: %v", exchange.ErrInvalidFilter, err)
		}
		filter.Category = category
	}
	return filter, nil
}

func parseSwapFilter(ctx *gin.Context) (exchange.SwapFilter, error) {
	page, err := parsePage(ctx)
	if err != nil {
		return exchange.SwapFilter{}, err
	}
	role, err := exchange.ParseSwapRole(ctx.Query("role"))
	if err != nil {
		return exchange.SwapFilter{}, err
	}
	filter := exchange.SwapFilter{Role: role, Page: page}
	if raw := ctx.Query("status"); raw != "" {
		status, err := exchange.ParseSwapStatus(raw)
		if err != nil {
			return exchange.SwapFilter{}, err
		}
		filter.Status = status
	}
	return filter, nil
}
