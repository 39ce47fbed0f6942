package httpapi

import (
	"errors"
	"net/http"

	"github.com/MarkoPoloResearchLab/mealswap/pkg/exchange"
	"github.com/MarkoPoloResearchLab/mealswap/pkg/ledger"
	"github.com/MarkoPoloResearchLab/mealswap/pkg/match"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	errorCodeUnauthorized   = "unauthorized"
	errorCodeInvalidPayload = "invalid_payload"
	errorCodeInternal       = "internal_error"
)

type errorMapping struct {
	target error
	status int
	code   string
}

// Checked in order; the first match wins.
var errorMappings = []errorMapping{
	{target: exchange.ErrNotFound, status: http.StatusNotFound, code: "not_found"},
	{target: ledger.ErrUnknownAccount, status: http.StatusNotFound, code: "not_found"},
	{target: exchange.ErrSelfClaimDenied, status: http.StatusForbidden, code: "self_claim_denied"},
	{target: exchange.ErrForbidden, status: http.StatusForbidden, code: "forbidden"},
	{target: exchange.ErrAlreadyClaimed, status: http.StatusConflict, code: "already_claimed"},
	{target: exchange.ErrListingUnavailable, status: http.StatusConflict, code: "listing_unavailable"},
	{target: exchange.ErrInvalidTransition, status: http.StatusConflict, code: "invalid_transition"},
	{target: exchange.ErrInvalidState, status: http.StatusConflict, code: "invalid_state"},
	{target: ledger.ErrConcurrentModification, status: http.StatusConflict, code: "concurrent_modification"},
	{target: ledger.ErrDuplicateIdempotencyKey, status: http.StatusConflict, code: "duplicate_request"},
	{target: ledger.ErrInsufficientBalance, status: http.StatusUnprocessableEntity, code: "insufficient_balance"},
	{target: exchange.ErrInvalidListing, status: http.StatusBadRequest, code: "invalid_listing"},
	{target: exchange.ErrInvalidListingID, status: http.StatusBadRequest, code: "invalid_listing_id"},
	{target: exchange.ErrInvalidProposalID, status: http.StatusBadRequest, code: "invalid_proposal_id"},
	{target: exchange.ErrInvalidDecision, status: http.StatusBadRequest, code: "invalid_decision"},
	{target: exchange.ErrInvalidProfile, status: http.StatusBadRequest, code: "invalid_profile"},
	{target: exchange.ErrInvalidFilter, status: http.StatusBadRequest, code: "invalid_filter"},
	{target: match.ErrInvalidMode, status: http.StatusBadRequest, code: "invalid_mode"},
	{target: ledger.ErrInvalidPage, status: http.StatusBadRequest, code: "invalid_page"},
	{target: ledger.ErrInvalidUserID, status: http.StatusBadRequest, code: "invalid_user_id"},
	{target: ledger.ErrInvalidAmount, status: http.StatusBadRequest, code: "invalid_amount"},
}

func classifyError(err error) (int, string) {
	for _, mapping := range errorMappings {
		if errors.Is(err, mapping.target) {
			return mapping.status, mapping.code
		}
	}
	return http.StatusInternalServerError, errorCodeInternal
}

func (handler *httpHandler) respondError(ctx *gin.Context, operation string, err error) {
	status, code := classifyError(err)
	if status == http.StatusInternalServerError {
		handler.logger.Error(operation+" failed", zap.Error(err))
		ctx.JSON(status, errorResponse(code, "internal error"))
		return
	}
	ctx.JSON(status, errorResponse(code, err.Error()))
}

func errorResponse(code string, message string) gin.H {
	return gin.H{
		"error": gin.H{
			"code":    code,
			"message": message,
		},
	}
}
