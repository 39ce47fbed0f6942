package exchange

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/MarkoPoloResearchLab/mealswap/pkg/ledger"
)

// Service coordinates listings, claims, and swaps over a Store.
type Service struct {
	store    Store
	ledger   *ledger.Service
	nowFn    func() time.Time
	notifier Notifier
	logger   OperationLogger
}

// NewService wires a Service.
func NewService(store Store, ledgerService *ledger.Service, now func() time.Time, options ...ServiceOption) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: store dependency is nil", ErrInvalidServiceConfig)
	}
	if ledgerService == nil {
		return nil, fmt.Errorf("%w: ledger dependency is nil", ErrInvalidServiceConfig)
	}
	if now == nil {
		return nil, fmt.Errorf("%w: clock dependency is nil", ErrInvalidServiceConfig)
	}
	service := &Service{store: store, ledger: ledgerService, nowFn: now}
	for _, option := range options {
		if option != nil {
			option(service)
		}
	}
	return service, nil
}

func (service *Service) now() time.Time {
	return service.nowFn().UTC()
}

// notify delivers after commit; delivery failures are logged and dropped.
func (service *Service) notify(ctx context.Context, notification Notification) {
	if service.notifier == nil {
		return
	}
	if err := service.notifier.Send(ctx, notification); err != nil {
		service.logOperation(ctx, OperationLog{
			Operation: operationNotification,
			ActorID:   notification.UserID,
			ListingID: notification.Payload[payloadListingID],
			Error:     err,
		})
	}
}

func (service *Service) logOperation(ctx context.Context, entry OperationLog) {
	if service.logger == nil {
		return
	}
	if entry.Status == "" {
		if entry.Error != nil {
			entry.Status = operationStatusError
		} else {
			entry.Status = operationStatusOK
		}
	}
	service.logger.LogExchangeOperation(ctx, entry)
}

func normalizeID(raw string, invalid error) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty value", invalid)
	}
	return trimmed, nil
}

func requireUser(userID ledger.UserID) error {
	if userID.IsZero() {
		return fmt.Errorf("%w: empty value", ledger.ErrInvalidUserID)
	}
	return nil
}

func normalizePage(page ledger.Page) ledger.Page {
	if page.Limit <= 0 {
		page.Limit = defaultPageLimit
	}
	if page.Limit > maxPageLimit {
		page.Limit = maxPageLimit
	}
	if page.Skip < 0 {
		page.Skip = 0
	}
	return page
}
