package gormstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/MarkoPoloResearchLab/mealswap/pkg/exchange"
	"github.com/MarkoPoloResearchLab/mealswap/pkg/ledger"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Inbox persists notifications so users can read them later. It implements exchange.Notifier.
type Inbox struct {
	db    *gorm.DB
	nowFn func() time.Time
}

// InboxEntry is a stored notification.
type InboxEntry struct {
	ID        string
	UserID    ledger.UserID
	Kind      exchange.NotificationKind
	Title     string
	Message   string
	Payload   map[string]string
	IsRead    bool
	CreatedAt time.Time
}

// NewInbox returns an Inbox backed by gorm.DB.
func NewInbox(db *gorm.DB, now func() time.Time) *Inbox {
	if now == nil {
		now = time.Now
	}
	return &Inbox{db: db, nowFn: now}
}

// Send stores the notification.
func (inbox *Inbox) Send(ctx context.Context, notification exchange.Notification) error {
	payload := datatypes.JSON([]byte(emptyObjectJSON))
	if len(notification.Payload) > 0 {
		raw, err := json.Marshal(notification.Payload)
		if err != nil {
			return wrapStoreError(errorSubjectNotification, errorCodeInvalid, err)
		}
		payload = datatypes.JSON(raw)
	}
	model := Notification{
		UserID:    notification.UserID.String(),
		Kind:      string(notification.Kind),
		Title:     notification.Title,
		Message:   notification.Message,
		Payload:   payload,
		CreatedAt: inbox.nowFn().UTC(),
	}
	if err := inbox.db.WithContext(ctx).Create(&model).Error; err != nil {
		return wrapStoreError(errorSubjectNotification, errorCodeCreate, err)
	}
	return nil
}

// List returns a user's notifications, newest first.
func (inbox *Inbox) List(ctx context.Context, userID ledger.UserID, unreadOnly bool, page ledger.Page) ([]InboxEntry, error) {
	query := inbox.db.WithContext(ctx).Where("user_id = ?", userID.String())
	if unreadOnly {
		query = query.Where("is_read = ?", false)
	}
	var rows []Notification
	if err := applyPage(query.Order("created_at DESC").Order("notification_id ASC"), page).Find(&rows).Error; err != nil {
		return nil, wrapStoreError(errorSubjectNotification, errorCodeList, err)
	}
	entries := make([]InboxEntry, 0, len(rows))
	for _, row := range rows {
		payload := map[string]string{}
		if len(row.Payload) > 0 {
			if err := json.Unmarshal(row.Payload, &payload); err != nil {
				return nil, wrapStoreError(errorSubjectNotification, errorCodeInvalid, err)
			}
		}
		entries = append(entries, InboxEntry{
			ID:        row.NotificationID,
			UserID:    userID,
			Kind:      exchange.NotificationKind(row.Kind),
			Title:     row.Title,
			Message:   row.Message,
			Payload:   payload,
			IsRead:    row.IsRead,
			CreatedAt: row.CreatedAt.UTC(),
		})
	}
	return entries, nil
}

// MarkRead flags one of the user's notifications as read.
func (inbox *Inbox) MarkRead(ctx context.Context, userID ledger.UserID, notificationID string) error {
	result := inbox.db.WithContext(ctx).
		Model(&Notification{}).
		Where("notification_id = ? AND user_id = ?", notificationID, userID.String()).
		Update("is_read", true)
	if result.Error != nil {
		return wrapStoreError(errorSubjectNotification, errorCodeUpdate, result.Error)
	}
	if result.RowsAffected == 0 {
		return wrapStoreError(errorSubjectNotification, errorCodeUpdate, fmt.Errorf("%w: notification %s", exchange.ErrNotFound, notificationID))
	}
	return nil
}

// MarkAllRead flags every unread notification of the user as read and returns how many changed.
func (inbox *Inbox) MarkAllRead(ctx context.Context, userID ledger.UserID) (int64, error) {
	result := inbox.db.WithContext(ctx).
		Model(&Notification{}).
		Where("user_id = ? AND is_read = ?", userID.String(), false).
		Update("is_read", true)
	if result.Error != nil {
		return 0, wrapStoreError(errorSubjectNotification, errorCodeUpdate, result.Error)
	}
	return result.RowsAffected, nil
}

// Delete removes one of the user's notifications.
func (inbox *Inbox) Delete(ctx context.Context, userID ledger.UserID, notificationID string) error {
	result := inbox.db.WithContext(ctx).
		Where("notification_id = ? AND user_id = ?", notificationID, userID.String()).
		Delete(&Notification{})
	if result.Error != nil {
		return wrapStoreError(errorSubjectNotification, errorCodeDelete, result.Error)
	}
	if result.RowsAffected == 0 {
		return wrapStoreError(errorSubjectNotification, errorCodeDelete, fmt.Errorf("%w: notification %s", exchange.ErrNotFound, notificationID))
	}
	return nil
}
