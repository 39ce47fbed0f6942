// Package httpapi exposes the exchange over HTTP behind tauth session cookies.
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/MarkoPoloResearchLab/mealswap/internal/store/gormstore"
	"github.com/MarkoPoloResearchLab/mealswap/pkg/exchange"
	"github.com/MarkoPoloResearchLab/mealswap/pkg/ledger"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/tyemirov/tauth/pkg/sessionvalidator"
	"go.uber.org/zap"
)

const (
	claimsContextKey = "auth_claims"
	shutdownTimeout  = 5 * time.Second
)

// Inbox reads and maintains stored notifications.
type Inbox interface {
	List(ctx context.Context, userID ledger.UserID, unreadOnly bool, page ledger.Page) ([]gormstore.InboxEntry, error)
	MarkRead(ctx context.Context, userID ledger.UserID, notificationID string) error
	MarkAllRead(ctx context.Context, userID ledger.UserID) (int64, error)
	Delete(ctx context.Context, userID ledger.UserID, notificationID string) error
}

// Services are the domain services behind the routes. Inbox is optional.
type Services struct {
	Ledger   *ledger.Service
	Exchange *exchange.Service
	Inbox    Inbox
}

// NewRouter builds the gin engine. cfg must already be validated.
func NewRouter(cfg Config, services Services, logger *zap.Logger) (*gin.Engine, error) {
	if services.Ledger == nil || services.Exchange == nil {
		return nil, fmt.Errorf("http api: ledger and exchange services are required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	sessionValidator, err := sessionvalidator.New(sessionvalidator.Config{
		SigningKey: []byte(cfg.SessionSigningKey),
		Issuer:     cfg.SessionIssuer,
		CookieName: cfg.SessionCookieName,
	})
	if err != nil {
		return nil, fmt.Errorf("session validator: %w", err)
	}
	handler := &httpHandler{
		logger:   logger,
		services: services,
		cfg:      cfg,
	}
	return setupRouter(cfg, handler, sessionValidator), nil
}

// Run serves handler until ctx is cancelled.
func Run(ctx context.Context, cfg Config, handler http.Handler, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	server := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: handler,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http api listening", zap.String("addr", cfg.ListenAddr))
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if shutdownErr := server.Shutdown(shutdownCtx); shutdownErr != nil {
			logger.Warn("server shutdown error", zap.Error(shutdownErr))
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func setupRouter(cfg Config, handler *httpHandler, validator *sessionvalidator.Validator) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Content-Type", "Origin", "Accept"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	router.GET("/healthz", func(ctx *gin.Context) {
		ctx.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := router.Group("/api")
	api.Use(validator.GinMiddleware(claimsContextKey))

	api.GET("/tickets/balance", handler.handleBalance)
	api.GET("/tickets/transactions", handler.handleTransactions)

	api.GET("/listings", handler.handleListListings)
	api.POST("/listings", handler.handleCreateListing)
	api.GET("/listings/:id", handler.handleGetListing)
	api.PATCH("/listings/:id", handler.handleUpdateListing)
	api.DELETE("/listings/:id", handler.handleDeleteListing)
	api.POST("/listings/:id/claim", handler.handleClaim)
	api.GET("/claims", handler.handleListClaims)

	api.GET("/swaps", handler.handleListSwaps)
	api.POST("/swaps", handler.handleCreateSwap)
	api.GET("/swaps/:id", handler.handleGetSwap)
	api.PATCH("/swaps/:id", handler.handleRespondSwap)

	api.GET("/profile", handler.handleGetProfile)
	api.PUT("/profile", handler.handlePutProfile)
	api.POST("/search", handler.handleSearch)

	api.GET("/notifications", handler.handleListNotifications)
	api.PATCH("/notifications", handler.handleMarkAllNotificationsRead)
	api.PATCH("/notifications/:id/read", handler.handleMarkNotificationRead)
	api.DELETE("/notifications/:id", handler.handleDeleteNotification)

	return router
}

func getClaims(ctx *gin.Context) *sessionvalidator.Claims {
	claimsValue, ok := ctx.Get(claimsContextKey)
	if !ok {
		return nil
	}
	claims, _ := claimsValue.(*sessionvalidator.Claims)
	return claims
}
