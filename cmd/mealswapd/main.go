package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/MarkoPoloResearchLab/mealswap/internal/grpcserver"
	"github.com/MarkoPoloResearchLab/mealswap/internal/httpapi"
	"github.com/MarkoPoloResearchLab/mealswap/internal/notify"
	"github.com/MarkoPoloResearchLab/mealswap/internal/oplog"
	"github.com/MarkoPoloResearchLab/mealswap/internal/store/gormstore"
	"github.com/MarkoPoloResearchLab/mealswap/pkg/exchange"
	"github.com/MarkoPoloResearchLab/mealswap/pkg/ledger"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
)

const (
	flagDatabaseURL    = "database-url"
	flagHTTPListenAddr = "http-listen-addr"
	flagGRPCListenAddr = "grpc-listen-addr"
	flagAllowedOrigins = "allowed-origins"
	flagJWTSigningKey  = "jwt-signing-key"
	flagJWTIssuer      = "jwt-issuer"
	flagJWTCookieName  = "jwt-cookie-name"
	flagAMQPURL        = "amqp-url"
	flagAMQPExchange   = "amqp-exchange"
	flagInitialTickets = "initial-tickets"
	flagRequestTimeout = "request-timeout"
	envPrefix          = "MEALSWAP"

	defaultDatabaseURL    = "sqlite:///tmp/mealswap.db"
	defaultHTTPListenAddr = ":8080"
	defaultGRPCListenAddr = ":7000"
	defaultJWTIssuer      = "tauth"
	defaultJWTCookieName  = "app_session"
	defaultAMQPExchange   = "mealswap.events"
	defaultRequestTimeout = 3 * time.Second
)

type runtimeConfig struct {
	DatabaseURL    string
	GRPCListenAddr string
	AMQPURL        string
	AMQPExchange   string
	InitialTickets int64
	HTTP           httpapi.Config
}

func main() {
	cmd := newRootCommand()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "mealswapd: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cfg := &runtimeConfig{}
	cmd := &cobra.Command{
		Use:           "mealswapd",
		Short:         "Food-sharing exchange HTTP and gRPC server",
		SilenceUsage:  true,
		SilenceErrors: true,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return loadConfig(cmd, cfg)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServer(ctx, cfg)
		},
	}

	cmd.Flags().String(flagDatabaseURL, defaultDatabaseURL, "postgres:// or sqlite:// URL, or a sqlite file path")
	cmd.Flags().String(flagHTTPListenAddr, defaultHTTPListenAddr, "HTTP listen address")
	cmd.Flags().String(flagGRPCListenAddr, defaultGRPCListenAddr, "gRPC listen address")
	cmd.Flags().String(flagAllowedOrigins, "", "comma-separated list of allowed CORS origins")
	cmd.Flags().String(flagJWTSigningKey, "", "TAuth JWT signing key (required)")
	cmd.Flags().String(flagJWTIssuer, defaultJWTIssuer, "expected JWT issuer")
	cmd.Flags().String(flagJWTCookieName, defaultJWTCookieName, "JWT cookie name")
	cmd.Flags().String(flagAMQPURL, "", "RabbitMQ URL for notification events (optional)")
	cmd.Flags().String(flagAMQPExchange, defaultAMQPExchange, "RabbitMQ topic exchange for notification events")
	cmd.Flags().Int64(flagInitialTickets, ledger.DefaultInitialTickets.Int64(), "tickets granted to new accounts")
	cmd.Flags().Duration(flagRequestTimeout, defaultRequestTimeout, "per-request timeout for HTTP handlers")

	cmd.AddCommand(newAuditCommand())
	return cmd
}

func loadConfig(cmd *cobra.Command, cfg *runtimeConfig) error {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	for _, flagName := range []string{flagDatabaseURL, flagHTTPListenAddr, flagGRPCListenAddr, flagAllowedOrigins, flagJWTSigningKey, flagJWTIssuer, flagJWTCookieName, flagAMQPURL, flagAMQPExchange, flagInitialTickets, flagRequestTimeout} {
		if err := v.BindPFlag(flagName, cmd.Flags().Lookup(flagName)); err != nil {
			return err
		}
	}

	cfg.DatabaseURL = strings.TrimSpace(v.GetString(flagDatabaseURL))
	if cfg.DatabaseURL == "" {
		cfg.DatabaseURL = defaultDatabaseURL
	}
	cfg.GRPCListenAddr = strings.TrimSpace(v.GetString(flagGRPCListenAddr))
	if cfg.GRPCListenAddr == "" {
		return fmt.Errorf("%s is required", flagGRPCListenAddr)
	}
	cfg.AMQPURL = strings.TrimSpace(v.GetString(flagAMQPURL))
	cfg.AMQPExchange = strings.TrimSpace(v.GetString(flagAMQPExchange))
	if cfg.AMQPURL != "" && cfg.AMQPExchange == "" {
		return fmt.Errorf("%s is required when %s is set", flagAMQPExchange, flagAMQPURL)
	}
	cfg.InitialTickets = v.GetInt64(flagInitialTickets)
	if cfg.InitialTickets < 0 {
		return fmt.Errorf("%s must be non-negative", flagInitialTickets)
	}

	cfg.HTTP = httpapi.Config{
		ListenAddr:        strings.TrimSpace(v.GetString(flagHTTPListenAddr)),
		AllowedOrigins:    httpapi.ParseAllowedOrigins(v.GetString(flagAllowedOrigins)),
		SessionSigningKey: v.GetString(flagJWTSigningKey),
		SessionIssuer:     strings.TrimSpace(v.GetString(flagJWTIssuer)),
		SessionCookieName: strings.TrimSpace(v.GetString(flagJWTCookieName)),
		RequestTimeout:    v.GetDuration(flagRequestTimeout),
	}
	return cfg.HTTP.Validate()
}

func runServer(ctx context.Context, cfg *runtimeConfig) error {
	logger, err := zap.NewProduction()
	if err != nil {
		return fmt.Errorf("logger init: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	gormDB, cleanup, _, err := openDatabase(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("database open: %w", err)
	}
	defer func() { _ = cleanup() }()

	if err := prepareSchema(gormDB); err != nil {
		return err
	}

	operationLogger := oplog.NewZapLogger(logger)
	clock := func() int64 { return time.Now().UTC().Unix() }
	ledgerService, err := ledger.NewService(gormstore.NewLedgerStore(gormDB), clock,
		ledger.WithOperationLogger(operationLogger),
		ledger.WithInitialTickets(ledger.Tickets(cfg.InitialTickets)),
	)
	if err != nil {
		return fmt.Errorf("ledger service init: %w", err)
	}

	inbox := gormstore.NewInbox(gormDB, time.Now)
	notifiers := []exchange.Notifier{inbox, notify.NewLogNotifier(logger)}
	if cfg.AMQPURL != "" {
		publisher, err := notify.DialAMQP(cfg.AMQPURL, cfg.AMQPExchange)
		if err != nil {
			return fmt.Errorf("amqp notifier: %w", err)
		}
		defer func() { _ = publisher.Close() }()
		notifiers = append(notifiers, publisher)
	}
	exchangeService, err := exchange.NewService(gormstore.New(gormDB), ledgerService, time.Now,
		exchange.WithOperationLogger(operationLogger),
		exchange.WithNotifier(notify.NewFanout(notifiers...)),
	)
	if err != nil {
		return fmt.Errorf("exchange service init: %w", err)
	}

	router, err := httpapi.NewRouter(cfg.HTTP, httpapi.Services{Ledger: ledgerService, Exchange: exchangeService, Inbox: inbox}, logger)
	if err != nil {
		return err
	}

	lis, err := net.Listen("tcp", cfg.GRPCListenAddr)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	grpcServer := grpc.NewServer()
	grpcserver.RegisterExchangeServiceServer(grpcServer, grpcserver.NewExchangeServiceServer(ledgerService, exchangeService, time.Now))

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return httpapi.Run(groupCtx, cfg.HTTP, router, logger)
	})
	group.Go(func() error {
		logger.Info("gRPC server starting", zap.String("listen_addr", cfg.GRPCListenAddr))
		if serveErr := grpcServer.Serve(lis); serveErr != nil && !errors.Is(serveErr, grpc.ErrServerStopped) {
			return serveErr
		}
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()
		logger.Info("shutdown requested")
		grpcServer.GracefulStop()
		return nil
	})
	return group.Wait()
}
