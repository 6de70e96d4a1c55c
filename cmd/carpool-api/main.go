// README: Entry point; loads config, wires services, starts the HTTP server and the notification worker.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"carpool/internal/ai"
	"carpool/internal/config"
	httptransport "carpool/internal/http"
	"carpool/internal/http/middleware"
	"carpool/internal/infra"
	"carpool/internal/maps"
	"carpool/internal/modules/booking"
	"carpool/internal/modules/identity"
	"carpool/internal/modules/notify"
	"carpool/internal/modules/promptquota"
	"carpool/internal/modules/review"
	"carpool/internal/modules/ride"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	logger := infra.NewLogger(cfg.Log.Level, cfg.Log.Format)
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal("carpool-api stopped", zap.Error(err))
	}
}

func run(ctx context.Context, cfg config.Config, logger *zap.Logger) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if cfg.App.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	dbPool, err := infra.NewDB(ctx, cfg.DB.DSN, cfg.DB.MaxConns)
	if err != nil {
		return err
	}
	defer dbPool.Close()

	if cfg.DB.AutoMigrate {
		m, err := infra.NewMigrator(cfg.DB.DSN, cfg.DB.MigrationsPath, logger.Named("migrate"))
		if err != nil {
			return err
		}
		err = m.Up()
		_ = m.Close()
		if err != nil {
			return err
		}
	}

	redisClient, err := infra.NewRedis(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		return err
	}
	defer func() { _ = redisClient.Close() }()

	var (
		verifier infra.TokenVerifier
		issuer   identity.TokenIssuer
	)
	switch cfg.Auth.Provider {
	case "firebase":
		verifier, err = infra.NewFirebaseVerifier(ctx, cfg.Auth.FirebaseProjectID, cfg.Auth.FirebaseCredentialsFile)
		if err != nil {
			return fmt.Errorf("firebase init: %w", err)
		}
	default:
		jwtIssuer := infra.NewJWTIssuer(cfg.Auth.JWTSecret, cfg.Auth.JWTTTL)
		verifier, issuer = jwtIssuer, jwtIssuer
	}

	userStore := identity.NewStore(dbPool)
	userSvc := identity.NewService(userStore, issuer, logger)
	var provisioner middleware.Provisioner
	if issuer == nil {
		provisioner = userSvc
	}

	var mailer notify.Mailer = notify.NewLogMailer(logger.Named("mail"))
	if cfg.Notify.SMTPHost != "" {
		mailer = notify.NewSMTPMailer(notify.SMTPConfig{
			Host:     cfg.Notify.SMTPHost,
			Port:     cfg.Notify.SMTPPort,
			Username: cfg.Notify.SMTPUsername,
			Password: cfg.Notify.SMTPPassword,
			From:     cfg.Notify.From,
		})
	}
	queue := notify.NewRedisQueue(redisClient, cfg.Notify.QueueKey)
	notifySvc := notify.NewService(queue, userStore, mailer, cfg.Notify.Enabled, logger)

	var distance ride.DistanceEstimator
	if cfg.Maps.APIKey != "" {
		routes, err := maps.NewRouteService(cfg.Maps.APIKey)
		if err != nil {
			return fmt.Errorf("maps init: %w", err)
		}
		distance = routes
	}
	rideStore := ride.NewStore(dbPool)
	rideSvc := ride.NewService(rideStore, userStore, distance, cfg.Search.MaxLimit, logger)

	bookingSvc := booking.NewService(booking.NewStore(dbPool), rideStore, userStore, notifySvc, logger)
	reviewSvc := review.NewService(review.NewStore(dbPool), userStore, notifySvc, logger)
	quotaSvc := promptquota.NewService(promptquota.NewStore(dbPool, cfg.AI.MonthlyPrompts))

	var parser ai.PromptParser
	if cfg.AI.GeminiKey != "" {
		gemini, err := ai.NewGeminiProvider(ctx, cfg.AI.GeminiKey, cfg.AI.Model)
		if err != nil {
			return fmt.Errorf("gemini init: %w", err)
		}
		defer func() { _ = gemini.Close() }()
		parser = gemini
	}

	router := httptransport.NewRouter(httptransport.RouterDeps{
		Users:       userSvc,
		Rides:       rideSvc,
		Bookings:    bookingSvc,
		Reviews:     reviewSvc,
		Quota:       quotaSvc,
		Parser:      parser,
		Verifier:    verifier,
		Provisioner: provisioner,
		Log:         logger.Named("http"),
		Production:  cfg.App.IsProduction(),
	})

	workerDone := make(chan struct{})
	go func() {
		defer close(workerDone)
		notifySvc.RunWorker(ctx)
	}()

	err = httptransport.NewServer(cfg.HTTP, router, logger).Run(ctx)
	cancel()
	<-workerDone
	notifySvc.Flush()
	if err != nil {
		return err
	}
	logger.Info("shutdown complete")
	return nil
}
