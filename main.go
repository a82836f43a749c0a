package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	nested "github.com/antonfisher/nested-logrus-formatter"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"

	appConfig "toptracks/config"
	"toptracks/controller"
	"toptracks/database"
	"toptracks/handlers"
	"toptracks/page"
	"toptracks/rankings"
	"toptracks/sentry"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Warnf("Error loading .env file: %v", err)
	}
	appConfig.NewConfig()
	setupLogging(appConfig.Config.Options.LogLevel)

	sentry.Init(appConfig.Config.Sentry)
	defer sentry.Flush(2 * time.Second)
	sentry.SetContext("snapshot", map[string]interface{}{
		"base_url": appConfig.Config.Snapshot.BaseURL,
	})

	if err := run(context.Background()); err != nil {
		sentry.ReportError(err)
		sentry.Flush(2 * time.Second)
		log.Fatal(err)
	}
}

func setupLogging(level string) {
	log.SetFormatter(&nested.Formatter{
		HideKeys:        true,
		FieldsOrder:     []string{"module", "board", "session"},
		TimestampFormat: time.RFC3339,
	})
	if level == "" {
		return
	}
	parsed, err := log.ParseLevel(level)
	if err != nil {
		log.Warnf("unknown LOG_LEVEL %q, keeping %s", level, log.GetLevel())
		return
	}
	log.SetLevel(parsed)
}

func run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.New(appConfig.Config.Database.Path)
	if err != nil {
		return err
	}
	defer db.Close()

	client := rankings.NewClient(rankings.Options{
		BaseURL:           appConfig.Config.Snapshot.BaseURL,
		Timeout:           appConfig.Config.Snapshot.Timeout,
		RequestsPerSecond: appConfig.Config.Snapshot.RequestsPerSecond,
	})

	ctrl := controller.NewController(controller.Options{
		Fetcher: client,
		Preferences: func(sessionID string) page.PreferenceStore {
			return db.Preferences(sessionID)
		},
		IdleTimeout: time.Duration(appConfig.Config.Options.SessionIdleMinutes) * time.Minute,
		Location:    appConfig.Config.Options.Location(),
	})
	defer ctrl.Close()
	go ctrl.Run(ctx)

	router := gin.Default()
	_ = router.SetTrustedProxies([]string{"127.0.0.1"})
	router.Use(sentry.GetSentryGin())

	manager := handlers.NewManager(ctrl, db, appConfig.Config.Options.RenderWait)
	manager.RegisterRoutes(router)

	port := appConfig.Config.Options.Port
	httpSrv := &http.Server{
		Addr:    ":" + port,
		Handler: router,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Infof("Starting server on :%s", port)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Errorf("http shutdown error: %v", err)
	}
	log.Info("server stopped")
	return nil
}
