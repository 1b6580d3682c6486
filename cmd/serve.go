package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/daro-kh/leavegate/internal/config"
	"github.com/daro-kh/leavegate/internal/confirm"
	"github.com/daro-kh/leavegate/internal/face"
	"github.com/daro-kh/leavegate/internal/metrics"
	"github.com/daro-kh/leavegate/internal/notify"
	"github.com/daro-kh/leavegate/internal/scan"
	"github.com/daro-kh/leavegate/internal/store/postgres"
	"github.com/daro-kh/leavegate/internal/web"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the web server",
	Long: `Start the leavegate web server.
The server exposes the leave/out request API, face-scan login, and the
return-confirmation pipeline endpoints.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().Int("port", 8080, "Port to listen on")
	serveCmd.Flags().String("host", "0.0.0.0", "Host to bind to")
	serveCmd.Flags().String("session-secret", "", "Secret for signing session cookies (defaults to random)")
}

// resolveServeHostPort resolves port and host from flags and environment variables.
func resolveServeHostPort(cmd *cobra.Command) (int, string, string) {
	port := mustGetInt(cmd, "port")
	host := mustGetString(cmd, "host")
	sessionSecret := mustGetString(cmd, "session-secret")

	if sessionSecret == "" {
		sessionSecret = os.Getenv("WEB_SESSION_SECRET")
	}
	if envPort := os.Getenv("WEB_PORT"); envPort != "" {
		fmt.Sscanf(envPort, "%d", &port)
	}
	if envHost := os.Getenv("WEB_HOST"); envHost != "" {
		host = envHost
	}
	return port, host, sessionSecret
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	if cfg.Database.URL == "" {
		return errors.New("DATABASE_URL environment variable is required")
	}
	if cfg.Face.ServiceURL == "" {
		return errors.New("FACE_SERVICE_URL environment variable is required")
	}

	fmt.Printf("Connecting to PostgreSQL database...\n")
	pool, err := postgres.Initialize(&cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to initialize PostgreSQL: %w", err)
	}
	defer pool.Close()
	repo := postgres.NewRequestRepository(pool)

	faceClient := face.NewClient(cfg.Face.ServiceURL)
	descriptorCache := face.NewCache(faceClient, cfg.Face.MaxImageSize)
	verifier := face.NewVerifier(faceClient, cfg.Face.Threshold)
	registry := scan.NewRegistry()

	collector, err := metrics.NewCollector(nil)
	if err != nil {
		return fmt.Errorf("registering metrics: %w", err)
	}

	var notifier notify.Notifier
	if cfg.Telegram.BotToken != "" && cfg.Telegram.ChatID != "" {
		notifier = notify.NewTelegramNotifier(cfg.Telegram.BotToken, cfg.Telegram.ChatID)
		fmt.Printf("Telegram notifications enabled\n")
	}

	orch, err := confirm.NewOrchestrator(confirm.Options{
		Store:           repo,
		Descriptors:     descriptorCache,
		Matcher:         verifier,
		Registry:        registry,
		AllowedArea:     cfg.Location.AllowedArea,
		Notifier:        notifier,
		Metrics:         collector,
		LocationTimeout: cfg.Location.Timeout,
		PollInterval:    cfg.Scan.PollInterval,
		LocationFailMsg: cfg.Location.FailureMessage,
	})
	if err != nil {
		return fmt.Errorf("building confirmation pipeline: %w", err)
	}

	port, host, sessionSecret := resolveServeHostPort(cmd)

	server := web.NewServer(cfg, port, host, web.Deps{
		Store:         repo,
		Orchestrator:  orch,
		Registry:      registry,
		Descriptors:   descriptorCache,
		Matcher:       verifier,
		Notifier:      notifier,
		Metrics:       collector,
		SessionSecret: sessionSecret,
	})

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		fmt.Println("\nShutting down...")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			fmt.Printf("Error during shutdown: %v\n", err)
		}
	}()

	fmt.Printf("Starting leavegate on http://%s:%d\n", host, port)
	fmt.Println("Press Ctrl+C to stop")

	if err := server.Start(); err != nil {
		return fmt.Errorf("starting server: %w", err)
	}
	return nil
}
