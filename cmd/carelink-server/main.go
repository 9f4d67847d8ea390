package main

import (
	"context"
	crypto_rand "crypto/rand"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/carelink/carelink/internal/config"
	"github.com/carelink/carelink/internal/domain/appointment"
	"github.com/carelink/carelink/internal/domain/consultation"
	"github.com/carelink/carelink/internal/domain/directory"
	"github.com/carelink/carelink/internal/domain/messaging"
	"github.com/carelink/carelink/internal/domain/notification"
	"github.com/carelink/carelink/internal/domain/prescription"
	"github.com/carelink/carelink/internal/domain/report"
	"github.com/carelink/carelink/internal/domain/settings"
	"github.com/carelink/carelink/internal/platform/auth"
	"github.com/carelink/carelink/internal/platform/db"
	"github.com/carelink/carelink/internal/platform/email"
	"github.com/carelink/carelink/internal/platform/media"
	"github.com/carelink/carelink/internal/platform/middleware"
	"github.com/carelink/carelink/internal/platform/push"
	"github.com/carelink/carelink/internal/platform/realtime"
	"github.com/carelink/carelink/internal/platform/scheduler"
	"github.com/carelink/carelink/internal/platform/secrets"
	"github.com/carelink/carelink/internal/platform/seed"
	"github.com/carelink/carelink/internal/platform/summarizer"
)

const (
	requestTimeout = 30 * time.Second
	wsPath         = "/api/v1/ws"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "carelink-server",
		Short: "CareLink telehealth API server",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(seedCmd())
	rootCmd.AddCommand(tokenCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newLogger(cfg *config.Config) zerolog.Logger {
	if cfg != nil && cfg.IsDev() {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the CareLink API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func openPool(ctx context.Context) (*config.Config, *pgxpool.Pool, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		return nil, nil, err
	}
	return cfg, pool, nil
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	// migrate up
	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			cfg, pool, err := openPool(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()

			dir := migrationsDir(cmd, cfg)
			fmt.Printf("Running migrations from: %s\n", dir)

			count, err := db.NewMigrator(pool, dir).Up(ctx)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}

			fmt.Printf("Applied %d migration(s) successfully.\n", count)
			return nil
		},
	}
	upCmd.Flags().String("dir", "", "Path to migrations directory (default MIGRATIONS_DIR)")
	cmd.AddCommand(upCmd)

	// migrate status
	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			cfg, pool, err := openPool(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()

			statuses, err := db.NewMigrator(pool, migrationsDir(cmd, cfg)).Status(ctx)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}

			fmt.Printf("%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
			fmt.Println("---------- ---------------------------------------- ---------- --------------------")
			for _, s := range statuses {
				status := "pending"
				appliedAt := ""
				if s.Applied {
					status = "applied"
					if s.AppliedAt != nil {
						appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
					}
				}
				fmt.Printf("%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
			}
			return nil
		},
	}
	statusCmd.Flags().String("dir", "", "Path to migrations directory (default MIGRATIONS_DIR)")
	cmd.AddCommand(statusCmd)

	return cmd
}

func migrationsDir(cmd *cobra.Command, cfg *config.Config) string {
	if dir, _ := cmd.Flags().GetString("dir"); dir != "" {
		return dir
	}
	return cfg.MigrationsDir
}

func seedCmd() *cobra.Command {
	defaults := seed.DefaultConfig()
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load demo doctors, patients and default settings",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			cfg, pool, err := openPool(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()

			sc := seed.DefaultConfig()
			sc.Doctors, _ = cmd.Flags().GetInt("doctors")
			sc.Patients, _ = cmd.Flags().GetInt("patients")
			sc.Seed, _ = cmd.Flags().GetInt64("seed")

			seeder := seed.NewSeeder(directory.NewDoctorRepoPG(pool), directory.NewPatientRepoPG(pool),
				settings.NewRepoPG(pool), db.NewTxRunner(pool), newLogger(cfg))
			res, err := seeder.Run(ctx, sc)
			if err != nil {
				return fmt.Errorf("seed failed: %w", err)
			}

			out, _ := json.MarshalIndent(res, "", "  ")
			fmt.Println(string(out))
			return nil
		},
	}
	cmd.Flags().Int("doctors", defaults.Doctors, "Number of demo doctors")
	cmd.Flags().Int("patients", defaults.Patients, "Number of demo patients")
	cmd.Flags().Int64("seed", defaults.Seed, "Random seed for generated data")
	return cmd
}

func tokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a signed access token for a doctor, patient or administrator",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if cfg.AuthSigningKey == "" {
				return fmt.Errorf("AUTH_SIGNING_KEY is required to issue tokens")
			}

			subject, _ := cmd.Flags().GetString("subject")
			id, err := uuid.Parse(subject)
			if err != nil {
				return fmt.Errorf("--subject must be a UUID: %w", err)
			}
			role, _ := cmd.Flags().GetString("role")
			if !validRole(role) {
				return fmt.Errorf("--role must be one of admin, doctor, patient")
			}
			ttl, _ := cmd.Flags().GetDuration("ttl")

			tok, err := auth.IssueToken(jwtConfig(cfg, []byte(cfg.AuthSigningKey), nil), id, []string{role}, ttl)
			if err != nil {
				return err
			}
			fmt.Println(tok)
			return nil
		},
	}
	cmd.Flags().String("subject", "", "Doctor, patient or admin ID")
	cmd.Flags().String("role", auth.RolePatient, "Role claim: admin, doctor or patient")
	cmd.Flags().Duration("ttl", 12*time.Hour, "Token lifetime")
	return cmd
}

func validRole(role string) bool {
	switch role {
	case auth.RoleAdmin, auth.RoleDoctor, auth.RolePatient:
		return true
	}
	return false
}

func jwtConfig(cfg *config.Config, key []byte, maxAge func(context.Context) time.Duration) auth.JWTConfig {
	return auth.JWTConfig{
		Issuer:     cfg.AuthIssuer,
		Audience:   cfg.AuthAudience,
		SigningKey: key,
		MaxAge:     maxAge,
		Skipper:    auth.AuthSkipper,
	}
}

func runServer() error {
	// Config
	cfg, err := config.Load()
	if err != nil {
		bootLogger := newLogger(nil)
		bootLogger.Fatal().Err(err).Msg("failed to load config")
	}
	logger := newLogger(cfg)
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid config")
	}

	// Database
	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")
	tx := db.NewTxRunner(pool)

	// Secrets
	secretsKey, err := cfg.SecretsKeyBytes()
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid secrets key")
	}
	if secretsKey == nil {
		logger.Warn().Msg("SECRETS_KEY not set, using the development key for stored credentials")
		secretsKey = secrets.DevKey()
	}
	cipher, err := secrets.New(secretsKey)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to init secrets cipher")
	}

	// Settings and email
	settingsSvc := settings.NewService(settings.NewRepoPG(pool), cipher, logger)
	mailer := email.NewMailer(email.NewTemplateEngine(), email.NewSMTPSender(settingsSvc), settingsSvc)
	settingsSvc.SetMailer(mailer)

	// Outbound integrations
	store := newMediaStore(cfg)
	pusher := newPushSender(ctx, cfg, logger)
	sum := newSummarizer(cfg)

	// Realtime
	var consultationSvc *consultation.Service
	hub := realtime.NewHub(sessionTopicAuthorizer(func(ctx context.Context, sessionID, userID uuid.UUID) bool {
		return consultationSvc.IsParticipant(ctx, sessionID, userID)
	}), logger)
	publisher := realtime.Fanout{hub}
	if len(cfg.KafkaBrokers) > 0 {
		kafka := realtime.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
		defer kafka.Close()
		publisher = append(publisher, kafka)
		logger.Info().Strs("brokers", cfg.KafkaBrokers).Str("topic", cfg.KafkaTopic).Msg("publishing events to kafka")
	}

	// Domain services
	directorySvc := directory.NewService(directory.NewDoctorRepoPG(pool), directory.NewPatientRepoPG(pool))

	notificationSvc := notification.NewService(
		notification.NewNotificationRepoPG(pool),
		notification.NewDeviceTokenRepoPG(pool),
		directorySvc, publisher, pusher, mailer, logger,
	).WithAsyncDelivery()
	notificationSvc.SetBaseURL(cfg.PublicBaseURL)

	appointmentSvc := appointment.NewService(
		appointment.NewRequestRepoPG(pool),
		appointment.NewAppointmentRepoPG(pool),
		directorySvc, notificationSvc, publisher, tx, logger,
	)
	consultationSvc = consultation.NewService(
		consultation.NewSessionRepoPG(pool),
		consultation.NewParticipantRepoPG(pool),
		consultation.NewRecordingRepoPG(pool),
		appointmentSvc, store, sum, notificationSvc, publisher, tx, logger,
	)
	appointmentSvc.SetConsultationScheduler(consultationSvc)

	prescriptionSvc := prescription.NewService(prescription.NewRepoPG(pool),
		directorySvc, appointmentSvc, consultationSvc, notificationSvc, tx, logger)
	prescriptionSvc.SetBranding(settingsSvc)

	messagingSvc := messaging.NewService(
		messaging.NewConversationRepoPG(pool),
		messaging.NewMessageRepoPG(pool),
		directorySvc, store, notificationSvc, publisher, tx, logger,
	)

	reportSvc := report.NewService(report.NewRepoPG(pool), report.NewDataSourcePG(pool), store, mailer, logger)

	// Echo server
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.SecurityHeaders(!cfg.IsDev()))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID", auth.DevUserHeader, auth.DevRoleHeader},
	}))
	e.Use(middleware.BodyLimit("2M", "2G"))
	e.Use(middleware.RateLimit(middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
		IdleTTL:           middleware.DefaultRateLimitConfig().IdleTTL,
	}))
	e.Use(middleware.RequestTimeout(requestTimeout, wsPath))

	// Auth middleware
	signingKey, generated, err := resolveSigningKey(cfg.AuthSigningKey)
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid signing key")
	}
	if generated {
		logger.Warn().Msg("AUTH_SIGNING_KEY not set, generated an ephemeral key; issued tokens stop working on restart")
	}
	jwtCfg := jwtConfig(cfg, signingKey, settingsSvc.SessionTimeout)
	if cfg.IsDev() {
		e.Use(auth.DevAuthMiddleware(&jwtCfg))
	} else {
		e.Use(auth.JWTMiddleware(jwtCfg))
	}

	// Audit middleware
	e.Use(middleware.Audit(logger))

	// Health
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
	e.GET("/health/db", db.HealthHandler(pool))
	e.GET("/health/ready", db.Ready(pool))

	// API
	apiV1 := e.Group("/api/v1")
	directory.NewHandler(directorySvc).RegisterRoutes(apiV1)
	appointment.NewHandler(appointmentSvc).RegisterRoutes(apiV1)
	consultation.NewHandler(consultationSvc, store).RegisterRoutes(apiV1)
	prescription.NewHandler(prescriptionSvc).RegisterRoutes(apiV1)
	messaging.NewHandler(messagingSvc, store).RegisterRoutes(apiV1)
	notification.NewHandler(notificationSvc).RegisterRoutes(apiV1)
	settings.NewHandler(settingsSvc).RegisterRoutes(apiV1)
	report.NewHandler(reportSvc, store).RegisterRoutes(apiV1)
	media.NewHandler(store).RegisterRoutes(apiV1)
	realtime.NewHandler(hub, cfg.CORSOrigins).RegisterRoutes(apiV1)

	// Background jobs
	sched := scheduler.New(logger)
	if err := sched.Add("appointment-reminders", cfg.ReminderSpec, func(ctx context.Context) error {
		sent, err := appointmentSvc.SendReminders(ctx, cfg.ReminderWindow)
		if sent > 0 {
			logger.Info().Int("sent", sent).Msg("appointment reminders sent")
		}
		return err
	}); err != nil {
		logger.Fatal().Err(err).Msg("failed to schedule reminders")
	}
	if err := sched.Add("scheduled-reports", cfg.ReportPollSpec, func(ctx context.Context) error {
		ran, err := reportSvc.RunDue(ctx)
		if ran > 0 {
			logger.Info().Int("reports", ran).Msg("scheduled reports generated")
		}
		return err
	}); err != nil {
		logger.Fatal().Err(err).Msg("failed to schedule reports")
	}
	sched.Start()

	// Graceful shutdown
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server shutdown failed")
	}
	sched.Stop(shutdownCtx)
	if err := notificationSvc.Close(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("pending notification deliveries abandoned")
	}
	logger.Info().Msg("server stopped")
	return nil
}

func newMediaStore(cfg *config.Config) media.Store {
	if cfg.MediaAPIURL != "" {
		return media.NewHTTPStore(cfg.MediaAPIURL, cfg.MediaAPIKey)
	}
	return media.NewInMemoryStore(strings.TrimRight(cfg.PublicBaseURL, "/") + "/api/v1/media")
}

func newPushSender(ctx context.Context, cfg *config.Config, logger zerolog.Logger) push.Sender {
	if cfg.FirebaseCreds == "" {
		return push.Noop{}
	}
	sender, err := push.NewFCMSender(ctx, cfg.FirebaseCreds)
	if err != nil {
		logger.Error().Err(err).Msg("push notifications disabled")
		return push.Noop{}
	}
	return sender
}

func newSummarizer(cfg *config.Config) summarizer.Summarizer {
	if cfg.AIAPIKey == "" {
		return summarizer.Disabled{}
	}
	return summarizer.New(cfg.AIAPIURL, cfg.AIAPIKey, cfg.AIModel)
}

// sessionTopicAuthorizer lets consultation participants follow their
// session's topic. A user's own topic is always allowed by the hub.
func sessionTopicAuthorizer(isParticipant func(ctx context.Context, sessionID, userID uuid.UUID) bool) realtime.TopicAuthorizer {
	return func(ctx context.Context, userID, topic string) bool {
		rest, ok := strings.CutPrefix(topic, "session:")
		if !ok {
			return false
		}
		sessionID, err := uuid.Parse(rest)
		if err != nil {
			return false
		}
		uid, err := uuid.Parse(userID)
		if err != nil {
			return false
		}
		return isParticipant(ctx, sessionID, uid)
	}
}

// resolveSigningKey returns the HS256 key from AUTH_SIGNING_KEY or generates
// a random 32-byte key. The second return value is true when a random key was
// generated.
func resolveSigningKey(envValue string) ([]byte, bool, error) {
	if envValue != "" {
		if len(envValue) < 32 {
			return nil, false, fmt.Errorf("AUTH_SIGNING_KEY must be at least 32 characters")
		}
		return []byte(envValue), false, nil
	}
	key := make([]byte, 32)
	if _, err := crypto_rand.Read(key); err != nil {
		return nil, false, fmt.Errorf("failed to generate random signing key: %w", err)
	}
	return key, true, nil
}
