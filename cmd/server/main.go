package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/carepulse/engage/internal/cache"
	"github.com/carepulse/engage/internal/config"
	"github.com/carepulse/engage/internal/handlers"
	"github.com/carepulse/engage/internal/reports"
	"github.com/carepulse/engage/internal/repositories"
	"github.com/carepulse/engage/internal/scheduler"
	"github.com/carepulse/engage/internal/server"
	"github.com/carepulse/engage/internal/services"
	"github.com/carepulse/engage/internal/storage"
)

func main() {
	cfg := loadConfig()

	logger, err := buildLogger(cfg.Logging)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	logger.Info("Starting engagement analytics server...")

	ctx := context.Background()
	dbPool, err := pgxpool.New(ctx, cfg.Database.URL)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer dbPool.Close()

	if err := dbPool.Ping(ctx); err != nil {
		logger.Fatal("Failed to ping database", zap.Error(err))
	}
	logger.Info("Connected to database successfully")

	logger.Info("Running database migrations...")
	if err := runMigrations(ctx, dbPool); err != nil {
		logger.Fatal("Failed to run migrations", zap.Error(err))
	}

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			logger.Warn("Redis unavailable, cache and rate limiting disabled", zap.Error(err))
			redisClient = nil
		}
	}

	// Repositories
	statsRepo := repositories.NewStatsRepository(dbPool)
	engagementRepo := repositories.NewEngagementRepository(dbPool)
	careRepo := repositories.NewCareRepository(dbPool)
	directoryRepo := repositories.NewDirectoryRepository(dbPool)
	analysisRepo := repositories.NewAnalysisRepository(dbPool)

	// Report pipeline
	blobStore, err := storage.NewFilesystemStore(cfg.Analytics.BlobRoot, cfg.Analytics.ReportBaseURL, logger)
	if err != nil {
		logger.Fatal("Failed to initialize report storage", zap.Error(err))
	}
	reportService := reports.NewReportService(blobStore, logger,
		reports.NewJSONRenderer(),
		reports.NewExcelRenderer(),
		reports.NewPDFRenderer(),
	)

	// Services
	filterService := services.NewFilterService(
		directoryRepo,
		cfg.Analytics.LookbackDays,
		cfg.Analytics.DefaultRoleName,
		logger,
	)
	calculator := services.NewEngagementCalculator(
		statsRepo,
		engagementRepo,
		careRepo,
		cfg.Analytics.QueryTimeout,
		cfg.Analytics.TopN,
		logger,
	)
	analysisService := services.NewAnalysisService(
		filterService,
		calculator,
		analysisRepo,
		directoryRepo,
		reportService,
		cfg.Analytics.ReportBaseURL,
		30*time.Minute,
		logger,
	)

	metricsCache := cache.NewMetricsCache(redisClient, cfg.Redis.CacheTTL, logger)

	// Scheduled jobs
	sched := scheduler.New(logger)
	if err := sched.Register(cfg.Analytics.DailyCronSpec, "daily-analytics", analysisService.GenerateDailyAnalytics); err != nil {
		logger.Fatal("Failed to register daily analytics job", zap.Error(err))
	}
	if cfg.Analytics.TestCronSpec != "" {
		if err := sched.Register(cfg.Analytics.TestCronSpec, "test-analytics", analysisService.GenerateDailyAnalytics); err != nil {
			logger.Fatal("Failed to register test analytics job", zap.Error(err))
		}
	}
	if err := sched.Register("30 3 * * *", "report-cleanup", func(context.Context) {
		removed, err := blobStore.CleanupOlderThan(cfg.Analytics.ReportRetention)
		if err != nil {
			logger.Error("Report cleanup failed", zap.Error(err))
			return
		}
		logger.Info("Report cleanup finished", zap.Int("removed", removed))
	}); err != nil {
		logger.Fatal("Failed to register report cleanup job", zap.Error(err))
	}
	sched.Start()
	defer sched.Stop()

	// HTTP server
	analyticsHandler := handlers.NewAnalyticsHandler(
		analysisService,
		filterService,
		calculator,
		metricsCache,
		blobStore,
		logger,
	)
	httpServer := server.New(cfg, analyticsHandler, redisClient, logger)
	httpServer.Setup()

	if err := httpServer.Start(); err != nil {
		logger.Fatal("Server failed to start", zap.Error(err))
	}
}

func loadConfig() *config.Config {
	cfg := config.Defaults()

	cfg.Port = getEnvInt("PORT", cfg.Port)
	cfg.Environment = getEnv("ENVIRONMENT", cfg.Environment)

	dbHost := getEnv("DB_HOST", "localhost")
	dbPort := getEnv("DB_PORT", "5432")
	dbUser := getEnv("DB_USER", "postgres")
	dbPassword := getEnv("DB_PASSWORD", "postgres")
	dbName := getEnv("DB_NAME", "engage")
	cfg.Database.URL = getEnv("DATABASE_URL", fmt.Sprintf("postgresql://%s:%s@%s:%s/%s?sslmode=disable",
		dbUser, dbPassword, dbHost, dbPort, dbName))

	cfg.Redis.Addr = getEnv("REDIS_ADDR", "")
	cfg.Redis.Password = getEnv("REDIS_PASSWORD", "")
	cfg.Redis.DB = getEnvInt("REDIS_DB", 0)

	cfg.Analytics.LookbackDays = getEnvInt("ANALYTICS_LOOKBACK_DAYS", cfg.Analytics.LookbackDays)
	cfg.Analytics.ReportBaseURL = getEnv("REPORT_BASE_URL", cfg.Analytics.ReportBaseURL)
	cfg.Analytics.BlobRoot = getEnv("REPORT_STORAGE_ROOT", cfg.Analytics.BlobRoot)
	cfg.Analytics.DailyCronSpec = getEnv("DAILY_CRON_SPEC", cfg.Analytics.DailyCronSpec)
	cfg.Analytics.TestCronSpec = getEnv("TEST_CRON_SPEC", cfg.Analytics.TestCronSpec)

	cfg.RateLimit.Global = getEnvInt("RATE_LIMIT_PER_MINUTE", cfg.RateLimit.Global)
	if origins := os.Getenv("CORS_ALLOWED_ORIGINS"); origins != "" {
		cfg.CORS.AllowedOrigins = strings.Split(origins, ",")
	}

	cfg.Logging.Level = getEnv("LOG_LEVEL", cfg.Logging.Level)
	cfg.Logging.FilePath = getEnv("LOG_FILE", cfg.Logging.FilePath)

	return cfg
}

func buildLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		level = zapcore.InfoLevel
	}

	if cfg.FilePath == "" {
		zcfg := zap.NewProductionConfig()
		zcfg.Level = zap.NewAtomicLevelAt(level)
		return zcfg.Build()
	}

	rotator := &lumberjack.Logger{
		Filename:   cfg.FilePath,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
		Compress:   true,
	}
	core := zapcore.NewTee(
		zapcore.NewCore(
			zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()),
			zapcore.AddSync(rotator),
			level,
		),
		zapcore.NewCore(
			zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()),
			zapcore.AddSync(os.Stdout),
			level,
		),
	)
	return zap.New(core), nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func runMigrations(ctx context.Context, db *pgxpool.Pool) error {
	tables := []string{
		`CREATE TABLE IF NOT EXISTS tenants (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			name VARCHAR(255) NOT NULL,
			code VARCHAR(50) UNIQUE NOT NULL,
			created_at TIMESTAMP NOT NULL DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS roles (
			id INT PRIMARY KEY,
			name VARCHAR(100) UNIQUE NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS users (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			tenant_id UUID REFERENCES tenants(id),
			role_id INT REFERENCES roles(id),
			is_active BOOLEAN NOT NULL DEFAULT true,
			registered_at TIMESTAMP NOT NULL DEFAULT NOW(),
			deregistered_at TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS user_profiles (
			user_id UUID PRIMARY KEY REFERENCES users(id),
			birth_date DATE,
			gender VARCHAR(50),
			ethnicity VARCHAR(100),
			race VARCHAR(100),
			health_system VARCHAR(255),
			hospital VARCHAR(255),
			has_caregiver BOOLEAN
		)`,
		`CREATE TABLE IF NOT EXISTS events (
			id BIGSERIAL PRIMARY KEY,
			user_id UUID NOT NULL REFERENCES users(id),
			tenant_id UUID REFERENCES tenants(id),
			category VARCHAR(50) NOT NULL,
			name VARCHAR(255) NOT NULL,
			subject VARCHAR(255),
			occurred_at TIMESTAMP NOT NULL DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS medication_logs (
			id BIGSERIAL PRIMARY KEY,
			user_id UUID NOT NULL REFERENCES users(id),
			status VARCHAR(20) NOT NULL,
			logged_at TIMESTAMP NOT NULL DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS care_tasks (
			id BIGSERIAL PRIMARY KEY,
			user_id UUID NOT NULL REFERENCES users(id),
			kind VARCHAR(20) NOT NULL,
			care_plan VARCHAR(255),
			category VARCHAR(100),
			completed BOOLEAN NOT NULL DEFAULT false,
			due_at TIMESTAMP NOT NULL,
			completed_at TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS vitals_entries (
			id BIGSERIAL PRIMARY KEY,
			user_id UUID NOT NULL REFERENCES users(id),
			vital_type VARCHAR(100) NOT NULL,
			source VARCHAR(20) NOT NULL,
			recorded_at TIMESTAMP NOT NULL DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS assessment_responses (
			id BIGSERIAL PRIMARY KEY,
			user_id UUID NOT NULL REFERENCES users(id),
			assessment VARCHAR(255) NOT NULL,
			care_plan VARCHAR(255),
			node_id VARCHAR(100) NOT NULL,
			template VARCHAR(100) NOT NULL,
			node_title VARCHAR(255) NOT NULL,
			response_type VARCHAR(50) NOT NULL,
			response TEXT,
			completed_at TIMESTAMP NOT NULL DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS assessment_options (
			id BIGSERIAL PRIMARY KEY,
			node_id VARCHAR(100) NOT NULL,
			template VARCHAR(100) NOT NULL,
			node_title VARCHAR(255) NOT NULL,
			sequence INT NOT NULL,
			option_text TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS analysis_records (
			id UUID PRIMARY KEY,
			code VARCHAR(100) UNIQUE NOT NULL,
			tenant_id UUID,
			tenant_name VARCHAR(255) NOT NULL,
			date_str VARCHAR(10) NOT NULL,
			serialized_metrics JSONB NOT NULL,
			start_date TIMESTAMP NOT NULL,
			end_date TIMESTAMP NOT NULL,
			json_url TEXT,
			excel_url TEXT,
			pdf_url TEXT,
			canonical_url TEXT,
			created_at TIMESTAMP NOT NULL DEFAULT NOW()
		)`,
	}

	for _, query := range tables {
		if _, err := db.Exec(ctx, query); err != nil {
			return fmt.Errorf("failed to create table: %w", err)
		}
	}

	indexes := []string{
		"CREATE INDEX IF NOT EXISTS idx_users_tenant ON users(tenant_id)",
		"CREATE INDEX IF NOT EXISTS idx_users_registered_at ON users(registered_at)",
		"CREATE INDEX IF NOT EXISTS idx_events_user_occurred ON events(user_id, occurred_at)",
		"CREATE INDEX IF NOT EXISTS idx_events_category_occurred ON events(category, occurred_at)",
		"CREATE INDEX IF NOT EXISTS idx_medication_logs_logged ON medication_logs(logged_at)",
		"CREATE INDEX IF NOT EXISTS idx_care_tasks_due ON care_tasks(kind, due_at)",
		"CREATE INDEX IF NOT EXISTS idx_vitals_recorded ON vitals_entries(recorded_at)",
		"CREATE INDEX IF NOT EXISTS idx_assessment_responses_completed ON assessment_responses(completed_at)",
		"CREATE INDEX IF NOT EXISTS idx_analysis_records_code ON analysis_records(code)",
	}
	for _, idx := range indexes {
		if _, err := db.Exec(ctx, idx); err != nil {
			return fmt.Errorf("failed to create index: %w", err)
		}
	}

	return nil
}
