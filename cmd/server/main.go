package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"bsc-custody.backend/internal/config"
	"bsc-custody.backend/internal/domain/entities"
	"bsc-custody.backend/internal/infrastructure/blockchain"
	"bsc-custody.backend/internal/infrastructure/datasources/postgres"
	"bsc-custody.backend/internal/infrastructure/jobs"
	"bsc-custody.backend/internal/infrastructure/notifications"
	"bsc-custody.backend/internal/infrastructure/repositories"
	"bsc-custody.backend/internal/interfaces/http/handlers"
	"bsc-custody.backend/internal/interfaces/http/middleware"
	"bsc-custody.backend/internal/usecases"
	"bsc-custody.backend/pkg/crypto"
	"bsc-custody.backend/pkg/jwt"
	"bsc-custody.backend/pkg/logger"
	"bsc-custody.backend/pkg/redis"
)

const (
	cycleLockKey      = "sweep:cycle:lock"
	resumeBatchSize   = 500
	shutdownTimeout   = 15 * time.Second
	readHeaderTimeout = 10 * time.Second
)

var (
	loadDotenv = godotenv.Load
	loadCfg    = config.Load
	initLog    = logger.Init
	initRedis  = redis.Init
	openDB     = func(cfg config.DatabaseConfig) (*gorm.DB, error) {
		sqlDB, err := postgres.NewConnection(cfg)
		if err != nil {
			return nil, err
		}
		return postgres.NewGorm(sqlDB)
	}
	migrate   = postgres.AutoMigrate
	runServer = func(srv *http.Server) error {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
	getStdDB = func(db *gorm.DB) (*sql.DB, error) { return db.DB() }
)

func main() {
	if err := runMainProcess(); err != nil {
		log.Fatal(err)
	}
}

func runMainProcess() error {
	if err := loadDotenv(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	cfg := loadCfg()

	initLog(cfg.Server.Env)
	ctx := logger.WithComponent(context.Background(), "server")
	logger.Info(ctx, "Logger initialized", zap.String("env", cfg.Server.Env))

	if err := cfg.Validate(); err != nil {
		logger.Error(ctx, "Invalid configuration", zap.Error(err))
		return fmt.Errorf("invalid configuration: %w", err)
	}

	if err := initRedis(cfg.Redis.URL, cfg.Redis.Password); err != nil {
		logger.Error(ctx, "Failed to initialize Redis", zap.Error(err))
		return fmt.Errorf("failed to initialize redis: %w", err)
	}
	logger.Info(ctx, "Redis initialized")

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := openDB(cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	sqlDB, err := getStdDB(db)
	if err != nil {
		return fmt.Errorf("failed to get generic database object: %w", err)
	}
	defer sqlDB.Close()
	logger.Info(ctx, "Connected to PostgreSQL via GORM")

	if cfg.Database.AutoMigrate {
		if err := migrate(db); err != nil {
			return fmt.Errorf("failed to migrate database: %w", err)
		}
	}

	keys, err := crypto.NewKeyVault(cfg.Vault.EncryptionSecret)
	if err != nil {
		return fmt.Errorf("failed to initialize key vault: %w", err)
	}

	clientFactory := blockchain.NewClientFactory()
	defer clientFactory.Close()
	chain, err := blockchain.NewChainClient(cfg.Blockchain, clientFactory)
	if err != nil {
		return fmt.Errorf("failed to initialize chain client: %w", err)
	}

	network := entities.Network{
		ChainID:       cfg.Blockchain.ChainID,
		Name:          cfg.Blockchain.NetworkName,
		ExplorerURL:   cfg.Blockchain.ExplorerURL,
		TokenContract: cfg.Blockchain.TokenContract,
		TokenSymbol:   cfg.Blockchain.TokenSymbol,
		TokenDecimals: cfg.Blockchain.TokenDecimals,
	}

	// Repositories
	uow := repositories.NewUnitOfWork(db)
	walletRepo := repositories.NewWalletRepository(db)
	depositRepo := repositories.NewDepositRepository(db)
	ledgerRepo := repositories.NewLedgerRepository(db)
	profileRepo := repositories.NewProfileRepository(db)
	gasOpRepo := repositories.NewGasOperationRepository(db)
	masterCfgRepo := repositories.NewMasterWalletConfigRepository(db)

	masterUsecase := usecases.NewMasterWalletUsecase(masterCfgRepo, keys)
	masterCfg, err := masterUsecase.Bootstrap(ctx, cfg.Master.PrivateKey, cfg.Sweep)
	if err != nil {
		return fmt.Errorf("failed to bootstrap master wallet: %w", err)
	}
	master := blockchain.NewMasterSigner(chain, masterCfg.Address, masterUsecase.SigningKey)
	logger.Info(ctx, "Master wallet ready", zap.String("address", master.Address()))

	notifier := notifications.NewRedisNotifier()

	// Usecases
	walletUsecase := usecases.NewWalletUsecase(walletRepo, keys, network)
	ledgerUsecase := usecases.NewLedgerUsecase(uow, ledgerRepo, profileRepo)
	depositUsecase := usecases.NewDepositUsecase(uow, depositRepo, walletRepo, ledgerUsecase, chain, notifier, network, cfg.Deposit)
	gasScheduler := usecases.NewGasSchedulerUsecase(
		uow, walletRepo, depositRepo, gasOpRepo, masterCfgRepo,
		ledgerUsecase, chain, master, keys, redis.NewLock(cycleLockKey), notifier,
		network, cfg.Sweep,
	)

	// Background jobs
	jobCtx, cancelJobs := context.WithCancel(context.Background())
	defer cancelJobs()

	monitor := jobs.NewDepositMonitor(jobCtx, depositUsecase, jobs.NewRedisCursorStore(),
		cfg.Deposit.PushInterval, cfg.Deposit.BackupPollInterval, cfg.Deposit.MonitorTTL)
	confirmJob := jobs.NewDepositConfirmationJob(depositUsecase, cfg.Deposit.ConfirmInterval, cfg.Deposit.ConfirmBatchSize)
	scheduler := jobs.NewSweepScheduler(jobCtx, gasScheduler, cfg.Sweep.CycleInterval, cfg.Sweep.OptimizeInterval)
	sweepService := usecases.NewSweepServiceUsecase(gasScheduler, scheduler, masterCfgRepo, gasOpRepo)

	go confirmJob.Start(jobCtx)

	if open, err := depositUsecase.OpenExpected(ctx, resumeBatchSize); err != nil {
		logger.Warn(ctx, "Failed to load open deposits, monitoring starts empty", zap.Error(err))
	} else if len(open) > 0 {
		resumed := monitor.Resume(ctx, open)
		logger.Info(ctx, "Resumed deposit monitoring", zap.Int("sessions", resumed))
	}

	if autoStart, err := sweepService.ShouldAutoStart(ctx); err != nil {
		logger.Warn(ctx, "Failed to read auto sweep flag", zap.Error(err))
	} else if autoStart {
		scheduler.Start()
		logger.Info(ctx, "Sweep scheduler auto-started")
	}

	stopBackground := func() {
		scheduler.Stop()
		confirmJob.Stop()
		monitor.Stop()
		cancelJobs()
	}
	defer stopBackground()

	// Handlers
	jwtService := jwt.NewJWTService(cfg.JWT.Secret, cfg.JWT.AccessExpiry)
	walletHandler := handlers.NewWalletHandler(walletUsecase)
	depositHandler := handlers.NewDepositHandler(depositUsecase, monitor)
	balanceHandler := handlers.NewBalanceHandler(ledgerUsecase, notifier)
	sweepHandler := handlers.NewSweepHandler(sweepService)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestIDMiddleware())
	r.Use(middleware.LoggerMiddleware())

	applyCORSMiddleware(r)
	registerHealthRoute(r, cfg.Server.Version)
	registerMetricsRoute(r)
	registerAPIV1Routes(r, routeDeps{
		walletHandler:  walletHandler,
		depositHandler: depositHandler,
		balanceHandler: balanceHandler,
		sweepHandler:   sweepHandler,
		authMiddleware: middleware.AuthMiddleware(jwtService),
	})

	for _, route := range r.Routes() {
		logger.Debug(ctx, "Route registered", zap.String("method", route.Method), zap.String("path", route.Path))
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           r,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(quit)
		select {
		case <-quit:
		case <-jobCtx.Done():
			return
		}
		logger.Info(ctx, "Shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error(ctx, "Server shutdown failed", zap.Error(err))
		}
	}()

	logger.Info(ctx, "Custody backend starting",
		zap.String("port", cfg.Server.Port),
		zap.String("network", network.Name),
		zap.String("token", network.TokenSymbol),
	)

	if err := runServer(srv); err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}
	logger.Info(ctx, "Server stopped")
	return nil
}
