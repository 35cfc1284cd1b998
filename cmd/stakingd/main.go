package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"

	"stakeledger/config"
	"stakeledger/native/staking"
	"stakeledger/native/token"
	"stakeledger/observability"
	"stakeledger/observability/logging"
	"stakeledger/rpc"
	"stakeledger/storage"
)

// custodyAddress is the well-known account the ledger holds pooled funds on.
var custodyAddress = common.BytesToAddress([]byte("stakeledger/custody"))

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file")
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		slog.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := logging.SetupWithOptions("stakingd", cfg.Env, logging.Options{File: cfg.LogFile})

	owner, err := cfg.OwnerAddress()
	if err != nil {
		logger.Error("invalid owner address", slog.Any("error", err))
		os.Exit(1)
	}

	var db storage.Database
	if cfg.DataDir != "" {
		ldb, err := storage.NewLevelDB(filepath.Join(cfg.DataDir, "ledger"))
		if err != nil {
			logger.Error("failed to open ledger database", slog.Any("error", err))
			os.Exit(1)
		}
		db = ldb
	} else {
		logger.Warn("no DataDir configured, ledger state is in-memory only")
		db = storage.NewMemDB()
	}
	defer func() {
		if err := db.Close(); err != nil {
			logger.Error("failed to close ledger database", slog.Any("error", err))
		}
	}()

	store := storage.NewStore(db)

	tokens := token.NewLedger(cfg.TokenSymbol)
	mint, err := cfg.OwnerMintAmount()
	if err != nil {
		logger.Error("invalid owner mint", slog.Any("error", err))
		os.Exit(1)
	}
	if mint.Sign() > 0 {
		if err := tokens.Mint(owner, mint); err != nil {
			logger.Error("failed to seed owner balance", slog.Any("error", err))
			os.Exit(1)
		}
		// Standing approval so pool refills can pull from the owner.
		if err := tokens.Approve(owner, custodyAddress, mint); err != nil {
			logger.Error("failed to approve custody spender", slog.Any("error", err))
			os.Exit(1)
		}
	}

	metrics := observability.NewMetrics(prometheus.DefaultRegisterer)
	recorder := observability.NewEventRecorder(logger, metrics, 512)

	engine := staking.NewEngine(custodyAddress, cfg.InactivityLimitSeconds)
	engine.SetState(store)
	engine.SetToken(tokens)
	engine.SetEmitter(recorder)
	if err := engine.Initialize(owner, cfg.APY); err != nil {
		logger.Error("failed to initialize ledger", slog.Any("error", err))
		os.Exit(1)
	}

	server := rpc.NewServer(engine, logger, rpc.Options{
		Auth: rpc.AuthConfig{
			Enabled:    cfg.Auth.Enabled,
			HMACSecret: cfg.Auth.HMACSecret,
			Issuer:     cfg.Auth.Issuer,
			Audience:   cfg.Auth.Audience,
		},
		RateLimit: rpc.RateLimitConfig{
			RequestsPerMinute: cfg.RateLimit.RequestsPerMinute,
			Burst:             cfg.RateLimit.Burst,
		},
		Metrics:  metrics,
		Recorder: recorder,
	})

	httpServer := &http.Server{
		Addr:              cfg.ListenAddress,
		Handler:           server.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("staking service listening", slog.String("address", cfg.ListenAddress))
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("shutdown failed", slog.Any("error", err))
		}
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server terminated", slog.Any("error", err))
			os.Exit(1)
		}
	}
}
