package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"loanledger/config"
	"loanledger/core/events"
	"loanledger/crypto"
	"loanledger/native/lending"
	"loanledger/native/reputation"
	"loanledger/observability/logging"
	"loanledger/rpc"
	"loanledger/state"
	"loanledger/storage"
)

func main() {
	configPath := flag.String("config", "", "path to the TOML configuration file")
	flag.Parse()

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		cfg = loaded
	}

	logger := logging.Setup("loanledgerd", cfg.Env, cfg.LogFile)

	if err := run(cfg, logger); err != nil {
		logger.Error("service exited", "err", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	var db storage.Database
	if cfg.DataDir == "" {
		logger.Warn("no data dir configured, using in-memory storage")
		db = storage.NewMemDB()
	} else {
		ldb, err := storage.NewLevelDB(filepath.Join(cfg.DataDir, "ledger"))
		if err != nil {
			return fmt.Errorf("open ledger database: %w", err)
		}
		db = ldb
	}
	defer db.Close()

	manager := state.NewManager(db)

	owner, err := addressOrDefault(cfg.Owner, crypto.LoanPrefix, 0x01)
	if err != nil {
		return fmt.Errorf("owner address: %w", err)
	}
	assetVault, err := addressOrDefault(cfg.AssetVault, crypto.LoanPrefix, 0xA1)
	if err != nil {
		return fmt.Errorf("asset vault address: %w", err)
	}
	collateralVault, err := addressOrDefault(cfg.CollateralVault, crypto.CollateralPrefix, 0xA2)
	if err != nil {
		return fmt.Errorf("collateral vault address: %w", err)
	}

	policy, err := buildPolicy(cfg)
	if err != nil {
		return err
	}

	engine := lending.NewEngine(owner, policy)
	engine.SetState(manager)
	engine.SetCustodian(state.NewVaultCustodian(manager, assetVault, collateralVault))

	var scores *reputation.Engine
	if cfg.Variant == config.VariantCreditLine {
		ledger := reputation.NewLedger(db)
		ledger.SetNowFunc(func() uint64 { return uint64(time.Now().Unix()) })
		if cfg.Attester != "" {
			attester, err := crypto.DecodeAddress(cfg.Attester)
			if err != nil {
				return fmt.Errorf("attester address: %w", err)
			}
			ledger.SetAttester(attester)
		}
		scores = reputation.NewEngine(ledger)
		engine.SetEligibilityGate(scores)
	}

	if cfg.Paused {
		if err := engine.SetPaused(owner, true); err != nil {
			return fmt.Errorf("apply pause default: %w", err)
		}
	}

	feed := rpc.NewEventFeed(0)
	engine.SetEmitter(multiEmitter{feed, logEmitter{logger}})

	server := rpc.NewServer(engine, feed, logger)
	if scores != nil {
		server.SetReputation(scores)
	}
	httpServer := &http.Server{
		Addr:              cfg.ListenAddress,
		Handler:           server.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", cfg.ListenAddress, "variant", cfg.Variant)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	logger.Info("shutting down")
	return httpServer.Shutdown(shutdownCtx)
}

func buildPolicy(cfg *config.Config) (lending.Policy, error) {
	switch cfg.Variant {
	case config.VariantCreditLine:
		return lending.NewCreditLinePolicy(cfg.LoanToValue(), cfg.LiquidationThreshold(), cfg.MinEligibilityScore), nil
	case config.VariantPool:
		return lending.NewFixedRatioPolicy(cfg.RatioWad()), nil
	default:
		return nil, fmt.Errorf("unknown variant %q", cfg.Variant)
	}
}

func addressOrDefault(encoded string, prefix crypto.AddressPrefix, suffix byte) (crypto.Address, error) {
	if encoded != "" {
		return crypto.DecodeAddress(encoded)
	}
	raw := make([]byte, crypto.AddressLength)
	raw[len(raw)-1] = suffix
	return crypto.NewAddress(prefix, raw), nil
}

type multiEmitter []events.Emitter

func (m multiEmitter) Emit(evt events.Event) {
	for _, emitter := range m {
		emitter.Emit(evt)
	}
}

type logEmitter struct {
	log *slog.Logger
}

func (l logEmitter) Emit(evt events.Event) {
	record := events.ToRecord(evt)
	args := make([]any, 0, len(record.Attributes)*2+2)
	args = append(args, "type", record.Type)
	for key, value := range record.Attributes {
		args = append(args, key, value)
	}
	l.log.Info("event", args...)
}
