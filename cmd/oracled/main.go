// Command oracled runs the oracle control plane node: Scheduler,
// SourceAdapters, Validator+Aggregator, Signer, TransactionManager, and
// ContractRegistry wired together, plus an admin HTTP surface for health
// and Prometheus metrics (spec §2, §6).
package main

import (
	"context"
	"math/big"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	goredis "github.com/go-redis/redis/v8"

	"github.com/greyhatharola/Oracular/internal/aggregator"
	"github.com/greyhatharola/Oracular/internal/chain"
	"github.com/greyhatharola/Oracular/internal/config"
	"github.com/greyhatharola/Oracular/internal/engine"
	"github.com/greyhatharola/Oracular/internal/logging"
	"github.com/greyhatharola/Oracular/internal/metrics"
	"github.com/greyhatharola/Oracular/internal/registry"
	"github.com/greyhatharola/Oracular/internal/scheduler"
	"github.com/greyhatharola/Oracular/internal/signer"
	"github.com/greyhatharola/Oracular/internal/store"
	"github.com/greyhatharola/Oracular/internal/txmanager"
	"github.com/greyhatharola/Oracular/internal/validator"
)

func main() {
	cfg := config.Load()
	log := logging.New("oracled", cfg.LogLevel, cfg.LogFormat)
	met := metrics.New("oracled")

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	st, err := buildStore(cfg)
	if err != nil {
		log.Error(ctx, "build store", err, nil)
		os.Exit(1)
	}

	chainClient, err := chain.New(ctx, chain.Config{
		RPCEndpoints: cfg.Chain.RPCEndpoints,
		ChainID:      bigFromInt64(cfg.Chain.ChainID),
		IsPoA:        cfg.Chain.IsPoA,
	})
	if err != nil {
		log.Error(ctx, "dial chain RPC pool", err, nil)
		os.Exit(1)
	}

	privKey, err := crypto.HexToECDSA(cfg.TxManager.PrivateKeyHex)
	if err != nil {
		log.Error(ctx, "parse TXMANAGER_PRIVATE_KEY", err, nil)
		os.Exit(1)
	}

	tm := txmanager.New(txmanager.Config{
		PrivateKey:             privKey,
		ChainID:                bigFromInt64(cfg.Chain.ChainID),
		MaxGasPriceWei:         bigFromInt64(cfg.TxManager.MaxGasPriceWei),
		NonceCacheTTL:          cfg.TxManager.NonceCacheTTL,
		GasPriceUpdateInterval: cfg.TxManager.GasPriceUpdateInterval,
		MonitorInterval:        cfg.TxManager.MonitorInterval,
		StuckBlockThreshold:    cfg.TxManager.StuckBlockThreshold,
		ReplacementGasBumpX:    cfg.TxManager.ReplacementGasBumpX,
	}, chainClient, met, log)

	sgn, err := signer.New()
	if err != nil {
		log.Error(ctx, "generate signing key", err, nil)
		os.Exit(1)
	}

	pipeline := validator.New(validator.DefaultConfig(), nil)
	reg := registry.New()
	eng := engine.New(pipeline, reg, tm, sgn, met, log, aggregator.DefaultConfig())

	sched := scheduler.New(schedulerConfig(cfg), st, met, log, eng)

	go sched.Run(ctx)
	go sched.RunHeartbeat(ctx)
	go sched.RunExecutionGC(ctx)
	go tm.RunMonitor(ctx)
	go sampleSystemMetrics(ctx, met)

	srv := adminServer(cfg, met)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error(ctx, "admin server", err, nil)
		}
	}()

	log.Info(ctx, "oracled started", map[string]interface{}{"node_id": cfg.NodeID, "admin_addr": cfg.AdminAddr})

	<-ctx.Done()

	log.Info(ctx, "shutting down", nil)
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	_ = srv.Shutdown(shutdownCtx)
}

func buildStore(cfg config.Config) (*store.Store, error) {
	scfg := store.DefaultConfig()
	if cfg.Redis.Enabled {
		client := redisClient(cfg.Redis)
		scfg.Backend = store.NewRedisBackend(client)
	}
	return store.New(scfg)
}

func schedulerConfig(cfg config.Config) scheduler.Config {
	sc := scheduler.DefaultConfig(cfg.NodeID)
	sc.GraceWindow = cfg.Scheduler.GraceWindow
	sc.HeartbeatInterval = cfg.Scheduler.HeartbeatInterval
	sc.HeartbeatTTL = cfg.Scheduler.HeartbeatTTL
	sc.ExecutionRetention = cfg.Scheduler.ExecutionRetention
	return sc
}

func adminServer(cfg config.Config, met *metrics.Metrics) *http.Server {
	router := mux.NewRouter()
	router.Handle(cfg.MetricsPath, promhttp.Handler()).Methods(http.MethodGet)
	router.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}).Methods(http.MethodGet)

	return &http.Server{
		Addr:    cfg.AdminAddr,
		Handler: router,
	}
}

func redisClient(cfg config.RedisConfig) *goredis.Client {
	return goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
}

func bigFromInt64(v int64) *big.Int {
	return big.NewInt(v)
}

func sampleSystemMetrics(ctx context.Context, met *metrics.Metrics) {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			met.SampleSystem(ctx)
		}
	}
}
