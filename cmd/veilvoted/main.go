package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	flag "github.com/spf13/pflag"
	"go.vocdoni.io/dvote/db/metadb"

	"github.com/veilvote/veilvote/config"
	"github.com/veilvote/veilvote/log"
	"github.com/veilvote/veilvote/service"
	"github.com/veilvote/veilvote/storage"
)

func main() {
	// A .env file in the working directory seeds the environment, so
	// deployments can ship configuration without wrapper scripts. Explicit
	// flags still win over environment values.
	_ = godotenv.Load()

	cfg := config.Default()
	flag.StringVar(&cfg.Host, "host", envOr("VEILVOTE_HOST", cfg.Host), "address the API server binds to")
	flag.IntVar(&cfg.Port, "port", envIntOr("VEILVOTE_PORT", cfg.Port), "port of the API server")
	flag.StringVar(&cfg.Role, "role", envOr("VEILVOTE_ROLE", cfg.Role), "endpoints to serve: ia, po or both")
	flag.StringVar(&cfg.DataDir, "datadir", envOr("VEILVOTE_DATADIR", cfg.DataDir), "directory holding the key-value store")
	flag.StringVar(&cfg.DBType, "dbtype", envOr("VEILVOTE_DBTYPE", cfg.DBType), "key-value store engine")
	flag.StringVar(&cfg.LogLevel, "loglevel", envOr("VEILVOTE_LOGLEVEL", cfg.LogLevel), "log level (debug, info, warn, error)")
	flag.StringVar(&cfg.LogOutput, "logoutput", envOr("VEILVOTE_LOGOUTPUT", cfg.LogOutput), "log output (stdout, stderr or a file path)")
	flag.DurationVar(&cfg.KeyRotation, "keyrotation", envDurationOr("VEILVOTE_KEYROTATION", cfg.KeyRotation), "issuer key epoch rotation interval")
	flag.Parse()

	log.Init(cfg.LogLevel, cfg.LogOutput, nil)
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	kv, err := metadb.New(cfg.DBType, cfg.DataDir)
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	stg := storage.New(kv)
	defer stg.Close()

	ctx := context.Background()
	api := service.NewAPI(stg, cfg.Host, cfg.Port, cfg.Role, cfg.KeyRotation)
	if err := api.Start(ctx); err != nil {
		log.Fatalf("failed to start API service: %v", err)
	}
	host, port := api.HostPort()
	log.Infow("veilvote daemon running",
		"host", host, "port", port, "role", cfg.Role, "datadir", cfg.DataDir)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Info("shutting down")
	api.Stop()
}

// envOr returns the environment value of key, or fallback when unset.
func envOr(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	v, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid %s: %v\n", key, err)
		os.Exit(1)
	}
	return n
}

func envDurationOr(key string, fallback time.Duration) time.Duration {
	v, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid %s: %v\n", key, err)
		os.Exit(1)
	}
	return d
}
