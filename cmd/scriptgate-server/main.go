package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/scriptgate-go/internal/artifact"
	"github.com/yndnr/scriptgate-go/internal/core/service"
	"github.com/yndnr/scriptgate-go/internal/infra/buildinfo"
	"github.com/yndnr/scriptgate-go/internal/infra/confloader"
	"github.com/yndnr/scriptgate-go/internal/infra/shutdown"
	"github.com/yndnr/scriptgate-go/internal/server/config"
	"github.com/yndnr/scriptgate-go/internal/server/httpserver"
	"github.com/yndnr/scriptgate-go/internal/storage/badgerstore"
	"github.com/yndnr/scriptgate-go/internal/storage/memory"
	"github.com/yndnr/scriptgate-go/internal/telemetry/logger"
	"github.com/yndnr/scriptgate-go/internal/telemetry/metric"
	"github.com/yndnr/scriptgate-go/internal/vision"
	"github.com/yndnr/scriptgate-go/pkg/namegen"
)

func main() {
	app := &cli.App{
		Name:    "scriptgate-server",
		Usage:   "gated script delivery and answer evaluation service",
		Version: buildinfo.Version,
		Commands: []*cli.Command{
			{
				Name:  "serve",
				Usage: "start the server",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "config",
						Aliases: []string{"c"},
						Usage:   "path to the YAML configuration file",
					},
				},
				Action: func(c *cli.Context) error {
					return serve(c.String("config"))
				},
			},
			{
				Name:  "version",
				Usage: "print detailed version information",
				Action: func(*cli.Context) error {
					fmt.Println(buildinfo.String())
					return nil
				},
			},
			{
				Name:      "hash-key",
				Usage:     "hash an admin API key for admin.api_key_hash",
				ArgsUsage: "<key>",
				Action: func(c *cli.Context) error {
					key := c.Args().First()
					if key == "" {
						return errors.New("usage: scriptgate-server hash-key <key>")
					}
					hash, err := httpserver.HashAdminKey(key)
					if err != nil {
						return err
					}
					fmt.Println(hash)
					return nil
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func serve(configFile string) error {
	cfg, err := loadConfig(configFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log := logger.New(logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: os.Stdout,
	})
	slog.SetDefault(log)

	log.Info("starting scriptgate-server",
		"version", buildinfo.Version,
		"commit", buildinfo.Commit,
		"config", configFile,
		"storage", cfg.Storage.Backend,
	)

	metrics := metric.NewRegistry()
	shutdownHandler := shutdown.New(cfg.Server.HTTP.ShutdownTimeout, log)

	stores, err := initStorage(cfg, log, metrics, shutdownHandler)
	if err != nil {
		return fmt.Errorf("init storage: %w", err)
	}

	artifacts, err := artifact.New(artifact.Config{
		Dir:           cfg.Artifact.Dir,
		EncryptionKey: []byte(cfg.Artifact.EncryptionKey),
	})
	if err != nil {
		return fmt.Errorf("init artifact store: %w", err)
	}
	log.Info("artifact store ready", "dir", cfg.Artifact.Dir, "encrypted", artifacts.Encrypted())

	evaluator, err := initEvaluator(cfg, log, metrics)
	if err != nil {
		return fmt.Errorf("init evaluator: %w", err)
	}

	svc, err := initService(cfg, stores, artifacts, evaluator)
	if err != nil {
		return fmt.Errorf("init service: %w", err)
	}

	payload, err := loadPayload(cfg.Script.PayloadFile)
	if err != nil {
		return fmt.Errorf("load payload: %w", err)
	}

	router := httpserver.NewRouter(&httpserver.RouterConfig{
		Service:        svc,
		Payload:        payload,
		Logger:         log,
		Metrics:        metrics,
		AdminKeyHash:   cfg.Admin.APIKeyHash,
		AllowedOrigins: cfg.Server.HTTP.AllowedOrigins,
		RateLimitPerIP: cfg.Limit.PerIP,
		RateLimitBurst: cfg.Limit.Burst,
		ReadyCheck:     stores.readyCheck,
	})

	server := httpserver.New(cfg.Server.HTTP.Addr, router,
		cfg.Server.HTTP.ReadTimeout, cfg.Server.HTTP.WriteTimeout)
	shutdownHandler.OnShutdown("http server", server.Shutdown)

	if configFile != "" {
		stopWatch, err := watchConfig(configFile, log)
		if err != nil {
			log.Warn("config watcher unavailable", "error", err)
		} else {
			shutdownHandler.OnShutdown("config watcher", func(context.Context) error {
				return stopWatch()
			})
		}
	}

	go func() {
		log.Info("http server listening", "addr", cfg.Server.HTTP.Addr)

		var err error
		if cfg.Server.HTTP.TLSCertFile != "" {
			err = server.ListenAndServeTLS(cfg.Server.HTTP.TLSCertFile, cfg.Server.HTTP.TLSKeyFile)
		} else {
			err = server.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server failed", "error", err)
			shutdownHandler.Trigger()
		}
	}()

	if err := shutdownHandler.Wait(); err != nil {
		return err
	}
	log.Info("server stopped")
	return nil
}

// loadConfig merges defaults, the optional YAML file, and environment
// variables, then validates the result.
func loadConfig(configFile string) (*config.ServerConfig, error) {
	cfg := config.Default()

	opts := []confloader.Option{}
	if configFile != "" {
		opts = append(opts, confloader.WithConfigFile(configFile))
	}
	if err := confloader.New(opts...).Load(cfg); err != nil {
		return nil, err
	}
	if err := config.Verify(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// stores bundles the selected backend's repositories.
type stores struct {
	scripts    service.ScriptRepository
	answers    service.AnswerRepository
	nameCheck  service.NameChecker
	readyCheck func(context.Context) error
}

func initStorage(cfg *config.ServerConfig, log *slog.Logger, metrics *metric.Registry, sh *shutdown.Handler) (*stores, error) {
	switch cfg.Storage.Backend {
	case "memory":
		log.Warn("memory backend selected, data is lost on restart")
		s := memory.New()
		return &stores{
			scripts:   s,
			answers:   memory.NewAnswerStore(),
			nameCheck: s,
		}, nil

	case "badger":
		db, err := badgerstore.Open(badgerstore.Config{
			Dir:        cfg.Storage.DataDir,
			SyncWrites: cfg.Storage.SyncWrites,
			GCInterval: cfg.Storage.GCInterval,
			Metrics:    metrics.Registerer(),
		}, log)
		if err != nil {
			return nil, err
		}
		sh.OnShutdown("badger store", func(context.Context) error {
			return db.Close()
		})

		scripts := db.Scripts()
		return &stores{
			scripts:   scripts,
			answers:   db.Answers(),
			nameCheck: scripts,
			readyCheck: func(ctx context.Context) error {
				_, err := scripts.Exists(ctx, "readiness-probe")
				return err
			},
		}, nil

	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
}

// noopEvaluator stands in when evaluation is disabled: submissions are
// accepted and stored, but no output is produced.
type noopEvaluator struct{}

func (noopEvaluator) Solve(context.Context, string) (string, error) {
	return "", nil
}

func initEvaluator(cfg *config.ServerConfig, log *slog.Logger, metrics *metric.Registry) (service.Evaluator, error) {
	if !cfg.Eval.Enabled {
		log.Warn("evaluation disabled, submissions are stored without output")
		return noopEvaluator{}, nil
	}
	return vision.New(vision.Config{
		BaseURL:    cfg.Eval.BaseURL,
		APIKey:     cfg.Eval.APIKey,
		Model:      cfg.Eval.Model,
		Timeout:    cfg.Eval.Timeout,
		MaxRetries: cfg.Eval.MaxRetries,
		RatePerSec: cfg.Eval.RatePerSec,
		Burst:      cfg.Eval.Burst,
	}, log, vision.WithObserver(metrics.ObserveEval))
}

func initService(cfg *config.ServerConfig, st *stores, artifacts *artifact.Store, evaluator service.Evaluator) (*service.ScriptService, error) {
	names, err := service.NewNameGenerator(namegen.Config{
		Alphabet:       cfg.Name.Alphabet,
		MinLength:      cfg.Name.MinLength,
		MaxLength:      cfg.Name.MaxLength,
		FallbackLength: cfg.Name.FallbackLength,
		MaxAttempts:    cfg.Name.MaxAttempts,
	}, st.nameCheck)
	if err != nil {
		return nil, err
	}

	gateCfg := service.DefaultGateConfig()
	gateCfg.ActiveWindow = cfg.Script.ActiveWindow
	gateCfg.DefaultMaxUsed = cfg.Script.DefaultMaxUsed
	gateCfg.MinFingerprintLength = cfg.Script.MinFingerprintLength
	gateCfg.FingerprintPolicy = service.FingerprintPolicy(cfg.Script.FingerprintPolicy)

	return service.NewScriptService(st.scripts, st.answers, artifacts, evaluator, names, gateCfg)
}

// loadPayload reads the client script template, falling back to the
// embedded default.
func loadPayload(path string) ([]byte, error) {
	if path == "" {
		return defaultPayload, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return data, nil
}

// watchConfig reloads the log level when the config file changes.
// Other settings require a restart.
func watchConfig(configFile string, log *slog.Logger) (func() error, error) {
	watcher, err := confloader.NewWatcher(log)
	if err != nil {
		return nil, err
	}
	if err := watcher.Watch(configFile); err != nil {
		return nil, err
	}

	watcher.OnChange(func(path string) {
		loader := confloader.New(confloader.WithConfigFile(path))
		cfg := config.Default()
		if err := loader.Load(cfg); err != nil {
			log.Error("config reload failed", "error", err)
			return
		}
		if cfg.Log.Level != logger.GetLevel() {
			logger.SetLevel(cfg.Log.Level)
			log.Info("log level changed", "level", cfg.Log.Level)
		}
	})
	watcher.Start()
	return watcher.Stop, nil
}
