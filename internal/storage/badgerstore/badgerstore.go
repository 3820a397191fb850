// Package badgerstore provides Badger-based durable storage for
// ScriptGate.
//
// It implements the script and answer repositories on top of Badger
// transactions. The optimistic-lock version check runs inside the
// transaction, and Badger's own conflict detection covers concurrent
// writers, so the lifecycle engine keeps its at-most-once mutation
// guarantee on this backend too.
//
// @design DS-0401
package badgerstore

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dgraph-io/badger/v3"
	"github.com/prometheus/client_golang/prometheus"
)

// Config configures the Badger-backed store.
type Config struct {
	// Dir is the data directory. Ignored when InMemory is set.
	Dir string

	// InMemory runs Badger without touching disk. Used in tests.
	InMemory bool

	// SyncWrites forces fsync on every write.
	SyncWrites bool

	// GCInterval is the value-log GC cadence. Zero disables GC.
	GCInterval time.Duration

	// GCDiscardRatio is the reclaim threshold passed to Badger GC.
	GCDiscardRatio float64

	// Metrics, when set, receives store size gauges.
	Metrics prometheus.Registerer
}

// DB wraps a Badger database and hands out the typed repositories.
type DB struct {
	db     *badger.DB
	cfg    Config
	logger *slog.Logger

	stopCh chan struct{}
	doneCh chan struct{}
}

// Open opens (or creates) the Badger database.
func Open(cfg Config, logger *slog.Logger) (*DB, error) {
	if cfg.Dir == "" && !cfg.InMemory {
		return nil, fmt.Errorf("badgerstore: dir is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.GCDiscardRatio == 0 {
		cfg.GCDiscardRatio = 0.5
	}

	opts := badger.DefaultOptions(cfg.Dir)
	opts.InMemory = cfg.InMemory
	opts.SyncWrites = cfg.SyncWrites
	opts.Logger = &badgerLogger{logger: logger}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("badgerstore: open db: %w", err)
	}

	d := &DB{
		db:     db,
		cfg:    cfg,
		logger: logger,
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}

	if cfg.Metrics != nil {
		d.registerMetrics(cfg.Metrics)
	}

	if cfg.GCInterval > 0 && !cfg.InMemory {
		go d.gcLoop()
	} else {
		close(d.doneCh)
	}

	logger.Info("badger store opened",
		"dir", cfg.Dir,
		"in_memory", cfg.InMemory,
		"gc_interval", cfg.GCInterval)

	return d, nil
}

// Scripts returns the script repository view.
func (d *DB) Scripts() *ScriptStore {
	return &ScriptStore{db: d.db}
}

// Answers returns the answer repository view.
func (d *DB) Answers() *AnswerStore {
	return &AnswerStore{db: d.db}
}

// Close stops background GC and closes the database.
func (d *DB) Close() error {
	close(d.stopCh)
	<-d.doneCh
	return d.db.Close()
}

// gcLoop runs value-log garbage collection until Close.
func (d *DB) gcLoop() {
	defer close(d.doneCh)

	ticker := time.NewTicker(d.cfg.GCInterval)
	defer ticker.Stop()

	for {
		select {
		case <-d.stopCh:
			return
		case <-ticker.C:
			// Badger returns ErrNoRewrite when there is nothing to
			// reclaim; loop while it keeps making progress.
			for {
				err := d.db.RunValueLogGC(d.cfg.GCDiscardRatio)
				if err != nil {
					if !errors.Is(err, badger.ErrNoRewrite) {
						d.logger.Warn("value log gc failed", "error", err)
					}
					break
				}
			}
		}
	}
}

func (d *DB) registerMetrics(reg prometheus.Registerer) {
	reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "scriptgate",
		Subsystem: "storage",
		Name:      "badger_lsm_bytes",
		Help:      "Size of the Badger LSM tree in bytes.",
	}, func() float64 {
		lsm, _ := d.db.Size()
		return float64(lsm)
	}))
	reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "scriptgate",
		Subsystem: "storage",
		Name:      "badger_vlog_bytes",
		Help:      "Size of the Badger value log in bytes.",
	}, func() float64 {
		_, vlog := d.db.Size()
		return float64(vlog)
	}))
}

// badgerLogger adapts slog to Badger's logger interface.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...any) {
	l.logger.Error(fmt.Sprintf("badger: "+format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...any) {
	l.logger.Warn(fmt.Sprintf("badger: "+format, args...))
}

func (l *badgerLogger) Infof(format string, args ...any) {
	l.logger.Debug(fmt.Sprintf("badger: "+format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...any) {
	l.logger.Debug(fmt.Sprintf("badger: "+format, args...))
}
