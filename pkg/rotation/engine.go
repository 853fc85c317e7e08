// Package rotation implements the suffix-rotation core: the windowed
// assignment decider, the lease lifecycle and its idempotent ack
// protocol, the downstream report log, and watermark-driven stock
// replenishment.
package rotation

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

// Config carries the engine's tunables. The server layer fills it from
// file configuration; the engine never reads ambient process state.
type Config struct {
	CycleMinutesMin       int
	CycleMinutesMax       int
	MaxBatchSize          int
	DefaultClickThreshold int64
	ItemTimeout           time.Duration
	DedupWindow           time.Duration
	Watermark             WatermarkConfig
}

// WatermarkConfig bounds the replenishment target derived from demand.
type WatermarkConfig struct {
	Min           int
	Max           int
	Default       int
	SafetyFactor  float64
	HistoryWindow time.Duration
}

func (c *Config) applyDefaults() {
	if c.CycleMinutesMin <= 0 {
		c.CycleMinutesMin = 10
	}
	if c.CycleMinutesMax <= 0 {
		c.CycleMinutesMax = 60
	}
	if c.MaxBatchSize <= 0 {
		c.MaxBatchSize = 100
	}
	if c.DefaultClickThreshold <= 0 {
		c.DefaultClickThreshold = 5
	}
	if c.ItemTimeout <= 0 {
		c.ItemTimeout = 5 * time.Second
	}
	if c.DedupWindow <= 0 {
		c.DedupWindow = 24 * time.Hour
	}
	if c.Watermark.Min <= 0 {
		c.Watermark.Min = 3
	}
	if c.Watermark.Max <= 0 {
		c.Watermark.Max = 20
	}
	if c.Watermark.Default <= 0 {
		c.Watermark.Default = 5
	}
	if c.Watermark.SafetyFactor <= 0 {
		c.Watermark.SafetyFactor = 2.0
	}
	if c.Watermark.HistoryWindow <= 0 {
		c.Watermark.HistoryWindow = 24 * time.Hour
	}
	if c.Watermark.Max < c.Watermark.Min {
		c.Watermark.Max = c.Watermark.Min
	}
}

// Engine is the rotation core. All state lives in the database; the
// keyed mutex only serializes same-key work inside this process, the
// unique lease index backstops horizontally scaled peers.
type Engine struct {
	db      *gorm.DB
	cfg     Config
	ips     ExitIPSource
	logger  zerolog.Logger
	metrics *Metrics
	locks   *keyedMutex
	now     func() time.Time
}

// NewEngine wires the engine. metrics may be nil to disable collection.
func NewEngine(db *gorm.DB, cfg Config, ips ExitIPSource, logger zerolog.Logger, metrics *Metrics) *Engine {
	cfg.applyDefaults()
	return &Engine{
		db:      db,
		cfg:     cfg,
		ips:     ips,
		logger:  logger,
		metrics: metrics,
		locks:   newKeyedMutex(),
		now:     time.Now,
	}
}

// Config returns the normalized engine configuration.
func (e *Engine) Config() Config {
	return e.cfg
}

func (e *Engine) observeDecision(action, reason string, start time.Time) {
	if e.metrics == nil {
		return
	}
	e.metrics.DecisionsTotal.WithLabelValues(action, reason).Inc()
	e.metrics.DecisionLatencyMS.Observe(float64(time.Since(start).Milliseconds()))
}

func (e *Engine) incAck(result string) {
	if e.metrics == nil {
		return
	}
	e.metrics.AcksTotal.WithLabelValues(result).Inc()
}

func (e *Engine) incReport(result string) {
	if e.metrics == nil {
		return
	}
	e.metrics.ReportsTotal.WithLabelValues(result).Inc()
}

// newSuffixValue produces a fresh tracking-parameter suffix. Values are
// random enough that collisions inside one campaign's available set do
// not occur in practice.
func newSuffixValue() (string, error) {
	b := make([]byte, 9)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return fmt.Sprintf("sid=%s", base64.RawURLEncoding.EncodeToString(b)), nil
}
