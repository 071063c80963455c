package storage

import (
	"context"
	"database/sql"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/ajitpratap0/tickstore/pkg/errors"
	"github.com/ajitpratap0/tickstore/pkg/logger"
	"github.com/ajitpratap0/tickstore/pkg/metrics"
)

// Pool manages a bounded set of database connections with lazy creation,
// health checking on reuse, and automatic cleanup of idle connections.
type Pool struct {
	db     *sql.DB
	config PoolConfig
	logger *zap.Logger

	// sem holds one token per connection slot; Acquire takes a token,
	// Release returns it.
	sem chan struct{}

	mu     sync.Mutex
	idle   []*Entry
	closed bool

	totalCreated int64
	totalReused  int64

	cleanupTicker *time.Ticker
	stopCh        chan struct{}
}

// PoolConfig bounds the pool
type PoolConfig struct {
	MaxConnections int           `yaml:"max_connections" json:"max_connections" mapstructure:"max_connections"`
	AcquireTimeout time.Duration `yaml:"acquire_timeout" json:"acquire_timeout" mapstructure:"acquire_timeout"`
	MaxIdleTime    time.Duration `yaml:"max_idle_time" json:"max_idle_time" mapstructure:"max_idle_time"`
}

// DefaultPoolConfig returns sensible pool bounds
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		MaxConnections: 4,
		AcquireTimeout: 5 * time.Second,
		MaxIdleTime:    5 * time.Minute,
	}
}

// Entry is a pooled connection with usage metadata
type Entry struct {
	conn      *sql.Conn
	createdAt time.Time
	lastUsed  time.Time
	useCount  int64
	healthy   bool
}

// Conn exposes the underlying connection for statement execution
func (e *Entry) Conn() *sql.Conn { return e.conn }

// MarkUnhealthy flags the entry so Release closes it instead of pooling it
func (e *Entry) MarkUnhealthy() { e.healthy = false }

// PoolStats is a point-in-time snapshot of pool utilization
type PoolStats struct {
	ActiveConnections int   `json:"active_connections"`
	IdleConnections   int   `json:"idle_connections"`
	TotalCreated      int64 `json:"total_created"`
	TotalReused       int64 `json:"total_reused"`
}

// NewPool wraps a database handle in a bounded pool
func NewPool(db *sql.DB, config PoolConfig) *Pool {
	if config.MaxConnections <= 0 {
		config.MaxConnections = DefaultPoolConfig().MaxConnections
	}
	if config.AcquireTimeout <= 0 {
		config.AcquireTimeout = DefaultPoolConfig().AcquireTimeout
	}
	if config.MaxIdleTime <= 0 {
		config.MaxIdleTime = DefaultPoolConfig().MaxIdleTime
	}

	db.SetMaxOpenConns(config.MaxConnections)

	p := &Pool{
		db:     db,
		config: config,
		logger: logger.Get().With(zap.String("component", "storage_pool")),
		sem:    make(chan struct{}, config.MaxConnections),
		stopCh: make(chan struct{}),
	}

	p.cleanupTicker = time.NewTicker(30 * time.Second)
	go p.cleanupLoop()

	return p
}

// Acquire returns a connection, creating one lazily while the pool is below
// its bound. When all connections are held it blocks up to the acquire
// timeout and then fails with a pool_exhausted error. Cancellation of ctx
// aborts the wait.
func (p *Pool) Acquire(ctx context.Context) (*Entry, error) {
	timer := time.NewTimer(p.config.AcquireTimeout)
	defer timer.Stop()

	select {
	case p.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, errors.Wrap(ctx.Err(), errors.ErrorTypeCanceled, "connection acquisition canceled")
	case <-timer.C:
		metrics.PoolExhaustedTotal.Inc()
		return nil, errors.Newf(errors.ErrorTypePoolExhausted,
			"no connection available within %s (max %d held)",
			p.config.AcquireTimeout, p.config.MaxConnections)
	}

	entry, err := p.takeOrCreate(ctx)
	if err != nil {
		<-p.sem
		return nil, err
	}

	metrics.PoolActiveConnections.Inc()
	return entry, nil
}

func (p *Pool) takeOrCreate(ctx context.Context) (*Entry, error) {
	for {
		p.mu.Lock()
		if p.closed {
			p.mu.Unlock()
			return nil, errors.New(errors.ErrorTypeInternal, "pool is closed")
		}
		var entry *Entry
		if n := len(p.idle); n > 0 {
			entry = p.idle[n-1]
			p.idle = p.idle[:n-1]
			metrics.PoolIdleConnections.Dec()
		}
		p.mu.Unlock()

		if entry == nil {
			break
		}

		// Validate before handing out; stale connections are discarded
		// and the next idle one is tried.
		if err := entry.conn.PingContext(ctx); err != nil {
			p.logger.Debug("discarding stale connection", zap.Error(err))
			entry.conn.Close()
			continue
		}

		entry.lastUsed = time.Now()
		entry.useCount++
		atomic.AddInt64(&p.totalReused, 1)
		return entry, nil
	}

	conn, err := p.db.Conn(ctx)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeInternal, "failed to open database connection")
	}

	atomic.AddInt64(&p.totalCreated, 1)
	p.logger.Debug("created connection",
		zap.Int64("total_created", atomic.LoadInt64(&p.totalCreated)))

	now := time.Now()
	return &Entry{conn: conn, createdAt: now, lastUsed: now, useCount: 1, healthy: true}, nil
}

// Release returns a connection to the pool. Unhealthy entries are closed
// rather than pooled; the slot is freed either way.
func (p *Pool) Release(entry *Entry) {
	if entry == nil {
		return
	}

	metrics.PoolActiveConnections.Dec()

	p.mu.Lock()
	pooled := entry.healthy && !p.closed
	if pooled {
		entry.lastUsed = time.Now()
		p.idle = append(p.idle, entry)
		metrics.PoolIdleConnections.Inc()
	}
	p.mu.Unlock()

	if !pooled {
		entry.conn.Close()
	}

	<-p.sem
}

// Stats returns a snapshot of pool utilization
func (p *Pool) Stats() PoolStats {
	p.mu.Lock()
	idle := len(p.idle)
	p.mu.Unlock()

	return PoolStats{
		ActiveConnections: len(p.sem),
		IdleConnections:   idle,
		TotalCreated:      atomic.LoadInt64(&p.totalCreated),
		TotalReused:       atomic.LoadInt64(&p.totalReused),
	}
}

func (p *Pool) cleanupLoop() {
	for {
		select {
		case <-p.cleanupTicker.C:
			p.cleanup()
		case <-p.stopCh:
			return
		}
	}
}

// cleanup closes idle connections past the idle deadline
func (p *Pool) cleanup() {
	p.mu.Lock()
	now := time.Now()
	remaining := p.idle[:0]
	var expired []*Entry
	for _, entry := range p.idle {
		if now.Sub(entry.lastUsed) > p.config.MaxIdleTime {
			expired = append(expired, entry)
			metrics.PoolIdleConnections.Dec()
		} else {
			remaining = append(remaining, entry)
		}
	}
	p.idle = remaining
	p.mu.Unlock()

	for _, entry := range expired {
		entry.conn.Close()
	}

	if len(expired) > 0 {
		p.logger.Info("closed idle connections", zap.Int("closed", len(expired)))
	}
}

// Close stops the cleanup loop and closes every idle connection. Held
// connections are closed when released.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	idle := p.idle
	p.idle = nil
	p.mu.Unlock()

	close(p.stopCh)
	p.cleanupTicker.Stop()

	for _, entry := range idle {
		entry.conn.Close()
		metrics.PoolIdleConnections.Dec()
	}

	p.logger.Info("connection pool closed")
}
