// Package orderid mints date-scoped client order ids that stay unique across
// processes sharing one data directory, and durably maps them to the order ids
// assigned by the exchange.
//
// An id is (year-epochYear)*1e8 + dayOfYear*1e5 + seq with seq in [1, 99999].
// The directory holds four files:
//
//	gdax.ord   append-only log of (id, exchange id) records
//	gdax.seq   the shared counter: day base and last sequence
//	gdax.lock  advisory lock taken around every counter or log mutation
//	gdax.live  shared lock held by every attached generator
//
// The first generator to attach (nobody holds gdax.live) replays and compacts
// the log and seeds the counter. Later generators attach to the counter as is.
package orderid

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/zeromicro/go-zero/core/logx"

	"gdax-broker/pkg/exchange"
)

const (
	logFileName  = "gdax.ord"
	seqFileName  = "gdax.seq"
	lockFileName = "gdax.lock"
	liveFileName = "gdax.live"

	yearFactor = 100_000_000
	dayFactor  = 100_000
	maxSeq     = dayFactor - 1

	lockPollInterval = 10 * time.Millisecond
)

// ErrClosed is returned by operations on a closed generator.
var ErrClosed = errors.New("orderid: generator closed")

// Generator is safe for concurrent use.
type Generator struct {
	mu sync.Mutex

	dir         string
	clock       func() time.Time
	epochYear   int
	lockTimeout time.Duration
	warn        func(error)

	lockFile *os.File
	liveFile *os.File
	seqFile  *os.File

	owner    bool
	mappings map[int32]string
	closed   bool
}

// Option customises a Generator.
type Option func(*Generator)

// WithClock overrides the calendar source.
func WithClock(clock func() time.Time) Option {
	return func(g *Generator) {
		if clock != nil {
			g.clock = clock
		}
	}
}

// WithEpochYear sets the year that maps to a zero year component.
func WithEpochYear(year int) Option {
	return func(g *Generator) {
		if year > 0 {
			g.epochYear = year
		}
	}
}

// WithLockTimeout bounds how long a call waits for another process.
func WithLockTimeout(d time.Duration) Option {
	return func(g *Generator) {
		if d > 0 {
			g.lockTimeout = d
		}
	}
}

// WithWarningHandler receives durability warnings in addition to the log.
func WithWarningHandler(fn func(error)) Option {
	return func(g *Generator) {
		g.warn = fn
	}
}

// Open attaches to the id region in dir, creating it when missing.
func Open(ctx context.Context, dir string, opts ...Option) (*Generator, error) {
	if dir == "" {
		return nil, fmt.Errorf("orderid: data directory is required")
	}
	g := &Generator{
		dir:         dir,
		clock:       time.Now,
		epochYear:   exchange.DefaultEpochYear,
		lockTimeout: exchange.DefaultLockTimeout,
		mappings:    make(map[int32]string),
	}
	for _, opt := range opts {
		opt(g)
	}
	if err := exchange.CheckEpochYear(g.epochYear, g.clock()); err != nil {
		return nil, fmt.Errorf("orderid: %w", err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("orderid: create %s: %w", dir, err)
	}

	var err error
	if g.lockFile, err = openRegionFile(dir, lockFileName); err != nil {
		return nil, err
	}
	if g.liveFile, err = openRegionFile(dir, liveFileName); err != nil {
		g.closeFiles()
		return nil, err
	}
	if g.seqFile, err = openRegionFile(dir, seqFileName); err != nil {
		g.closeFiles()
		return nil, err
	}

	if err := g.attach(ctx); err != nil {
		g.closeFiles()
		return nil, err
	}
	return g, nil
}

func openRegionFile(dir, name string) (*os.File, error) {
	f, err := os.OpenFile(filepath.Join(dir, name), os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("orderid: open %s: %w", name, err)
	}
	return f, nil
}

func (g *Generator) attach(ctx context.Context) error {
	if err := g.acquire(ctx, g.lockFile, true); err != nil {
		return err
	}
	defer g.release(g.lockFile)

	first, err := tryLock(g.liveFile, true)
	if err != nil {
		return fmt.Errorf("orderid: check %s: %w", liveFileName, err)
	}
	if first {
		g.owner = true
		if err := g.recover(); err != nil {
			_ = unlockFile(g.liveFile)
			return err
		}
		// Nobody can test gdax.live while the mutation lock is held.
		if err := unlockFile(g.liveFile); err != nil {
			return fmt.Errorf("orderid: release %s: %w", liveFileName, err)
		}
	}
	if err := g.acquire(ctx, g.liveFile, false); err != nil {
		return err
	}
	if !first {
		g.mappings = replay(g.readLog())
	}
	logx.Infof("orderid: attached to %s (owner=%t, live mappings=%d)", g.dir, g.owner, len(g.mappings))
	return nil
}

// recover rebuilds the mapping table, seeds the counter and compacts the log.
// Caller holds the mutation lock.
func (g *Generator) recover() error {
	records := g.readLog()
	g.mappings = replay(records)

	today := g.dayBase(g.clock())
	var floor int32
	for _, rec := range records {
		if rec.id-rec.id%dayFactor == today && rec.id%dayFactor > floor {
			floor = rec.id % dayFactor
		}
	}
	base, seq, err := g.readCounter()
	if err != nil {
		return err
	}
	if base == today && seq > floor {
		floor = seq
	}
	if err := g.writeCounter(today, floor); err != nil {
		return err
	}
	g.compact(g.mappings)
	return nil
}

// NextID mints the next id for today.
func (g *Generator) NextID(ctx context.Context) (int32, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return 0, ErrClosed
	}
	now := g.clock()
	if err := exchange.CheckEpochYear(g.epochYear, now); err != nil {
		return 0, fmt.Errorf("orderid: %w", err)
	}
	if err := g.acquire(ctx, g.lockFile, true); err != nil {
		return 0, err
	}
	defer g.release(g.lockFile)

	base, seq, err := g.readCounter()
	if err != nil {
		return 0, err
	}
	if today := g.dayBase(now); base != today {
		base, seq = today, 0
	}
	seq++
	if seq > maxSeq {
		seq = 1
	}
	if err := g.writeCounter(base, seq); err != nil {
		return 0, err
	}
	return base + seq, nil
}

// Record durably maps id to the exchange order id.
func (g *Generator) Record(ctx context.Context, id int32, exchangeID string) error {
	if exchangeID == "" {
		return fmt.Errorf("orderid: empty exchange id for %d", id)
	}
	if len(exchangeID) > exchangeIDSize {
		return fmt.Errorf("orderid: exchange id %q exceeds %d bytes", exchangeID, exchangeIDSize)
	}
	return g.mutate(ctx, record{id: id, exchangeID: exchangeID})
}

// Tombstone marks the mapping for id as removed.
func (g *Generator) Tombstone(ctx context.Context, id int32) error {
	return g.mutate(ctx, record{id: id})
}

func (g *Generator) mutate(ctx context.Context, rec record) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return ErrClosed
	}
	// The table only changes once the log append is serialised.
	if err := g.acquire(ctx, g.lockFile, true); err != nil {
		return err
	}
	defer g.release(g.lockFile)
	if rec.exchangeID == "" {
		delete(g.mappings, rec.id)
	} else {
		g.mappings[rec.id] = rec.exchangeID
	}
	g.appendLog(rec)
	return nil
}

// Lookup returns the exchange id mapped to id. Misses re-read the log so
// mappings written by other processes become visible.
func (g *Generator) Lookup(ctx context.Context, id int32) (string, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if v, ok := g.mappings[id]; ok {
		return v, true
	}
	if g.closed || g.refresh(ctx) != nil {
		return "", false
	}
	v, ok := g.mappings[id]
	return v, ok
}

// ClientID is the reverse of Lookup over the in-memory table.
func (g *Generator) ClientID(exchangeID string) (int32, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for id, v := range g.mappings {
		if v == exchangeID {
			return id, true
		}
	}
	return 0, false
}

// Mappings returns a copy of the live mapping table.
func (g *Generator) Mappings() map[int32]string {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make(map[int32]string, len(g.mappings))
	for k, v := range g.mappings {
		out[k] = v
	}
	return out
}

// Owner reports whether this generator seeded the shared counter.
func (g *Generator) Owner() bool {
	return g.owner
}

func (g *Generator) refresh(ctx context.Context) error {
	if err := g.acquire(ctx, g.lockFile, true); err != nil {
		return err
	}
	defer g.release(g.lockFile)
	g.mappings = replay(g.readLog())
	return nil
}

// Close detaches from the region. The last generator to close leaves the
// directory ready for a fresh owner.
func (g *Generator) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return nil
	}
	g.closed = true
	_ = unlockFile(g.liveFile)
	return g.closeFiles()
}

func (g *Generator) closeFiles() error {
	var errs []error
	for _, f := range []*os.File{g.lockFile, g.liveFile, g.seqFile} {
		if f != nil {
			if err := f.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

func (g *Generator) dayBase(t time.Time) int32 {
	return int32((t.Year()-g.epochYear)*yearFactor + t.YearDay()*dayFactor)
}

func (g *Generator) acquire(ctx context.Context, f *os.File, exclusive bool) error {
	deadline := time.Now().Add(g.lockTimeout)
	for {
		ok, err := tryLock(f, exclusive)
		if err != nil {
			return fmt.Errorf("orderid: lock %s: %w", filepath.Base(f.Name()), err)
		}
		if ok {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("orderid: timed out after %s waiting for %s", g.lockTimeout, filepath.Base(f.Name()))
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(lockPollInterval):
		}
	}
}

func (g *Generator) release(f *os.File) {
	if err := unlockFile(f); err != nil {
		logx.Errorf("orderid: unlock %s: %v", filepath.Base(f.Name()), err)
	}
}

func (g *Generator) durabilityWarning(err error) {
	warning := exchange.DurabilityWarning(err)
	logx.Errorf("orderid: %v", warning)
	if g.warn != nil {
		g.warn(warning)
	}
}
