package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"gdax-broker/pkg/exchange"
)

// FileRecorder writes one JSON document per closed trade, journal style.
type FileRecorder struct {
	mu    sync.Mutex
	dir   string
	seq   int
	nowFn func() time.Time
}

// NewFileRecorder creates dir if needed.
func NewFileRecorder(dir string) (*FileRecorder, error) {
	if dir == "" {
		dir = "trades"
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("ledger: create %s: %w", dir, err)
	}
	return &FileRecorder{dir: dir, nowFn: time.Now}, nil
}

// Record writes trade to trade_<utc time>_<seq>.json.
func (w *FileRecorder) Record(_ context.Context, trade exchange.ClosedTrade) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if trade.ClosedAt.IsZero() {
		trade.ClosedAt = w.nowFn()
	}
	data, err := json.MarshalIndent(trade, "", "  ")
	if err != nil {
		return err
	}
	stamp := trade.ClosedAt.UTC().Format("20060102_150405")
	for {
		w.seq++
		name := filepath.Join(w.dir, fmt.Sprintf("trade_%s_%05d.json", stamp, w.seq))
		f, err := os.OpenFile(name, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if errors.Is(err, fs.ErrExist) {
			// Written by an earlier run or another recorder on the same dir.
			continue
		}
		if err != nil {
			return err
		}
		if _, err := f.Write(data); err != nil {
			_ = f.Close()
			_ = os.Remove(name)
			return err
		}
		return f.Close()
	}
}

// Recent returns up to limit trades, newest first.
func (w *FileRecorder) Recent(_ context.Context, limit int) ([]exchange.ClosedTrade, error) {
	if limit <= 0 {
		limit = defaultRecentLimit
	}
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasPrefix(e.Name(), "trade_") && strings.HasSuffix(e.Name(), ".json") {
			names = append(names, e.Name())
		}
	}
	// Names sort by close time, then by sequence within a second.
	sort.Sort(sort.Reverse(sort.StringSlice(names)))
	if len(names) > limit {
		names = names[:limit]
	}
	out := make([]exchange.ClosedTrade, 0, len(names))
	for _, name := range names {
		data, err := os.ReadFile(filepath.Join(w.dir, name))
		if err != nil {
			return nil, err
		}
		var trade exchange.ClosedTrade
		if err := json.Unmarshal(data, &trade); err != nil {
			return nil, fmt.Errorf("ledger: decode %s: %w", name, err)
		}
		out = append(out, trade)
	}
	return out, nil
}
