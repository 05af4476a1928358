package orderid

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
)

const (
	idSize         = 4
	exchangeIDSize = 36
	recordSize     = idSize + exchangeIDSize
)

type record struct {
	id         int32
	exchangeID string
}

func (r record) marshal() []byte {
	buf := make([]byte, recordSize)
	binary.LittleEndian.PutUint32(buf, uint32(r.id))
	copy(buf[idSize:], r.exchangeID)
	return buf
}

// decodeRecords ignores a short trailing record left by an interrupted write.
func decodeRecords(data []byte) []record {
	n := len(data) / recordSize
	out := make([]record, 0, n)
	for i := 0; i < n; i++ {
		chunk := data[i*recordSize : (i+1)*recordSize]
		id := int32(binary.LittleEndian.Uint32(chunk))
		ex := string(bytes.TrimRight(chunk[idSize:], "\x00"))
		out = append(out, record{id: id, exchangeID: ex})
	}
	return out
}

// replay applies records in order; an empty exchange id removes the entry.
func replay(records []record) map[int32]string {
	m := make(map[int32]string)
	for _, rec := range records {
		if rec.exchangeID == "" {
			delete(m, rec.id)
			continue
		}
		m[rec.id] = rec.exchangeID
	}
	return m
}

func (g *Generator) logPath() string {
	return filepath.Join(g.dir, logFileName)
}

func (g *Generator) readLog() []record {
	data, err := os.ReadFile(g.logPath())
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			g.durabilityWarning(fmt.Errorf("read %s: %w", logFileName, err))
		}
		return nil
	}
	return decodeRecords(data)
}

// appendLog writes one record, first cutting any torn tail so records stay
// aligned. Caller holds the mutation lock.
func (g *Generator) appendLog(rec record) {
	f, err := os.OpenFile(g.logPath(), os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		g.durabilityWarning(fmt.Errorf("open %s: %w", logFileName, err))
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		g.durabilityWarning(fmt.Errorf("stat %s: %w", logFileName, err))
		return
	}
	end := info.Size() - info.Size()%recordSize
	if end != info.Size() {
		if err := f.Truncate(end); err != nil {
			g.durabilityWarning(fmt.Errorf("truncate %s: %w", logFileName, err))
			return
		}
	}
	if _, err := f.WriteAt(rec.marshal(), end); err != nil {
		g.durabilityWarning(fmt.Errorf("append %s: %w", logFileName, err))
		return
	}
	if err := f.Sync(); err != nil {
		g.durabilityWarning(fmt.Errorf("sync %s: %w", logFileName, err))
	}
}

// compact rewrites the log with only live mappings, ordered by id.
func (g *Generator) compact(mappings map[int32]string) {
	ids := make([]int32, 0, len(mappings))
	for id := range mappings {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	buf := make([]byte, 0, len(ids)*recordSize)
	for _, id := range ids {
		buf = append(buf, record{id: id, exchangeID: mappings[id]}.marshal()...)
	}

	tmp := g.logPath() + ".tmp"
	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		g.durabilityWarning(fmt.Errorf("compact %s: %w", logFileName, err))
		return
	}
	if _, err := f.Write(buf); err != nil {
		f.Close()
		g.durabilityWarning(fmt.Errorf("compact %s: %w", logFileName, err))
		return
	}
	if err := f.Sync(); err != nil {
		f.Close()
		g.durabilityWarning(fmt.Errorf("compact %s: %w", logFileName, err))
		return
	}
	if err := f.Close(); err != nil {
		g.durabilityWarning(fmt.Errorf("compact %s: %w", logFileName, err))
		return
	}
	if err := os.Rename(tmp, g.logPath()); err != nil {
		g.durabilityWarning(fmt.Errorf("compact %s: %w", logFileName, err))
	}
}
