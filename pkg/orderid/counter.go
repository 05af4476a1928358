package orderid

import (
	"encoding/binary"
	"fmt"
	"io"
)

const counterSize = 8

// readCounter returns the stored day base and last sequence. A fresh region
// reads as zero. Caller holds the mutation lock.
func (g *Generator) readCounter() (int32, int32, error) {
	buf := make([]byte, counterSize)
	n, err := g.seqFile.ReadAt(buf, 0)
	if err != nil && err != io.EOF {
		return 0, 0, fmt.Errorf("orderid: read counter: %w", err)
	}
	if n < counterSize {
		return 0, 0, nil
	}
	base := int32(binary.LittleEndian.Uint32(buf[:4]))
	seq := int32(binary.LittleEndian.Uint32(buf[4:]))
	return base, seq, nil
}

func (g *Generator) writeCounter(base, seq int32) error {
	buf := make([]byte, counterSize)
	binary.LittleEndian.PutUint32(buf[:4], uint32(base))
	binary.LittleEndian.PutUint32(buf[4:], uint32(seq))
	if _, err := g.seqFile.WriteAt(buf, 0); err != nil {
		return fmt.Errorf("orderid: write counter: %w", err)
	}
	return nil
}
