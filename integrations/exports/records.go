package exports

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"hash"
	"io"

	"lineledger/core/types"
)

// digestWriter accumulates the payload and its SHA-256 in one pass.
type digestWriter struct {
	buf bytes.Buffer
	sum hash.Hash
	w   io.Writer
}

func newDigestWriter() *digestWriter {
	d := &digestWriter{sum: sha256.New()}
	d.w = io.MultiWriter(&d.buf, d.sum)
	return d
}

func (d *digestWriter) Write(p []byte) (int, error) { return d.w.Write(p) }

func (d *digestWriter) result() ([]byte, string) {
	return d.buf.Bytes(), hex.EncodeToString(d.sum.Sum(nil))
}

func each(records []*types.Event, fn func(*types.Event) error) error {
	for _, evt := range records {
		if evt == nil {
			continue
		}
		if err := fn(evt); err != nil {
			return err
		}
	}
	return nil
}
