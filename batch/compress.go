// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package batch

import (
	"bytes"
	"io"

	"github.com/klauspost/compress/gzip"
)

var gzipMagic = []byte{0x1f, 0x8b}

// Compressor gzips payloads at or above Threshold bytes, using
// klauspost/compress/gzip rather than the stdlib implementation — the
// pack's repeated choice for this exact concern (gazette-core's codec
// layer, chronicle's snapshot writer).
type Compressor struct {
	Threshold int
	Level     int
}

func NewCompressor(threshold int) *Compressor {
	return &Compressor{Threshold: threshold, Level: gzip.DefaultCompression}
}

// Encode gzips payload when it is at or above Threshold bytes, otherwise
// returns it unchanged, per §4.7's "When enabled and payload size >=
// threshold, the layer gzips...".
func (c *Compressor) Encode(payload []byte) ([]byte, bool, error) {
	if len(payload) < c.Threshold {
		return payload, false, nil
	}
	var buf bytes.Buffer
	w, err := gzip.NewWriterLevel(&buf, c.Level)
	if err != nil {
		return nil, false, err
	}
	if _, err := w.Write(payload); err != nil {
		_ = w.Close()
		return nil, false, err
	}
	if err := w.Close(); err != nil {
		return nil, false, err
	}
	return buf.Bytes(), true, nil
}

// Decode checks the gzip magic (0x1f 0x8b) and decompresses if present,
// passing raw data through otherwise (§4.7).
func Decode(payload []byte) ([]byte, error) {
	if !isGzip(payload) {
		return payload, nil
	}
	r, err := gzip.NewReader(bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}

func isGzip(b []byte) bool {
	return len(b) >= 2 && b[0] == gzipMagic[0] && b[1] == gzipMagic[1]
}
