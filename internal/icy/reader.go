// Package icy strips interleaved ICY (Shoutcast/Icecast) metadata blocks out of
// an audio byte stream and reports the decoded metadata through a callback.
package icy

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/glebovdev/streamcore/internal/metrics"
	"github.com/rs/zerolog/log"
)

// metadataBlockUnit is the size multiplier applied to the metadata length byte.
const metadataBlockUnit = 16

// Reader forwards audio bytes from an ICY stream and removes the metadata
// blocks that the server inserts every interval bytes.
type Reader struct {
	r          io.Reader
	interval   int
	remaining  int
	onMetadata func([]Field)
}

// NewReader wraps r. An interval <= 0 disables de-interleaving and reads pass
// straight through. onMetadata may be nil.
func NewReader(r io.Reader, interval int, onMetadata func([]Field)) *Reader {
	if interval < 0 {
		interval = 0
	}
	return &Reader{
		r:          r,
		interval:   interval,
		remaining:  interval,
		onMetadata: onMetadata,
	}
}

// Read never returns more bytes than remain before the next metadata boundary.
func (ir *Reader) Read(p []byte) (int, error) {
	if ir.interval == 0 {
		return ir.r.Read(p)
	}
	if len(p) == 0 {
		return 0, nil
	}

	if ir.remaining == 0 {
		if err := ir.readMetadata(); err != nil {
			return 0, err
		}
	}

	if len(p) > ir.remaining {
		p = p[:ir.remaining]
	}
	n, err := ir.r.Read(p)
	ir.remaining -= n
	return n, err
}

func (ir *Reader) readMetadata() error {
	var lengthByte [1]byte
	if _, err := io.ReadFull(ir.r, lengthByte[:]); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return io.EOF
		}
		return err
	}

	size := int(lengthByte[0]) * metadataBlockUnit
	if size > 0 {
		block := make([]byte, size)
		if _, err := io.ReadFull(ir.r, block); err != nil {
			if errors.Is(err, io.EOF) {
				return io.ErrUnexpectedEOF
			}
			return err
		}
		ir.deliver(block)
	}

	ir.remaining = ir.interval
	return nil
}

func (ir *Reader) deliver(block []byte) {
	fields, err := ParseMetadata(block)
	if err != nil {
		metrics.ICYMetadataBlocks.WithLabelValues("malformed").Inc()
		log.Debug().Err(err).Int("size", len(block)).Msg("Ignoring malformed ICY metadata block")
		return
	}
	if len(fields) == 0 {
		metrics.ICYMetadataBlocks.WithLabelValues("empty").Inc()
		return
	}
	metrics.ICYMetadataBlocks.WithLabelValues("parsed").Inc()
	if ir.onMetadata != nil {
		ir.onMetadata(fields)
	}
}

// ParseMetaInt reads an icy-metaint header value. Anything that is not a
// positive integer yields 0, meaning no interleaving.
func ParseMetaInt(raw string) int {
	value := strings.TrimSpace(raw)
	if value == "" {
		return 0
	}
	n, err := strconv.Atoi(value)
	if err != nil || n <= 0 {
		log.Debug().Str("icy-metaint", raw).Msg("Ignoring invalid icy-metaint")
		return 0
	}
	return n
}

// Block encodes text as an ICY metadata block: a length byte followed by the
// text padded with NULs to a multiple of 16 bytes.
func Block(text string) ([]byte, error) {
	payload := []byte(text)
	blocks := (len(payload) + metadataBlockUnit - 1) / metadataBlockUnit
	if blocks > 255 {
		return nil, fmt.Errorf("metadata too large: %d bytes", len(payload))
	}

	out := make([]byte, 1+blocks*metadataBlockUnit)
	out[0] = byte(blocks)
	copy(out[1:], payload)
	return out, nil
}
