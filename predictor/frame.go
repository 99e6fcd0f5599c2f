// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package predictor

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/goccy/go-json"
)

const (
	// PrefixLen is the size of the big-endian length prefix on every frame.
	PrefixLen = 4
	// DefaultBufferSize is the largest chunk read from the connection at once.
	DefaultBufferSize = 65536
)

var (
	ErrIncompleteFrame = errors.New("predictor: incomplete frame")
	ErrFrameTooLarge   = errors.New("predictor: frame too large")
)

// FrameLimits constrains frame reads.
type FrameLimits struct {
	// BufferSize is the read chunk size. Zero means DefaultBufferSize.
	BufferSize int
	// MaxPayloadBytes rejects frames whose prefix announces more than this
	// many bytes. Zero means unbounded.
	MaxPayloadBytes uint32
}

func DefaultFrameLimits() FrameLimits {
	return FrameLimits{BufferSize: DefaultBufferSize}
}

// ReadFrame reads one length-prefixed frame. It returns io.EOF when the peer
// closed the stream before sending any byte of a new frame, and an error
// wrapping ErrIncompleteFrame when the stream ends mid-frame.
func ReadFrame(r io.Reader, limits FrameLimits) ([]byte, error) {
	var prefix [PrefixLen]byte
	n, err := io.ReadFull(r, prefix[:])
	if err != nil {
		switch {
		case n == 0 && errors.Is(err, io.EOF):
			return nil, io.EOF
		case errors.Is(err, io.ErrUnexpectedEOF):
			return nil, fmt.Errorf("%w: got %d of %d prefix bytes", ErrIncompleteFrame, n, PrefixLen)
		}
		return nil, err
	}

	length := binary.BigEndian.Uint32(prefix[:])
	if limits.MaxPayloadBytes > 0 && length > limits.MaxPayloadBytes {
		return nil, fmt.Errorf("%w: %d bytes exceeds limit of %d", ErrFrameTooLarge, length, limits.MaxPayloadBytes)
	}

	chunk := limits.BufferSize
	if chunk <= 0 {
		chunk = DefaultBufferSize
	}
	payload := make([]byte, 0, min(int(length), chunk))
	for remaining := int(length); remaining > 0; {
		step := min(remaining, chunk)
		start := len(payload)
		payload = append(payload, make([]byte, step)...)
		got, err := io.ReadFull(r, payload[start:])
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return nil, fmt.Errorf("%w: got %d of %d payload bytes", ErrIncompleteFrame, start+got, length)
			}
			return nil, err
		}
		remaining -= step
	}
	return payload, nil
}

// WriteFrame writes the prefix and payload with a single Write call.
func WriteFrame(w io.Writer, payload []byte) error {
	if uint64(len(payload)) > uint64(^uint32(0)) {
		return fmt.Errorf("%w: %d bytes does not fit the length prefix", ErrFrameTooLarge, len(payload))
	}
	buf := make([]byte, PrefixLen+len(payload))
	binary.BigEndian.PutUint32(buf, uint32(len(payload)))
	copy(buf[PrefixLen:], payload)
	if _, err := w.Write(buf); err != nil {
		return fmt.Errorf("predictor: writing frame: %w", err)
	}
	return nil
}

// WriteJSONFrame encodes v as JSON and writes it as one frame.
func WriteJSONFrame(w io.Writer, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("predictor: encoding frame: %w", err)
	}
	return WriteFrame(w, data)
}
