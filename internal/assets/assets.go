// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

// Package assets opens the static files the predictor loads at startup: the
// category index and the help document. Paths may be local files or
// gs://bucket/object URLs, and .zst or .gz files are decompressed on the fly.
package assets

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"cloud.google.com/go/storage"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

const gcsScheme = "gs://"

// ErrInvalidLocation is returned for gs:// URLs without a bucket or object.
var ErrInvalidLocation = errors.New("assets: invalid location")

// Open returns a reader over the decompressed contents of path.
func Open(ctx context.Context, path string) (io.ReadCloser, error) {
	raw, err := openRaw(ctx, path)
	if err != nil {
		return nil, err
	}
	switch {
	case strings.HasSuffix(path, ".zst"):
		dec, err := zstd.NewReader(raw)
		if err != nil {
			raw.Close()
			return nil, fmt.Errorf("assets: zstd %s: %w", path, err)
		}
		rc := dec.IOReadCloser()
		return &stackedCloser{Reader: rc, closers: []io.Closer{rc, raw}}, nil
	case strings.HasSuffix(path, ".gz"):
		gz, err := gzip.NewReader(raw)
		if err != nil {
			raw.Close()
			return nil, fmt.Errorf("assets: gzip %s: %w", path, err)
		}
		return &stackedCloser{Reader: gz, closers: []io.Closer{gz, raw}}, nil
	default:
		return raw, nil
	}
}

// ReadFile reads the whole decompressed contents of path.
func ReadFile(ctx context.Context, path string) ([]byte, error) {
	rc, err := Open(ctx, path)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("assets: reading %s: %w", path, err)
	}
	return data, nil
}

func openRaw(ctx context.Context, path string) (io.ReadCloser, error) {
	if !strings.HasPrefix(path, gcsScheme) {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("assets: %w", err)
		}
		return f, nil
	}

	bucket, object, ok := strings.Cut(strings.TrimPrefix(path, gcsScheme), "/")
	if !ok || bucket == "" || object == "" {
		return nil, fmt.Errorf("%w: %s", ErrInvalidLocation, path)
	}
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("assets: storage client: %w", err)
	}
	r, err := client.Bucket(bucket).Object(object).NewReader(ctx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("assets: %s: %w", path, err)
	}
	return &stackedCloser{Reader: r, closers: []io.Closer{r, client}}, nil
}

// stackedCloser closes every layer of a reader stack, innermost last.
type stackedCloser struct {
	io.Reader
	closers []io.Closer
}

func (s *stackedCloser) Close() error {
	var errs []error
	for _, c := range s.closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
