// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package model

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/Query-farm/predictor/internal/assets"
)

var (
	// ErrEmptyIndex is returned when an index has no categories.
	ErrEmptyIndex = errors.New("model: category index is empty")
	// ErrDuplicateCategory is returned when a category name appears twice.
	ErrDuplicateCategory = errors.New("model: duplicate category")
	// ErrUnknownCategory is returned by [Index.Resolve] for names not in the index.
	ErrUnknownCategory = errors.New("model: unknown category")
)

// Index maps category names to their position in a sequence's score vector.
// It is immutable once built and safe for concurrent use.
type Index struct {
	names     []string
	positions map[string]int
}

// NewIndex builds an index where names[i] maps to position i.
func NewIndex(names []string) (*Index, error) {
	if len(names) == 0 {
		return nil, ErrEmptyIndex
	}
	ix := &Index{
		names:     make([]string, len(names)),
		positions: make(map[string]int, len(names)),
	}
	for i, name := range names {
		if name == "" {
			return nil, fmt.Errorf("model: empty category name at position %d", i)
		}
		if prev, ok := ix.positions[name]; ok {
			return nil, fmt.Errorf("%w: %q at positions %d and %d", ErrDuplicateCategory, name, prev, i)
		}
		ix.positions[name] = i
		ix.names[i] = name
	}
	return ix, nil
}

// ParseIndex reads one category per line. Only the first tab-separated column
// is used; blank lines are skipped.
func ParseIndex(r io.Reader) (*Index, error) {
	var names []string
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		name, _, _ := strings.Cut(line, "\t")
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		names = append(names, name)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("model: reading category index: %w", err)
	}
	return NewIndex(names)
}

// LoadIndex loads an index from a local path or gs:// URL.
func LoadIndex(ctx context.Context, path string) (*Index, error) {
	rc, err := assets.Open(ctx, path)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	ix, err := ParseIndex(rc)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return ix, nil
}

// Lookup returns the position of a category.
func (ix *Index) Lookup(name string) (int, bool) {
	pos, ok := ix.positions[name]
	return pos, ok
}

// Resolve is Lookup with an error for unknown names.
func (ix *Index) Resolve(name string) (int, error) {
	pos, ok := ix.positions[name]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownCategory, name)
	}
	return pos, nil
}

// Len returns the number of categories.
func (ix *Index) Len() int {
	return len(ix.names)
}

// Names returns the category names in position order.
func (ix *Index) Names() []string {
	out := make([]string, len(ix.names))
	copy(out, ix.names)
	return out
}
