// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package benchmark

import (
	"context"
	"fmt"
	"io"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Query-farm/predictor/model"
	"github.com/Query-farm/predictor/predictor"
)

var workloads = []Workload{
	{Tasks: 1, Sequences: 1, Length: 2114},
	{Tasks: 4, Sequences: 16, Length: 2114, Flank: 100, Ranges: true},
	{Tasks: 16, Sequences: 128, Length: 2114},
}

func (w Workload) String() string {
	return fmt.Sprintf("tasks=%d/seqs=%d/flank=%d/ranges=%t", w.Tasks, w.Sequences, w.Flank, w.Ranges)
}

func TestWorkloadsSucceed(t *testing.T) {
	cells := CellTypes(8)
	for _, w := range workloads {
		s, err := NewServer(cells, w.Length)
		require.NoError(t, err)
		payload, err := Payload(w, cells)
		require.NoError(t, err)
		reply := s.Handle(context.Background(), payload, predictor.RequestInfo{})
		assert.Equal(t, predictor.OutcomeSuccess, reply.Outcome, "%s: %s", w, reply.Payload)
	}
}

func BenchmarkHandle(b *testing.B) {
	cells := CellTypes(8)
	for _, w := range workloads {
		b.Run(w.String(), func(b *testing.B) {
			s, err := NewServer(cells, w.Length)
			require.NoError(b, err)
			payload, err := Payload(w, cells)
			require.NoError(b, err)
			ctx := context.Background()
			b.SetBytes(int64(len(payload)))
			b.ReportAllocs()
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				if reply := s.Handle(ctx, payload, predictor.RequestInfo{}); reply.Outcome != predictor.OutcomeSuccess {
					b.Fatalf("outcome %s", reply.Outcome)
				}
			}
		})
	}
}

func BenchmarkFramedRoundTrip(b *testing.B) {
	cells := CellTypes(8)
	w := workloads[1]
	s, err := NewServer(cells, w.Length)
	require.NoError(b, err)
	payload, err := Payload(w, cells)
	require.NoError(b, err)

	clientConn, serverConn := net.Pipe()
	go func() {
		_ = s.ServeConn(context.Background(), serverConn)
		serverConn.Close()
	}()
	c := predictor.NewClient(clientConn)
	defer c.Close()

	ctx := context.Background()
	b.SetBytes(int64(len(payload)))
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := c.Exchange(ctx, payload); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkWorkerScorer(b *testing.B) {
	scorer := model.NewWorkerScorer(func(ctx context.Context) (io.ReadWriteCloser, error) {
		clientConn, serverConn := net.Pipe()
		go func() {
			_ = model.ServeWorker(context.Background(), model.HashScorer{Categories: 8}, serverConn, serverConn)
			serverConn.Close()
		}()
		return clientConn, nil
	})
	defer scorer.Close()

	seqs := make(map[string]string, 64)
	for i := 0; i < 64; i++ {
		seqs[fmt.Sprintf("seq_%d", i)] = sequence(2114, i)
	}
	ctx := context.Background()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := scorer.Score(ctx, seqs); err != nil {
			b.Fatal(err)
		}
	}
}
