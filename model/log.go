// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package model

import (
	"context"
	"log/slog"
	"sync"
)

// LogLevel is the severity of a log message relayed from a worker.
type LogLevel string

const (
	// LogException marks the batch that carries a scoring failure.
	LogException LogLevel = "EXCEPTION"
	LogError     LogLevel = "ERROR"
	LogWarn      LogLevel = "WARN"
	LogInfo      LogLevel = "INFO"
	LogDebug     LogLevel = "DEBUG"
)

// slogLevel maps a relayed level onto the predictor's own logger.
func (l LogLevel) slogLevel() slog.Level {
	switch l {
	case LogException, LogError:
		return slog.LevelError
	case LogWarn:
		return slog.LevelWarn
	case LogInfo:
		return slog.LevelInfo
	default:
		return slog.LevelDebug
	}
}

// LogMessage is one message a worker sends back alongside its result.
type LogMessage struct {
	Level   LogLevel
	Message string
}

type logCollectorKey struct{}

type logCollector struct {
	mu   sync.Mutex
	logs []LogMessage
}

func withLogCollector(ctx context.Context) (context.Context, *logCollector) {
	c := &logCollector{}
	return context.WithValue(ctx, logCollectorKey{}, c), c
}

func (c *logCollector) drain() []LogMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	logs := c.logs
	c.logs = nil
	return logs
}

// ClientLog records a message to be relayed to the predictor with the result
// of the current score call. Outside a worker call it is a no-op.
func ClientLog(ctx context.Context, level LogLevel, msg string) {
	c, ok := ctx.Value(logCollectorKey{}).(*logCollector)
	if !ok {
		return
	}
	c.mu.Lock()
	c.logs = append(c.logs, LogMessage{Level: level, Message: msg})
	c.mu.Unlock()
}
