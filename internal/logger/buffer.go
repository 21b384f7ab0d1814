package logger

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const DefaultBufferSize = 64

type Entry struct {
	Time    time.Time
	Level   zapcore.Level
	Message string
	Fields  []zap.Field
}

// Buffer is a bounded queue of log entries owned by a single request or
// background task. When full, the oldest entry is dropped.
type Buffer struct {
	mu      sync.Mutex
	entries []Entry
	size    int
	dropped int
}

func NewBuffer(size int) *Buffer {
	if size <= 0 {
		size = DefaultBufferSize
	}
	return &Buffer{size: size}
}

func (b *Buffer) Add(level zapcore.Level, msg string, fields ...zap.Field) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.entries) == b.size {
		b.entries = b.entries[1:]
		b.dropped++
	}
	b.entries = append(b.entries, Entry{
		Time:    time.Now(),
		Level:   level,
		Message: msg,
		Fields:  fields,
	})
}

func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.entries)
}

// Flush writes and clears the buffered entries.
func (b *Buffer) Flush(log *zap.Logger) {
	b.mu.Lock()
	entries := b.entries
	dropped := b.dropped
	b.entries = nil
	b.dropped = 0
	b.mu.Unlock()

	if dropped > 0 {
		log.Warn("log buffer overflow", zap.Int("dropped", dropped))
	}
	for _, e := range entries {
		if ce := log.Check(e.Level, e.Message); ce != nil {
			ce.Time = e.Time
			ce.Write(e.Fields...)
		}
	}
}

type ctxKey int

const (
	bufferKey ctxKey = iota
	requestIDKey
)

func WithBuffer(ctx context.Context, b *Buffer) context.Context {
	return context.WithValue(ctx, bufferKey, b)
}

func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// FromContext returns the buffer attached to ctx, or nil.
func FromContext(ctx context.Context) *Buffer {
	b, _ := ctx.Value(bufferKey).(*Buffer)
	return b
}

// Info and Error record an event on the context's buffer. Without a buffer the
// event is discarded.
func Info(ctx context.Context, msg string, fields ...zap.Field) {
	if b := FromContext(ctx); b != nil {
		b.Add(zapcore.InfoLevel, msg, fields...)
	}
}

func Warn(ctx context.Context, msg string, fields ...zap.Field) {
	if b := FromContext(ctx); b != nil {
		b.Add(zapcore.WarnLevel, msg, fields...)
	}
}

func Error(ctx context.Context, msg string, fields ...zap.Field) {
	if b := FromContext(ctx); b != nil {
		b.Add(zapcore.ErrorLevel, msg, fields...)
	}
}
