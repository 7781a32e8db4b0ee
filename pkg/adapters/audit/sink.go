package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/aretw0/authtree/pkg/domain"
)

// Record is an audit event together with the topic it was published on.
type Record struct {
	Topic string `json:"topic"`
	domain.AuditEvent
}

// Sink receives audit records.
type Sink interface {
	Emit(ctx context.Context, record Record) error
}

// NoOpSink discards every record.
type NoOpSink struct{}

func (NoOpSink) Emit(context.Context, Record) error { return nil }

// ChannelSink forwards records to a buffered channel.
type ChannelSink struct {
	records chan Record
}

func NewChannelSink(buffer int) *ChannelSink {
	if buffer <= 0 {
		buffer = 1
	}
	return &ChannelSink{
		records: make(chan Record, buffer),
	}
}

// Emit blocks until the record is buffered or ctx is done.
func (s *ChannelSink) Emit(ctx context.Context, record Record) error {
	select {
	case s.records <- record:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *ChannelSink) Records() <-chan Record {
	return s.records
}

// JSONWriterSink writes one JSON document per line.
type JSONWriterSink struct {
	writer io.Writer
	mu     sync.Mutex
}

func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return &JSONWriterSink{
		writer: w,
	}
}

func (s *JSONWriterSink) Emit(ctx context.Context, record Record) error {
	if s == nil || s.writer == nil {
		return nil
	}
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal audit record: %w", err)
	}
	data = append(data, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.writer.Write(data); err != nil {
		return fmt.Errorf("failed to write audit record: %w", err)
	}
	return nil
}
