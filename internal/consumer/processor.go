// Package consumer reads outbox records back off Kafka and hands them to an audit sink.
package consumer

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/segmentio/kafka-go"

	"example.com/taskflow/internal/outbox"
)

// Source is the part of *kafka.Reader the processor drives.
type Source interface {
	FetchMessage(context.Context) (kafka.Message, error)
	CommitMessages(context.Context, ...kafka.Message) error
}

// Handler consumes one decoded event. Returning an error leaves the offset uncommitted.
type Handler interface {
	Handle(context.Context, Event) error
}

// Event is a task, project, activity or pomodoro change as published by the outbox dispatcher.
type Event struct {
	Topic         string
	Partition     int
	Offset        int64
	Timestamp     time.Time
	EventType     string
	TenantID      string
	SchemaSubject string
	SchemaID      int
	Payload       json.RawMessage
}

var errMalformed = errors.New("malformed record")

// Option tunes a Processor.
type Option func(*Processor)

// WithLogger replaces the default stderr logger.
func WithLogger(logger *log.Logger) Option {
	return func(p *Processor) { p.logger = logger }
}

// WithRetry makes the processor retry a failing handler up to attempts times,
// sleeping backoff, 2*backoff, ... between tries.
func WithRetry(attempts int, backoff time.Duration) Option {
	return func(p *Processor) {
		if attempts > 0 {
			p.attempts = attempts
		}
		p.backoff = backoff
	}
}

// Processor fetches records from a Source, decodes them and feeds the Handler.
type Processor struct {
	source   Source
	handler  Handler
	logger   *log.Logger
	attempts int
	backoff  time.Duration
}

// NewProcessor builds a Processor. By default a handler gets a single attempt.
func NewProcessor(source Source, handler Handler, opts ...Option) *Processor {
	p := &Processor{
		source:   source,
		handler:  handler,
		logger:   log.New(log.Writer(), "[consumer] ", log.LstdFlags|log.Lshortfile),
		attempts: 1,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run processes records until ctx is cancelled or the source stops with context.Canceled.
func (p *Processor) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		msg, err := p.source.FetchMessage(ctx)
		if errors.Is(err, context.Canceled) {
			return err
		}
		if err != nil {
			p.logger.Printf("fetch: %v", err)
			continue
		}
		p.process(ctx, msg)
	}
}

func (p *Processor) process(ctx context.Context, msg kafka.Message) {
	event, err := DecodeEvent(msg)
	if err != nil {
		// Committed anyway so one bad record cannot wedge the partition.
		p.logger.Printf("skip %s/%d@%d: %v", msg.Topic, msg.Partition, msg.Offset, err)
		observe(event, outcomeMalformed, 0)
		p.commit(ctx, msg)
		return
	}

	start := time.Now()
	if err := p.handle(ctx, event); err != nil {
		p.logger.Printf("handle %s for tenant %s at %s/%d@%d: %v",
			event.EventType, event.TenantID, msg.Topic, msg.Partition, msg.Offset, err)
		observe(event, outcomeFailed, time.Since(start))
		return
	}
	if p.commit(ctx, msg) {
		observe(event, outcomeHandled, time.Since(start))
	}
}

func (p *Processor) handle(ctx context.Context, event Event) error {
	var err error
	delay := p.backoff
	for attempt := 1; attempt <= p.attempts; attempt++ {
		if err = p.handler.Handle(ctx, event); err == nil {
			return nil
		}
		if attempt == p.attempts || delay <= 0 {
			continue
		}
		select {
		case <-ctx.Done():
			return errors.Join(err, ctx.Err())
		case <-time.After(delay):
		}
		delay *= 2
	}
	return err
}

func (p *Processor) commit(ctx context.Context, msg kafka.Message) bool {
	if err := p.source.CommitMessages(ctx, msg); err != nil {
		p.logger.Printf("commit %s/%d@%d: %v", msg.Topic, msg.Partition, msg.Offset, err)
		return false
	}
	return true
}

// DecodeEvent strips the schema-registry framing from a record and reads its routing headers.
// On error the returned Event still carries the record's topic.
func DecodeEvent(msg kafka.Message) (Event, error) {
	event := Event{
		Topic:     msg.Topic,
		Partition: msg.Partition,
		Offset:    msg.Offset,
		Timestamp: msg.Time,
	}
	for _, h := range msg.Headers {
		switch h.Key {
		case outbox.HeaderEventType:
			event.EventType = string(h.Value)
		case outbox.HeaderTenantID:
			event.TenantID = string(h.Value)
		case outbox.HeaderSchemaSubject:
			event.SchemaSubject = string(h.Value)
		}
	}

	switch {
	case len(msg.Value) < 5:
		return event, fmt.Errorf("%w: %d byte value", errMalformed, len(msg.Value))
	case msg.Value[0] != 0:
		return event, fmt.Errorf("%w: magic byte %d", errMalformed, msg.Value[0])
	case event.EventType == "":
		return event, fmt.Errorf("%w: no %s header", errMalformed, outbox.HeaderEventType)
	case event.TenantID == "":
		return event, fmt.Errorf("%w: no %s header", errMalformed, outbox.HeaderTenantID)
	}
	event.SchemaID = int(binary.BigEndian.Uint32(msg.Value[1:5]))
	event.Payload = json.RawMessage(append([]byte(nil), msg.Value[5:]...))
	return event, nil
}
