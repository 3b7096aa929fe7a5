package consumer

import (
	"context"
	"encoding/binary"
	"errors"
	"log"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"

	"example.com/taskflow/internal/events"
	"example.com/taskflow/internal/outbox"
)

const tasksTopic = "productivity_tasks"

func framed(schemaID int, payload string) []byte {
	value := make([]byte, 5+len(payload))
	binary.BigEndian.PutUint32(value[1:5], uint32(schemaID))
	copy(value[5:], payload)
	return value
}

func record(offset int64, value []byte, headers ...kafka.Header) kafka.Message {
	if headers == nil {
		headers = []kafka.Header{
			{Key: outbox.HeaderEventType, Value: []byte(events.TypeTaskUpserted)},
			{Key: outbox.HeaderTenantID, Value: []byte("tenant-1")},
			{Key: outbox.HeaderSchemaSubject, Value: []byte(tasksTopic + "-value")},
		}
	}
	return kafka.Message{Topic: tasksTopic, Offset: offset, Time: time.Now().UTC(), Value: value, Headers: headers}
}

func quietLogger(t *testing.T) Option {
	return WithLogger(log.New(testWriter{t}, "", 0))
}

func outcomes(eventType, outcome string) float64 {
	return testutil.ToFloat64(eventsCounter.WithLabelValues(tasksTopic, eventType, outcome))
}

func TestProcessorHandlesAndCommits(t *testing.T) {
	payload := `{"task_id":"abc","tenant_id":"tenant-1"}`
	source := &stubSource{messages: []kafka.Message{record(10, framed(42, payload))}}
	handler := &stubHandler{}
	before := outcomes(events.TypeTaskUpserted, outcomeHandled)

	require.ErrorIs(t, NewProcessor(source, handler, quietLogger(t)).Run(context.Background()), context.Canceled)

	require.Equal(t, 1, handler.calls)
	require.Equal(t, []int64{10}, source.committed)
	require.Equal(t, events.TypeTaskUpserted, handler.last.EventType)
	require.Equal(t, "tenant-1", handler.last.TenantID)
	require.Equal(t, tasksTopic+"-value", handler.last.SchemaSubject)
	require.Equal(t, 42, handler.last.SchemaID)
	require.JSONEq(t, payload, string(handler.last.Payload))
	require.Equal(t, before+1, outcomes(events.TypeTaskUpserted, outcomeHandled))
}

func TestProcessorLeavesFailedRecordsUncommitted(t *testing.T) {
	source := &stubSource{messages: []kafka.Message{record(20, framed(99, `{"task_id":"def"}`))}}
	handler := &stubHandler{errs: []error{errors.New("boom"), errors.New("boom again")}}
	before := outcomes(events.TypeTaskUpserted, outcomeFailed)

	require.ErrorIs(t, NewProcessor(source, handler, quietLogger(t)).Run(context.Background()), context.Canceled)

	require.Equal(t, 1, handler.calls, "one attempt by default")
	require.Empty(t, source.committed)
	require.Equal(t, before+1, outcomes(events.TypeTaskUpserted, outcomeFailed))
}

func TestProcessorRetriesHandler(t *testing.T) {
	source := &stubSource{messages: []kafka.Message{record(30, framed(1, `{"task_id":"t"}`))}}
	handler := &stubHandler{errs: []error{errors.New("conn reset"), errors.New("conn reset")}}

	processor := NewProcessor(source, handler, quietLogger(t), WithRetry(3, time.Millisecond))
	require.ErrorIs(t, processor.Run(context.Background()), context.Canceled)

	require.Equal(t, 3, handler.calls)
	require.Equal(t, []int64{30}, source.committed)
}

func TestProcessorRetryStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	source := &stubSource{messages: []kafka.Message{record(40, framed(1, `{"task_id":"t"}`))}}
	handler := &stubHandler{errs: []error{errors.New("down")}, onCall: cancel}

	processor := NewProcessor(source, handler, quietLogger(t), WithRetry(5, time.Hour))
	require.ErrorIs(t, processor.Run(ctx), context.Canceled)

	require.Equal(t, 1, handler.calls)
	require.Empty(t, source.committed)
}

func TestProcessorCommitsMalformedRecords(t *testing.T) {
	before := testutil.ToFloat64(eventsCounter.WithLabelValues(tasksTopic, "", outcomeMalformed))
	source := &stubSource{messages: []kafka.Message{
		record(1, []byte{0, 1}, kafka.Header{Key: outbox.HeaderTenantID, Value: []byte("tenant-1")}),
		record(2, framed(1, `{}`), kafka.Header{Key: outbox.HeaderTenantID, Value: []byte("tenant-1")}),
	}}
	handler := &stubHandler{}

	require.ErrorIs(t, NewProcessor(source, handler, quietLogger(t)).Run(context.Background()), context.Canceled)

	require.Zero(t, handler.calls)
	require.Equal(t, []int64{1, 2}, source.committed)
	require.Equal(t, before+2, testutil.ToFloat64(eventsCounter.WithLabelValues(tasksTopic, "", outcomeMalformed)))
}

func TestDecodeEventRejects(t *testing.T) {
	typed := kafka.Header{Key: outbox.HeaderEventType, Value: []byte(events.TypeTaskDeleted)}
	tenant := kafka.Header{Key: outbox.HeaderTenantID, Value: []byte("tenant-1")}

	cases := map[string]kafka.Message{
		"short value":   record(1, []byte{0, 0, 0}, typed, tenant),
		"magic byte":    record(2, append([]byte{1}, framed(1, `{}`)[1:]...), typed, tenant),
		"no event type": record(3, framed(1, `{}`), tenant),
		"no tenant":     record(4, framed(1, `{}`), typed),
		"blank tenant":  record(5, framed(1, `{}`), typed, kafka.Header{Key: outbox.HeaderTenantID}),
	}
	for name, msg := range cases {
		event, err := DecodeEvent(msg)
		require.ErrorIs(t, err, errMalformed, name)
		require.Equal(t, tasksTopic, event.Topic, name)
	}
}

func TestAggregateID(t *testing.T) {
	id, err := AggregateID([]byte(`{"task_id":"t-1","tenant_id":"x"}`))
	require.NoError(t, err)
	require.Equal(t, "t-1", id)

	id, err = AggregateID([]byte(`{"activity_id":"a-1"}`))
	require.NoError(t, err)
	require.Equal(t, "a-1", id)

	_, err = AggregateID([]byte(`{"tenant_id":"x"}`))
	require.Error(t, err)

	_, err = AggregateID([]byte(`not json`))
	require.Error(t, err)
}

type stubSource struct {
	messages  []kafka.Message
	next      int
	committed []int64
}

func (s *stubSource) FetchMessage(ctx context.Context) (kafka.Message, error) {
	if err := ctx.Err(); err != nil {
		return kafka.Message{}, err
	}
	if s.next >= len(s.messages) {
		return kafka.Message{}, context.Canceled
	}
	msg := s.messages[s.next]
	s.next++
	return msg, nil
}

func (s *stubSource) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	for _, m := range msgs {
		s.committed = append(s.committed, m.Offset)
	}
	return nil
}

// stubHandler fails with errs in order, then succeeds.
type stubHandler struct {
	calls  int
	errs   []error
	onCall func()
	last   Event
}

func (h *stubHandler) Handle(_ context.Context, event Event) error {
	h.calls++
	h.last = event
	if h.onCall != nil {
		h.onCall()
	}
	if len(h.errs) > 0 {
		err := h.errs[0]
		h.errs = h.errs[1:]
		return err
	}
	return nil
}

type testWriter struct {
	t *testing.T
}

func (tw testWriter) Write(p []byte) (int, error) {
	tw.t.Log(string(p))
	return len(p), nil
}
