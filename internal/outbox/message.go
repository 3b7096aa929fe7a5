package outbox

import (
	"encoding/binary"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"
)

// Kafka header keys set on every published event.
const (
	HeaderEventType     = "event_type"
	HeaderTenantID      = "tenant_id"
	HeaderSchemaSubject = "schema_subject"
)

// Message is an outbox row claimed for delivery.
type Message struct {
	EventID       int64
	TenantID      string
	AggregateType string
	AggregateID   string
	EventType     string
	Topic         string
	SchemaSubject string
	PartitionKey  string
	Payload       json.RawMessage
}

// record frames the payload for schemaID and copies routing metadata into headers.
func (m Message) record(schemaID int, at time.Time) kafka.Message {
	return kafka.Message{
		Key:   []byte(m.PartitionKey),
		Value: encodeWireFormat(schemaID, m.Payload),
		Time:  at,
		Headers: []kafka.Header{
			{Key: HeaderEventType, Value: []byte(m.EventType)},
			{Key: HeaderTenantID, Value: []byte(m.TenantID)},
			{Key: HeaderSchemaSubject, Value: []byte(m.SchemaSubject)},
		},
	}
}

// encodeWireFormat prefixes payload with the Schema Registry magic byte and schema ID.
func encodeWireFormat(schemaID int, payload []byte) []byte {
	frame := make([]byte, 5+len(payload))
	binary.BigEndian.PutUint32(frame[1:5], uint32(schemaID))
	copy(frame[5:], payload)
	return frame
}
