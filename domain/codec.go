package domain

import (
	"bytes"
	"encoding/json"
	"fmt"

	"example.com/keeptend/utils"
)

// Envelope is the persisted wire shape of a log entry
type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// Validate checks a payload against its schema
func Validate(p Payload) error {
	if p == nil {
		return &SchemaValidationError{Type: "", Err: fmt.Errorf("payload is nil")}
	}
	if err := utils.ValidateStruct(p); err != nil {
		return &SchemaValidationError{Type: p.EventType(), Err: err}
	}
	if u, ok := p.(UsageRecorded); ok && u.ID != UsageID(u.UserID, u.Month) {
		return &SchemaValidationError{
			Type: p.EventType(),
			Err:  fmt.Errorf("usage id %q does not match %q", u.ID, UsageID(u.UserID, u.Month)),
		}
	}
	return nil
}

// Encode serializes a payload as {"type": ..., "data": ...}
func Encode(p Payload) ([]byte, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s payload: %w", p.EventType(), err)
	}
	return json.Marshal(Envelope{Type: p.EventType(), Data: data})
}

// Decode parses and validates an encoded envelope
func Decode(b []byte) (Payload, error) {
	var env Envelope
	if err := json.Unmarshal(b, &env); err != nil {
		return nil, fmt.Errorf("failed to unmarshal envelope: %w", err)
	}
	return DecodePayload(env.Type, env.Data)
}

// DecodePayload parses the data of an event of the given type. Unknown fields
// are rejected so only payloads matching the versioned schema are accepted.
func DecodePayload(eventType string, data []byte) (Payload, error) {
	switch eventType {
	case TypeUserCreated:
		return decodeAs[UserCreated](eventType, data)
	case TypeUserUpdated:
		return decodeAs[UserUpdated](eventType, data)
	case TypeUsageRecorded:
		return decodeAs[UsageRecorded](eventType, data)
	case TypePlantCreated:
		return decodeAs[PlantCreated](eventType, data)
	case TypePlantUpdated:
		return decodeAs[PlantUpdated](eventType, data)
	case TypePlantDeleted:
		return decodeAs[PlantDeleted](eventType, data)
	case TypeMessageCreated:
		return decodeAs[MessageCreated](eventType, data)
	case TypeChatCleared:
		return decodeAs[ChatCleared](eventType, data)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEventType, eventType)
	}
}

func decodeAs[T Payload](eventType string, data []byte) (Payload, error) {
	var p T
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&p); err != nil {
		return nil, &SchemaValidationError{Type: eventType, Err: err}
	}
	if err := Validate(p); err != nil {
		return nil, err
	}
	return p, nil
}
