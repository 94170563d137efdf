package rabbitmq

import "encoding/json"

// Serializer converts between wire bytes and typed Go values. Implementations
// must be pure and safe for concurrent use — the same Serializer is shared
// across every subscription of a QueueConsumer.
type Serializer interface {
	// Serialize encodes value into bytes suitable for a message body.
	Serialize(value any) ([]byte, error)
	// Deserialize decodes body into target, which must be a non-nil pointer.
	Deserialize(body []byte, target any) error
}

// JSONSerializer is the default Serializer: a JSON text codec over UTF-8
// byte payloads.
type JSONSerializer struct{}

// NewJSONSerializer constructs the default JSON Serializer.
func NewJSONSerializer() *JSONSerializer {
	return &JSONSerializer{}
}

// Serialize encodes value as JSON.
func (JSONSerializer) Serialize(value any) ([]byte, error) {
	return json.Marshal(value)
}

// Deserialize decodes body as JSON into target.
func (JSONSerializer) Deserialize(body []byte, target any) error {
	return json.Unmarshal(body, target)
}

var _ Serializer = JSONSerializer{}
