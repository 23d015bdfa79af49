package worker

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// taskIDLength is how many hex characters a generated task id carries.
const taskIDLength = 10

// Envelope pairs a task id with its payload. On the wire it is a
// single-key JSON object {"<task_id>": <payload>} with no versioning;
// the first key is the id, its value is the payload. Producers relying
// on this shape exist, so it must not be generalized.
type Envelope struct {
	TaskID  string
	Payload json.RawMessage
}

// NewTaskID returns a fresh short task identifier.
func NewTaskID() string {
	id := strings.ReplaceAll(uuid.New().String(), "-", "")

	return id[:taskIDLength]
}

// Encode serializes the envelope into its single-key wire form.
func (e Envelope) Encode() ([]byte, error) {
	raw, err := json.Marshal(map[string]json.RawMessage{e.TaskID: e.Payload})
	if err != nil {
		return nil, fmt.Errorf("encoding envelope: %w", err)
	}

	return raw, nil
}

// DecodeEnvelope parses a raw payload into an envelope. A streaming
// decoder keeps the document-order first key, which map decoding would
// randomize.
func DecodeEnvelope(raw []byte) (Envelope, error) {
	if !json.Valid(raw) {
		return Envelope{}, &DecodeError{err: unmarshalError(raw)}
	}

	dec := json.NewDecoder(bytes.NewReader(raw))

	tok, err := dec.Token()
	if err != nil {
		return Envelope{}, &DecodeError{err: err}
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return Envelope{}, &DecodeError{err: fmt.Errorf("envelope is not an object")}
	}

	if !dec.More() {
		return Envelope{}, &DecodeError{err: fmt.Errorf("envelope has no task id key")}
	}

	tok, err = dec.Token()
	if err != nil {
		return Envelope{}, &DecodeError{err: err}
	}
	taskID, _ := tok.(string)

	var payload json.RawMessage
	if err := dec.Decode(&payload); err != nil {
		return Envelope{}, &DecodeError{err: err}
	}

	return Envelope{TaskID: taskID, Payload: payload}, nil
}

// unmarshalError replays the parse to surface the stdlib's error text.
func unmarshalError(raw []byte) error {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return err
	}

	return fmt.Errorf("invalid envelope")
}
