package commsutil

import (
	"bytes"
	"encoding/json"
	"errors"
)

var errEmptyPayload = errors.New("empty payload")

// EncodePayload serializes a message body to JSON.
func EncodePayload(v interface{}) ([]byte, error) {
	return json.Marshal(v)
}

// DecodePayload deserializes a JSON message body into v. Blank bodies are rejected.
func DecodePayload(data []byte, v interface{}) error {
	if len(bytes.TrimSpace(data)) == 0 {
		return errEmptyPayload
	}
	return json.Unmarshal(data, v)
}

// DecodeWireValue decodes a single JSON value keeping numbers as json.Number,
// so integral and fractional wire numbers stay distinguishable.
func DecodeWireValue(data []byte) (interface{}, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var v interface{}
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	return v, nil
}
