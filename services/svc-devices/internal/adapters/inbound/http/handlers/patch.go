package handlers

import (
	"bytes"
	"encoding/json"
	"io"

	"github.com/architeacher/device-inventory/services/svc-devices/internal/domain/model"
)

var jsonNull = []byte("null")

// patchOperation is one RFC 6902 operation as sent on the wire.
type patchOperation struct {
	Op    string          `json:"op"`
	Path  string          `json:"path"`
	From  string          `json:"from,omitempty"`
	Value json.RawMessage `json:"value,omitempty"`
}

// decodePatchDocument reads a JSON Patch document into field edits. Values
// must be strings or null; a null value clears the addressed field.
func decodePatchDocument(body io.Reader) ([]model.PatchOperation, error) {
	var document []patchOperation
	if err := json.NewDecoder(body).Decode(&document); err != nil {
		return nil, model.MalformedPatch("patch document must be a JSON array of operations")
	}

	ops := make([]model.PatchOperation, 0, len(document))

	for i, raw := range document {
		if raw.Op == "" || raw.Path == "" {
			return nil, model.MalformedPatch("operation %d: op and path are required", i)
		}

		op := model.PatchOperation{Op: model.PatchOp(raw.Op), Path: raw.Path}

		switch op.Op {
		case model.PatchOpAdd, model.PatchOpReplace, model.PatchOpTest:
			if raw.Value == nil {
				return nil, model.MalformedPatch("operation %d: %s requires a value", i, raw.Op)
			}

			value, err := decodePatchValue(raw.Value)
			if err != nil {
				return nil, model.MalformedPatch("operation %d: value must be a string or null", i)
			}

			op.Value = value
		}

		ops = append(ops, op)
	}

	return ops, nil
}

func decodePatchValue(raw json.RawMessage) (*string, error) {
	if bytes.Equal(bytes.TrimSpace(raw), jsonNull) {
		return nil, nil
	}

	var value string
	if err := json.Unmarshal(raw, &value); err != nil {
		return nil, err
	}

	return &value, nil
}
