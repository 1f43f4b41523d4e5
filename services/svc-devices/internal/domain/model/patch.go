package model

import (
	"fmt"
	"strings"
	"time"
)

type PatchOp string

const (
	PatchOpAdd     PatchOp = "add"
	PatchOpReplace PatchOp = "replace"
	PatchOpRemove  PatchOp = "remove"
	PatchOpTest    PatchOp = "test"
)

type PatchField string

const (
	FieldName         PatchField = "name"
	FieldBrand        PatchField = "brand"
	FieldState        PatchField = "state"
	FieldCreationTime PatchField = "creationTime"
)

var patchableFields = []PatchField{FieldName, FieldBrand, FieldState, FieldCreationTime}

// PatchOperation is a single field edit. Path uses JSON pointer syntax
// ("/name"). A nil Value stands for JSON null and clears the field.
type PatchOperation struct {
	Op    PatchOp
	Path  string
	Value *string
}

// Set is a convenience constructor for a replace operation.
func Set(field PatchField, value string) PatchOperation {
	return PatchOperation{Op: PatchOpReplace, Path: "/" + string(field), Value: &value}
}

// MalformedPatch builds the error returned for structurally invalid patches.
func MalformedPatch(format string, args ...any) *LifecycleError {
	return newLifecycleError(ErrMalformedPatch, fmt.Sprintf(format, args...))
}

// ParsePatchPath resolves a JSON pointer to one of the patchable fields.
// Matching is case-insensitive.
func ParsePatchPath(path string) (PatchField, error) {
	if !strings.HasPrefix(path, "/") {
		return "", MalformedPatch("path %q must start with '/'", path)
	}

	name := strings.TrimSuffix(path[1:], "/")
	for _, field := range patchableFields {
		if strings.EqualFold(name, string(field)) {
			return field, nil
		}
	}

	return "", MalformedPatch("path %q does not address a patchable field", path)
}

// applyPatch runs ops in order against a copy of d.
func applyPatch(d Device, ops []PatchOperation) (Device, error) {
	for i, op := range ops {
		field, err := ParsePatchPath(op.Path)
		if err != nil {
			return Device{}, err
		}

		switch op.Op {
		case PatchOpAdd, PatchOpReplace:
			if err := setField(&d, field, op.Value); err != nil {
				return Device{}, err
			}
		case PatchOpRemove:
			if err := setField(&d, field, nil); err != nil {
				return Device{}, err
			}
		case PatchOpTest:
			if !fieldEquals(d, field, op.Value) {
				return Device{}, MalformedPatch("test operation %d failed for path %q", i, op.Path)
			}
		default:
			return Device{}, MalformedPatch("operation %d: unsupported op %q", i, op.Op)
		}
	}

	return d, nil
}

func setField(d *Device, field PatchField, value *string) error {
	raw := ""
	if value != nil {
		raw = *value
	}

	switch field {
	case FieldName:
		d.Name = raw
	case FieldBrand:
		d.Brand = raw
	case FieldState:
		if value == nil {
			d.State = ""

			return nil
		}

		state, err := ParseState(raw)
		if err != nil {
			return err
		}

		d.State = state
	case FieldCreationTime:
		if value == nil {
			d.CreationTime = time.Time{}

			return nil
		}

		ts, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			return MalformedPatch("creationTime %q is not an RFC 3339 timestamp", raw)
		}

		d.CreationTime = Timestamp(ts)
	}

	return nil
}

func fieldEquals(d Device, field PatchField, value *string) bool {
	if value == nil {
		return false
	}

	switch field {
	case FieldName:
		return d.Name == *value
	case FieldBrand:
		return d.Brand == *value
	case FieldState:
		state, err := ParseState(*value)

		return err == nil && state == d.State
	case FieldCreationTime:
		ts, err := time.Parse(time.RFC3339Nano, *value)

		return err == nil && Timestamp(ts).Equal(d.CreationTime)
	}

	return false
}
