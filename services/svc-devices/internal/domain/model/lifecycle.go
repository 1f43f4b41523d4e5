package model

import (
	"strings"
	"time"
)

// ValidateCreate checks a new device and stamps its creation time. The ID is
// left untouched for the store to assign.
func ValidateCreate(candidate Device, now time.Time) (Device, error) {
	if err := validateFields(candidate); err != nil {
		return Device{}, err
	}

	candidate.CreationTime = Timestamp(now)
	candidate.UpdatedAt = candidate.CreationTime

	return candidate, nil
}

// ValidateFullReplace decides whether proposed may replace current.
func ValidateFullReplace(current, proposed Device) (Device, error) {
	if !Timestamp(proposed.CreationTime).Equal(current.CreationTime) {
		return Device{}, newLifecycleError(ErrImmutableField, "creationTime cannot be modified")
	}

	if err := checkStateLock(current, proposed); err != nil {
		return Device{}, err
	}

	if err := validateFields(proposed); err != nil {
		return Device{}, err
	}

	result := current
	result.Name = proposed.Name
	result.Brand = proposed.Brand
	result.State = proposed.State

	return result, nil
}

// ValidatePartialPatch applies ops to a copy of current and validates the
// merged result as a whole. Intermediate values are never checked.
func ValidatePartialPatch(current Device, ops []PatchOperation) (Device, error) {
	scratch, err := applyPatch(current, ops)
	if err != nil {
		return Device{}, err
	}

	if err := validateFields(scratch); err != nil {
		return Device{}, err
	}

	if !scratch.CreationTime.Equal(current.CreationTime) {
		return Device{}, newLifecycleError(ErrImmutableField, "creationTime cannot be modified")
	}

	// Moving the device into InUse freezes name and brand within the same patch.
	if (current.IsLocked() || scratch.IsLocked()) && identityChanged(current, scratch) {
		return Device{}, errStateLockedIdentity()
	}

	scratch.ID = current.ID

	return scratch, nil
}

// ValidateDelete rejects removal of a device that is in use.
func ValidateDelete(current Device) error {
	if current.IsLocked() {
		return newLifecycleError(ErrStateLock, "cannot delete a device that is in use")
	}

	return nil
}

func checkStateLock(current, next Device) error {
	if current.IsLocked() && identityChanged(current, next) {
		return errStateLockedIdentity()
	}

	return nil
}

func identityChanged(a, b Device) bool {
	return a.Name != b.Name || a.Brand != b.Brand
}

func errStateLockedIdentity() *LifecycleError {
	return newLifecycleError(ErrStateLock, "cannot change name or brand of a device that is in use")
}

func validateFields(d Device) error {
	errs := NewValidationErrors()

	if strings.TrimSpace(d.Name) == "" {
		errs.Add(string(FieldName), "name is required", "required")
	}

	if strings.TrimSpace(d.Brand) == "" {
		errs.Add(string(FieldBrand), "brand is required", "required")
	}

	if !d.State.IsValid() {
		errs.Add(string(FieldState), "state must be one of "+validStatesList(), "invalid_state")
	}

	if !errs.HasErrors() {
		return nil
	}

	return &LifecycleError{Kind: ErrInvalidInput, Message: errs.Error(), Fields: errs}
}
