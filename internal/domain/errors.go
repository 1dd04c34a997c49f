package domain

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Error kinds. Every error returned by a service operation matches exactly one
// of these through errors.Is.
var (
	ErrValidation  = errors.New("validation")
	ErrNotFound    = errors.New("not_found")
	ErrConflict    = errors.New("conflict")
	ErrDelivery    = errors.New("delivery_failed")
	ErrPersistence = errors.New("persistence_failed")
	ErrForbidden   = errors.New("forbidden")
)

// CodedError is a named condition of a broader kind.
type CodedError struct {
	Code string
	Kind error
}

func (e *CodedError) Error() string { return e.Code }

func (e *CodedError) Unwrap() error { return e.Kind }

var (
	ErrUnknownHandle = &CodedError{Code: "unknown_handle", Kind: ErrNotFound}
	ErrUnknownUser   = &CodedError{Code: "unknown_user", Kind: ErrNotFound}
	ErrNoInvite      = &CodedError{Code: "no_invite", Kind: ErrNotFound}
	ErrNotFriends    = &CodedError{Code: "not_friends", Kind: ErrNotFound}
	ErrItemNotFound  = &CodedError{Code: "item_not_found", Kind: ErrNotFound}
	ErrNoChatRequest = &CodedError{Code: "no_chat_request", Kind: ErrNotFound}
	ErrNoActiveChat  = &CodedError{Code: "no_active_chat", Kind: ErrNotFound}
	ErrNoGallery     = &CodedError{Code: "no_gallery", Kind: ErrNotFound}

	ErrSelfInvite           = &CodedError{Code: "self_invite", Kind: ErrConflict}
	ErrAlreadyFriends       = &CodedError{Code: "already_friends", Kind: ErrConflict}
	ErrSelfChat             = &CodedError{Code: "self_chat", Kind: ErrConflict}
	ErrRequestAlreadyActive = &CodedError{Code: "request_already_active", Kind: ErrConflict}
	ErrChatBusy             = &CodedError{Code: "chat_busy", Kind: ErrConflict}

	ErrBanned   = &CodedError{Code: "banned", Kind: ErrForbidden}
	ErrNotAdmin = &CodedError{Code: "not_admin", Kind: ErrForbidden}
)

type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return "validation failed"
	}
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s: %s", k, e.Fields[k]))
	}
	return "validation failed: " + strings.Join(parts, ", ")
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

func NewValidationError(fields map[string]string) error {
	return &ValidationError{Fields: fields}
}

// DeliveryError reports that the transport could not deliver to Target. It
// never implies that a committed state change was undone.
type DeliveryError struct {
	Target string
	Err    error
}

func (e *DeliveryError) Error() string {
	if e.Err == nil {
		return "delivery to " + e.Target + " failed"
	}
	return "delivery to " + e.Target + " failed: " + e.Err.Error()
}

func (e *DeliveryError) Unwrap() []error { return []error{ErrDelivery, e.Err} }

func NewDeliveryError(target string, err error) error {
	return &DeliveryError{Target: target, Err: err}
}

// PersistenceError means the store did not commit. Callers must treat the
// mutation as not applied.
type PersistenceError struct {
	Err error
}

func (e *PersistenceError) Error() string {
	return "persist document: " + e.Err.Error()
}

func (e *PersistenceError) Unwrap() []error { return []error{ErrPersistence, e.Err} }

func NewPersistenceError(err error) error {
	return &PersistenceError{Err: err}
}

// Kind returns the kind sentinel err belongs to, or nil for unclassified errors.
func Kind(err error) error {
	for _, k := range []error{ErrValidation, ErrNotFound, ErrConflict, ErrForbidden, ErrDelivery, ErrPersistence} {
		if errors.Is(err, k) {
			return k
		}
	}
	return nil
}
