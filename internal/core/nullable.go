package core

import (
	"bytes"
	"encoding/json"
)

// Nullable distinguishes three states of an optional field:
// absent (Set == false), explicitly null (Set && !Valid) and a value (Set && Valid).
// Tag fields with `json:",omitzero"` so that absent values are not emitted.
type Nullable[T any] struct {
	Value T
	Valid bool
	Set   bool
}

// Some returns a present, non-null value.
func Some[T any](v T) Nullable[T] {
	return Nullable[T]{Value: v, Valid: true, Set: true}
}

// Null returns a present, explicitly null value.
func Null[T any]() Nullable[T] {
	return Nullable[T]{Set: true}
}

// IsZero reports whether the field is absent. encoding/json uses it for omitzero.
func (n Nullable[T]) IsZero() bool {
	return !n.Set
}

// Ptr returns the value as a pointer, nil when absent or null.
func (n Nullable[T]) Ptr() *T {
	if !n.Valid {
		return nil
	}
	v := n.Value
	return &v
}

func (n Nullable[T]) MarshalJSON() ([]byte, error) {
	if !n.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(n.Value)
}

func (n *Nullable[T]) UnmarshalJSON(data []byte) error {
	n.Set = true
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		var zero T
		n.Value = zero
		n.Valid = false
		return nil
	}
	if err := json.Unmarshal(data, &n.Value); err != nil {
		return err
	}
	n.Valid = true
	return nil
}
