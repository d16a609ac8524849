package models

import (
	"bytes"
	"encoding/json"
)

// Optional is a JSON field that tells "absent" apart from an explicit null.
// Set is false when the key was missing from the document.
type Optional[T any] struct {
	Set   bool
	Null  bool
	Value T
}

func Some[T any](v T) Optional[T] {
	return Optional[T]{Set: true, Value: v}
}

func Null[T any]() Optional[T] {
	return Optional[T]{Set: true, Null: true}
}

// Get returns the value when one was supplied and it is not null.
func (o Optional[T]) Get() (T, bool) {
	if !o.Set || o.Null {
		var zero T
		return zero, false
	}
	return o.Value, true
}

// Ptr returns nil for null and a pointer to the value otherwise. It must only
// be called when Set is true.
func (o Optional[T]) Ptr() *T {
	if o.Null {
		return nil
	}
	v := o.Value
	return &v
}

func (o *Optional[T]) UnmarshalJSON(b []byte) error {
	o.Set = true
	if bytes.Equal(bytes.TrimSpace(b), []byte("null")) {
		var zero T
		o.Null, o.Value = true, zero
		return nil
	}
	o.Null = false
	return json.Unmarshal(b, &o.Value)
}

func (o Optional[T]) MarshalJSON() ([]byte, error) {
	if !o.Set || o.Null {
		return []byte("null"), nil
	}
	return json.Marshal(o.Value)
}
