package stream

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// Object is a record value: string field names to arbitrary values.
type Object = map[string]any

// ObjectStream is a keyed stream over a record.
//
// It shares the MapStream contract and adds conversion to and from Go
// structs. Field names follow yaml struct tags, so a record type can be
// loaded from, and decoded back into, its struct form.
type ObjectStream struct {
	*MapStream[string, any]
}

// NewObject creates a record stream holding a copy of initial.
func NewObject(initial Object, opts ...Option[Object]) *ObjectStream {
	return &ObjectStream{MapStream: NewMap(initial, opts...)}
}

// NewObjectFromRecord creates a record stream from a struct (or map) value.
func NewObjectFromRecord(record any, opts ...Option[Object]) (*ObjectStream, error) {
	obj, err := ObjectFromRecord(record)
	if err != nil {
		return nil, err
	}
	return NewObject(obj, opts...), nil
}

// ObjectFromRecord converts a struct (or map) into an Object using its yaml
// field names. Nested structs become nested Objects.
func ObjectFromRecord(record any) (Object, error) {
	data, err := yaml.Marshal(record)
	if err != nil {
		return nil, fmt.Errorf("marshal record: %w", err)
	}
	obj := Object{}
	if err := yaml.Unmarshal(data, &obj); err != nil {
		return nil, fmt.Errorf("record %T is not an object: %w", record, err)
	}
	return obj, nil
}

// Decode writes the current record into dst, which must be a pointer to a
// struct or map with matching yaml field names.
func (o *ObjectStream) Decode(dst any) error {
	data, err := yaml.Marshal(o.Value())
	if err != nil {
		return fmt.Errorf("marshal object: %w", err)
	}
	if err := yaml.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("decode object into %T: %w", dst, err)
	}
	return nil
}

// GetString returns the field as a string, if present and a string.
func (o *ObjectStream) GetString(field string) (string, bool) {
	v, ok := o.Get(field)
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// GetInt returns the field as an int, if present and an integer.
func (o *ObjectStream) GetInt(field string) (int, bool) {
	v, ok := o.Get(field)
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case int32:
		return int(n), true
	default:
		return 0, false
	}
}
