// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"slices"
	"strings"
)

// Field names a mutable user attribute.
type Field string

// Mutable user fields.
const (
	FieldName     Field = "name"
	FieldEmail    Field = "email"
	FieldPassword Field = "password"
)

// FieldSet is the explicit set of fields touched by an update.
type FieldSet map[Field]struct{}

// NewFieldSet builds a FieldSet from fields.
func NewFieldSet(fields ...Field) FieldSet {
	s := make(FieldSet, len(fields))
	for _, f := range fields {
		s[f] = struct{}{}
	}
	return s
}

// Has reports whether f is in the set.
func (s FieldSet) Has(f Field) bool {
	_, ok := s[f]
	return ok
}

// Sorted returns the fields in a stable order.
func (s FieldSet) Sorted() []Field {
	out := make([]Field, 0, len(s))
	for f := range s {
		out = append(out, f)
	}
	slices.Sort(out)
	return out
}

// String renders the set for logs.
func (s FieldSet) String() string {
	names := make([]string, 0, len(s))
	for _, f := range s.Sorted() {
		names = append(names, string(f))
	}
	return strings.Join(names, ",")
}

// valid reports whether every member is a known field.
func (s FieldSet) valid() bool {
	for f := range s {
		switch f {
		case FieldName, FieldEmail, FieldPassword:
		default:
			return false
		}
	}
	return true
}
