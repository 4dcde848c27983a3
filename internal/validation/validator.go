// Worklake - Project Management Data Warehouse Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/worklake

// Package validation provides struct validation using go-playground/validator v10.
// It exposes a thread-safe singleton validator so struct metadata is parsed and
// cached once per process.
//
// Example usage:
//
//	type TriggerRequest struct {
//	    Mode string `validate:"omitempty,oneof=full incremental"`
//	}
//
//	if err := validation.ValidateStruct(&req); err != nil {
//	    // err lists each failing field with its constraint
//	}
package validation

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

// FieldError describes a single field that failed validation.
type FieldError struct {
	Field string
	Tag   string
	Param string
}

// Error returns a human-readable message for the failed constraint.
func (e FieldError) Error() string {
	if e.Param != "" {
		return fmt.Sprintf("%s failed '%s=%s' constraint", e.Field, e.Tag, e.Param)
	}
	return fmt.Sprintf("%s failed '%s' constraint", e.Field, e.Tag)
}

// StructError aggregates all field errors from one ValidateStruct call.
type StructError struct {
	Fields []FieldError
}

// Error implements the error interface with one line per failed field.
func (e *StructError) Error() string {
	if len(e.Fields) == 0 {
		return "validation failed"
	}
	msgs := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		msgs = append(msgs, f.Error())
	}
	return strings.Join(msgs, "; ")
}

// instance returns the shared validator, creating it on first use.
func instance() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	return validate
}

// ValidateStruct validates a struct using its `validate` tags.
// Returns nil when valid, a *StructError listing every failing field otherwise.
func ValidateStruct(s interface{}) error {
	err := instance().Struct(s)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		// InvalidValidationError: caller passed a non-struct
		return fmt.Errorf("validation: %w", err)
	}

	se := &StructError{Fields: make([]FieldError, 0, len(verrs))}
	for _, fe := range verrs {
		se.Fields = append(se.Fields, FieldError{
			Field: fe.Namespace(),
			Tag:   fe.Tag(),
			Param: fe.Param(),
		})
	}
	return se
}
