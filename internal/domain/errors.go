// Package domain provides shared domain-level sentinel errors.
package domain

import "errors"

// ErrNotFound indicates the requested entity does not exist.
var ErrNotFound = errors.New("not found")

// ErrValidation indicates that caller-supplied data failed validation.
// Wrap it with fmt.Errorf("%w: ...", ErrValidation) to carry the detail.
var ErrValidation = errors.New("validation failed")
