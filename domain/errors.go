package domain

import "errors"

// ErrNotFound indicates the requested todo does not exist.
var ErrNotFound = errors.New("todo not found")

// ErrValidation marks malformed input. No field constraints use it yet.
var ErrValidation = errors.New("validation failed")

// ErrStoreFailure indicates the store could not complete an operation for
// reasons unrelated to the request, such as a failing mutation.
var ErrStoreFailure = errors.New("store failure")
