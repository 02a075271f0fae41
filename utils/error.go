package utils

import "errors"

// ErrorRecordNotFound is returned by lookup operations instead of leaking
// the storage layer's sentinel to HTTP handlers.
var ErrorRecordNotFound = errors.New("record not found")

// ErrorInvalidOptions marks a reconciliation configuration problem.
// Fatal to the run; raised before any matching begins.
var ErrorInvalidOptions = errors.New("invalid reconciliation options")
