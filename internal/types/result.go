package types

import "net/http"

// ServiceResult is the outcome every orchestration operation hands back to
// the API layer: an HTTP-style status code, a message for non-2xx results
// and the payload on success. Caller mistakes (validation, conflicts) travel
// through this type; unexpected failures travel through error returns.
type ServiceResult[T any] struct {
	StatusCode   int    `json:"status_code"`
	ErrorMessage string `json:"error_message,omitempty"`
	ModelObject  T      `json:"model_object,omitempty"`
}

// OK wraps a successful payload.
func OK[T any](model T) ServiceResult[T] {
	return ServiceResult[T]{StatusCode: http.StatusOK, ModelObject: model}
}

// NoContent is a successful result without a payload.
func NoContent[T any]() ServiceResult[T] {
	return ServiceResult[T]{StatusCode: http.StatusNoContent}
}

// BadRequest flags a validation failure.
func BadRequest[T any](msg string) ServiceResult[T] {
	return ServiceResult[T]{StatusCode: http.StatusBadRequest, ErrorMessage: msg}
}

// Conflict flags a state conflict (e.g. conversion preconditions,
// duplicate keys).
func Conflict[T any](msg string) ServiceResult[T] {
	return ServiceResult[T]{StatusCode: http.StatusConflict, ErrorMessage: msg}
}

// NotFound flags a missing entity.
func NotFound[T any](msg string) ServiceResult[T] {
	return ServiceResult[T]{StatusCode: http.StatusNotFound, ErrorMessage: msg}
}

// Succeeded reports whether the result carries a 2xx status.
func (r ServiceResult[T]) Succeeded() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}
