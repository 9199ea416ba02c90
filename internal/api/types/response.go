// internal/api/types/response.go
package types

// DataResponse wraps a successful payload the way downstream consumers expect.
// T represents the payload type carried under 'data'.
type DataResponse[T any] struct {
	Data T `json:"data"`
}

// ErrorItem is one classified error in an error response.
type ErrorItem struct {
	Name    string `json:"name"`
	Message string `json:"message"`
}

// ErrorResponse is the error body shape shared across the service's APIs.
type ErrorResponse struct {
	Errors []ErrorItem `json:"errors"`
}

// NewErrorResponse builds an ErrorResponse with a single classified error.
func NewErrorResponse(name, message string) ErrorResponse {
	return ErrorResponse{Errors: []ErrorItem{{Name: name, Message: message}}}
}
