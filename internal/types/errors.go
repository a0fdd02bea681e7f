// Package types holds the wire types shared by the REST and auth layers.
package types

// API error codes. The prefix names the layer, the number mirrors the HTTP
// status.
const (
	CodeAuthBadRequest = "AUTH_400"
	CodeUnauthorized   = "AUTH_401"
	CodeForbidden      = "AUTH_403"
	CodeAuthDisabled   = "AUTH_404"
	CodeStimBadRequest = "STIM_400"
	CodeStimNotFound   = "STIM_404"
	CodeStimConflict   = "STIM_409"
	CodeStimInternal   = "STIM_500"
)

type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

// NewErrorResponse builds the error payload returned by every endpoint.
// details is usually the underlying error text or the offending value.
func NewErrorResponse(code, message string, details any) ErrorResponse {
	return ErrorResponse{
		Error: ErrorBody{
			Code:    code,
			Message: message,
			Details: details,
		},
	}
}

