package protocol

import "net/http"

// RequestError is a protocol-level failure that maps onto a wire response.
type RequestError struct {
	Code    string
	Message string
	Status  int
}

func (e *RequestError) Error() string {
	return e.Message
}

func errInvalid(code, message string) *RequestError {
	return &RequestError{Code: code, Message: message, Status: http.StatusForbidden}
}

var (
	ErrInvalidCodeword = errInvalid("invalid_codeword", "An invalid codeword was provided.")
	ErrInvalidSite     = errInvalid("invalid_site", "An invalid site was provided.")
	ErrInvalidKey      = errInvalid("invalid_key", "The key must be a non-empty string.")
	ErrUnknownRequest  = errInvalid("invalid_request", "No request was found with this id.")
	ErrInvalidProof    = errInvalid("invalid_proof", "An invalid proof was provided.")
	ErrNotPending      = errInvalid("friend_request_failed", "No friend request is pending for this site.")
	ErrRequestFailed   = errInvalid("friend_request_failed", "Could not respond to the request.")
)
