package models

// Error codes let clients tell "reconnect" apart from "retry"
const (
	CodeNotConnected  = "not_connected"
	CodeCaptureFailed = "capture_failed"
	CodeInvalidInput  = "invalid_input"
	CodeInternal      = "internal_error"
	CodeStoreDisabled = "store_disabled"
	CodeNotFound      = "not_found"
)

type APIError struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

type SuccessResult struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

func ErrorResponse(code, err string) APIError {
	return APIError{
		Error: err,
		Code:  code,
	}
}

func NotConnectedResponse() APIError {
	return ErrorResponse(CodeNotConnected, "device not connected")
}

func ResultResponse(err error) SuccessResult {
	if err != nil {
		return SuccessResult{Success: false, Error: err.Error()}
	}
	return SuccessResult{Success: true}
}
