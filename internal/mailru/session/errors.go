package session

import (
	"errors"
	"fmt"
)

// ErrAPI matches every APIError with errors.Is.
var ErrAPI = errors.New("mailru api error")

// APIError is an error payload reported by the upstream API.
type APIError struct {
	Code    int    `json:"error_code"`
	Message string `json:"error_msg"`
}

func (e APIError) Error() string {
	return fmt.Sprintf("mailru api error %d: %s", e.Code, e.Message)
}

func (e APIError) Is(target error) bool {
	return target == ErrAPI
}

// Payload renders the error the way the API reports it.
func (e APIError) Payload() map[string]any {
	return map[string]any{
		"error": map[string]any{
			"error_code": e.Code,
			"error_msg":  e.Message,
		},
	}
}

// errorFromBody recognizes bodies shaped {"error": {"error_code": ..., "error_msg": ...}}.
func errorFromBody(body any) (APIError, bool) {
	obj, ok := body.(map[string]any)
	if !ok {
		return APIError{}, false
	}
	inner, ok := obj["error"].(map[string]any)
	if !ok {
		return APIError{}, false
	}

	var apiErr APIError
	switch code := inner["error_code"].(type) {
	case float64:
		apiErr.Code = int(code)
	case int:
		apiErr.Code = code
	}
	apiErr.Message, _ = inner["error_msg"].(string)
	return apiErr, true
}
