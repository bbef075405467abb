package middleware

import (
	"encoding/json"
	"net/http"
	"time"

	"go-news-cms/internal/model"
)

const defaultRequestTimeout = 30 * time.Second

var timeoutBody = func() string {
	raw, _ := json.Marshal(model.APIResponse{
		Success: false,
		Error:   &model.ErrorBody{Code: "REQUEST_TIMEOUT", Message: "request timed out"},
	})
	return string(raw)
}()

// Timeout bounds handler time. A handler still running when it fires sees
// its context cancelled, and the client gets a 503 envelope.
func Timeout(timeout time.Duration) func(http.Handler) http.Handler {
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}

	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, timeout, timeoutBody)
	}
}
