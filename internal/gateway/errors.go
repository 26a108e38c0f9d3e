package gateway

import (
	"context"
	"errors"
	"math"
	"net/http"
	"strconv"

	"github.com/soyeahso/maestro/internal/domain"
	"github.com/soyeahso/maestro/internal/routing"
)

// ErrClientClosed is returned when sending to a closed connection.
var ErrClientClosed = errors.New("client connection closed")

// errorShape maps a request error onto an HTTP status and a client-safe
// error body. Only validation messages are passed through verbatim.
func errorShape(err error) (int, ErrorShape) {
	var conflict *domain.ConflictError
	switch {
	case errors.Is(err, routing.ErrInvalidRequest):
		return http.StatusBadRequest, ErrorShape{Code: CodeInvalidRequest, Message: err.Error()}
	case errors.As(err, &conflict):
		return http.StatusConflict, ErrorShape{
			Code:       CodeSessionConflict,
			Message:    "session is busy with another request",
			Retryable:  true,
			RetryAfter: conflict.RetryAfter.Milliseconds(),
		}
	case errors.Is(err, domain.ErrSessionNotFound):
		return http.StatusNotFound, ErrorShape{Code: CodeNotFound, Message: "session not found"}
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, ErrorShape{Code: CodeTimeout, Message: "request timed out", Retryable: true}
	case errors.Is(err, context.Canceled):
		return http.StatusServiceUnavailable, ErrorShape{Code: CodeUnavailable, Message: "request canceled", Retryable: true}
	default:
		return http.StatusInternalServerError, ErrorShape{Code: CodeInternal, Message: "internal error"}
	}
}

// retryAfterSeconds renders a Retry-After header value, rounded up.
func retryAfterSeconds(ms int64) string {
	return strconv.FormatInt(max(1, int64(math.Ceil(float64(ms)/1000))), 10)
}
