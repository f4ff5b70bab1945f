package error

import (
	"fmt"
	"net/http"
)

// UpstreamError carries the WhatsApp Cloud API response verbatim.
// Status is zero when the request never got a response.
type UpstreamError struct {
	Status    int
	Body      string
	Retryable bool
	Err       error
}

func (err *UpstreamError) Error() string {
	if err.Status == 0 {
		return fmt.Sprintf("upstream request failed: %v", err.Err)
	}
	return fmt.Sprintf("upstream error: status=%d body=%s", err.Status, err.Body)
}

func (err *UpstreamError) Unwrap() error {
	return err.Err
}

func (err *UpstreamError) ErrCode() string {
	return "UPSTREAM_ERROR"
}

func (err *UpstreamError) StatusCode() int {
	if err.Retryable {
		return http.StatusGatewayTimeout
	}
	return http.StatusBadGateway
}
