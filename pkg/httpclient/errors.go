package httpclient

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	apperrors "github.com/djbooking/funnel/pkg/errors"
)

// remoteErrorBody covers the two error shapes seen from webhook receivers:
// {"error": {"code": "...", "message": "..."}} and {"error": "..."}.
type remoteErrorBody struct {
	Error json.RawMessage `json:"error"`
}

type remoteErrorObject struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ParseResponseError reads a non-2xx response and translates it into an
// error carrying the remote status. The body is consumed and closed.
func ParseResponseError(resp *http.Response, remote string) error {
	defer func() { _ = resp.Body.Close() }()

	bodyBytes, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("%s returned status %d (failed to read body: %w)", remote, resp.StatusCode, err)
	}

	code, message := "", string(bodyBytes)
	var body remoteErrorBody
	if json.Unmarshal(bodyBytes, &body) == nil && len(body.Error) > 0 {
		var obj remoteErrorObject
		var str string
		switch {
		case json.Unmarshal(body.Error, &obj) == nil && obj.Message != "":
			code, message = obj.Code, obj.Message
		case json.Unmarshal(body.Error, &str) == nil:
			message = str
		}
	}

	return mapRemoteError(resp.StatusCode, code, message, remote)
}

func mapRemoteError(status int, code, message, remote string) error {
	qualified := fmt.Sprintf("%s: %s", remote, message)

	switch {
	case status == http.StatusNotFound:
		return apperrors.NotFound(remote, message)
	case status == http.StatusBadRequest:
		return apperrors.InvalidInput(qualified)
	case status == http.StatusConflict:
		return apperrors.Conflict(qualified)
	case status == http.StatusUnauthorized:
		return apperrors.Unauthorized(qualified)
	case status == http.StatusForbidden:
		return apperrors.Forbidden(qualified)
	case status == http.StatusUnprocessableEntity:
		return apperrors.Unprocessable(qualified)
	case status == http.StatusTooManyRequests, status == http.StatusServiceUnavailable:
		return apperrors.ServiceUnavailable(qualified)
	case status >= 500:
		return fmt.Errorf("%s server error (%d/%s): %s", remote, status, code, message)
	default:
		return &apperrors.AppError{
			Code:    code,
			Message: qualified,
			Status:  status,
		}
	}
}

// IsClientError reports whether status is a 4xx, meaning the remote refused
// the request itself rather than failing to handle it.
func IsClientError(status int) bool {
	return status >= 400 && status < 500
}
