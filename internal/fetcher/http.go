package fetcher

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

const maxErrorBody = 4 << 10

type apiErrorBody struct {
	Error       string `json:"error"`
	Message     string `json:"message"`
	Description string `json:"description"`
}

// parseHTTPError builds a readable error from a non-200 response body.
func parseHTTPError(service string, status int, body io.Reader) error {
	payload, _ := io.ReadAll(io.LimitReader(body, maxErrorBody))

	var apiErr apiErrorBody
	if err := json.Unmarshal(payload, &apiErr); err == nil {
		for _, msg := range []string{apiErr.Description, apiErr.Message, apiErr.Error} {
			if msg != "" {
				return fmt.Errorf("%s api error (%d): %s", service, status, msg)
			}
		}
	}
	if trimmed := strings.TrimSpace(string(payload)); trimmed != "" {
		return fmt.Errorf("%s api error (%d): %s", service, status, trimmed)
	}
	return fmt.Errorf("%s api error (%d)", service, status)
}
