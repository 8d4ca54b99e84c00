package httpapi

import (
	"crypto/hmac"
	"strings"
)

type authError struct {
	status  int
	message string
}

func (e *authError) Error() string {
	return e.message
}

// authorizeBearer checks the shared-secret bearer token. The comparison is
// constant time, and there is no partial auth: any mismatch fails the whole
// request before a single store access.
func authorizeBearer(authHeader, apiKey string) *authError {
	if apiKey == "" {
		return &authError{status: 401, message: "Unauthorized."}
	}
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return &authError{status: 401, message: "Unauthorized."}
	}
	token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	if !hmac.Equal([]byte(token), []byte(apiKey)) {
		return &authError{status: 401, message: "Unauthorized."}
	}
	return nil
}
