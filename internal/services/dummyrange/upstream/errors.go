package upstream

import (
	"fmt"
	"strconv"

	apperrors "github.com/louisbranch/dummyrange/internal/platform/errors"
)

// Sentinels for errors.Is checks; matching is by error code.
var (
	// ErrRateLimited reports 429 responses that outlasted every retry and proxy.
	ErrRateLimited = apperrors.New(apperrors.CodeRateLimited, "upstream rate limit exhausted")
	// ErrNetwork reports transport failures or timeouts that outlasted every retry and proxy.
	ErrNetwork = apperrors.New(apperrors.CodeNetwork, "upstream unreachable")
	// ErrHTTPStatus reports a non-retryable, non-2xx upstream status.
	ErrHTTPStatus = apperrors.New(apperrors.CodeUpstreamHTTP, "unexpected upstream status")
)

const statusMetadataKey = "status"

func rateLimitedError(proxy string) error {
	return apperrors.WithMetadata(apperrors.CodeRateLimited,
		"upstream rate limit exhausted",
		map[string]string{"proxy": proxy})
}

func networkError(proxy string, cause error) error {
	return &apperrors.Error{
		Code:     apperrors.CodeNetwork,
		Message:  "upstream unreachable",
		Metadata: map[string]string{"proxy": proxy},
		Cause:    cause,
	}
}

func httpStatusError(status int) error {
	return apperrors.WithMetadata(apperrors.CodeUpstreamHTTP,
		fmt.Sprintf("upstream returned HTTP %d", status),
		map[string]string{statusMetadataKey: strconv.Itoa(status)})
}

// StatusCode extracts the upstream HTTP status carried by an ErrHTTPStatus error.
func StatusCode(err error) (int, bool) {
	raw, ok := apperrors.MetadataOf(err, statusMetadataKey)
	if !ok {
		return 0, false
	}
	status, convErr := strconv.Atoi(raw)
	if convErr != nil {
		return 0, false
	}
	return status, true
}
