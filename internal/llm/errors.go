package llm

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/googleapis/gax-go/v2/apierror"
	"google.golang.org/api/googleapi"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// APIError is returned by HTTP providers for non-200 responses.
type APIError struct {
	Provider   string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s api error: status=%d body=%s", e.Provider, e.StatusCode, e.Body)
}

// FailureKind groups provider failures by how the caller should react.
type FailureKind int

const (
	// FailureOther covers anything not classified below.
	FailureOther FailureKind = iota
	// FailureQuota means the provider throttled us or the quota is exhausted.
	FailureQuota
	// FailureAuth means the credentials were rejected.
	FailureAuth
	// FailureNotFound means the model or endpoint does not exist.
	FailureNotFound
)

func (k FailureKind) String() string {
	switch k {
	case FailureQuota:
		return "quota"
	case FailureAuth:
		return "auth"
	case FailureNotFound:
		return "not_found"
	default:
		return "other"
	}
}

// Classify inspects a provider error. Structured errors (HTTP status, gRPC
// code, Google API errors) take precedence over message matching. A status
// that says nothing specific, such as a 400 or InvalidArgument, still gets
// its message checked: some providers report a bad key that way.
func Classify(err error) FailureKind {
	if err == nil {
		return FailureOther
	}
	if kind := fromStructured(err); kind != FailureOther {
		return kind
	}
	return fromMessage(err.Error())
}

func fromStructured(err error) FailureKind {
	var httpErr *APIError
	if errors.As(err, &httpErr) {
		return fromHTTPStatus(httpErr.StatusCode)
	}

	var gaxErr *apierror.APIError
	if errors.As(err, &gaxErr) {
		if code := gaxErr.HTTPCode(); code > 0 {
			return fromHTTPStatus(code)
		}
		if st := gaxErr.GRPCStatus(); st != nil {
			return fromGRPCCode(st.Code())
		}
	}

	var googleErr *googleapi.Error
	if errors.As(err, &googleErr) {
		return fromHTTPStatus(googleErr.Code)
	}

	if st, ok := status.FromError(err); ok && st.Code() != codes.OK && st.Code() != codes.Unknown {
		return fromGRPCCode(st.Code())
	}
	return FailureOther
}

func fromHTTPStatus(code int) FailureKind {
	switch code {
	case http.StatusTooManyRequests:
		return FailureQuota
	case http.StatusUnauthorized, http.StatusForbidden:
		return FailureAuth
	case http.StatusNotFound:
		return FailureNotFound
	default:
		return FailureOther
	}
}

func fromGRPCCode(code codes.Code) FailureKind {
	switch code {
	case codes.ResourceExhausted:
		return FailureQuota
	case codes.PermissionDenied, codes.Unauthenticated:
		return FailureAuth
	case codes.NotFound, codes.Unimplemented:
		return FailureNotFound
	default:
		return FailureOther
	}
}

func fromMessage(msg string) FailureKind {
	msg = strings.ToLower(msg)
	switch {
	case strings.Contains(msg, "quota"),
		strings.Contains(msg, "rate limit"),
		strings.Contains(msg, "resource_exhausted"),
		strings.Contains(msg, "too many requests"):
		return FailureQuota
	case strings.Contains(msg, "permission_denied"),
		strings.Contains(msg, "permission denied"),
		strings.Contains(msg, "api key not valid"),
		strings.Contains(msg, "api_key_invalid"),
		strings.Contains(msg, "invalid api key"),
		strings.Contains(msg, "unauthenticated"):
		return FailureAuth
	case strings.Contains(msg, "is not found for api version"),
		strings.Contains(msg, "model not found"),
		strings.Contains(msg, "is not supported for generatecontent"):
		return FailureNotFound
	default:
		return FailureOther
	}
}
