package handlers

import (
	"net/http"
	"time"

	"github.com/marmos91/resolvd/pkg/classifier"
	engerrors "github.com/marmos91/resolvd/pkg/engine/errors"
	"github.com/marmos91/resolvd/pkg/runtime"
	"google.golang.org/grpc/codes"
)

// Response wraps health check payloads.
type Response struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data,omitempty"`
	Error     string    `json:"error,omitempty"`
}

func healthyResponse(data any) Response {
	return Response{Status: "healthy", Timestamp: time.Now().UTC(), Data: data}
}

func unhealthyResponse(errMsg string) Response {
	return Response{Status: "unhealthy", Timestamp: time.Now().UTC(), Error: errMsg}
}

// httpStatus maps a classified status code to the closest HTTP status.
var httpStatus = map[codes.Code]int{
	codes.NotFound:           http.StatusNotFound,
	codes.InvalidArgument:    http.StatusBadRequest,
	codes.FailedPrecondition: http.StatusServiceUnavailable,
	codes.ResourceExhausted:  http.StatusTooManyRequests,
	codes.DeadlineExceeded:   http.StatusGatewayTimeout,
	codes.OutOfRange:         http.StatusServiceUnavailable,
	codes.Unimplemented:      http.StatusNotImplemented,
}

// writeEngineError classifies err the same way the RPC layer does and writes
// it as a problem.
func writeEngineError(w http.ResponseWriter, err error) {
	code := classifier.Classify(err)
	status, ok := httpStatus[code]
	if !ok {
		status = http.StatusInternalServerError
	}

	p := &Problem{
		Type:   "about:blank",
		Title:  http.StatusText(status),
		Status: status,
		Detail: err.Error(),
	}
	if e, ok := engerrors.As(err); ok {
		p.Detail = e.Message
		p.Reason = classifier.Reason(e.Code, e.Message)
	}
	writeProblem(w, p)
}

// currentEnvironment resolves the active environment or writes a problem.
func currentEnvironment(w http.ResponseWriter, registry *runtime.Registry) (*runtime.Environment, bool) {
	if registry == nil {
		ServiceUnavailable(w, "registry not initialized")
		return nil, false
	}
	env, err := registry.Current()
	if err != nil {
		writeEngineError(w, err)
		return nil, false
	}
	return env, true
}
