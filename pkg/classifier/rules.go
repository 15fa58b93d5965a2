package classifier

import (
	"context"
	"errors"

	engerrors "github.com/marmos91/resolvd/pkg/engine/errors"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Rule maps failures matching Match to Code.
type Rule struct {
	Name  string
	Match func(err error) bool
	Code  codes.Code
}

// kindRule matches engine errors whose kind is or descends from kind.
func kindRule(kind engerrors.Kind, code codes.Code) Rule {
	return Rule{
		Name:  kind.String(),
		Match: func(err error) bool { return engerrors.IsKind(err, kind) },
		Code:  code,
	}
}

// wireStatus matches errors that already carry a gRPC status, such as those
// raised by interceptors. Engine errors wrapping a status are classified by
// their own kind.
func wireStatus(err error) bool {
	if engerrors.IsDomain(err) {
		return false
	}
	var se interface{ GRPCStatus() *status.Status }
	return errors.As(err, &se)
}

// DefaultRules is evaluated top to bottom; the first match wins. Child kinds
// precede their parents: RetryTimeoutExceeded before Retryable, License and
// NotInitialized before the generic engine rule.
var DefaultRules = []Rule{
	{Name: "WireStatus", Match: wireStatus},
	kindRule(engerrors.KindNotFound, codes.NotFound),
	kindRule(engerrors.KindUnknownDataSource, codes.InvalidArgument),
	kindRule(engerrors.KindBadInput, codes.InvalidArgument),
	kindRule(engerrors.KindNotInitialized, codes.FailedPrecondition),
	kindRule(engerrors.KindConfiguration, codes.FailedPrecondition),
	kindRule(engerrors.KindReplaceConflict, codes.FailedPrecondition),
	kindRule(engerrors.KindRetryTimeoutExceeded, codes.DeadlineExceeded),
	kindRule(engerrors.KindLicense, codes.ResourceExhausted),
	kindRule(engerrors.KindThrottled, codes.ResourceExhausted),
	kindRule(engerrors.KindRetryable, codes.OutOfRange),
	kindRule(engerrors.KindUnimplemented, codes.Unimplemented),
	{
		Name:  "DeadlineExceeded",
		Match: func(err error) bool { return errors.Is(err, context.DeadlineExceeded) },
		Code:  codes.DeadlineExceeded,
	},
	{Name: "Engine", Match: engerrors.IsDomain, Code: codes.Internal},
}
