// Package classifier turns any failure raised while serving a call into
// exactly one gRPC status carrying a structured diagnostic.
//
// Classification walks an ordered rule list and returns the first match;
// failures no rule recognizes map to codes.Unknown. A Classifier holds no
// mutable state and is safe for concurrent use.
package classifier

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	engerrors "github.com/marmos91/resolvd/pkg/engine/errors"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	// ReasonPrefix starts every reason string.
	ReasonPrefix = "RSLV"

	// ReasonSplitter separates the code from the message in a reason string.
	ReasonSplitter = "|"

	modulePrefix = "github.com/marmos91/resolvd/"
)

// defaultPassThrough lists function name prefixes that only wrap and rethrow
// failures. They are never reported as the originating frame.
var defaultPassThrough = []string{
	modulePrefix + "pkg/engine/errors.",
	modulePrefix + "pkg/runtime/admission.wrapTaskError",
	modulePrefix + "pkg/runtime/admission.(*Gate).Execute",
	modulePrefix + "pkg/runtime/admission.Run",
	modulePrefix + "pkg/runtime.Call",
	modulePrefix + "pkg/runtime.(*Environment).Execute",
	modulePrefix + "pkg/engine/badger.(*Store).mapError",
	modulePrefix + "pkg/engine/badger.(*Store).view",
	modulePrefix + "pkg/engine/badger.(*Store).update",
}

// Diagnostic is the structured payload attached to a failed status.
type Diagnostic struct {
	Reason           string   `json:"reason,omitempty"`
	Text             string   `json:"text"`
	OriginatingFrame string   `json:"originatingFrame,omitempty"`
	StackTrace       []string `json:"stackTrace,omitempty"`
}

// envelope is the JSON shape of the status description.
type envelope struct {
	Error Diagnostic `json:"error"`
}

// Classifier maps failures to status codes and diagnostics.
type Classifier struct {
	rules        []Rule
	ownPrefix    string
	passThrough  []string
	includeStack bool
}

// Option configures a Classifier.
type Option func(*Classifier)

// WithRules replaces DefaultRules.
func WithRules(rules []Rule) Option {
	return func(c *Classifier) {
		c.rules = rules
	}
}

// WithPassThrough adds function name prefixes to skip when locating the
// originating frame.
func WithPassThrough(prefixes ...string) Option {
	return func(c *Classifier) {
		c.passThrough = append(c.passThrough, prefixes...)
	}
}

// WithStackTrace controls whether diagnostics carry the full stack trace.
func WithStackTrace(enabled bool) Option {
	return func(c *Classifier) {
		c.includeStack = enabled
	}
}

// New returns a Classifier using DefaultRules.
func New(opts ...Option) *Classifier {
	c := &Classifier{
		rules:        DefaultRules,
		ownPrefix:    modulePrefix,
		passThrough:  append([]string(nil), defaultPassThrough...),
		includeStack: true,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Default is the Classifier used by the package-level helpers.
var Default = New()

// Classify returns the status code for err. A nil error yields codes.OK.
func (c *Classifier) Classify(err error) codes.Code {
	if err == nil {
		return codes.OK
	}
	for _, r := range c.rules {
		if !r.Match(err) {
			continue
		}
		if r.Name == "WireStatus" {
			return status.Code(err)
		}
		return r.Code
	}
	return codes.Unknown
}

// Diagnose builds the diagnostic payload for err.
func (c *Classifier) Diagnose(err error) Diagnostic {
	d := Diagnostic{Text: err.Error()}
	if e, ok := engerrors.As(err); ok {
		d.Reason = Reason(e.Code, e.Message)
	}

	frames := framesOf(err)
	for _, f := range frames {
		if strings.HasPrefix(f.Function, c.ownPrefix) && !c.isPassThrough(f.Function) {
			d.OriginatingFrame = f.String()
			break
		}
	}
	if c.includeStack {
		d.StackTrace = make([]string, len(frames))
		for i, f := range frames {
			d.StackTrace[i] = f.String()
		}
	}
	return d
}

func (c *Classifier) isPassThrough(fn string) bool {
	for _, p := range c.passThrough {
		if strings.HasPrefix(fn, p) {
			return true
		}
	}
	return false
}

// Encode converts err into a status. The diagnostic is carried twice: as the
// JSON status message, for clients that only read the description, and as a
// google.protobuf.Struct detail.
func (c *Classifier) Encode(err error) *status.Status {
	if err == nil {
		return status.New(codes.OK, "")
	}
	// Statuses produced elsewhere, e.g. by interceptors, travel unchanged.
	if !engerrors.IsDomain(err) {
		if st, ok := asWireStatus(err); ok {
			return st
		}
	}

	code := c.Classify(err)
	d := c.Diagnose(err)

	desc, jerr := json.Marshal(envelope{Error: d})
	if jerr != nil {
		desc = []byte(d.Text)
	}
	st := status.New(code, string(desc))

	detail, serr := structpb.NewStruct(d.fields())
	if serr != nil {
		return st
	}
	if withDetail, werr := st.WithDetails(detail); werr == nil {
		st = withDetail
	}
	return st
}

// Error is Encode(err).Err().
func (c *Classifier) Error(err error) error {
	if err == nil {
		return nil
	}
	return c.Encode(err).Err()
}

// Classify classifies err with Default.
func Classify(err error) codes.Code { return Default.Classify(err) }

// Encode encodes err with Default.
func Encode(err error) *status.Status { return Default.Encode(err) }

// Error encodes err with Default and returns it as an error.
func Error(err error) error { return Default.Error(err) }

// Reason formats <prefix><code><splitter><message>. A message that already
// starts with the prefix is returned as is, so re-wrapped failures are not
// prefixed twice.
func Reason(code int, message string) string {
	if strings.HasPrefix(message, ReasonPrefix) {
		return message
	}
	return fmt.Sprintf("%s%04d%s%s", ReasonPrefix, code, ReasonSplitter, message)
}

// ParseReason splits a reason string into its code and message.
func ParseReason(reason string) (int, string, bool) {
	rest, ok := strings.CutPrefix(reason, ReasonPrefix)
	if !ok {
		return 0, "", false
	}
	codeStr, msg, ok := strings.Cut(rest, ReasonSplitter)
	if !ok {
		return 0, "", false
	}
	var code int
	if _, err := fmt.Sscanf(codeStr, "%d", &code); err != nil {
		return 0, "", false
	}
	return code, msg, true
}

// Decode extracts the diagnostic from a status produced by Encode.
func Decode(st *status.Status) (Diagnostic, bool) {
	if st == nil || st.Code() == codes.OK {
		return Diagnostic{}, false
	}
	var env envelope
	if err := json.Unmarshal([]byte(st.Message()), &env); err == nil && env.Error.Text != "" {
		return env.Error, true
	}
	for _, detail := range st.Details() {
		s, ok := detail.(*structpb.Struct)
		if !ok {
			continue
		}
		raw, err := s.MarshalJSON()
		if err != nil {
			continue
		}
		var d Diagnostic
		if err := json.Unmarshal(raw, &d); err == nil {
			return d, true
		}
	}
	return Diagnostic{}, false
}

func asWireStatus(err error) (*status.Status, bool) {
	var se interface{ GRPCStatus() *status.Status }
	if errors.As(err, &se) {
		return se.GRPCStatus(), true
	}
	return nil, false
}

func (d Diagnostic) fields() map[string]any {
	m := map[string]any{"text": d.Text}
	if d.Reason != "" {
		m["reason"] = d.Reason
	}
	if d.OriginatingFrame != "" {
		m["originatingFrame"] = d.OriginatingFrame
	}
	if len(d.StackTrace) > 0 {
		trace := make([]any, len(d.StackTrace))
		for i, f := range d.StackTrace {
			trace[i] = f
		}
		m["stackTrace"] = trace
	}
	return m
}
