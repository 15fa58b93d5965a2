package rpc

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/marmos91/resolvd/pkg/classifier"
	"github.com/marmos91/resolvd/pkg/engine"
	engerrors "github.com/marmos91/resolvd/pkg/engine/errors"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
)

// Client calls the Engine service.
type Client struct {
	conn *grpc.ClientConn
	own  bool
}

// DialOption configures Dial.
type DialOption func(*dialOptions)

type dialOptions struct {
	token string
	extra []grpc.DialOption
}

// WithToken sends token as a bearer credential on every call.
func WithToken(token string) DialOption {
	return func(o *dialOptions) { o.token = token }
}

// WithDialOptions appends raw gRPC dial options.
func WithDialOptions(opts ...grpc.DialOption) DialOption {
	return func(o *dialOptions) { o.extra = append(o.extra, opts...) }
}

// bearer implements credentials.PerRPCCredentials.
type bearer string

func (b bearer) GetRequestMetadata(context.Context, ...string) (map[string]string, error) {
	return map[string]string{MetadataAuthorization: "Bearer " + string(b)}, nil
}

func (bearer) RequireTransportSecurity() bool { return false }

// Dial connects to target over plaintext. The returned Client owns the
// connection.
func Dial(target string, opts ...DialOption) (*Client, error) {
	var o dialOptions
	for _, opt := range opts {
		opt(&o)
	}

	dialOpts := []grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(CodecName)),
	}
	if o.token != "" {
		dialOpts = append(dialOpts, grpc.WithPerRPCCredentials(bearer(o.token)))
	}
	dialOpts = append(dialOpts, o.extra...)

	conn, err := grpc.NewClient(target, dialOpts...)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", target, err)
	}
	return &Client{conn: conn, own: true}, nil
}

// NewClient wraps an existing connection. Close leaves conn open.
func NewClient(conn *grpc.ClientConn) *Client {
	return &Client{conn: conn}
}

// Close closes the connection if the client owns it.
func (c *Client) Close() error {
	if !c.own {
		return nil
	}
	return c.conn.Close()
}

func invoke[Resp any](ctx context.Context, c *Client, method string, req any) (*Resp, error) {
	resp := new(Resp)
	if err := c.conn.Invoke(ctx, FullMethod(method), req, resp, grpc.CallContentSubtype(CodecName)); err != nil {
		return nil, decodeError(err)
	}
	return resp, nil
}

func (c *Client) AddRecord(ctx context.Context, rec engine.Record) (*engine.EntityRef, error) {
	return invoke[engine.EntityRef](ctx, c, MethodAddRecord, &rec)
}

func (c *Client) GetRecord(ctx context.Context, key engine.RecordKey) (*engine.Record, error) {
	return invoke[engine.Record](ctx, c, MethodGetRecord, &key)
}

func (c *Client) DeleteRecord(ctx context.Context, key engine.RecordKey) error {
	_, err := invoke[Empty](ctx, c, MethodDeleteRecord, &key)
	return err
}

func (c *Client) GetEntityByRecordID(ctx context.Context, key engine.RecordKey) (*engine.Entity, error) {
	return invoke[engine.Entity](ctx, c, MethodGetEntityByRecordID, &key)
}

func (c *Client) GetEntityByID(ctx context.Context, id int64) (*engine.Entity, error) {
	return invoke[engine.Entity](ctx, c, MethodGetEntityByID, &GetEntityByIDRequest{EntityID: id})
}

func (c *Client) SearchByAttributes(ctx context.Context, attrs map[string]string) ([]engine.Entity, error) {
	resp, err := invoke[SearchResponse](ctx, c, MethodSearchByAttributes, &SearchRequest{Attributes: attrs})
	if err != nil {
		return nil, err
	}
	return resp.Entities, nil
}

func (c *Client) WhyRecords(ctx context.Context, left, right engine.RecordKey) (*engine.WhyResult, error) {
	return invoke[engine.WhyResult](ctx, c, MethodWhyRecords, &WhyRequest{Left: left, Right: right})
}

func (c *Client) GetStats(ctx context.Context) (*engine.Stats, error) {
	return invoke[engine.Stats](ctx, c, MethodGetStats, &Empty{})
}

func (c *Client) GetVersion(ctx context.Context) (*VersionResponse, error) {
	return invoke[VersionResponse](ctx, c, MethodGetVersion, &Empty{})
}

func (c *Client) RegisterDataSource(ctx context.Context, code string) (*engine.DataSourceConfig, error) {
	return invoke[engine.DataSourceConfig](ctx, c, MethodRegisterDataSource, &RegisterDataSourceRequest{Code: code})
}

func (c *Client) ListDataSources(ctx context.Context) (*engine.DataSourceConfig, error) {
	return invoke[engine.DataSourceConfig](ctx, c, MethodListDataSources, &Empty{})
}

func (c *Client) ReplaceConfig(ctx context.Context, expectedVersion int64, dataSources []string) (*engine.DataSourceConfig, error) {
	return invoke[engine.DataSourceConfig](ctx, c, MethodReplaceConfig, &ReplaceConfigRequest{
		ExpectedVersion: expectedVersion,
		DataSources:     dataSources,
	})
}

func (c *Client) PurgeRepository(ctx context.Context) error {
	_, err := invoke[Empty](ctx, c, MethodPurgeRepository, &Empty{})
	return err
}

// ExportOpen opens an export session of kind. Columns only apply to CSV.
func (c *Client) ExportOpen(ctx context.Context, kind engine.ExportKind, columns []string) (int64, error) {
	var (
		resp *ExportHandle
		err  error
	)
	switch kind {
	case engine.ExportCSV:
		resp, err = invoke[ExportHandle](ctx, c, MethodExportCSVOpen, &ExportCSVRequest{Columns: columns})
	case engine.ExportJSON:
		resp, err = invoke[ExportHandle](ctx, c, MethodExportJSONOpen, &ExportJSONRequest{})
	default:
		return 0, engerrors.NewBadInput("unknown export kind %q", kind)
	}
	if err != nil {
		return 0, err
	}
	return resp.Handle, nil
}

// ExportFetchNext returns the next line of handle, or io.EOF once the report
// is exhausted.
func (c *Client) ExportFetchNext(ctx context.Context, handle int64) (string, error) {
	resp, err := invoke[FetchNextResponse](ctx, c, MethodExportFetchNext, &ExportHandle{Handle: handle})
	if err != nil {
		return "", err
	}
	if resp.EOF {
		return "", io.EOF
	}
	return resp.Line, nil
}

// ExportClose releases handle.
func (c *Client) ExportClose(ctx context.Context, handle int64) error {
	_, err := invoke[Empty](ctx, c, MethodExportClose, &ExportHandle{Handle: handle})
	return err
}

var streamDesc = &grpc.StreamDesc{ServerStreams: true}

// StreamExport receives a whole report in one call and passes each line to
// fn. An error from fn cancels the stream and is returned as is.
func (c *Client) StreamExport(ctx context.Context, kind engine.ExportKind, columns []string, fn func(line string) error) error {
	var (
		method string
		req    any
	)
	switch kind {
	case engine.ExportCSV:
		method, req = MethodStreamExportCSV, &ExportCSVRequest{Columns: columns}
	case engine.ExportJSON:
		method, req = MethodStreamExportJSON, &ExportJSONRequest{}
	default:
		return engerrors.NewBadInput("unknown export kind %q", kind)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	stream, err := c.conn.NewStream(ctx, streamDesc, FullMethod(method), grpc.CallContentSubtype(CodecName))
	if err != nil {
		return decodeError(err)
	}
	if err := stream.SendMsg(req); err != nil {
		return decodeError(err)
	}
	if err := stream.CloseSend(); err != nil {
		return decodeError(err)
	}

	for {
		var line ExportLine
		err := stream.RecvMsg(&line)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return decodeError(err)
		}
		if err := fn(line.Line); err != nil {
			return err
		}
	}
}

// ============================================================================
// Errors
// ============================================================================

// RemoteError is a failed call as reported by the server. Unwrap yields the
// engine error rebuilt from the reason when the server sent one, so
// engerrors.IsNotFound and friends work on the client side.
type RemoteError struct {
	Code       codes.Code
	Diagnostic classifier.Diagnostic

	status *status.Status
	cause  error
}

func (e *RemoteError) Error() string {
	if e.Diagnostic.Reason != "" {
		return fmt.Sprintf("%s: %s", e.Code, e.Diagnostic.Reason)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Diagnostic.Text)
}

func (e *RemoteError) Unwrap() error { return e.cause }

// GRPCStatus returns the status as received.
func (e *RemoteError) GRPCStatus() *status.Status { return e.status }

func decodeError(err error) error {
	st, ok := status.FromError(err)
	if !ok {
		return err
	}

	re := &RemoteError{Code: st.Code(), status: st}
	if d, ok := classifier.Decode(st); ok {
		re.Diagnostic = d
	} else {
		re.Diagnostic = classifier.Diagnostic{Text: st.Message()}
	}
	if code, msg, ok := classifier.ParseReason(re.Diagnostic.Reason); ok {
		re.cause = engerrors.FromCode(code, msg)
	}
	return re
}
