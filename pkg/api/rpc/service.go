package rpc

import (
	"context"

	"github.com/marmos91/resolvd/pkg/engine"
	"google.golang.org/grpc"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "resolvd.v1.Engine"

// Method names of ServiceName.
const (
	MethodAddRecord           = "AddRecord"
	MethodGetRecord           = "GetRecord"
	MethodDeleteRecord        = "DeleteRecord"
	MethodGetEntityByRecordID = "GetEntityByRecordID"
	MethodGetEntityByID       = "GetEntityByID"
	MethodSearchByAttributes  = "SearchByAttributes"
	MethodWhyRecords          = "WhyRecords"
	MethodGetStats            = "GetStats"
	MethodGetVersion          = "GetVersion"
	MethodRegisterDataSource  = "RegisterDataSource"
	MethodListDataSources     = "ListDataSources"
	MethodReplaceConfig       = "ReplaceConfig"
	MethodExportCSVOpen       = "ExportCSVOpen"
	MethodExportJSONOpen      = "ExportJSONOpen"
	MethodExportFetchNext     = "ExportFetchNext"
	MethodExportClose         = "ExportClose"
	MethodPurgeRepository     = "PurgeRepository"
	MethodStreamExportCSV     = "StreamExportCSV"
	MethodStreamExportJSON    = "StreamExportJSON"
)

// FullMethod returns "/resolvd.v1.Engine/<name>".
func FullMethod(name string) string {
	return "/" + ServiceName + "/" + name
}

// mutating lists the methods that require a write-scoped token.
var mutating = map[string]bool{
	FullMethod(MethodAddRecord):          true,
	FullMethod(MethodDeleteRecord):       true,
	FullMethod(MethodRegisterDataSource): true,
	FullMethod(MethodReplaceConfig):      true,
	FullMethod(MethodPurgeRepository):    true,
}

// LineStream is the server side of a streamed report.
type LineStream interface {
	Send(*ExportLine) error
	Context() context.Context
}

// EngineServer is the server API of ServiceName.
type EngineServer interface {
	AddRecord(context.Context, *engine.Record) (*engine.EntityRef, error)
	GetRecord(context.Context, *engine.RecordKey) (*engine.Record, error)
	DeleteRecord(context.Context, *engine.RecordKey) (*Empty, error)
	GetEntityByRecordID(context.Context, *engine.RecordKey) (*engine.Entity, error)
	GetEntityByID(context.Context, *GetEntityByIDRequest) (*engine.Entity, error)
	SearchByAttributes(context.Context, *SearchRequest) (*SearchResponse, error)
	WhyRecords(context.Context, *WhyRequest) (*engine.WhyResult, error)
	GetStats(context.Context, *Empty) (*engine.Stats, error)
	GetVersion(context.Context, *Empty) (*VersionResponse, error)
	RegisterDataSource(context.Context, *RegisterDataSourceRequest) (*engine.DataSourceConfig, error)
	ListDataSources(context.Context, *Empty) (*engine.DataSourceConfig, error)
	ReplaceConfig(context.Context, *ReplaceConfigRequest) (*engine.DataSourceConfig, error)
	ExportCSVOpen(context.Context, *ExportCSVRequest) (*ExportHandle, error)
	ExportJSONOpen(context.Context, *ExportJSONRequest) (*ExportHandle, error)
	ExportFetchNext(context.Context, *ExportHandle) (*FetchNextResponse, error)
	ExportClose(context.Context, *ExportHandle) (*Empty, error)
	PurgeRepository(context.Context, *Empty) (*Empty, error)
	StreamExportCSV(*ExportCSVRequest, LineStream) error
	StreamExportJSON(*ExportJSONRequest, LineStream) error
}

// RegisterEngineServer registers srv on s.
func RegisterEngineServer(s grpc.ServiceRegistrar, srv EngineServer) {
	s.RegisterService(&ServiceDesc, srv)
}

// unary builds the descriptor of a unary method.
func unary[Req, Resp any](name string, call func(EngineServer, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(EngineServer), ctx, req.(*Req))
			}
			if interceptor == nil {
				return handler(ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: FullMethod(name)}
			return interceptor(ctx, in, info, handler)
		},
	}
}

// lineStream adapts a grpc.ServerStream to LineStream.
type lineStream struct {
	grpc.ServerStream
}

func (s *lineStream) Send(m *ExportLine) error {
	return s.ServerStream.SendMsg(m)
}

// serverStream builds the descriptor of a server-streaming method.
func serverStream[Req any](name string, call func(EngineServer, *Req, LineStream) error) grpc.StreamDesc {
	return grpc.StreamDesc{
		StreamName:    name,
		ServerStreams: true,
		Handler: func(srv any, stream grpc.ServerStream) error {
			in := new(Req)
			if err := stream.RecvMsg(in); err != nil {
				return err
			}
			return call(srv.(EngineServer), in, &lineStream{stream})
		},
	}
}

// ServiceDesc describes ServiceName for grpc.Server.RegisterService.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*EngineServer)(nil),
	Methods: []grpc.MethodDesc{
		unary(MethodAddRecord, EngineServer.AddRecord),
		unary(MethodGetRecord, EngineServer.GetRecord),
		unary(MethodDeleteRecord, EngineServer.DeleteRecord),
		unary(MethodGetEntityByRecordID, EngineServer.GetEntityByRecordID),
		unary(MethodGetEntityByID, EngineServer.GetEntityByID),
		unary(MethodSearchByAttributes, EngineServer.SearchByAttributes),
		unary(MethodWhyRecords, EngineServer.WhyRecords),
		unary(MethodGetStats, EngineServer.GetStats),
		unary(MethodGetVersion, EngineServer.GetVersion),
		unary(MethodRegisterDataSource, EngineServer.RegisterDataSource),
		unary(MethodListDataSources, EngineServer.ListDataSources),
		unary(MethodReplaceConfig, EngineServer.ReplaceConfig),
		unary(MethodExportCSVOpen, EngineServer.ExportCSVOpen),
		unary(MethodExportJSONOpen, EngineServer.ExportJSONOpen),
		unary(MethodExportFetchNext, EngineServer.ExportFetchNext),
		unary(MethodExportClose, EngineServer.ExportClose),
		unary(MethodPurgeRepository, EngineServer.PurgeRepository),
	},
	Streams: []grpc.StreamDesc{
		serverStream(MethodStreamExportCSV, EngineServer.StreamExportCSV),
		serverStream(MethodStreamExportJSON, EngineServer.StreamExportJSON),
	},
	Metadata: "resolvd/v1/engine.proto",
}
