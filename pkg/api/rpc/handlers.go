package rpc

import (
	"context"
	"errors"
	"io"

	"github.com/marmos91/resolvd/internal/logger"
	"github.com/marmos91/resolvd/internal/telemetry"
	"github.com/marmos91/resolvd/pkg/engine"
	engerrors "github.com/marmos91/resolvd/pkg/engine/errors"
	"github.com/marmos91/resolvd/pkg/export"
	"github.com/marmos91/resolvd/pkg/runtime"
)

// service implements EngineServer over the runtime registry. Every call
// resolves the current environment and runs under its admission gate; errors
// are returned raw and encoded by the interceptor chain.
type service struct {
	registry *runtime.Registry
	version  string
}

var _ EngineServer = (*service)(nil)

func newService(registry *runtime.Registry, version string) *service {
	return &service{registry: registry, version: version}
}

func (s *service) environment() (*runtime.Environment, error) {
	return s.registry.Current()
}

// call runs fn against the engine of the current environment under admission.
func call[T any](ctx context.Context, s *service, fn func(ctx context.Context, eng engine.Engine) (T, error)) (T, error) {
	env, err := s.environment()
	if err != nil {
		var zero T
		return zero, err
	}
	return runtime.Call(ctx, env, fn)
}

func (s *service) AddRecord(ctx context.Context, req *engine.Record) (*engine.EntityRef, error) {
	telemetry.SetAttributes(ctx, telemetry.DataSource(req.DataSource), telemetry.RecordID(req.RecordID))
	return call(ctx, s, func(ctx context.Context, eng engine.Engine) (*engine.EntityRef, error) {
		ref, err := eng.AddRecord(ctx, *req)
		if err != nil {
			return nil, err
		}
		telemetry.SetAttributes(ctx, telemetry.EntityID(ref.EntityID))
		return &ref, nil
	})
}

func (s *service) GetRecord(ctx context.Context, req *engine.RecordKey) (*engine.Record, error) {
	return call(ctx, s, func(ctx context.Context, eng engine.Engine) (*engine.Record, error) {
		rec, err := eng.GetRecord(ctx, *req)
		if err != nil {
			return nil, err
		}
		return &rec, nil
	})
}

func (s *service) DeleteRecord(ctx context.Context, req *engine.RecordKey) (*Empty, error) {
	return call(ctx, s, func(ctx context.Context, eng engine.Engine) (*Empty, error) {
		if err := eng.DeleteRecord(ctx, *req); err != nil {
			return nil, err
		}
		return &Empty{}, nil
	})
}

func (s *service) GetEntityByRecordID(ctx context.Context, req *engine.RecordKey) (*engine.Entity, error) {
	return call(ctx, s, func(ctx context.Context, eng engine.Engine) (*engine.Entity, error) {
		ent, err := eng.GetEntityByRecordID(ctx, *req)
		if err != nil {
			return nil, err
		}
		return &ent, nil
	})
}

func (s *service) GetEntityByID(ctx context.Context, req *GetEntityByIDRequest) (*engine.Entity, error) {
	return call(ctx, s, func(ctx context.Context, eng engine.Engine) (*engine.Entity, error) {
		ent, err := eng.GetEntityByID(ctx, req.EntityID)
		if err != nil {
			return nil, err
		}
		return &ent, nil
	})
}

func (s *service) SearchByAttributes(ctx context.Context, req *SearchRequest) (*SearchResponse, error) {
	return call(ctx, s, func(ctx context.Context, eng engine.Engine) (*SearchResponse, error) {
		ents, err := eng.SearchByAttributes(ctx, req.Attributes)
		if err != nil {
			return nil, err
		}
		return &SearchResponse{Entities: ents}, nil
	})
}

func (s *service) WhyRecords(ctx context.Context, req *WhyRequest) (*engine.WhyResult, error) {
	return call(ctx, s, func(ctx context.Context, eng engine.Engine) (*engine.WhyResult, error) {
		res, err := eng.WhyRecords(ctx, req.Left, req.Right)
		if err != nil {
			return nil, err
		}
		return &res, nil
	})
}

func (s *service) GetStats(ctx context.Context, _ *Empty) (*engine.Stats, error) {
	return call(ctx, s, func(ctx context.Context, eng engine.Engine) (*engine.Stats, error) {
		st, err := eng.Stats(ctx)
		if err != nil {
			return nil, err
		}
		return &st, nil
	})
}

func (s *service) GetVersion(ctx context.Context, _ *Empty) (*VersionResponse, error) {
	return call(ctx, s, func(_ context.Context, eng engine.Engine) (*VersionResponse, error) {
		return &VersionResponse{Server: s.version, Engine: eng.Version()}, nil
	})
}

func (s *service) RegisterDataSource(ctx context.Context, req *RegisterDataSourceRequest) (*engine.DataSourceConfig, error) {
	telemetry.SetAttributes(ctx, telemetry.DataSource(req.Code))
	return call(ctx, s, func(ctx context.Context, eng engine.Engine) (*engine.DataSourceConfig, error) {
		cfg, err := eng.RegisterDataSource(ctx, req.Code)
		if err != nil {
			return nil, err
		}
		return &cfg, nil
	})
}

func (s *service) ListDataSources(ctx context.Context, _ *Empty) (*engine.DataSourceConfig, error) {
	return call(ctx, s, func(ctx context.Context, eng engine.Engine) (*engine.DataSourceConfig, error) {
		cfg, err := eng.ListDataSources(ctx)
		if err != nil {
			return nil, err
		}
		return &cfg, nil
	})
}

func (s *service) ReplaceConfig(ctx context.Context, req *ReplaceConfigRequest) (*engine.DataSourceConfig, error) {
	return call(ctx, s, func(ctx context.Context, eng engine.Engine) (*engine.DataSourceConfig, error) {
		cfg, err := eng.ReplaceConfig(ctx, req.ExpectedVersion, req.DataSources)
		if err != nil {
			return nil, err
		}
		return &cfg, nil
	})
}

// PurgeRepository is deliberately not offered over RPC.
func (s *service) PurgeRepository(ctx context.Context, _ *Empty) (*Empty, error) {
	return call(ctx, s, func(context.Context, engine.Engine) (*Empty, error) {
		return nil, engerrors.NewUnimplemented(MethodPurgeRepository)
	})
}

// ============================================================================
// Export sessions
// ============================================================================

func (s *service) openExport(ctx context.Context, kind engine.ExportKind, params export.Params) (*ExportHandle, error) {
	env, err := s.environment()
	if err != nil {
		return nil, err
	}
	h, err := env.Exports().Open(ctx, kind, params)
	if err != nil {
		return nil, err
	}
	telemetry.SetAttributes(ctx, telemetry.ExportKind(string(kind)), telemetry.ExportHandle(h))
	return &ExportHandle{Handle: h}, nil
}

func (s *service) ExportCSVOpen(ctx context.Context, req *ExportCSVRequest) (*ExportHandle, error) {
	return s.openExport(ctx, engine.ExportCSV, export.Params{Columns: req.Columns})
}

func (s *service) ExportJSONOpen(ctx context.Context, _ *ExportJSONRequest) (*ExportHandle, error) {
	return s.openExport(ctx, engine.ExportJSON, export.Params{})
}

func (s *service) ExportFetchNext(ctx context.Context, req *ExportHandle) (*FetchNextResponse, error) {
	telemetry.SetAttributes(ctx, telemetry.ExportHandle(req.Handle))
	env, err := s.environment()
	if err != nil {
		return nil, err
	}
	line, err := env.Exports().FetchNext(ctx, req.Handle)
	if errors.Is(err, io.EOF) {
		return &FetchNextResponse{EOF: true}, nil
	}
	if err != nil {
		return nil, err
	}
	return &FetchNextResponse{Line: line}, nil
}

func (s *service) ExportClose(ctx context.Context, req *ExportHandle) (*Empty, error) {
	telemetry.SetAttributes(ctx, telemetry.ExportHandle(req.Handle))
	env, err := s.environment()
	if err != nil {
		return nil, err
	}
	if err := env.Exports().Close(ctx, req.Handle); err != nil {
		return nil, err
	}
	return &Empty{}, nil
}

func (s *service) StreamExportCSV(req *ExportCSVRequest, stream LineStream) error {
	return s.streamExport(stream, engine.ExportCSV, export.Params{Columns: req.Columns})
}

func (s *service) StreamExportJSON(_ *ExportJSONRequest, stream LineStream) error {
	return s.streamExport(stream, engine.ExportJSON, export.Params{})
}

// streamExport opens a session, sends every line and closes the session, all
// through the export manager.
func (s *service) streamExport(stream LineStream, kind engine.ExportKind, params export.Params) error {
	ctx := stream.Context()
	env, err := s.environment()
	if err != nil {
		return err
	}

	sessions := env.Exports()
	h, err := sessions.Open(ctx, kind, params)
	if err != nil {
		return err
	}
	defer func() {
		// A destroy in between closes the session first; that is not a failure
		// of this call.
		if err := sessions.Close(context.WithoutCancel(ctx), h); err != nil && !engerrors.IsNotFound(err) {
			logger.WarnCtx(ctx, "Failed to close streamed export", logger.KeyHandle, h, logger.KeyError, err)
		}
	}()

	sent := 0
	for {
		line, err := sessions.FetchNext(ctx, h)
		if errors.Is(err, io.EOF) {
			telemetry.SetAttributes(ctx, telemetry.ExportHandle(h), telemetry.ExportLines(sent))
			return nil
		}
		if err != nil {
			return err
		}
		if err := stream.Send(&ExportLine{Line: line}); err != nil {
			return err
		}
		sent++
	}
}
