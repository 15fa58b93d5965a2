package badger

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"strconv"
	"strings"

	badgerdb "github.com/dgraph-io/badger/v4"
	"github.com/marmos91/resolvd/internal/logger"
	"github.com/marmos91/resolvd/pkg/engine"
	engerrors "github.com/marmos91/resolvd/pkg/engine/errors"
)

// entityVisitor is called for every entity in id order. Returning false stops
// the walk.
type entityVisitor func(txn *badgerdb.Txn, ent storedEntity) (bool, error)

// startExport launches a report producer. The producer is bound to the store,
// not to ctx: the report outlives the call that opened it.
func (s *Store) startExport(ctx context.Context, kind engine.ExportKind, visit func(emit engine.Emit) entityVisitor, header string) (engine.Iterator, error) {
	s.exportMu.Lock()
	if err := s.checkOpen(ctx); err != nil {
		s.exportMu.Unlock()
		return nil, err
	}
	s.exports.Add(1)
	s.exportMu.Unlock()

	logger.DebugCtx(ctx, "Export started", logger.KeyKind, string(kind))

	return engine.NewChanIterator(s.base, s.cfg.ExportBuffer, func(pctx context.Context, emit engine.Emit) error {
		defer s.exports.Done()

		if header != "" && !emit(header) {
			return nil
		}
		v := visit(emit)
		err := s.db.View(func(txn *badgerdb.Txn) error {
			opts := badgerdb.DefaultIteratorOptions
			opts.Prefix = []byte(prefixEntity)
			it := txn.NewIterator(opts)
			defer it.Close()

			for it.Rewind(); it.Valid(); it.Next() {
				if pctx.Err() != nil {
					return nil
				}
				var ent storedEntity
				if err := it.Item().Value(func(val []byte) error {
					return json.Unmarshal(val, &ent)
				}); err != nil {
					return err
				}
				more, err := v(txn, ent)
				if err != nil {
					return err
				}
				if !more {
					return nil
				}
			}
			return nil
		})
		return s.mapError("export", err)
	}), nil
}

func isBuiltinColumn(col string) bool {
	for _, c := range engine.DefaultCSVColumns {
		if c == col {
			return true
		}
	}
	return false
}

// ExportCSV reports one delimited line per resolved record, after a header
// line naming the columns. Columns beyond the built-in ones are read from the
// record attributes.
func (s *Store) ExportCSV(ctx context.Context, columns []string) (engine.Iterator, error) {
	if len(columns) == 0 {
		columns = engine.DefaultCSVColumns
	}
	cols := make([]string, len(columns))
	needAttrs := false
	for i, c := range columns {
		c = strings.ToUpper(strings.TrimSpace(c))
		if c == "" {
			return nil, engerrors.NewBadInput("empty export column at position %d", i)
		}
		cols[i] = c
		if !isBuiltinColumn(c) {
			needAttrs = true
		}
	}

	header, err := csvLine(cols)
	if err != nil {
		return nil, engerrors.NewBadInput("invalid export columns: %v", err)
	}

	visit := func(emit engine.Emit) entityVisitor {
		return func(txn *badgerdb.Txn, ent storedEntity) (bool, error) {
			for _, k := range ent.Records {
				var attrs map[string]string
				if needAttrs {
					rec, err := loadRecord(txn, k)
					if err != nil {
						return false, err
					}
					attrs = upperKeys(rec.Attributes)
				}
				row := make([]string, len(cols))
				for i, c := range cols {
					switch c {
					case "RESOLVED_ENTITY_ID":
						row[i] = strconv.FormatInt(ent.EntityID, 10)
					case "DATA_SOURCE":
						row[i] = k.DataSource
					case "RECORD_ID":
						row[i] = k.RecordID
					default:
						row[i] = attrs[c]
					}
				}
				line, err := csvLine(row)
				if err != nil {
					return false, err
				}
				if !emit(line) {
					return false, nil
				}
			}
			return true, nil
		}
	}
	return s.startExport(ctx, engine.ExportCSV, visit, header)
}

// jsonEntity is the shape of one structured export line.
type jsonEntity struct {
	EntityID int64              `json:"RESOLVED_ENTITY_ID"`
	Records  []engine.RecordKey `json:"RECORDS"`
}

// ExportJSON reports one JSON document per entity.
func (s *Store) ExportJSON(ctx context.Context) (engine.Iterator, error) {
	visit := func(emit engine.Emit) entityVisitor {
		return func(_ *badgerdb.Txn, ent storedEntity) (bool, error) {
			data, err := json.Marshal(jsonEntity{EntityID: ent.EntityID, Records: ent.Records})
			if err != nil {
				return false, err
			}
			return emit(string(data)), nil
		}
	}
	return s.startExport(ctx, engine.ExportJSON, visit, "")
}

func csvLine(fields []string) (string, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(fields); err != nil {
		return "", err
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", err
	}
	return strings.TrimRight(buf.String(), "\r\n"), nil
}

func upperKeys(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[strings.ToUpper(k)] = v
	}
	return out
}
