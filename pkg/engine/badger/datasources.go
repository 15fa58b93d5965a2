package badger

import (
	"context"
	"slices"
	"strings"

	badgerdb "github.com/dgraph-io/badger/v4"
	"github.com/marmos91/resolvd/pkg/engine"
	engerrors "github.com/marmos91/resolvd/pkg/engine/errors"
)

func validDataSourceCode(code string) bool {
	if code == "" {
		return false
	}
	for _, r := range code {
		if !(r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || r == '_' || r == '-') {
			return false
		}
	}
	return true
}

func normalizeDataSources(codes []string) ([]string, error) {
	out := make([]string, 0, len(codes))
	for _, c := range codes {
		c = strings.ToUpper(strings.TrimSpace(c))
		if !validDataSourceCode(c) {
			return nil, engerrors.NewBadInput("invalid data source code %q", c)
		}
		if !slices.Contains(out, c) {
			out = append(out, c)
		}
	}
	slices.Sort(out)
	return out, nil
}

func loadDataSources(txn *badgerdb.Txn) (engine.DataSourceConfig, error) {
	var cfg engine.DataSourceConfig
	if _, err := getJSON(txn, []byte(keyDataSources), &cfg); err != nil {
		return engine.DataSourceConfig{}, err
	}
	if cfg.DataSources == nil {
		cfg.DataSources = []string{}
	}
	return cfg, nil
}

func requireDataSource(txn *badgerdb.Txn, code string) error {
	cfg, err := loadDataSources(txn)
	if err != nil {
		return err
	}
	if !slices.Contains(cfg.DataSources, code) {
		return engerrors.NewUnknownDataSource(code)
	}
	return nil
}

// ListDataSources returns the registered data sources and their version.
func (s *Store) ListDataSources(ctx context.Context) (engine.DataSourceConfig, error) {
	var cfg engine.DataSourceConfig
	err := s.view(ctx, "list data sources", func(txn *badgerdb.Txn) error {
		var err error
		cfg, err = loadDataSources(txn)
		return err
	})
	return cfg, err
}

// RegisterDataSource adds code to the registered set. Registering an existing
// code is a no-op and does not bump the version.
func (s *Store) RegisterDataSource(ctx context.Context, code string) (engine.DataSourceConfig, error) {
	return s.registerDataSources(ctx, []string{code})
}

func (s *Store) registerDataSources(ctx context.Context, codes []string) (engine.DataSourceConfig, error) {
	wanted, err := normalizeDataSources(codes)
	if err != nil {
		return engine.DataSourceConfig{}, err
	}

	var cfg engine.DataSourceConfig
	err = s.update(ctx, "register data source", func(txn *badgerdb.Txn) error {
		cur, err := loadDataSources(txn)
		if err != nil {
			return err
		}
		changed := false
		for _, c := range wanted {
			if !slices.Contains(cur.DataSources, c) {
				cur.DataSources = append(cur.DataSources, c)
				changed = true
			}
		}
		if changed {
			slices.Sort(cur.DataSources)
			cur.Version++
			if err := setJSON(txn, []byte(keyDataSources), cur); err != nil {
				return err
			}
		}
		cfg = cur
		return nil
	})
	return cfg, err
}

// ReplaceConfig replaces the data source set when expectedVersion matches the
// stored version. Data sources still referenced by records cannot be removed.
func (s *Store) ReplaceConfig(ctx context.Context, expectedVersion int64, dataSources []string) (engine.DataSourceConfig, error) {
	wanted, err := normalizeDataSources(dataSources)
	if err != nil {
		return engine.DataSourceConfig{}, err
	}

	var cfg engine.DataSourceConfig
	err = s.update(ctx, "replace config", func(txn *badgerdb.Txn) error {
		cur, err := loadDataSources(txn)
		if err != nil {
			return err
		}
		if cur.Version != expectedVersion {
			return engerrors.NewReplaceConflict(expectedVersion, cur.Version)
		}
		for _, removed := range cur.DataSources {
			if slices.Contains(wanted, removed) {
				continue
			}
			inUse, err := dataSourceInUse(txn, removed)
			if err != nil {
				return err
			}
			if inUse {
				return engerrors.NewConfiguration("data source %q still has records", removed)
			}
		}
		cfg = engine.DataSourceConfig{Version: cur.Version + 1, DataSources: wanted}
		return setJSON(txn, []byte(keyDataSources), cfg)
	})
	return cfg, err
}

func dataSourceInUse(txn *badgerdb.Txn, code string) (bool, error) {
	opts := badgerdb.DefaultIteratorOptions
	opts.PrefetchValues = false
	opts.Prefix = []byte(prefixRecord + code + "\x00")
	it := txn.NewIterator(opts)
	defer it.Close()
	it.Rewind()
	return it.Valid(), nil
}
