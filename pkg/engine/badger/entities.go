package badger

import (
	"bytes"
	"context"
	"sort"
	"strings"

	badgerdb "github.com/dgraph-io/badger/v4"
	"github.com/marmos91/resolvd/pkg/engine"
	engerrors "github.com/marmos91/resolvd/pkg/engine/errors"
)

func loadEntity(txn *badgerdb.Txn, id int64) (storedEntity, error) {
	var ent storedEntity
	found, err := getJSON(txn, keyEntity(id), &ent)
	if err != nil {
		return storedEntity{}, err
	}
	if !found {
		return storedEntity{}, engerrors.NewNotFound("entity %d not found", id)
	}
	return ent, nil
}

// GetEntityByRecordID returns the entity the record resolved to.
func (s *Store) GetEntityByRecordID(ctx context.Context, key engine.RecordKey) (engine.Entity, error) {
	key, err := normalizeKey(key)
	if err != nil {
		return engine.Entity{}, err
	}

	var out engine.Entity
	err = s.view(ctx, "get entity by record", func(txn *badgerdb.Txn) error {
		if err := requireDataSource(txn, key.DataSource); err != nil {
			return err
		}
		rec, err := loadRecord(txn, key)
		if err != nil {
			return err
		}
		ent, err := loadEntity(txn, rec.EntityID)
		if err != nil {
			return err
		}
		out = ent.toEntity()
		return nil
	})
	return out, err
}

// GetEntityByID returns an entity by id.
func (s *Store) GetEntityByID(ctx context.Context, entityID int64) (engine.Entity, error) {
	if entityID <= 0 {
		return engine.Entity{}, engerrors.NewBadInput("invalid entity id %d", entityID)
	}

	var out engine.Entity
	err := s.view(ctx, "get entity", func(txn *badgerdb.Txn) error {
		ent, err := loadEntity(txn, entityID)
		if err != nil {
			return err
		}
		out = ent.toEntity()
		return nil
	})
	return out, err
}

// SearchByAttributes returns the entities owning any of the given match
// feature values, ordered by entity id.
func (s *Store) SearchByAttributes(ctx context.Context, attrs map[string]string) ([]engine.Entity, error) {
	values := s.matchValues(attrs)
	if len(values) == 0 {
		return nil, engerrors.NewBadInput("search requires at least one of %s", strings.Join(s.cfg.MatchFeatures, ", "))
	}

	var out []engine.Entity
	err := s.view(ctx, "search", func(txn *badgerdb.Txn) error {
		seen := make(map[int64]struct{})
		for _, feature := range sortedFeatures(values) {
			id, err := getEntityID(txn, keyFeature(feature, values[feature]))
			if err != nil {
				return err
			}
			if id == 0 {
				continue
			}
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			ent, err := loadEntity(txn, id)
			if err != nil {
				return err
			}
			out = append(out, ent.toEntity())
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EntityID < out[j].EntityID })
	if out == nil {
		out = []engine.Entity{}
	}
	return out, nil
}

// WhyRecords reports the normalized attribute values two records share and
// whether they resolved together.
func (s *Store) WhyRecords(ctx context.Context, left, right engine.RecordKey) (engine.WhyResult, error) {
	left, err := normalizeKey(left)
	if err != nil {
		return engine.WhyResult{}, err
	}
	right, err = normalizeKey(right)
	if err != nil {
		return engine.WhyResult{}, err
	}

	var out engine.WhyResult
	err = s.view(ctx, "why records", func(txn *badgerdb.Txn) error {
		l, err := loadRecord(txn, left)
		if err != nil {
			return err
		}
		r, err := loadRecord(txn, right)
		if err != nil {
			return err
		}

		shared := make(map[string]string)
		for name, lv := range l.Attributes {
			name = strings.ToUpper(name)
			for rname, rv := range r.Attributes {
				if strings.ToUpper(rname) != name {
					continue
				}
				if n := normalize(name, lv); n != "" && n == normalize(name, rv) {
					shared[name] = n
				}
			}
		}
		out = engine.WhyResult{
			Left:           l.key(),
			Right:          r.key(),
			SameEntity:     l.EntityID == r.EntityID,
			SharedFeatures: shared,
		}
		return nil
	})
	return out, err
}

// Stats counts records per data source and entities.
func (s *Store) Stats(ctx context.Context) (engine.Stats, error) {
	stats := engine.Stats{DataSources: make(map[string]int64)}
	err := s.view(ctx, "stats", func(txn *badgerdb.Txn) error {
		opts := badgerdb.DefaultIteratorOptions
		opts.PrefetchValues = false

		opts.Prefix = []byte(prefixRecord)
		it := txn.NewIterator(opts)
		for it.Rewind(); it.Valid(); it.Next() {
			k := it.Item().Key()[len(prefixRecord):]
			if i := bytes.IndexByte(k, 0); i >= 0 {
				stats.DataSources[string(k[:i])]++
			}
			stats.Records++
		}
		it.Close()

		opts.Prefix = []byte(prefixEntity)
		it = txn.NewIterator(opts)
		for it.Rewind(); it.Valid(); it.Next() {
			stats.Entities++
		}
		it.Close()
		return nil
	})
	return stats, err
}
