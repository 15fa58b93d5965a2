package badger

import (
	"context"
	"slices"
	"sort"
	"strings"

	badgerdb "github.com/dgraph-io/badger/v4"
	"github.com/marmos91/resolvd/internal/logger"
	"github.com/marmos91/resolvd/pkg/engine"
	engerrors "github.com/marmos91/resolvd/pkg/engine/errors"
)

type storedRecord struct {
	DataSource string            `json:"data_source"`
	RecordID   string            `json:"record_id"`
	Attributes map[string]string `json:"attributes"`
	EntityID   int64             `json:"entity_id"`
}

func (r storedRecord) key() engine.RecordKey {
	return engine.RecordKey{DataSource: r.DataSource, RecordID: r.RecordID}
}

type storedEntity struct {
	EntityID int64              `json:"entity_id"`
	Records  []engine.RecordKey `json:"records"`
}

func (e storedEntity) toEntity() engine.Entity {
	return engine.Entity{EntityID: e.EntityID, Records: slices.Clone(e.Records)}
}

func normalizeKey(key engine.RecordKey) (engine.RecordKey, error) {
	key.DataSource = strings.ToUpper(strings.TrimSpace(key.DataSource))
	key.RecordID = strings.TrimSpace(key.RecordID)
	if key.DataSource == "" {
		return key, engerrors.NewBadInput("data source is required")
	}
	if key.RecordID == "" {
		return key, engerrors.NewBadInput("record id is required")
	}
	return key, nil
}

// matchValues returns the normalized match feature values of attrs, keyed by
// feature, skipping empty values.
func (s *Store) matchValues(attrs map[string]string) map[string]string {
	out := make(map[string]string)
	for name, value := range attrs {
		name = strings.ToUpper(name)
		if _, ok := s.features[name]; !ok {
			continue
		}
		if v := normalize(name, value); v != "" {
			out[name] = v
		}
	}
	return out
}

func sortedFeatures(values map[string]string) []string {
	names := make([]string, 0, len(values))
	for n := range values {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// AddRecord stores rec and resolves it to an entity. Re-adding an existing
// record replaces it and re-resolves it.
func (s *Store) AddRecord(ctx context.Context, rec engine.Record) (engine.EntityRef, error) {
	key, err := normalizeKey(engine.RecordKey{DataSource: rec.DataSource, RecordID: rec.RecordID})
	if err != nil {
		return engine.EntityRef{}, err
	}
	if len(rec.Attributes) == 0 {
		return engine.EntityRef{}, engerrors.NewBadInput("record %s/%s has no attributes", key.DataSource, key.RecordID)
	}

	var ref engine.EntityRef
	err = s.update(ctx, "add record", func(txn *badgerdb.Txn) error {
		if err := requireDataSource(txn, key.DataSource); err != nil {
			return err
		}

		count, err := getInt64(txn, []byte(keyRecordCount))
		if err != nil {
			return err
		}

		var existing storedRecord
		found, err := getJSON(txn, keyRecord(key.DataSource, key.RecordID), &existing)
		if err != nil {
			return err
		}
		if found {
			if err := s.detach(txn, existing); err != nil {
				return err
			}
		} else if s.cfg.MaxRecords > 0 && count >= s.cfg.MaxRecords {
			return engerrors.NewLicense(s.cfg.MaxRecords)
		}

		stored := storedRecord{
			DataSource: key.DataSource,
			RecordID:   key.RecordID,
			Attributes: rec.Attributes,
		}
		values := s.matchValues(rec.Attributes)

		entityID, err := s.resolve(txn, values)
		if err != nil {
			return err
		}
		created := entityID == 0
		if created {
			next, err := s.seq.Next()
			if err != nil {
				return err
			}
			// Sequences start at 0; entity ids start at 1.
			entityID = int64(next) + 1
		}
		stored.EntityID = entityID

		if err := s.attach(txn, stored, values); err != nil {
			return err
		}
		if !found {
			if err := txn.Set([]byte(keyRecordCount), encodeInt64(count+1)); err != nil {
				return err
			}
		}
		ref = engine.EntityRef{EntityID: entityID, Created: created}
		return nil
	})
	if err != nil {
		return engine.EntityRef{}, err
	}

	logger.DebugCtx(ctx, "Record added",
		logger.KeyDataSource, key.DataSource,
		logger.KeyRecordID, key.RecordID,
		logger.KeyEntityID, ref.EntityID)
	return ref, nil
}

// resolve returns the entity that already owns one of values, or 0.
func (s *Store) resolve(txn *badgerdb.Txn, values map[string]string) (int64, error) {
	for _, feature := range sortedFeatures(values) {
		id, err := getEntityID(txn, keyFeature(feature, values[feature]))
		if err != nil {
			return 0, err
		}
		if id != 0 {
			return id, nil
		}
	}
	return 0, nil
}

// attach writes rec, adds it to its entity and claims unowned feature values.
func (s *Store) attach(txn *badgerdb.Txn, rec storedRecord, values map[string]string) error {
	var ent storedEntity
	if _, err := getJSON(txn, keyEntity(rec.EntityID), &ent); err != nil {
		return err
	}
	ent.EntityID = rec.EntityID
	if !slices.Contains(ent.Records, rec.key()) {
		ent.Records = append(ent.Records, rec.key())
	}
	if err := setJSON(txn, keyEntity(ent.EntityID), ent); err != nil {
		return err
	}
	if err := setJSON(txn, keyRecord(rec.DataSource, rec.RecordID), rec); err != nil {
		return err
	}

	for feature, value := range values {
		fk := keyFeature(feature, value)
		owner, err := getEntityID(txn, fk)
		if err != nil {
			return err
		}
		if owner == 0 {
			if err := txn.Set(fk, encodeInt64(rec.EntityID)); err != nil {
				return err
			}
		}
	}
	return nil
}

// detach removes rec from its entity, deleting the entity when it becomes
// empty and releasing feature values no remaining record holds.
func (s *Store) detach(txn *badgerdb.Txn, rec storedRecord) error {
	var ent storedEntity
	found, err := getJSON(txn, keyEntity(rec.EntityID), &ent)
	if err != nil {
		return err
	}

	remaining := make(map[string]struct{})
	if found {
		ent.Records = slices.DeleteFunc(ent.Records, func(k engine.RecordKey) bool { return k == rec.key() })
		if len(ent.Records) == 0 {
			if err := txn.Delete(keyEntity(ent.EntityID)); err != nil {
				return err
			}
		} else {
			if err := setJSON(txn, keyEntity(ent.EntityID), ent); err != nil {
				return err
			}
			for _, k := range ent.Records {
				var other storedRecord
				if _, err := getJSON(txn, keyRecord(k.DataSource, k.RecordID), &other); err != nil {
					return err
				}
				for f, v := range s.matchValues(other.Attributes) {
					remaining[f+"\x00"+v] = struct{}{}
				}
			}
		}
	}

	for feature, value := range s.matchValues(rec.Attributes) {
		if _, held := remaining[feature+"\x00"+value]; held {
			continue
		}
		fk := keyFeature(feature, value)
		owner, err := getEntityID(txn, fk)
		if err != nil {
			return err
		}
		if owner == rec.EntityID {
			if err := txn.Delete(fk); err != nil {
				return err
			}
		}
	}
	return txn.Delete(keyRecord(rec.DataSource, rec.RecordID))
}

func loadRecord(txn *badgerdb.Txn, key engine.RecordKey) (storedRecord, error) {
	var rec storedRecord
	found, err := getJSON(txn, keyRecord(key.DataSource, key.RecordID), &rec)
	if err != nil {
		return storedRecord{}, err
	}
	if !found {
		return storedRecord{}, engerrors.NewNotFound("record %s/%s not found", key.DataSource, key.RecordID)
	}
	return rec, nil
}

// GetRecord returns a stored record.
func (s *Store) GetRecord(ctx context.Context, key engine.RecordKey) (engine.Record, error) {
	key, err := normalizeKey(key)
	if err != nil {
		return engine.Record{}, err
	}

	var out engine.Record
	err = s.view(ctx, "get record", func(txn *badgerdb.Txn) error {
		rec, err := loadRecord(txn, key)
		if err != nil {
			return err
		}
		out = engine.Record{DataSource: rec.DataSource, RecordID: rec.RecordID, Attributes: rec.Attributes}
		return nil
	})
	return out, err
}

// DeleteRecord removes a record and updates its entity.
func (s *Store) DeleteRecord(ctx context.Context, key engine.RecordKey) error {
	key, err := normalizeKey(key)
	if err != nil {
		return err
	}

	return s.update(ctx, "delete record", func(txn *badgerdb.Txn) error {
		if err := requireDataSource(txn, key.DataSource); err != nil {
			return err
		}
		rec, err := loadRecord(txn, key)
		if err != nil {
			return err
		}
		if err := s.detach(txn, rec); err != nil {
			return err
		}
		count, err := getInt64(txn, []byte(keyRecordCount))
		if err != nil {
			return err
		}
		if count > 0 {
			count--
		}
		return txn.Set([]byte(keyRecordCount), encodeInt64(count))
	})
}
