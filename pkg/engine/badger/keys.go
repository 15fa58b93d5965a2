package badger

import (
	"encoding/binary"
	"strings"
)

// Key namespace
//
// Data Type        Prefix   Key Format                         Value
// ==========================================================================
// Records          "r:"     r:<dataSource>\x00<recordID>        storedRecord (JSON)
// Entities         "e:"     e:<entityID uint64 big endian>      storedEntity (JSON)
// Feature index    "x:"     x:<feature>\x00<normalized value>   entityID (8 bytes)
// Data sources     "cfg:"   cfg:datasources                     DataSourceConfig (JSON)
// Record counter   "cnt:"   cnt:records                         int64 (8 bytes)
// Entity sequence  "seq:"   seq:entity                          badger sequence
const (
	prefixRecord  = "r:"
	prefixEntity  = "e:"
	prefixFeature = "x:"

	keyDataSources   = "cfg:datasources"
	keyRecordCount   = "cnt:records"
	keyEntitySeqName = "seq:entity"
)

func keyRecord(dataSource, recordID string) []byte {
	return []byte(prefixRecord + dataSource + "\x00" + recordID)
}

func keyEntity(id int64) []byte {
	k := make([]byte, len(prefixEntity)+8)
	copy(k, prefixEntity)
	binary.BigEndian.PutUint64(k[len(prefixEntity):], uint64(id))
	return k
}

func entityIDFromKey(k []byte) int64 {
	return int64(binary.BigEndian.Uint64(k[len(prefixEntity):]))
}

func keyFeature(feature, value string) []byte {
	return []byte(prefixFeature + feature + "\x00" + value)
}

func encodeInt64(v int64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, uint64(v))
	return b
}

func decodeInt64(b []byte) int64 {
	if len(b) != 8 {
		return 0
	}
	return int64(binary.BigEndian.Uint64(b))
}

// normalize canonicalizes a feature value so equivalent spellings match.
// Phone numbers keep digits only, emails are lower-cased, everything else is
// upper-cased with whitespace collapsed.
func normalize(feature, value string) string {
	switch feature {
	case "PHONE":
		var b strings.Builder
		for _, r := range value {
			if r >= '0' && r <= '9' {
				b.WriteRune(r)
			}
		}
		return b.String()
	case "EMAIL":
		return strings.ToLower(strings.TrimSpace(value))
	default:
		return strings.ToUpper(strings.Join(strings.Fields(value), " "))
	}
}
