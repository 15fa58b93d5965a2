// Package bytesize parses and renders byte quantities used in configuration,
// such as "4Mi" for the RPC message limit or "256Mi" for the store cache.
package bytesize

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
)

// ByteSize is a size in bytes. It decodes from plain integers or from
// strings with a binary (Ki, Mi, Gi, Ti) or decimal (K, M, G, T) suffix.
// The trailing "B" is optional, so "4Mi" and "4MiB" are equal.
type ByteSize uint64

const (
	B  ByteSize = 1
	KB ByteSize = 1000
	MB ByteSize = 1000 * KB
	GB ByteSize = 1000 * MB
	TB ByteSize = 1000 * GB

	KiB ByteSize = 1024
	MiB ByteSize = 1024 * KiB
	GiB ByteSize = 1024 * MiB
	TiB ByteSize = 1024 * GiB
)

var units = map[string]ByteSize{
	"": B, "b": B,
	"k": KB, "kb": KB,
	"m": MB, "mb": MB,
	"g": GB, "gb": GB,
	"t": TB, "tb": TB,
	"ki": KiB, "kib": KiB,
	"mi": MiB, "mib": MiB,
	"gi": GiB, "gib": GiB,
	"ti": TiB, "tib": TiB,
}

// canonical lists the suffixes MarshalText prefers, largest first.
var canonical = []struct {
	suffix string
	size   ByteSize
}{
	{"Ti", TiB},
	{"Gi", GiB},
	{"Mi", MiB},
	{"Ki", KiB},
}

// ParseByteSize parses s as a byte quantity. Fractions are allowed with a
// unit ("1.5Mi") and truncate to whole bytes.
func ParseByteSize(s string) (ByteSize, error) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return 0, fmt.Errorf("empty byte size")
	}

	end := 0
	for end < len(trimmed) && (trimmed[end] >= '0' && trimmed[end] <= '9' || trimmed[end] == '.') {
		end++
	}
	if end == 0 {
		return 0, fmt.Errorf("invalid byte size %q", s)
	}

	number := trimmed[:end]
	unit := strings.ToLower(strings.TrimSpace(trimmed[end:]))
	multiplier, ok := units[unit]
	if !ok {
		return 0, fmt.Errorf("unknown byte size unit %q in %q", unit, s)
	}

	if strings.Contains(number, ".") {
		f, err := strconv.ParseFloat(number, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid byte size %q: %w", s, err)
		}
		return ByteSize(f * float64(multiplier)), nil
	}

	n, err := strconv.ParseUint(number, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid byte size %q: %w", s, err)
	}
	if n != 0 && ByteSize(n)*multiplier/multiplier != ByteSize(n) {
		return 0, fmt.Errorf("byte size %q overflows", s)
	}
	return ByteSize(n) * multiplier, nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (b *ByteSize) UnmarshalText(text []byte) error {
	size, err := ParseByteSize(string(text))
	if err != nil {
		return err
	}
	*b = size
	return nil
}

// MarshalText renders the largest binary unit that divides b exactly, so
// a saved config reads "4Mi" rather than 4194304.
func (b ByteSize) MarshalText() ([]byte, error) {
	for _, u := range canonical {
		if b != 0 && b%u.size == 0 {
			return []byte(strconv.FormatUint(uint64(b/u.size), 10) + u.suffix), nil
		}
	}
	return []byte(strconv.FormatUint(uint64(b), 10)), nil
}

// String returns a human readable rendering such as "4.0 MiB".
func (b ByteSize) String() string {
	return humanize.IBytes(uint64(b))
}

func (b ByteSize) Uint64() uint64 {
	return uint64(b)
}

// Int64 truncates sizes above math.MaxInt64.
func (b ByteSize) Int64() int64 {
	return int64(b)
}
