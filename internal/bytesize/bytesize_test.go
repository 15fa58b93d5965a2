package bytesize

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestParseByteSize(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		input   string
		want    ByteSize
		wantErr bool
	}{
		{"plain zero", "0", 0, false},
		{"plain bytes", "1024", 1024, false},
		{"bytes suffix", "512B", 512, false},
		{"kibibytes", "1Ki", KiB, false},
		{"kibibytes long", "1KiB", KiB, false},
		{"mebibytes", "4Mi", 4 * MiB, false},
		{"gibibytes", "1Gi", GiB, false},
		{"tebibytes", "2TiB", 2 * TiB, false},
		{"kilobytes", "1K", 1000, false},
		{"megabytes", "100MB", 100 * MB, false},
		{"gigabytes", "1G", GB, false},
		{"case insensitive", "8mi", 8 * MiB, false},
		{"surrounding space", "  16Mi  ", 16 * MiB, false},
		{"space before unit", "1 Gi", GiB, false},
		{"fraction", "1.5Mi", ByteSize(1.5 * float64(MiB)), false},
		{"empty", "", 0, true},
		{"whitespace", "   ", 0, true},
		{"unknown unit", "1Xi", 0, true},
		{"negative", "-1Gi", 0, true},
		{"no number", "Gi", 0, true},
		{"overflow", "99999999999Ti", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := ParseByteSize(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMarshalText(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   ByteSize
		want string
	}{
		{0, "0"},
		{1000, "1000"},
		{KiB, "1Ki"},
		{4 * MiB, "4Mi"},
		{1536 * KiB, "1536Ki"},
		{256 * MiB, "256Mi"},
		{3 * GiB, "3Gi"},
		{TiB, "1Ti"},
	}

	for _, tt := range tests {
		text, err := tt.in.MarshalText()
		require.NoError(t, err)
		assert.Equal(t, tt.want, string(text))

		var back ByteSize
		require.NoError(t, back.UnmarshalText(text))
		assert.Equal(t, tt.in, back)
	}
}

func TestString(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "4.0 MiB", (4 * MiB).String())
	assert.Equal(t, "512 B", ByteSize(512).String())
}

func TestEncoders(t *testing.T) {
	t.Parallel()

	type limits struct {
		Max ByteSize `json:"max" yaml:"max"`
	}

	data, err := json.Marshal(limits{Max: 8 * MiB})
	require.NoError(t, err)
	assert.JSONEq(t, `{"max":"8Mi"}`, string(data))

	var fromJSON limits
	require.NoError(t, json.Unmarshal([]byte(`{"max":"2Gi"}`), &fromJSON))
	assert.Equal(t, 2*GiB, fromJSON.Max)

	out, err := yaml.Marshal(limits{Max: 64 * KiB})
	require.NoError(t, err)
	assert.Equal(t, "max: 64Ki\n", string(out))

	var fromYAML limits
	require.NoError(t, yaml.Unmarshal([]byte("max: 128Mi\n"), &fromYAML))
	assert.Equal(t, 128*MiB, fromYAML.Max)
}
