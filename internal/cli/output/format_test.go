package output

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFormat(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input   string
		want    Format
		wantErr bool
	}{
		{input: "table", want: FormatTable},
		{input: "", want: FormatTable},
		{input: "  table  ", want: FormatTable},
		{input: "JSON", want: FormatJSON},
		{input: "yaml", want: FormatYAML},
		{input: "yml", want: FormatYAML},
		{input: "xml", wantErr: true},
	}

	for _, tt := range tests {
		got, err := ParseFormat(tt.input)
		if tt.wantErr {
			assert.Error(t, err, tt.input)
			continue
		}
		require.NoError(t, err, tt.input)
		assert.Equal(t, tt.want, got, tt.input)
		assert.Equal(t, string(tt.want), got.String())
	}
}

// ============================================================================
// Status messages
// ============================================================================

func TestPrinterMessages(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	printer := NewPrinter(&buf, FormatTable, false)
	assert.Equal(t, FormatTable, printer.Format())
	assert.Same(t, &buf, printer.Writer())

	printer.Success("exported")
	printer.Error("failed")
	printer.Warning("session expired")
	printer.Printf("%d records\n", 3)
	printer.Println()

	assert.Equal(t, "exported\nfailed\nsession expired\n3 records\n\n", buf.String())
}

func TestPrinterColor(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	printer := NewPrinter(&buf, FormatTable, true)
	printer.Warning("careful")
	printer.Success("done")
	assert.Equal(t, "\033[33mcareful\033[0m\n\033[32mdone\033[0m\n", buf.String())
}

// ============================================================================
// Print
// ============================================================================

func TestPrinterPrintFallsBackToJSON(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	require.NoError(t, NewPrinter(&buf, FormatTable, false).Print(map[string]int{"records": 3}))
	assert.JSONEq(t, `{"records": 3}`, buf.String())
}

func TestPrinterPrintTable(t *testing.T) {
	t.Parallel()

	table := NewTableData("HANDLE", "KIND")
	table.AddRow("1", "csv")

	var buf bytes.Buffer
	require.NoError(t, NewPrinter(&buf, FormatTable, false).Print(table))
	assert.Contains(t, buf.String(), "HANDLE")
	assert.Contains(t, buf.String(), "csv")
}

func TestPrinterPrintYAML(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	require.NoError(t, NewPrinter(&buf, FormatYAML, false).Print(map[string]int{"entities": 2}))
	assert.Equal(t, "entities: 2\n", buf.String())
}

func TestPrinterPrintUnknownFormat(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	assert.Error(t, NewPrinter(&buf, Format("xml"), false).Print(1))
}
