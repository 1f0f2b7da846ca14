package pipeline

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/aluiziolira/go-scrape-catalog/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleRecords() []*models.ProductRecord {
	return []*models.ProductRecord{
		{
			Name:           "White paper cup 20cl",
			PricePerUnit:   models.StringPtr("0.05"),
			PricePerCarton: "50.00",
			UnitsPerCarton: models.StringPtr("1000"),
			PackagingType:  models.StringPtr("carton"),
			DetailURL:      models.StringPtr("https://pali.plus/cup.html?size=20&colour=white"),
			Barcode:        models.StringPtr("3760123456789"),
		},
		{
			Name:           models.UnknownProductName,
			PricePerCarton: "0.00",
		},
	}
}

func TestCSVWriterWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "products.csv")

	writer, err := NewCSVWriter(path)
	require.NoError(t, err)
	require.NoError(t, writer.Write(sampleRecords()))
	require.NoError(t, writer.Validate())
	require.NoError(t, writer.Close())

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"name", "price_per_unit", "price_per_carton", "units_per_carton", "packaging_type", "detail_url", "barcode"}, rows[0])
	assert.Equal(t, "https://pali.plus/cup.html?size=20&colour=white", rows[1][5])
	assert.Equal(t, "3760123456789", rows[1][6])
	assert.Equal(t, []string{models.UnknownProductName, "", "0.00", "", "", "", ""}, rows[2], "absent values are empty cells")
}

func TestJSONWriterWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "products.jsonl")

	writer, err := NewJSONWriter(path)
	require.NoError(t, err)
	require.NoError(t, writer.Write(sampleRecords()))
	require.NoError(t, writer.Close())

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	scanner := bufio.NewScanner(f)
	var lines []map[string]any
	for scanner.Scan() {
		var decoded map[string]any
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &decoded))
		lines = append(lines, decoded)
	}
	require.NoError(t, scanner.Err())
	require.Len(t, lines, 2)
	assert.Nil(t, lines[1]["barcode"])
	assert.Contains(t, lines[1], "price_per_unit", "absent fields are present as null")
}

func TestJSONWriterValidateEmpty(t *testing.T) {
	writer, err := NewJSONWriter(filepath.Join(t.TempDir(), "empty.jsonl"))
	require.NoError(t, err)
	defer writer.Close()

	assert.Error(t, writer.Validate())
}

func TestMultiWriterFileSinks(t *testing.T) {
	dir := t.TempDir()
	csvPath := filepath.Join(dir, "products.csv")
	jsonPath := filepath.Join(dir, "products.json")

	csvWriter, err := NewCSVWriter(csvPath)
	require.NoError(t, err)
	jsonWriter, err := NewJSONWriter(jsonPath)
	require.NoError(t, err)
	writer, err := NewMultiWriter(
		NamedWriter{Name: "csv", Writer: csvWriter},
		NamedWriter{Name: "json", Writer: jsonWriter},
	)
	require.NoError(t, err)
	assert.Equal(t, []string{"csv", "json"}, writer.Sinks())
	require.NoError(t, writer.Write(sampleRecords()))
	require.NoError(t, writer.Validate())
	require.NoError(t, writer.Close())

	for _, path := range []string{csvPath, jsonPath} {
		info, err := os.Stat(path)
		require.NoError(t, err)
		assert.NotZero(t, info.Size(), path)
	}
}

type failingWriter struct {
	memoryWriter
	writeErr, closeErr error
}

func (f *failingWriter) Write(records []*models.ProductRecord) error {
	if f.writeErr != nil {
		return f.writeErr
	}
	return f.memoryWriter.Write(records)
}

func (f *failingWriter) Close() error {
	f.memoryWriter.Close()
	return f.closeErr
}

func TestMultiWriterStopsAtFailingSink(t *testing.T) {
	first := &memoryWriter{}
	broken := &failingWriter{writeErr: errors.New("connection reset")}
	last := &memoryWriter{}

	writer, err := NewMultiWriter(
		NamedWriter{Name: "csv", Writer: first},
		NamedWriter{Name: "postgres", Writer: broken},
		NamedWriter{Name: "json", Writer: last},
	)
	require.NoError(t, err)

	err = writer.Write(sampleRecords())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "postgres write failed")
	assert.Len(t, first.records, 2)
	assert.Empty(t, last.records)
}

func TestMultiWriterClosesEverySink(t *testing.T) {
	first := &failingWriter{closeErr: errors.New("disk full")}
	second := &failingWriter{closeErr: errors.New("pool closed")}
	third := &memoryWriter{}

	writer, err := NewMultiWriter(
		NamedWriter{Name: "csv", Writer: first},
		NamedWriter{Name: "postgres", Writer: second},
		NamedWriter{Name: "json", Writer: third},
	)
	require.NoError(t, err)

	err = writer.Close()
	require.Error(t, err)
	assert.ErrorIs(t, err, first.closeErr)
	assert.ErrorIs(t, err, second.closeErr)
	assert.True(t, first.closed)
	assert.True(t, second.closed)
	assert.True(t, third.closed)
}

func TestMultiWriterValidateJoinsErrors(t *testing.T) {
	writer, err := NewMultiWriter(
		NamedWriter{Name: "csv", Writer: &memoryWriter{records: sampleRecords()}},
		NamedWriter{Name: "postgres", Writer: &memoryWriter{}},
	)
	require.NoError(t, err)

	err = writer.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "postgres validation failed")
	assert.NotContains(t, err.Error(), "csv")
}

func TestNewMultiWriterRejectsEmpty(t *testing.T) {
	_, err := NewMultiWriter()
	assert.Error(t, err)

	_, err = NewMultiWriter(NamedWriter{Name: "csv"})
	assert.Error(t, err)
}
