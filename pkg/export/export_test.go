package export

import (
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sriram-PR/amazon-crawler/pkg/metrics"
	"github.com/Sriram-PR/amazon-crawler/pkg/models"
)

func testLogger() *logrus.Entry {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return logrus.NewEntry(log)
}

func TestFilenameFromURL(t *testing.T) {
	tests := []struct {
		url  string
		want string
	}{
		{"https://www.amazon.com/dp/B0C1H26C46", "dp-B0C1H26C46.json"},
		{"https://www.amazon.com/Best-Sellers-Video-Games/zgbs/videogames/", "Best-Sellers-Video-Games-zgbs-videogames.json"},
		{"https://smile.amazon.de/dp/B0C1H26C46", "smile-amazon-de-dp-B0C1H26C46.json"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FilenameFromURL(tt.url), tt.url)
	}
}

func TestFilenameFromURL_QueryAndLength(t *testing.T) {
	a := FilenameFromURL("https://www.amazon.com/zgbs/videogames?pg=2")
	b := FilenameFromURL("https://www.amazon.com/zgbs/videogames?pg=3")
	assert.NotEqual(t, a, b, "pagination pages must not collide")
	assert.True(t, strings.HasPrefix(a, "zgbs-videogames-"))

	long := FilenameFromURL("https://www.amazon.com/" + strings.Repeat("segment/", 40))
	assert.LessOrEqual(t, len(long), 100+len(".json"))
	assert.True(t, strings.HasSuffix(long, ".json"))
}

func TestJSONExporter_Export(t *testing.T) {
	root := t.TempDir()
	reg := metrics.NewRegistry()
	e := NewJSONExporter(root, reg, testLogger())

	row := models.NewResultRow("asin", "title", "price")
	row.Set("asin", "B0C1H26C46")
	row.Set("title", "Widget")
	row.SetNull("price")

	page := &models.Page{ID: 7, URL: "https://www.amazon.com/dp/B0C1H26C46", Label: "asin"}
	path, err := e.Export(page, row)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "amazon", "json", "asin", "dp-B0C1H26C46.json"), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var decoded []map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	require.Len(t, decoded, 1)
	assert.Equal(t, "B0C1H26C46", decoded[0]["asin"])
	assert.Contains(t, decoded[0], "price")
	assert.Nil(t, decoded[0]["price"])
	assert.Less(t, strings.Index(string(data), `"asin"`), strings.Index(string(data), `"title"`), "column order kept")
	assert.Equal(t, int64(1), reg.Count(metrics.CounterExported))

	// Same content again is not rewritten
	_, err = e.Export(page, row)
	require.NoError(t, err)
	assert.Equal(t, int64(1), reg.Count(metrics.CounterExported))

	row.Set("price", "$9.99")
	_, err = e.Export(page, row)
	require.NoError(t, err)
	assert.Equal(t, int64(2), reg.Count(metrics.CounterExported))
}

func TestJSONExporter_UnlabeledGoesToOther(t *testing.T) {
	e := NewJSONExporter(t.TempDir(), nil, testLogger())
	path := e.PathFor(&models.Page{URL: "https://www.amazon.com/dp/B0C1H26C46"})
	assert.Equal(t, "other", filepath.Base(filepath.Dir(path)))
}

func TestJSONExporter_NilRow(t *testing.T) {
	e := NewJSONExporter(t.TempDir(), nil, testLogger())
	path, err := e.Export(&models.Page{URL: "https://www.amazon.com/dp/B0C1H26C46"}, nil)
	require.NoError(t, err)
	assert.Empty(t, path)
}
