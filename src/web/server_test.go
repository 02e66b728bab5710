package web

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"OverListing/src/config"
	"OverListing/src/datasource/file"
	"OverListing/src/processor"
	"OverListing/src/render"
	"OverListing/src/storage"

	"github.com/parquet-go/parquet-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

const sampleFile = "../../data/blog_viz.csv"

func newLogger(t *testing.T) *storage.Logger {
	t.Helper()
	logger, err := storage.NewLogger(filepath.Join(t.TempDir(), "app.log"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = logger.Close() })
	return logger
}

func newServer(t *testing.T, load func() (*processor.Dataset, error)) (*Server, *storage.Logger) {
	t.Helper()
	store := processor.NewStore(load)
	_ = store.Reload()
	logger := newLogger(t)
	return NewServer(store, render.DefaultOptions(), logger), logger
}

func sampleServer(t *testing.T) *Server {
	s, _ := newServer(t, func() (*processor.Dataset, error) {
		return processor.Load(sampleFile, file.Options{}, config.DefaultDataConfig())
	})
	return s
}

func get(t *testing.T, h http.Handler, target string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func TestSelection(t *testing.T) {
	ds, err := processor.Load(sampleFile, file.Options{}, config.DefaultDataConfig())
	require.NoError(t, err)

	assert.Equal(t, []string{"AB1", "AB2"}, Selection(url.Values{}, ds))
	assert.Equal(t, []string{"AB2"}, Selection(url.Values{"postcode": {"AB2"}}, ds))
	assert.Empty(t, Selection(url.Values{"submitted": {"1"}}, ds))
	assert.Equal(t, []string{"AB1"}, Selection(url.Values{"submitted": {"1"}, "postcode": {"AB1"}}, ds))
}

func TestIndexDefaultSelectsAll(t *testing.T) {
	rec := get(t, sampleServer(t).Handler(), "/")
	require.Equal(t, http.StatusOK, rec.Code)

	body := rec.Body.String()
	assert.Contains(t, body, "Filter Options")
	assert.Contains(t, body, `<option value="AB1" selected>AB1</option>`)
	assert.Contains(t, body, `<option value="AB2" selected>AB2</option>`)
	assert.Contains(t, body, "vegaEmbed")
	assert.Contains(t, body, "6 rows, 2 postcodes, 2020-2022")
}

func TestIndexEmptySelection(t *testing.T) {
	rec := get(t, sampleServer(t).Handler(), "/?submitted=1")
	require.Equal(t, http.StatusOK, rec.Code)

	body := rec.Body.String()
	assert.Contains(t, body, render.NoSelectionMessage)
	assert.Contains(t, body, `<option value="AB1">AB1</option>`)
	assert.NotContains(t, body, "vegaEmbed")
}

func TestSpecJSON(t *testing.T) {
	rec := get(t, sampleServer(t).Handler(), "/spec.json?submitted=1&postcode=AB1")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var spec render.Spec
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &spec))
	assert.Equal(t, []string{"Average % Over Listing Price"}, spec.Repeat.Row)
	require.Len(t, spec.Data.Values, 3)
	for _, row := range spec.Data.Values {
		assert.Equal(t, "AB1", row["Postcode"])
	}
	require.NotNil(t, spec.Spec.Encoding.Y.Scale)
	// 均值 1.0, -0.99, 2.35
	assert.InDelta(t, -0.99*1.1, spec.Spec.Encoding.Y.Scale.Domain[0], 1e-9)
	assert.InDelta(t, 2.35*1.1, spec.Spec.Encoding.Y.Scale.Domain[1], 1e-9)
}

func TestSpecJSONMessages(t *testing.T) {
	h := sampleServer(t).Handler()

	var body map[string]string
	rec := get(t, h, "/spec.json?submitted=1")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, render.NoSelectionMessage, body["message"])

	rec = get(t, h, "/spec.json?postcode=ZZ9")
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, render.NoDataMessage, body["message"])
}

func TestChartPNG(t *testing.T) {
	h := sampleServer(t).Handler()

	rec := get(t, h, "/chart.png")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
	assert.True(t, bytes.HasPrefix(rec.Body.Bytes(), []byte("\x89PNG")))

	rec = get(t, h, "/chart.png?submitted=1")
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, rec.Body.String(), render.NoSelectionMessage)
}

func TestExportXLSX(t *testing.T) {
	rec := get(t, sampleServer(t).Handler(), "/export.xlsx?postcode=AB2")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "over_listing.xlsx")

	f, err := excelize.OpenReader(rec.Body)
	require.NoError(t, err)
	defer f.Close()
	rows, err := f.GetRows("Sheet1")
	require.NoError(t, err)
	require.Len(t, rows, 4)
	assert.Equal(t, []string{"Year", "Postcode", "Sample", "Average % Over Listing Price"}, rows[0])
	assert.Equal(t, []string{"2020-01-01", "AB2", "20", "2.68"}, rows[1])
}

func TestExportParquet(t *testing.T) {
	rec := get(t, sampleServer(t).Handler(), "/export.parquet?postcode=AB1")
	require.Equal(t, http.StatusOK, rec.Code)

	data := rec.Body.Bytes()
	points, err := parquet.Read[processor.Point](bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)
	require.Len(t, points, 3)
	assert.Equal(t, processor.Point{
		Year: 2020, Postcode: "AB1", Sample: 12,
		Series: "Average % Over Listing Price", Value: 1.0,
	}, points[0])
}

func TestLoadFailureShowsNoData(t *testing.T) {
	s, _ := newServer(t, func() (*processor.Dataset, error) {
		return nil, errors.New("data/blog_viz.csv: malformed value")
	})
	h := s.Handler()

	rec := get(t, h, "/")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "malformed value")
	assert.NotContains(t, rec.Body.String(), "vegaEmbed")

	for _, target := range []string{"/spec.json", "/chart.png", "/export.xlsx", "/export.parquet"} {
		rec = get(t, h, target)
		assert.Equal(t, http.StatusInternalServerError, rec.Code, target)
	}

	rec = get(t, h, "/healthz")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestHealthz(t *testing.T) {
	rec := get(t, sampleServer(t).Handler(), "/healthz")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.HasPrefix(rec.Body.String(), "ok: 6 rows"))
}

func TestLogsStream(t *testing.T) {
	s, logger := newServer(t, func() (*processor.Dataset, error) {
		return processor.Load(sampleFile, file.Options{}, config.DefaultDataConfig())
	})
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/logs", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// 响应头返回时已完成订阅
	logger.Info("reload done")

	line, err := bufio.NewReader(resp.Body).ReadString('\n')
	require.NoError(t, err)
	assert.Contains(t, line, "INFO: reload done")
}
