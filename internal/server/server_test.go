package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/klauspost/compress/zip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/agentic-research/genframe/api"
	"github.com/agentic-research/genframe/internal/archive"
	"github.com/agentic-research/genframe/internal/graph"
	"github.com/agentic-research/genframe/internal/graph/graphtest"
	"github.com/agentic-research/genframe/internal/report"
	"github.com/agentic-research/genframe/internal/views"
)

type fixture struct {
	srv     *Server
	graph   *graphtest.Factory
	handler http.Handler
	root    string
	staging string
}

func newFixture(t *testing.T, results map[graph.Query][]graph.Record) *fixture {
	t.Helper()
	dir := t.TempDir()
	f := &fixture{
		graph:   graphtest.New(results),
		root:    filepath.Join(dir, "Uploads"),
		staging: filepath.Join(dir, "uploads"),
	}
	f.srv = &Server{
		Graph:          f.graph,
		Views:          views.NewFileStore(filepath.Join(dir, "Views.json"), nil),
		Stager:         archive.Stager{Dir: f.staging},
		Archives:       &archive.Ingestor{Root: f.root},
		MaxUploadBytes: 1 << 20,
		now:            func() time.Time { return time.Date(2024, 3, 1, 12, 30, 5, 123_000_000, time.FixedZone("X", 3600)) },
	}
	f.handler = f.srv.Handler()
	return f
}

func (f *fixture) do(t *testing.T, method, target string, body []byte, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) api.Error {
	t.Helper()
	var e api.Error
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &e), rec.Body.String())
	return e
}

func reportResults() map[graph.Query][]graph.Record {
	return map[graph.Query][]graph.Record{
		graph.TableToPrograms: {
			{"tableName": "CUST", "programList": []any{"PGM1"}, "programCount": map[string]any{"low": int64(1), "high": int64(0)}},
		},
		graph.ProgramWise: {
			{"Program": "PGM1", "Nested_Pgm": []any{"A", "B"}, "Subroutine": []any{"X"}, "COPYBOOK": []any{}, "Input_Output_File": []any{"F1", "F2", "F3"}},
		},
	}
}

func TestGreetingAndHealth(t *testing.T) {
	f := newFixture(t, nil)

	rec := f.do(t, http.MethodGet, "/", nil, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Hi, Welcome to COBOL Utility API (Secure)", rec.Body.String())

	rec = f.do(t, http.MethodGet, "/health", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok","timestamp":"2024-03-01T11:30:05.123Z"}`, rec.Body.String())
}

func TestCORS(t *testing.T) {
	f := newFixture(t, nil)
	req := httptest.NewRequest(http.MethodOptions, "/save-views", nil)
	req.Header.Set("Origin", "https://frontend.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)

	assert.Equal(t, "https://frontend.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestReport(t *testing.T) {
	t.Run("workbook", func(t *testing.T) {
		f := newFixture(t, reportResults())
		rec := f.do(t, http.MethodGet, "/report", nil, "")
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.Equal(t, report.ContentType, rec.Header().Get("Content-Type"))
		assert.Equal(t, "attachment; filename=COBOL_Analysis.xlsx", rec.Header().Get("Content-Disposition"))

		wb, err := excelize.OpenReader(rec.Body)
		require.NoError(t, err)
		defer func() { _ = wb.Close() }()
		assert.Equal(t, []string{report.SheetTableToPrograms, report.SheetProgramAnalysis}, wb.GetSheetList())

		rows, err := wb.GetRows(report.SheetProgramAnalysis)
		require.NoError(t, err)
		require.Len(t, rows, 4)
		assert.Equal(t, []string{"PGM1", "A", "X", "", "F1"}, rows[1])
		assert.Equal(t, "F3", rows[3][4])
		assert.Empty(t, rows[3][0])

		assert.Equal(t, f.graph.Opened(), f.graph.Closed())
	})

	t.Run("no data", func(t *testing.T) {
		f := newFixture(t, nil)
		rec := f.do(t, http.MethodGet, "/report", nil, "")
		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.JSONEq(t, `{"message":"No data found to generate the report."}`, rec.Body.String())
	})

	t.Run("upstream failure", func(t *testing.T) {
		f := newFixture(t, reportResults())
		f.graph.Errors[graph.JCLToProgram] = errors.New("ServiceUnavailable")
		rec := f.do(t, http.MethodGet, "/report", nil, "")
		require.Equal(t, http.StatusInternalServerError, rec.Code)
		e := decodeError(t, rec)
		assert.Equal(t, "upstream", e.Code)
		assert.Equal(t, "Failed to generate report", e.Error)
		assert.Contains(t, e.Details, "ServiceUnavailable")
	})
}

func TestListings(t *testing.T) {
	f := newFixture(t, map[graph.Query][]graph.Record{
		graph.JCLNodes: {
			{"j": map[string]any{"name": "JOB1"}, "p": map[string]any{"program_name": "PGM1"}},
		},
		graph.ProgramPaths: {
			{"nodes(path)": []any{
				map[string]any{"program_name": "PGM1", "type": "PROGRAM", "called_programs": []any{"PGM2"}},
				map[string]any{"name": "COPY1", "type": "COPYBOOK"},
			}},
		},
	})

	rec := f.do(t, http.MethodGet, "/jclNodes", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[{"program":"PGM1","jclnode":"JOB1"}]`, rec.Body.String())

	rec = f.do(t, http.MethodGet, "/allPrograms", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[[{"program_name":"PGM1","type":"PROGRAM","called_programs":["PGM2"]},{"name":"COPY1","type":"COPYBOOK"}]]`, rec.Body.String())

	f.graph.Errors[graph.JCLNodes] = errors.New("boom")
	rec = f.do(t, http.MethodGet, "/jclNodes", nil, "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "Failed to fetch JCL nodes", decodeError(t, rec).Error)
}

func TestListingsEmpty(t *testing.T) {
	f := newFixture(t, nil)
	rec := f.do(t, http.MethodGet, "/allPrograms", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())
}

func TestViews(t *testing.T) {
	f := newFixture(t, nil)

	rec := f.do(t, http.MethodPost, "/save-views", []byte(`[{"id":"1","layout":{"x":1}},{"id":2}]`), "application/json")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.JSONEq(t, `[{"id":"1","layout":{"x":1}},{"id":2}]`, rec.Body.String())

	rec = f.do(t, http.MethodPost, "/save-views", []byte(`[{"id":"1"},{"id":"3"}]`), "application/json")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[{"id":"1","layout":{"x":1}},{"id":2},{"id":"3"}]`, rec.Body.String())

	rec = f.do(t, http.MethodDelete, "/delete/2", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[{"id":"1","layout":{"x":1}},{"id":"3"}]`, rec.Body.String())

	rec = f.do(t, http.MethodDelete, "/delete/2", nil, "")
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not_found", decodeError(t, rec).Code)
}

func TestDeleteViewEscapedID(t *testing.T) {
	f := newFixture(t, nil)
	rec := f.do(t, http.MethodPost, "/save-views", []byte(`[{"id":"team/board"},{"id":"a b"},{"id":"50%"},{"id":12345678901234567890}]`), "application/json")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	for _, id := range []string{"team/board", "a b", "50%", "12345678901234567890"} {
		rec = f.do(t, http.MethodDelete, "/delete/"+url.PathEscape(id), nil, "")
		assert.Equal(t, http.StatusOK, rec.Code, "%s: %s", id, rec.Body.String())
	}
	assert.JSONEq(t, `[]`, rec.Body.String())
}

func TestSaveViewsValidation(t *testing.T) {
	f := newFixture(t, nil)
	for _, body := range []string{`{"id":1}`, `not json`, `[{"name":"no id"}]`} {
		rec := f.do(t, http.MethodPost, "/save-views", []byte(body), "application/json")
		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
		assert.Equal(t, "validation", decodeError(t, rec).Code, body)
	}

	_, err := os.Stat(filepath.Join(filepath.Dir(f.staging), "Views.json"))
	assert.True(t, os.IsNotExist(err), "rejected requests never write")
}

func TestSaveViewsCorruptStore(t *testing.T) {
	f := newFixture(t, nil)
	require.NoError(t, os.WriteFile(filepath.Join(filepath.Dir(f.staging), "Views.json"), []byte(`{}`), 0o644))

	rec := f.do(t, http.MethodPost, "/save-views", []byte(`[{"id":"1"}]`), "application/json")
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "internal", decodeError(t, rec).Code)
}

func zipBytes(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, body := range files {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(body))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func multipartBody(t *testing.T, field, filename string, content []byte) ([]byte, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("note", "ignored"))
	if field != "" {
		w, err := mw.CreateFormFile(field, filename)
		require.NoError(t, err)
		_, err = w.Write(content)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	return buf.Bytes(), mw.FormDataContentType()
}

func stagedFiles(t *testing.T, dir string) []os.DirEntry {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil
	}
	require.NoError(t, err)
	return entries
}

func TestUpload(t *testing.T) {
	t.Run("extracts under the sanitized name", func(t *testing.T) {
		f := newFixture(t, nil)
		body, ct := multipartBody(t, "file", "../../evil.zip", zipBytes(t, map[string]string{"src/PGM1.cbl": "PROCEDURE DIVISION."}))

		rec := f.do(t, http.MethodPost, "/upload", body, ct)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var res api.UploadResult
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
		assert.Equal(t, "File uploaded and extracted successfully", res.Message)

		absRoot, err := filepath.Abs(f.root)
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(absRoot, "evil"), res.ExtractDir)

		data, err := os.ReadFile(filepath.Join(res.ExtractDir, "src", "PGM1.cbl"))
		require.NoError(t, err)
		assert.Equal(t, "PROCEDURE DIVISION.", string(data))
		assert.Empty(t, stagedFiles(t, f.staging), "staged upload removed")
	})

	t.Run("no file", func(t *testing.T) {
		f := newFixture(t, nil)
		body, ct := multipartBody(t, "", "", nil)
		rec := f.do(t, http.MethodPost, "/upload", body, ct)
		require.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "No file uploaded", decodeError(t, rec).Error)

		rec = f.do(t, http.MethodPost, "/upload", []byte(`{}`), "application/json")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("unusable filename", func(t *testing.T) {
		f := newFixture(t, nil)
		body, ct := multipartBody(t, "file", "..", zipBytes(t, map[string]string{"a": "b"}))
		rec := f.do(t, http.MethodPost, "/upload", body, ct)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Empty(t, stagedFiles(t, f.staging))
	})

	t.Run("corrupt archive", func(t *testing.T) {
		f := newFixture(t, nil)
		body, ct := multipartBody(t, "file", "code.zip", []byte("not a zip"))
		rec := f.do(t, http.MethodPost, "/upload", body, ct)
		require.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.Equal(t, "Failed to extract the file", decodeError(t, rec).Error)
		assert.Empty(t, stagedFiles(t, f.staging), "staged upload removed on failure")
	})

	t.Run("too large", func(t *testing.T) {
		f := newFixture(t, nil)
		f.srv.MaxUploadBytes = 512
		body, ct := multipartBody(t, "file", "big.zip", []byte(strings.Repeat("x", 4096)))
		rec := f.do(t, http.MethodPost, "/upload", body, ct)
		require.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
		assert.Equal(t, "payload_too_large", decodeError(t, rec).Code)
		assert.Empty(t, stagedFiles(t, f.staging))
	})

	t.Run("expands too large", func(t *testing.T) {
		f := newFixture(t, nil)
		f.srv.Archives.MaxBytes = 64
		body, ct := multipartBody(t, "file", "bomb.zip", zipBytes(t, map[string]string{"big.txt": strings.Repeat("0", 4096)}))
		rec := f.do(t, http.MethodPost, "/upload", body, ct)
		require.Equal(t, http.StatusRequestEntityTooLarge, rec.Code, rec.Body.String())
		assert.Equal(t, "payload_too_large", decodeError(t, rec).Code)
		assert.Empty(t, stagedFiles(t, f.staging))
	})
}

func TestRecoverer(t *testing.T) {
	f := newFixture(t, nil)
	f.srv.Views = nil
	rec := f.do(t, http.MethodDelete, "/delete/1", nil, "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
