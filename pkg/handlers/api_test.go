package handlers

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kbase/pkg/config"
	"kbase/pkg/services"
)

func newTestServer(t *testing.T, adminPassword string) (*gin.Engine, *services.Store) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dir := t.TempDir()
	cfg := &config.Config{
		DBFile:        filepath.Join(dir, "data.db"),
		FilesFolder:   filepath.Join(dir, "files"),
		AdminPassword: adminPassword,
		SessionSecret: "test-secret",
		CorruptPolicy: config.CorruptPreserve,
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := services.NewStore(cfg, logger)
	store.Open()
	return NewRouter(store, cfg, logger), store
}

func doJSON(r *gin.Engine, method, path string, body any, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != nil {
		data, _ := json.Marshal(body)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for _, c := range cookies {
		req.AddCookie(c)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestGetSections(t *testing.T) {
	r, store := newTestServer(t, "")

	w := doJSON(r, http.MethodGet, "/api/sections", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, "[]", w.Body.String())

	store.AddSection("Networks")
	store.AddCategory("Networks", "TCP")

	w = doJSON(r, http.MethodGet, "/api/sections", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[{"name":"Networks","categories":["TCP"]}]`, w.Body.String())
}

func TestContentSaveAndGet(t *testing.T) {
	r, _ := newTestServer(t, "")

	w := doJSON(r, http.MethodPost, "/api/save_content", gin.H{"key": "Главная", "content": "<p>hi</p>"})
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(r, http.MethodGet, "/api/content?key="+url.QueryEscape("Главная"), nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"key":"Главная","content":"<p>hi</p>"}`, w.Body.String())
}

func TestContentMissingParameters(t *testing.T) {
	r, _ := newTestServer(t, "")

	w := doJSON(r, http.MethodGet, "/api/content", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(r, http.MethodPost, "/api/save_content", gin.H{"key": "Главная"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(r, http.MethodPost, "/api/save_content", gin.H{"content": "x"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSaveContentAcceptsEmptyString(t *testing.T) {
	r, store := newTestServer(t, "")
	store.SaveContent("k", "<p>old</p>")

	w := doJSON(r, http.MethodPost, "/api/save_content", gin.H{"key": "k", "content": ""})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "", store.LoadContent("k"))
}

func TestContentUnknownKeyIsEmpty(t *testing.T) {
	r, _ := newTestServer(t, "")

	w := doJSON(r, http.MethodGet, "/api/content?key=nowhere", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"key":"nowhere","content":""}`, w.Body.String())
}

func uploadFile(t *testing.T, r *gin.Engine, key, name string, data []byte) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("key", key))
	fw, err := mw.CreateFormFile("file", name)
	require.NoError(t, err)
	_, err = fw.Write(data)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/upload_file", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestUploadListAndDownload(t *testing.T) {
	r, _ := newTestServer(t, "")

	w := uploadFile(t, r, "Главная", "a.txt", []byte("first"))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"a.txt"`)

	// same name again gets the collision suffix
	w = uploadFile(t, r, "Главная", "a.txt", []byte("second"))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"a_1.txt"`)

	w = doJSON(r, http.MethodGet, "/api/files?key="+url.QueryEscape("Главная"), nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"files":["a.txt","a_1.txt"]}`, w.Body.String())

	w = doJSON(r, http.MethodGet, "/api/file?key="+url.QueryEscape("Главная")+"&name=a_1.txt", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []byte("second"), w.Body.Bytes())
	assert.NotEmpty(t, w.Header().Get("Content-Type"))
}

func TestUploadMissingParameters(t *testing.T) {
	r, _ := newTestServer(t, "")

	w := doJSON(r, http.MethodPost, "/api/upload_file", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestDownloadMissingFile(t *testing.T) {
	r, _ := newTestServer(t, "")

	w := doJSON(r, http.MethodGet, "/api/file?key="+url.QueryEscape("Главная")+"&name=ghost.txt", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSectionAndCategoryManagement(t *testing.T) {
	r, store := newTestServer(t, "")

	w := doJSON(r, http.MethodPost, "/api/sections", gin.H{"name": "Networks"})
	require.Equal(t, http.StatusOK, w.Code)
	w = doJSON(r, http.MethodPost, "/api/sections", gin.H{"name": "Networks"})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = doJSON(r, http.MethodPost, "/api/categories", gin.H{"section": "Networks", "name": "TCP"})
	require.Equal(t, http.StatusOK, w.Code)
	w = doJSON(r, http.MethodPost, "/api/categories", gin.H{"section": "Missing", "name": "TCP"})
	assert.Equal(t, http.StatusConflict, w.Code)

	store.SaveContent("Networks/TCP", "<p>x</p>")
	w = doJSON(r, http.MethodDelete, "/api/sections/Networks/categories/TCP", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, store.LoadContent("Networks/TCP"))

	w = doJSON(r, http.MethodDelete, "/api/sections/Networks", nil)
	require.Equal(t, http.StatusOK, w.Code)
	w = doJSON(r, http.MethodDelete, "/api/sections/Networks", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSearchEndpoint(t *testing.T) {
	r, store := newTestServer(t, "")
	store.SaveContent("Главная", "<p>Hello World</p>")
	store.SaveContent("Sec/Cat", "<p>no match</p>")

	w := doJSON(r, http.MethodGet, "/api/search?q=hello", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Query   string           `json:"query"`
		Results []services.Match `json:"results"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Results, 1)
	assert.Equal(t, "Главная", resp.Results[0].Key)
	assert.Contains(t, resp.Results[0].Snippet, "Hello World")

	w = doJSON(r, http.MethodGet, "/api/search", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAdminGate(t *testing.T) {
	r, _ := newTestServer(t, "123")

	// mutating routes are closed without a session
	w := doJSON(r, http.MethodPost, "/api/save_content", gin.H{"key": "k", "content": "x"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = doJSON(r, http.MethodPost, "/api/login", gin.H{"password": "wrong"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = doJSON(r, http.MethodPost, "/api/login", gin.H{"password": "123"})
	require.Equal(t, http.StatusOK, w.Code)
	cookies := w.Result().Cookies()
	require.NotEmpty(t, cookies)

	w = doJSON(r, http.MethodPost, "/api/save_content", gin.H{"key": "k", "content": "x"}, cookies...)
	assert.Equal(t, http.StatusOK, w.Code)

	// reads stay open
	w = doJSON(r, http.MethodGet, "/api/content?key=k", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.Contains(w.Body.String(), "x"))
}

func TestAdminGateOffByDefault(t *testing.T) {
	r, _ := newTestServer(t, "")

	w := doJSON(r, http.MethodPost, "/api/save_content", gin.H{"key": "k", "content": "x"})
	assert.Equal(t, http.StatusOK, w.Code)
}
