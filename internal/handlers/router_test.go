package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/png"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/snappic/server/internal/models"
	"github.com/snappic/server/internal/repository"
	"github.com/snappic/server/internal/services"
	"github.com/snappic/server/internal/web"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	dir := t.TempDir()

	db, err := repository.NewSQLiteDB(filepath.Join(dir, "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	storage, err := services.NewPhotoStorageService(filepath.Join(dir, "uploads"), []string{".png", ".jpg", ".jpeg", ".webp"}, 5)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	hub := services.NewWebSocketHub()
	go hub.Run(ctx)

	gallery := services.NewGalleryService(
		repository.NewPhotoRepository(db),
		storage,
		services.NewImageService(0),
		services.NewHashService(),
		hub,
		nil,
		services.GalleryConfig{
			Lifetime:         5 * time.Second,
			Fadeout:          10 * time.Second,
			MaxImages:        10,
			MaxCommentLength: 100,
		},
	)

	tmpl, err := web.Templates()
	require.NoError(t, err)

	srv := httptest.NewServer(NewRouter(RouterDeps{
		Gallery:        gallery,
		Storage:        storage,
		Hub:            hub,
		Templates:      tmpl,
		Static:         web.Static(),
		OpenAPI:        web.OpenAPI(),
		PollIntervalMs: 2000,
	}))
	t.Cleanup(srv.Close)
	return srv
}

func pngBytes(t *testing.T, w int) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewGray(image.Rect(0, 0, w, 8))))
	return buf.Bytes()
}

type formPart struct {
	field    string
	filename string
	data     []byte
	isFile   bool
}

func multipartBody(t *testing.T, parts ...formPart) (io.Reader, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for _, p := range parts {
		if p.isFile {
			fw, err := mw.CreateFormFile(p.field, p.filename)
			require.NoError(t, err)
			fw.Write(p.data)
		} else {
			require.NoError(t, mw.WriteField(p.field, string(p.data)))
		}
	}
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func postUpload(t *testing.T, srv *httptest.Server, accept string, parts ...formPart) *http.Response {
	t.Helper()
	body, contentType := multipartBody(t, parts...)
	req, err := http.NewRequest(http.MethodPost, srv.URL+"/upload", body)
	require.NoError(t, err)
	req.Header.Set("Content-Type", contentType)
	if accept != "" {
		req.Header.Set("Accept", accept)
	}

	client := &http.Client{CheckRedirect: func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}}
	resp, err := client.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(data)
}

func listImages(t *testing.T, srv *httptest.Server) []models.GalleryImage {
	t.Helper()
	resp, err := http.Get(srv.URL + "/api/images")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	var images []models.GalleryImage
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&images))
	return images
}

func TestUpload(t *testing.T) {
	t.Run("redirects to the gallery and lists the photo", func(t *testing.T) {
		srv := setupTestServer(t)
		data := pngBytes(t, 10)

		resp := postUpload(t, srv, "",
			formPart{field: "image", filename: "me.png", data: data, isFile: true},
			formPart{field: "comment", data: []byte("hello there")},
		)
		assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
		assert.Equal(t, "/gallery", resp.Header.Get("Location"))

		images := listImages(t, srv)
		require.Len(t, images, 1)
		assert.Equal(t, "hello there", images[0].Comment)
		assert.Equal(t, 5.0, images[0].Lifetime)
		assert.Equal(t, 10.0, images[0].FadeoutDuration)

		img, err := http.Get(srv.URL + "/uploads/" + images[0].Filename)
		require.NoError(t, err)
		defer img.Body.Close()
		assert.Equal(t, http.StatusOK, img.StatusCode)
		assert.Equal(t, string(data), readBody(t, img))
	})

	t.Run("returns JSON when asked", func(t *testing.T) {
		srv := setupTestServer(t)

		resp := postUpload(t, srv, "application/json",
			formPart{field: "image", filename: "me.png", data: pngBytes(t, 12), isFile: true},
		)
		require.Equal(t, http.StatusCreated, resp.StatusCode)

		var result models.UploadResult
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&result))
		assert.NotEmpty(t, result.ID)
		assert.Equal(t, result.ID+".png", result.Filename)
		assert.False(t, result.SharedFile)
	})

	t.Run("same image twice keeps both captions", func(t *testing.T) {
		srv := setupTestServer(t)
		data := pngBytes(t, 14)

		for _, comment := range []string{"first", "second"} {
			resp := postUpload(t, srv, "",
				formPart{field: "image", filename: "me.png", data: data, isFile: true},
				formPart{field: "comment", data: []byte(comment)},
			)
			assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
		}

		images := listImages(t, srv)
		require.Len(t, images, 2)
		assert.NotEqual(t, images[0].ID, images[1].ID)
		assert.ElementsMatch(t, []string{"first", "second"}, []string{images[0].Comment, images[1].Comment})
	})

	t.Run("validation errors are plain text", func(t *testing.T) {
		srv := setupTestServer(t)
		data := pngBytes(t, 10)

		cases := []struct {
			name  string
			parts []formPart
			want  string
		}{
			{"missing image field", []formPart{{field: "comment", data: []byte("x")}}, "No image part"},
			{"empty file input", []formPart{{field: "image", filename: "", data: nil, isFile: true}}, "No selected file"},
			{"comment too long", []formPart{
				{field: "image", filename: "a.png", data: data, isFile: true},
				{field: "comment", data: []byte(strings.Repeat("c", 101))},
			}, "Comment is too long"},
			{"wrong type", []formPart{{field: "image", filename: "a.gif", data: data, isFile: true}}, "Invalid file type"},
			{"too large", []formPart{{field: "image", filename: "a.png", data: make([]byte, 5*1024*1024+1), isFile: true}}, "File is too large"},
		}

		for _, c := range cases {
			t.Run(c.name, func(t *testing.T) {
				resp := postUpload(t, srv, "", c.parts...)
				assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
				assert.Equal(t, c.want, readBody(t, resp))
			})
		}

		assert.Empty(t, listImages(t, srv))
	})

	t.Run("not multipart", func(t *testing.T) {
		srv := setupTestServer(t)

		resp, err := http.Post(srv.URL+"/upload", "text/plain", strings.NewReader("hi"))
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Equal(t, "No image part", readBody(t, resp))
	})
}

func TestListImages_Empty(t *testing.T) {
	srv := setupTestServer(t)

	resp, err := http.Get(srv.URL + "/api/images")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "[]", strings.TrimSpace(readBody(t, resp)))
}

func TestServeUpload_NotFound(t *testing.T) {
	srv := setupTestServer(t)

	for _, path := range []string{"/uploads/missing.png", "/uploads/..%2Ftest.db"} {
		resp, err := http.Get(srv.URL + path)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusNotFound, resp.StatusCode, path)
	}
}

func TestPages(t *testing.T) {
	srv := setupTestServer(t)
	postUpload(t, srv, "",
		formPart{field: "image", filename: "a.png", data: pngBytes(t, 9), isFile: true},
		formPart{field: "comment", data: []byte("<b>bold</b>")},
	)

	t.Run("upload page", func(t *testing.T) {
		resp, err := http.Get(srv.URL + "/")
		require.NoError(t, err)
		defer resp.Body.Close()
		body := readBody(t, resp)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Contains(t, body, `capture="environment"`)
		assert.Contains(t, body, "/static/script.js")
	})

	t.Run("gallery page escapes captions", func(t *testing.T) {
		resp, err := http.Get(srv.URL + "/gallery")
		require.NoError(t, err)
		defer resp.Body.Close()
		body := readBody(t, resp)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Contains(t, body, "&lt;b&gt;bold&lt;/b&gt;")
		assert.NotContains(t, body, "<b>bold</b>")
	})

	t.Run("static assets", func(t *testing.T) {
		for _, name := range []string{"sw.js", "manifest.json", "style.css", "script.js"} {
			resp, err := http.Get(srv.URL + "/static/" + name)
			require.NoError(t, err)
			resp.Body.Close()
			assert.Equal(t, http.StatusOK, resp.StatusCode, name)
		}
	})
}

func TestHealthAndVersion(t *testing.T) {
	srv := setupTestServer(t)

	for _, path := range []string{"/health", "/api/health"} {
		resp, err := http.Get(srv.URL + path)
		require.NoError(t, err)

		var health models.HealthResponse
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&health))
		resp.Body.Close()
		assert.Equal(t, "healthy", health.Status)
		assert.Zero(t, health.Photos)
	}

	resp, err := http.Get(srv.URL + "/api/version")
	require.NoError(t, err)
	defer resp.Body.Close()
	var version VersionResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&version))
	assert.Equal(t, Version, version.Version)
}

func TestSwaggerDoc(t *testing.T) {
	srv := setupTestServer(t)

	resp, err := http.Get(srv.URL + "/swagger/doc.json")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, readBody(t, resp), "/api/images")
}

func TestWebSocketFeed(t *testing.T) {
	srv := setupTestServer(t)

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", nil)
	require.NoError(t, err)
	defer conn.Close()

	t.Run("answers ping", func(t *testing.T) {
		require.NoError(t, conn.WriteJSON(models.WSMessage{Type: models.WSTypePing}))
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))

		var msg models.WSMessage
		require.NoError(t, conn.ReadJSON(&msg))
		assert.Equal(t, models.WSTypePong, msg.Type)
	})

	t.Run("announces uploads", func(t *testing.T) {
		postUpload(t, srv, "",
			formPart{field: "image", filename: "a.png", data: pngBytes(t, 7), isFile: true},
		)
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))

		var msg struct {
			Type    string                       `json:"type"`
			Payload models.GalleryChangedPayload `json:"payload"`
		}
		require.NoError(t, conn.ReadJSON(&msg))
		assert.Equal(t, models.WSTypeGalleryChanged, msg.Type)
		assert.Equal(t, models.ChangeUploaded, msg.Payload.Reason)
		assert.NotEmpty(t, msg.Payload.PhotoID)
	})
}
