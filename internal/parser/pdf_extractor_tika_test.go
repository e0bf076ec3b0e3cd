package parser

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// createMockTikaServer 模拟 Tika 的 /tika 和 /meta 接口
func createMockTikaServer(t *testing.T, textStatus int) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		switch r.URL.Path {
		case "/tika":
			assert.Equal(t, "text/plain", r.Header.Get("Accept"))
			assert.Equal(t, "application/rtf", r.Header.Get("Content-Type"))
			assert.Equal(t, "cv.rtf", r.Header.Get("X-Tika-Resource-Name"))
			w.WriteHeader(textStatus)
			_, _ = w.Write([]byte("Experience\nBuilt things"))
		case "/meta":
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"xmpTPg:NPages":"2","Content-Type":"application/rtf","X-Parsed-By":"ignored"}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
}

func TestNewTikaExtractor(t *testing.T) {
	e := NewTikaExtractor("http://localhost:9998/")
	assert.Equal(t, "http://localhost:9998", e.ServerURL)
	assert.Equal(t, 60*time.Second, e.Client.Timeout)
	assert.True(t, e.extractMetadata)

	e = NewTikaExtractor("http://tika", WithTimeout(5*time.Second), WithMetadata(false))
	assert.Equal(t, 5*time.Second, e.Client.Timeout)
	assert.False(t, e.extractMetadata)
}

func TestTikaExtractor_Extract(t *testing.T) {
	srv := createMockTikaServer(t, http.StatusOK)
	defer srv.Close()

	text, meta, err := NewTikaExtractor(srv.URL).Extract(context.Background(), []byte("{\\rtf1}"), "cv.rtf")
	require.NoError(t, err)
	assert.Equal(t, "Experience\nBuilt things", text)
	assert.Equal(t, "2", meta["pages"])
	assert.Equal(t, "application/rtf", meta["content_type"])
	assert.Equal(t, "tika", meta["extractor"])
	assert.NotContains(t, meta, "X-Parsed-By")
}

func TestTikaExtractor_Unprocessable(t *testing.T) {
	srv := createMockTikaServer(t, http.StatusUnprocessableEntity)
	defer srv.Close()

	_, _, err := NewTikaExtractor(srv.URL).Extract(context.Background(), []byte("junk"), "cv.rtf")
	assert.ErrorIs(t, err, ErrCorruptDocument)
}

func TestTikaExtractor_ServerDownThroughRouter(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := srv.URL
	srv.Close()

	r := NewRouter(WithTika(NewTikaExtractor(url)))
	_, _, err := r.Extract(context.Background(), []byte("data"), "cv.odt")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrExtractorUnavailable)

	var ee *ExtractionError
	require.True(t, errors.As(err, &ee))
	assert.Equal(t, "odt", ee.Format)
}
