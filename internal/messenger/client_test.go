package messenger

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dharsanguruparan/ReelDrop/internal/fault"
)

func TestSendAttachmentURL(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/me/messages", r.URL.Path)
		assert.Equal(t, "page-token", r.URL.Query().Get("access_token"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"recipient_id":"42","message_id":"m1"}`)
	}))
	defer srv.Close()

	c := New(srv.URL, "page-token", time.Second)
	require.NoError(t, c.SendAttachmentURL(context.Background(), "42", AttachmentVideo, "https://store/a.mp4"))

	assert.Equal(t, map[string]any{"id": "42"}, got["recipient"])
	msg := got["message"].(map[string]any)
	att := msg["attachment"].(map[string]any)
	assert.Equal(t, "video", att["type"])
	assert.Equal(t, map[string]any{"url": "https://store/a.mp4", "is_reusable": true}, att["payload"])
}

func TestSendRejectedByGraph(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"error":{"message":"Invalid URL","type":"OAuthException","code":100}}`)
	}))
	defer srv.Close()

	err := New(srv.URL, "t", time.Second).SendText(context.Background(), "42", "hi")

	require.Error(t, err)
	assert.Equal(t, fault.Rejected, fault.KindOf(err))
	assert.Contains(t, err.Error(), "Invalid URL")
}

func TestSendErrorInsideOKResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"error":{"message":"user unavailable","code":551}}`)
	}))
	defer srv.Close()

	err := New(srv.URL, "t", time.Second).SendText(context.Background(), "42", "hi")
	assert.Equal(t, fault.Rejected, fault.KindOf(err))
}

func TestSendTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	err := New(srv.URL, "t", 50*time.Millisecond).SendText(context.Background(), "42", "hi")

	require.Error(t, err)
	assert.Equal(t, fault.Timeout, fault.KindOf(err))
}

func TestUploadAttachment(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/me/message_attachments", r.URL.Path)
		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Contains(t, r.FormValue("message"), `"is_reusable":true`)
		file, header, err := r.FormFile("filedata")
		require.NoError(t, err)
		defer file.Close()
		data, _ := io.ReadAll(file)
		assert.Equal(t, "clip.mp4", header.Filename)
		assert.Equal(t, "bytes", string(data))
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"attachment_id":"1857777774821032"}`)
	}))
	defer srv.Close()

	id, err := New(srv.URL, "t", time.Second).UploadAttachment(context.Background(), AttachmentVideo, "clip.mp4", "video/mp4", strings.NewReader("bytes"))

	require.NoError(t, err)
	assert.Equal(t, "1857777774821032", id)
}
