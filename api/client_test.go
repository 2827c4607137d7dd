package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/akinalp/ulak/models"
	"github.com/akinalp/ulak/pkg"
)

func respond(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{"success": status < 400, "data": data})
}

func respondErr(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{"success": false, "error": msg})
}

func TestGetMessagesPaginationParams(t *testing.T) {
	var gotBefore, gotLimit string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotBefore = r.URL.Query().Get("before")
		gotLimit = r.URL.Query().Get("limit")
		respond(w, http.StatusOK, models.MessagePage{
			Messages: []models.Message{{ServerID: "s1", ChannelID: "ch1", Body: "hi"}},
			HasMore:  true,
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "tok", srv.Client())
	page, err := c.GetMessages(context.Background(), "ch1", "s0", 50)

	require.NoError(t, err)
	assert.Equal(t, "s0", gotBefore)
	assert.Equal(t, "50", gotLimit)
	assert.True(t, page.HasMore)
	require.Len(t, page.Messages, 1)
	assert.Equal(t, "s1", page.Messages[0].ServerID)
}

func TestSendMessageEchoesNonce(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req models.SendMessageRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		respond(w, http.StatusOK, models.Message{
			ServerID: "s9", Nonce: req.Nonce, ChannelID: "ch1", Body: req.Content,
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "tok", srv.Client())
	msg, err := c.SendMessage(context.Background(), "ch1", &models.SendMessageRequest{Content: "hi", Nonce: "c1"})

	require.NoError(t, err)
	assert.Equal(t, "s9", msg.ServerID)
	assert.Equal(t, "c1", msg.Nonce)
}

func TestSendMessageValidation(t *testing.T) {
	c := NewClient("http://unused", "tok", nil)
	_, err := c.SendMessage(context.Background(), "ch1", &models.SendMessageRequest{Content: "   "})
	assert.ErrorIs(t, err, pkg.ErrBadRequest)
}

func TestStatusErrorMapping(t *testing.T) {
	cases := []struct {
		status int
		want   error
	}{
		{http.StatusUnauthorized, pkg.ErrUnauthorized},
		{http.StatusForbidden, pkg.ErrForbidden},
		{http.StatusNotFound, pkg.ErrNotFound},
		{http.StatusConflict, pkg.ErrAlreadyExists},
		{http.StatusUnprocessableEntity, pkg.ErrBadRequest},
		{http.StatusInternalServerError, pkg.ErrInternal},
	}

	for _, tc := range cases {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			respondErr(w, tc.status, "nope")
		}))
		c := NewClient(srv.URL, "tok", srv.Client())
		err := c.MarkRead(context.Background(), "ch1")
		assert.ErrorIs(t, err, tc.want, "status %d", tc.status)
		srv.Close()
	}
}

func TestNetworkFailureIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // kapalı server → connection refused

	c := NewClient(srv.URL, "tok", nil)
	err := c.MarkRead(context.Background(), "ch1")
	assert.ErrorIs(t, err, pkg.ErrUnavailable)
}

func TestGetPartnerFallbackChase(t *testing.T) {
	var paths []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path)
		if r.URL.Path == "/api/profiles/u2" {
			respond(w, http.StatusOK, models.PartnerMeta{ID: "u2", Username: "ayse"})
			return
		}
		respondErr(w, http.StatusNotFound, "not found")
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "tok", srv.Client())
	meta, err := c.GetPartner(context.Background(), "u2")

	require.NoError(t, err)
	assert.Equal(t, "ayse", meta.Username)
	assert.Equal(t, []string{"/api/users/u2", "/api/members/u2", "/api/profiles/u2"}, paths)
}

func TestGetPartnerCachesResult(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		respond(w, http.StatusOK, models.PartnerMeta{ID: "u2", Username: "ayse"})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "tok", srv.Client())
	_, err := c.GetPartner(context.Background(), "u2")
	require.NoError(t, err)
	require.Equal(t, 1, calls)

	// İkinci lookup ağa çıkmaz
	meta, err := c.GetPartner(context.Background(), "u2")
	require.NoError(t, err)
	assert.Equal(t, "ayse", meta.Username)
	assert.Equal(t, 1, calls)
}

func TestGetPartnerAllNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		respondErr(w, http.StatusNotFound, "not found")
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "tok", srv.Client())
	_, err := c.GetPartner(context.Background(), "u2")
	assert.ErrorIs(t, err, pkg.ErrNotFound)
}

func TestGetPartnerStopsOnNon404(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		respondErr(w, http.StatusForbidden, "banned")
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "tok", srv.Client())
	_, err := c.GetPartner(context.Background(), "u2")

	assert.ErrorIs(t, err, pkg.ErrForbidden)
	assert.Equal(t, 1, calls)
}

func TestExpiredTokenFailsFast(t *testing.T) {
	// Süresi geçmiş imzasız JWT — istek hiç ağa çıkmadan ErrUnauthorized.
	claims := jwt.MapClaims{"exp": time.Now().Add(-time.Hour).Unix(), "sub": "u1"}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test"))
	require.NoError(t, err)

	var called bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer srv.Close()

	c := NewClient(srv.URL, token, srv.Client())
	err = c.MarkRead(context.Background(), "ch1")

	assert.ErrorIs(t, err, pkg.ErrUnauthorized)
	assert.False(t, called)
}

func TestOpaqueTokenSkipsExpiryCheck(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer opaque-token", r.Header.Get("Authorization"))
		respond(w, http.StatusOK, nil)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "opaque-token", srv.Client())
	assert.NoError(t, c.MarkRead(context.Background(), "ch1"))
}

func TestUpload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "photo.png")
	require.NoError(t, os.WriteFile(path, []byte("png-bytes"), 0o644))

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		file, header, err := r.FormFile("file")
		require.NoError(t, err)
		defer file.Close()
		assert.Equal(t, "photo.png", header.Filename)
		respond(w, http.StatusOK, map[string]string{"file_url": "https://cdn.example/photo.png"})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "tok", srv.Client())
	fileURL, err := c.Upload(context.Background(), path)

	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example/photo.png", fileURL)
}

func TestUploadMissingFile(t *testing.T) {
	c := NewClient("http://unused", "tok", nil)
	_, err := c.Upload(context.Background(), "/nonexistent/file.png")
	assert.ErrorIs(t, err, pkg.ErrBadRequest)
}

func TestGetUnreadCounts(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/dms/unreads", r.URL.Path)
		respond(w, http.StatusOK, []models.UnreadEntry{
			{PartnerID: "p1", ChannelID: "ch1", Count: 2},
			{PartnerID: "p3", ChannelID: "ch3", Count: 5},
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "tok", srv.Client())
	entries, err := c.GetUnreadCounts(context.Background())

	require.NoError(t, err)
	assert.Len(t, entries, 2)
}
