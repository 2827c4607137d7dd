// Package api, backend REST yüzeyinin client'ıdır (history source).
//
// Tüm çağrılar standart {success, data, error} zarfını parse eder ve HTTP
// status code'larını pkg sentinel error'larına çevirir — üst katmanlar
// status code değil errors.Is ile konuşur. Ağ seviyesinde response bile
// alınamadıysa ErrUnavailable döner; UI bunu "son bilinen state'i göster"
// olarak yorumlar.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/akinalp/ulak/models"
	"github.com/akinalp/ulak/pkg"
	"github.com/akinalp/ulak/pkg/cache"
	"github.com/akinalp/ulak/pkg/logging"
)

var log = logging.Component("api")

const (
	defaultTimeout = 15 * time.Second

	// Partner metadata nadiren değişir; fallback zincirini her konuşma
	// açılışında yeniden koşmamak için kısa süreli cache'lenir.
	partnerTTL     = 5 * time.Minute
	partnerCleanup = time.Minute
)

// Client, REST API client'ı. Tüm metodlar goroutine-safe'tir —
// *http.Client zaten connection pool'dur.
type Client struct {
	baseURL    string
	token      string
	tokenExp   *time.Time // token'dan okunabildiyse exp claim'i
	httpClient *http.Client
	partners   *cache.TTLCache[string, *models.PartnerMeta]
}

// NewClient, constructor. httpClient nil ise default timeout'lu client
// kullanılır (testler httptest.Server'ın client'ını geçer).
func NewClient(baseURL, token string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		tokenExp:   tokenExpiry(token),
		httpClient: httpClient,
		partners:   cache.New[string, *models.PartnerMeta](partnerTTL, partnerCleanup),
	}
}

// tokenExpiry, JWT'nin exp claim'ini imza DOĞRULAMADAN okur.
// İmza doğrulama server'ın işidir; client sadece süresi geçmiş token'la
// boşuna round-trip yapmamak için bakar. Token JWT değilse nil döner ve
// kontrol atlanır.
func tokenExpiry(token string) *time.Time {
	parsed, _, err := jwt.NewParser().ParseUnverified(token, jwt.MapClaims{})
	if err != nil {
		return nil
	}
	exp, err := parsed.Claims.GetExpirationTime()
	if err != nil || exp == nil {
		return nil
	}
	return &exp.Time
}

// envelope, server'ın standart response formatı.
type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// do, tek bir REST çağrısını yürütür: token kontrolü, request kurulumu,
// zarf parse'ı ve error mapping. out nil ise response body yoksayılır.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body any, out any) error {
	if c.tokenExp != nil && time.Now().After(*c.tokenExp) {
		return fmt.Errorf("%w: access token expired", pkg.ErrUnauthorized)
	}

	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reqBody)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", pkg.ErrUnavailable, err)
	}
	defer resp.Body.Close()

	var env envelope
	if decErr := json.NewDecoder(resp.Body).Decode(&env); decErr != nil && resp.StatusCode < 400 {
		return fmt.Errorf("failed to decode response: %w", decErr)
	}

	if resp.StatusCode >= 400 {
		return statusError(resp.StatusCode, env.Error)
	}

	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return fmt.Errorf("failed to decode response data: %w", err)
		}
	}
	return nil
}

// statusError, HTTP status'u domain error'a çevirir.
func statusError(status int, detail string) error {
	var base error
	switch {
	case status == http.StatusUnauthorized:
		base = pkg.ErrUnauthorized
	case status == http.StatusForbidden:
		base = pkg.ErrForbidden
	case status == http.StatusNotFound:
		base = pkg.ErrNotFound
	case status == http.StatusConflict:
		base = pkg.ErrAlreadyExists
	case status >= 400 && status < 500:
		base = pkg.ErrBadRequest
	default:
		base = pkg.ErrInternal
	}
	if detail == "" {
		detail = http.StatusText(status)
	}
	return fmt.Errorf("%w: %s", base, detail)
}
