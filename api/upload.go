package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/akinalp/ulak/pkg"
)

// uploadResponse, POST /api/upload response data'sı.
type uploadResponse struct {
	FileURL string `json:"file_url"`
}

// Upload, lokal dosyayı multipart olarak yükler ve remote URL döner.
//
// Medya gönderiminin upload adımıdır; başarısızlığı session katmanında
// degraded delivery'ye düşer (lokal path ile gönderim) — burada sadece
// hata döndürülür, karar üst katmanındır.
func (c *Client) Upload(ctx context.Context, localPath string) (string, error) {
	if c.tokenExp != nil && time.Now().After(*c.tokenExp) {
		return "", fmt.Errorf("%w: access token expired", pkg.ErrUnauthorized)
	}

	file, err := os.Open(localPath)
	if err != nil {
		return "", fmt.Errorf("%w: cannot open %s: %v", pkg.ErrBadRequest, localPath, err)
	}
	defer file.Close()

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("file", filepath.Base(localPath))
	if err != nil {
		return "", fmt.Errorf("failed to build multipart form: %w", err)
	}
	if _, err := io.Copy(part, file); err != nil {
		return "", fmt.Errorf("failed to read %s: %w", localPath, err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("failed to finalize multipart form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/upload", &buf)
	if err != nil {
		return "", fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", pkg.ErrUnavailable, err)
	}
	defer resp.Body.Close()

	var env envelope
	if decErr := json.NewDecoder(resp.Body).Decode(&env); decErr != nil && resp.StatusCode < 400 {
		return "", fmt.Errorf("failed to decode response: %w", decErr)
	}
	if resp.StatusCode >= 400 {
		return "", statusError(resp.StatusCode, env.Error)
	}

	var out uploadResponse
	if err := json.Unmarshal(env.Data, &out); err != nil {
		return "", fmt.Errorf("failed to decode upload response: %w", err)
	}

	log.Debug().Str("file", filepath.Base(localPath)).Str("url", out.FileURL).Msg("upload complete")
	return out.FileURL, nil
}
