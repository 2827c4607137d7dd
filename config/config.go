// Package config, istemcinin tüm konfigürasyonunu merkezi olarak yönetir.
// Environment variable'lardan okur, .env dosyasını da destekler.
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config, istemcinin tüm konfigürasyon değerlerini taşır.
// Her alt bölüm ayrı bir struct — her struct tek bir concern'ü temsil eder.
type Config struct {
	Server  ServerConfig
	Session SessionConfig
	Cache   CacheConfig
	Chat    ChatConfig
	Log     LogConfig
}

// ServerConfig, bağlanılacak backend adresleri.
type ServerConfig struct {
	APIBaseURL string // REST API kökü (ör: http://localhost:9090)
	WSURL      string // WebSocket endpoint'i (ör: ws://localhost:9090/ws)
}

// SessionConfig, oturum bilgileri.
// Token auth bootstrap'i bu core'un dışındadır — hazır access token beklenir.
type SessionConfig struct {
	Token      string // Bearer access token
	UserID     string // Oturum sahibi kullanıcı ID'si
	DeviceName string // Nonce üretiminde log etiketi olarak kullanılır
}

// CacheConfig, lokal SQLite mesaj cache ayarları.
type CacheConfig struct {
	Path string // SQLite dosya yolu (ör: ~/.ulak/cache.db)
}

// ChatConfig, konuşma davranış ayarları.
type ChatConfig struct {
	PageSize  int    // Bir history sayfasındaki mesaj sayısı
	UploadDir string // Gönderilecek medya dosyalarının arandığı dizin
}

// LogConfig, log katmanı ayarları.
type LogConfig struct {
	Level  string // debug | info | warn | error
	Format string // console | json
}

// Load, environment variable'lardan Config oluşturur.
// .env dosyası varsa önce onu yükler (development kolaylığı için).
func Load() (*Config, error) {
	// .env dosyası yoksa hata vermez, sessizce devam eder.
	_ = godotenv.Load()

	pageSize, err := strconv.Atoi(getEnv("ULAK_PAGE_SIZE", "50"))
	if err != nil {
		return nil, fmt.Errorf("invalid ULAK_PAGE_SIZE: %w", err)
	}
	if pageSize < 1 {
		return nil, fmt.Errorf("ULAK_PAGE_SIZE must be positive, got %d", pageSize)
	}

	home, _ := os.UserHomeDir()

	cfg := &Config{
		Server: ServerConfig{
			APIBaseURL: getEnv("ULAK_API_URL", "http://localhost:9090"),
			WSURL:      getEnv("ULAK_WS_URL", "ws://localhost:9090/ws"),
		},
		Session: SessionConfig{
			Token:      os.Getenv("ULAK_TOKEN"),
			UserID:     os.Getenv("ULAK_USER_ID"),
			DeviceName: getEnv("ULAK_DEVICE_NAME", defaultDeviceName()),
		},
		Cache: CacheConfig{
			Path: getEnv("ULAK_CACHE_PATH", home+"/.ulak/cache.db"),
		},
		Chat: ChatConfig{
			PageSize:  pageSize,
			UploadDir: getEnv("ULAK_UPLOAD_DIR", "."),
		},
		Log: LogConfig{
			Level:  getEnv("ULAK_LOG_LEVEL", "info"),
			Format: getEnv("ULAK_LOG_FORMAT", "console"),
		},
	}

	if cfg.Session.Token == "" {
		return nil, fmt.Errorf("ULAK_TOKEN is required")
	}
	if cfg.Session.UserID == "" {
		return nil, fmt.Errorf("ULAK_USER_ID is required")
	}

	return cfg, nil
}

// getEnv, environment variable'ı okur — boşsa fallback döner.
func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func defaultDeviceName() string {
	if host, err := os.Hostname(); err == nil && host != "" {
		return host
	}
	return "ulak"
}
