// Package main, ulak terminal istemcisinin giriş noktasıdır.
//
// Bu dosyanın görevi — Dependency Injection "wire-up":
//  1. Config'i yükle
//  2. Log katmanını kur (TUI terminal'i kullanır, loglar dosyaya gider)
//  3. Lokal cache database'ini başlat
//  4. Repository'yi oluştur
//  5. REST client'ı oluştur
//  6. WebSocket bağlantısını aç
//  7. Service'leri oluştur ve realtime kanalına bağla
//  8. TUI'yi kur ve çalıştır
//
// Global değişken YOK — her şey burada oluşturulup birbirine bağlanıyor.
package main

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/akinalp/ulak/api"
	"github.com/akinalp/ulak/config"
	"github.com/akinalp/ulak/database"
	"github.com/akinalp/ulak/pkg/logging"
	"github.com/akinalp/ulak/realtime"
	"github.com/akinalp/ulak/repository"
	"github.com/akinalp/ulak/services"
	"github.com/akinalp/ulak/ui"
)

func main() {
	// ─── 1. Config ───
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}

	// ─── 2. Logging ───
	//
	// stderr TUI tarafından kullanılamaz — alternate screen'i bozar.
	// Loglar cache dizininin yanındaki dosyaya akar.
	logPath := filepath.Join(filepath.Dir(cfg.Cache.Path), "ulak.log")
	logFile, err := openLogFile(logPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "log file error: %v\n", err)
		os.Exit(1)
	}
	defer logFile.Close()
	logging.Init(logging.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: logFile,
	})
	log := logging.Component("main")
	log.Info().
		Str("api", cfg.Server.APIBaseURL).
		Str("user", cfg.Session.UserID).
		Str("device", cfg.Session.DeviceName).
		Msg("ulak starting")

	// ─── 3. Lokal cache database ───
	migrations, err := fs.Sub(database.EmbeddedMigrations, "migrations")
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load embedded migrations")
	}
	db, err := database.New(cfg.Cache.Path, migrations)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize cache database")
	}
	defer db.Close()

	// ─── 4. Repository ───
	historyRepo := repository.NewSQLiteHistoryRepo(db.Conn)

	// ─── 5. REST client ───
	client := api.NewClient(cfg.Server.APIBaseURL, cfg.Session.Token, nil)

	// ─── 6. WebSocket ───
	dialCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	conn, err := realtime.Dial(dialCtx, cfg.Server.WSURL, cfg.Session.Token)
	cancel()
	if err != nil {
		log.Fatal().Err(err).Str("url", cfg.Server.WSURL).Msg("failed to connect websocket")
	}
	defer conn.Close()

	// ─── 7. Service Layer ───
	svcs := initServices(client, conn, historyRepo, cfg)
	defer svcs.Close()

	// ─── 8. TUI ───
	//
	// Snapshot'lar ve unread toplamı program.Send ile tea event loop'una
	// enjekte edilir — UI mutation'ları bubbletea'nin goroutine'inde kalır.
	model := ui.NewModel(ui.Deps{
		Session:   svcs.Session,
		Unreads:   svcs.Unread,
		Channels:  client,
		SelfID:    cfg.Session.UserID,
		UploadDir: cfg.Chat.UploadDir,
	})
	program := tea.NewProgram(model, tea.WithAltScreen())

	svcs.Session.OnRender(func(snap services.Snapshot) {
		program.Send(ui.SnapshotMsg{Snapshot: snap})
	})
	svcs.Unread.OnChange(func(total int) {
		program.Send(ui.UnreadTotalMsg{Total: total})
	})
	svcs.Unread.SeedFromCache(context.Background())

	if _, err := program.Run(); err != nil {
		log.Error().Err(err).Msg("tui exited with error")
		os.Exit(1)
	}
	log.Info().Msg("ulak stopped")
}

func openLogFile(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	return os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
}
