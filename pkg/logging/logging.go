// Package logging, zerolog üzerine kurulu yapılandırılmış log katmanıdır.
//
// Her paket kendi component logger'ını alır:
//
//	var log = logging.Component("realtime")
//	log.Info().Str("op", op).Msg("event received")
//
// Böylece çıktıda her satırın hangi katmandan geldiği bellidir ve
// log seviyesi tek noktadan (config) kontrol edilir.
//
// Component logger'lar package-level var olarak Init'ten önce oluşur;
// bu yüzden root logger sabit kalır ve Init yalnızca hedef writer'ı ve
// global seviyeyi değiştirir — önceden alınmış child'lar da yeni hedefe
// yazar.
package logging

import (
	"io"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Logger, process-wide root logger.
// Init çağrılmadan kullanılırsa info seviyesinde stderr console'a yazar.
var Logger zerolog.Logger

// Config, log katmanı ayarları.
type Config struct {
	Level  string    // debug | info | warn | error
	Format string    // console | json
	Output io.Writer // nil → stderr
}

// swapWriter, root logger'ın yazdığı hedefi runtime'da değiştirilebilir kılar.
type swapWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *swapWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}

func (s *swapWriter) set(w io.Writer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.w = w
}

var sink = &swapWriter{}

// Init, log seviyesini ve çıktı hedefini verilen ayarlarla kurar.
func Init(cfg Config) {
	zerolog.SetGlobalLevel(parseLevel(cfg.Level))
	zerolog.TimeFieldFormat = time.RFC3339

	output := cfg.Output
	if output == nil {
		output = os.Stderr
	}
	if cfg.Format != "json" {
		output = zerolog.ConsoleWriter{Out: output, TimeFormat: "15:04:05"}
	}
	sink.set(output)
}

// Component, verilen isimle etiketlenmiş child logger döner.
func Component(name string) zerolog.Logger {
	return Logger.With().Str("component", name).Logger()
}

func parseLevel(level string) zerolog.Level {
	switch level {
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "trace":
		return zerolog.TraceLevel
	default:
		return zerolog.InfoLevel
	}
}

func init() {
	sink.set(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	Logger = zerolog.New(sink).With().Timestamp().Logger()
}
