package repository

import (
	"context"

	"github.com/akinalp/ulak/models"
)

// HistoryRepository, lokal mesaj cache'i için interface.
//
// Cache okuma yolunu hızlandırır: yeniden açılan konuşma, network cevap
// vermeden önce son bilinen mesajlarla render edilir. Ground truth her
// zaman backend'dedir — sayfa geldiğinde PreferServer merge cache'i ezer.
//
//   - GetMessages: kanalın cache'lenmiş mesajları (timestamp artan sırada)
//   - ReplaceConversation: kanalın cache'ini finalize edilmiş liste ile değiştir
//   - GetUnreadSnapshot / SaveUnreadSnapshot: son bilinen unread özeti
type HistoryRepository interface {
	GetMessages(ctx context.Context, channelID string, limit int) ([]models.Message, error)
	ReplaceConversation(ctx context.Context, channelID string, msgs []models.Message) error

	GetUnreadSnapshot(ctx context.Context) ([]models.UnreadEntry, error)
	SaveUnreadSnapshot(ctx context.Context, entries []models.UnreadEntry) error
}
