// Package main — Service katmanı başlatma.
//
// initServices, core service'leri oluşturur ve realtime kanalına bağlar.
// Her service, ihtiyaç duyduğu collaborator'ları constructor injection ile
// alır: session REST client + kanal + cache + unread clearer, aggregator
// REST client + cache.
package main

import (
	"github.com/akinalp/ulak/api"
	"github.com/akinalp/ulak/config"
	"github.com/akinalp/ulak/realtime"
	"github.com/akinalp/ulak/repository"
	"github.com/akinalp/ulak/services"
)

// Services, client core'un service instance'larını tutan container struct.
type Services struct {
	Session *services.ConversationSession
	Unread  *services.UnreadService

	unbind func()
}

func initServices(
	client *api.Client,
	conn *realtime.Conn,
	history repository.HistoryRepository,
	cfg *config.Config,
) *Services {
	unread := services.NewUnreadService(client, history, cfg.Session.UserID)

	// Session, açılan konuşmanın badge'ini unread service üzerinden düşürür.
	session := services.NewConversationSession(
		client,
		conn,
		history,
		unread,
		cfg.Session.UserID,
		cfg.Chat.PageSize,
	)

	// Aggregator tüm gelen mesajları dinler — konuşma açık olsun olmasın.
	unbind := unread.Bind(conn)

	return &Services{
		Session: session,
		Unread:  unread,
		unbind:  unbind,
	}
}

// Close, oturumu kapatır ve realtime aboneliklerini bırakır.
func (s *Services) Close() {
	s.Session.Close()
	s.unbind()
	s.Unread.Reset()
}
