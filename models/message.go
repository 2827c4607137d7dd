package models

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

// MessageKind, mesaj içeriğinin türü.
type MessageKind string

const (
	KindText  MessageKind = "text"
	KindPhoto MessageKind = "photo"
	KindVoice MessageKind = "voice"
)

// MessageState, mesajın yaşam döngüsü durumu.
//
// StateFailed yalnızca client tarafında var olur — gönderim başarısız olan
// optimistic mesaj listeden silinmez, yerinde "failed" olarak işaretlenir.
// StateDeleted'da mesaj yine listeden silinmez: body temizlenir, history'deki
// pozisyonu korunur (tombstone).
type MessageState string

const (
	StateSent    MessageState = "sent"
	StateEdited  MessageState = "edited"
	StateDeleted MessageState = "deleted"
	StateFailed  MessageState = "failed"
)

// Message, client'ın gördüğü haliyle tek bir DM mesajı.
//
// Çifte kimlik: ServerID backend tarafından persist edildiğinde atanır,
// Nonce ise gönderim anında client tarafından üretilir (uuid) ve server
// onayında + o mesajı taşıyan realtime event'te geri döner. İkisinden en az
// biri dolu olmalıdır; ikisi de boşsa mesaj merge bookkeeping'ine giremez
// (bir kez render edilir, bir daha eşleştirilemez — RenderKey bunun için).
type Message struct {
	ServerID  string       `json:"id,omitempty"`    // "" → henüz server onayı yok
	Nonce     string       `json:"nonce,omitempty"` // "" → başka cihazdan/REST'ten gelen mesaj
	ChannelID string       `json:"dm_channel_id"`
	From      string       `json:"from"`
	To        string       `json:"to,omitempty"`
	Kind      MessageKind  `json:"type"`
	Body      string       `json:"content"` // text veya medya URL'i
	Timestamp time.Time    `json:"created_at"`
	State     MessageState `json:"state,omitempty"`

	// RenderKey, kimliksiz (ServerID'siz ve Nonce'suz) mesajlar için
	// sentezlenen tek seferlik anahtar. Merge'e katılmaz, sadece aynı
	// kaydın listede bir kez görünmesini sağlar.
	RenderKey string `json:"-"`
}

// Identified, mesajın merge bookkeeping'ine girebilecek bir kimliği olup
// olmadığını döner.
func (m *Message) Identified() bool {
	return m.ServerID != "" || m.Nonce != ""
}

// MessagePage, cursor-based pagination sonucu.
// HasMore false ise daha eski mesaj yoktur — loadOlder no-op olur.
type MessagePage struct {
	Messages []Message `json:"messages"`
	HasMore  bool      `json:"has_more"`
}

// SendMessageRequest, yeni DM mesajı gönderme isteği.
// Nonce service katmanında set edilir — optimistic kayıtla server
// onayının eşleşmesini sağlayan correlation id'dir.
type SendMessageRequest struct {
	Content string      `json:"content"`
	Type    MessageKind `json:"type,omitempty"`
	Nonce   string      `json:"nonce"`
}

// Validate, SendMessageRequest'in geçerli olup olmadığını kontrol eder.
func (r *SendMessageRequest) Validate() error {
	r.Content = strings.TrimSpace(r.Content)
	contentLen := utf8.RuneCountInString(r.Content)
	if contentLen < 1 {
		return fmt.Errorf("message content is required")
	}
	if contentLen > 2000 {
		return fmt.Errorf("message content must be at most 2000 characters")
	}
	return nil
}

// UpdateMessageRequest, mesaj düzenleme isteği.
type UpdateMessageRequest struct {
	Content string `json:"content"`
}

// Validate, UpdateMessageRequest'in geçerli olup olmadığını kontrol eder.
func (r *UpdateMessageRequest) Validate() error {
	r.Content = strings.TrimSpace(r.Content)
	contentLen := utf8.RuneCountInString(r.Content)
	if contentLen < 1 {
		return fmt.Errorf("message content is required")
	}
	if contentLen > 2000 {
		return fmt.Errorf("message content must be at most 2000 characters")
	}
	return nil
}
