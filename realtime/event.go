// Package realtime, backend'in WebSocket event kanalının client tarafıdır.
//
// Mimari:
// - Channel: core'un ihtiyaç duyduğu soyutlama — join/leave/emit/on
// - Conn: gorilla/websocket üzerinde Channel implementasyonu
// - Event: server ile paylaşılan {op, d, seq} zarfı
//
// Teslimat garantisi at-least-once'tır ve event'lerin varış sırası causal
// sırayla eşleşmeyebilir — reconciliation core'u bu varsayımla yazılmıştır,
// bu paket sıralama düzeltmeye ÇALIŞMAZ. Seq sadece kayıp event tespiti
// için loglanır.
package realtime

import (
	"encoding/json"
	"time"

	"github.com/akinalp/ulak/models"
)

// Event, WebSocket üzerinden iletilen bir mesajı temsil eder.
// Data ham bırakılır — her handler kendi payload'ını decode eder.
type Event struct {
	Op   string          `json:"op"`
	Data json.RawMessage `json:"d,omitempty"`
	Seq  int64           `json:"seq,omitempty"`
}

// Client → Server operasyonları
const (
	OpHeartbeat = "heartbeat" // 30 sn'de bir — "hâlâ bağlıyım" sinyali
	OpDMTyping  = "dm_typing" // Açık DM kanalında yazıyorum
	OpRoomJoin  = "room_join" // Kanal odasına abone ol
	OpRoomLeave = "room_leave"
)

// Server → Client operasyonları
const (
	OpReady           = "ready"
	OpHeartbeatAck    = "heartbeat_ack"
	OpDMMessageCreate = "dm_message_create"
	OpDMMessageUpdate = "dm_message_update"
	OpDMMessageDelete = "dm_message_delete"
	OpDMTypingStart   = "dm_typing_start"
)

// RoomPayload, room_join / room_leave payload'ı.
type RoomPayload struct {
	Room string `json:"room"`
}

// DMMessagePayload, dm_message_create event'inin payload'ı.
//
// Timestamp ve CreatedAt'in ikisi de opsiyoneldir; normalizasyon kuralı
// ToMessage'dadır. Nonce, mesajı gönderen cihazın correlation id'sidir —
// server onay broadcast'inde geri yansıtır, başka cihazların mesajlarında
// boştur.
type DMMessagePayload struct {
	ID        string    `json:"id,omitempty"`
	Nonce     string    `json:"nonce,omitempty"`
	ChannelID string    `json:"dm_channel_id"`
	From      string    `json:"from"`
	To        string    `json:"to,omitempty"`
	Recipient string    `json:"recipient,omitempty"` // eski alan adı — To ile aynı anlam
	Content   string    `json:"content"`
	Type      string    `json:"type,omitempty"`
	Timestamp int64     `json:"timestamp,omitempty"` // unix millis — varsa CreatedAt'e tercih edilir
	CreatedAt time.Time `json:"created_at,omitzero"`
}

// Valid, payload'ın state mutation'a girebilecek kadar tanımlı olup
// olmadığını döner. Kanal kimliği olmayan payload düşürülür.
func (p *DMMessagePayload) Valid() bool {
	return p.ChannelID != "" && (p.ID != "" || p.Nonce != "" || p.Content != "")
}

// ToMessage, wire payload'ını domain mesajına çevirir.
//
// Timestamp normalizasyonu: explicit "timestamp" alanı varsa o, yoksa
// created_at, o da yoksa now kullanılır.
func (p *DMMessagePayload) ToMessage(now time.Time) models.Message {
	ts := now
	switch {
	case p.Timestamp != 0:
		ts = time.UnixMilli(p.Timestamp)
	case !p.CreatedAt.IsZero():
		ts = p.CreatedAt
	}

	to := p.To
	if to == "" {
		to = p.Recipient
	}

	kind := models.MessageKind(p.Type)
	if kind == "" {
		kind = models.KindText
	}

	return models.Message{
		ServerID:  p.ID,
		Nonce:     p.Nonce,
		ChannelID: p.ChannelID,
		From:      p.From,
		To:        to,
		Kind:      kind,
		Body:      p.Content,
		Timestamp: ts,
		State:     models.StateSent,
	}
}

// DMMessageUpdatePayload, dm_message_update event'inin payload'ı.
// Targeted patch'tir — nonce güvenilir şekilde taşımaz, ServerID zorunludur.
type DMMessageUpdatePayload struct {
	ID        string    `json:"id"`
	ChannelID string    `json:"dm_channel_id"`
	Content   string    `json:"content"`
	EditedAt  time.Time `json:"edited_at,omitzero"`
}

// DMMessageDeletePayload, dm_message_delete event'inin payload'ı.
type DMMessageDeletePayload struct {
	ID        string `json:"id"`
	ChannelID string `json:"dm_channel_id"`
}

// DMTypingPayload, dm_typing / dm_typing_start payload'ı.
type DMTypingPayload struct {
	ChannelID string `json:"dm_channel_id"`
	From      string `json:"from,omitempty"`
	Username  string `json:"username,omitempty"`
}
