package models

import "time"

// PartnerMeta, DM konuşmasının karşı tarafına ait görünüm bilgisi.
// Metadata fetch başarısız olursa caller'ın verdiği hint'lerle doldurulur —
// konuşma açılışı metadata yüzünden bloklanmaz.
type PartnerMeta struct {
	ID          string `json:"id"`
	Username    string `json:"username"`
	DisplayName string `json:"display_name"`
	AvatarURL   string `json:"avatar_url,omitempty"`
}

// Name, gösterilecek ismi döner — DisplayName boşsa Username, o da boşsa ID.
func (p *PartnerMeta) Name() string {
	if p.DisplayName != "" {
		return p.DisplayName
	}
	if p.Username != "" {
		return p.Username
	}
	return p.ID
}

// ChannelInfo, bir DM kanalının client tarafındaki özeti.
// POST /api/dms (kanal bul-veya-oluştur) ve GET /api/dms (liste) döner.
type ChannelInfo struct {
	ID            string       `json:"id"`
	OtherUser     *PartnerMeta `json:"other_user,omitempty"`
	LastMessageAt *time.Time   `json:"last_message_at"`
}
