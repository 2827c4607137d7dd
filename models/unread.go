package models

// UnreadEntry, bir DM partnerine ait okunmamış mesaj bilgisi.
// Authoritative unread özeti (GET /api/dms/unreads) bu kayıtlardan oluşur;
// realtime increment'ler aynı kaydın Count alanını best-effort günceller.
type UnreadEntry struct {
	PartnerID string `json:"partner_id"`
	ChannelID string `json:"channel_id"`
	Count     int    `json:"unread_count"`
}
