package services

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/akinalp/ulak/models"
	"github.com/akinalp/ulak/realtime"
	"github.com/akinalp/ulak/repository"
)

// UnreadSource, aggregator'ın REST katmanından beklediği sözleşme.
type UnreadSource interface {
	GetUnreadCounts(ctx context.Context) ([]models.UnreadEntry, error)
	MarkRead(ctx context.Context, channelID string) error
}

// UnreadService, partner → okunmamış sayısı eşlemesini tutar.
//
// Realtime increment'ler best-effort bir optimizasyondur; ground truth
// periyodik Refresh'tir ve eşlemeyi TÜMÜYLE değiştirir (merge değil).
// Total her seferinde eşlemeden hesaplanır — ayrı tutulan bir toplam yok,
// desync edemez.
type UnreadService struct {
	api     UnreadSource
	history repository.HistoryRepository // nil → snapshot persist edilmez
	selfID  string

	mu       sync.Mutex
	entries  map[string]models.UnreadEntry
	onChange func(total int)
}

func NewUnreadService(api UnreadSource, history repository.HistoryRepository, selfID string) *UnreadService {
	return &UnreadService{
		api:     api,
		history: history,
		selfID:  selfID,
		entries: make(map[string]models.UnreadEntry),
	}
}

// OnChange, toplam her değiştiğinde çağrılan callback'i kaydeder.
// Lock altında çağrılır — callback servise geri çağırmamalıdır.
func (u *UnreadService) OnChange(fn func(total int)) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.onChange = fn
}

// SeedFromCache, badge'leri son bilinen snapshot'la doldurur. Offline
// açılışta sayılar sıfırdan başlamaz; ilk Refresh gerçek değerleri getirir.
func (u *UnreadService) SeedFromCache(ctx context.Context) {
	if u.history == nil {
		return
	}
	cached, err := u.history.GetUnreadSnapshot(ctx)
	if err != nil {
		log.Debug().Err(err).Msg("unread snapshot seed failed")
		return
	}

	u.mu.Lock()
	defer u.mu.Unlock()
	if len(u.entries) > 0 {
		// Refresh bizden önce davranmış — authoritative state ezilmez.
		return
	}
	for _, e := range cached {
		u.entries[e.PartnerID] = e
	}
	u.notifyLocked()
}

// Refresh, authoritative özeti çeker ve eşlemeyi tümüyle değiştirir.
func (u *UnreadService) Refresh(ctx context.Context) error {
	entries, err := u.api.GetUnreadCounts(ctx)
	if err != nil {
		return err
	}

	u.mu.Lock()
	u.entries = make(map[string]models.UnreadEntry, len(entries))
	for _, e := range entries {
		u.entries[e.PartnerID] = e
	}
	u.notifyLocked()
	u.mu.Unlock()

	if u.history != nil {
		if err := u.history.SaveUnreadSnapshot(ctx, entries); err != nil {
			log.Debug().Err(err).Msg("unread snapshot write failed")
		}
	}
	return nil
}

// Bind, aggregator'ı realtime kanalına bağlar ve disposer döner.
func (u *UnreadService) Bind(ch realtime.Channel) func() {
	return ch.On(realtime.OpDMMessageCreate, func(data json.RawMessage) {
		var p realtime.DMMessagePayload
		if err := json.Unmarshal(data, &p); err != nil {
			return
		}
		u.OnIncoming(p)
	})
}

// OnIncoming, gelen mesaj event'ini best-effort increment'e çevirir.
// Mesaj mevcut kullanıcıya adresli değilse (self-echo veya yanlış
// yönlendirme) no-op.
func (u *UnreadService) OnIncoming(p realtime.DMMessagePayload) {
	to := p.To
	if to == "" {
		to = p.Recipient
	}
	if to != u.selfID || p.From == u.selfID || p.From == "" {
		return
	}

	u.mu.Lock()
	defer u.mu.Unlock()
	e := u.entries[p.From]
	e.PartnerID = p.From
	if e.ChannelID == "" {
		e.ChannelID = p.ChannelID
	}
	e.Count++
	u.entries[p.From] = e
	u.notifyLocked()
}

// MarkRead, authoritative read-receipt yazımını yapar ve başarılıysa
// partner'ın sayacını lokal olarak sıfırlar (refresh beklenmez).
func (u *UnreadService) MarkRead(ctx context.Context, partnerID string) error {
	u.mu.Lock()
	e, ok := u.entries[partnerID]
	u.mu.Unlock()
	if !ok || e.ChannelID == "" {
		return nil
	}

	if err := u.api.MarkRead(ctx, e.ChannelID); err != nil {
		log.Warn().Err(err).Str("partner", partnerID).Msg("mark read failed")
		return err
	}

	u.Clear(partnerID)
	return nil
}

// Clear, partner'ın sayacını lokal olarak sıfırlar. Yazım yapmaz —
// session açılışında okundu işareti zaten REST tarafında atılmıştır.
func (u *UnreadService) Clear(partnerID string) {
	u.mu.Lock()
	defer u.mu.Unlock()
	e, ok := u.entries[partnerID]
	if !ok || e.Count == 0 {
		return
	}
	e.Count = 0
	u.entries[partnerID] = e
	u.notifyLocked()
}

// Count, tek partner'ın okunmamış sayısını döner.
func (u *UnreadService) Count(partnerID string) int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.entries[partnerID].Count
}

// Total, tüm sayıların toplamıdır. Her çağrıda hesaplanır.
func (u *UnreadService) Total() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.totalLocked()
}

// Entries, eşlemenin bir kopyasını döner.
func (u *UnreadService) Entries() []models.UnreadEntry {
	u.mu.Lock()
	defer u.mu.Unlock()
	out := make([]models.UnreadEntry, 0, len(u.entries))
	for _, e := range u.entries {
		out = append(out, e)
	}
	return out
}

// Reset, sign-out veya bağlantı kaybında eşlemeyi boşaltır.
func (u *UnreadService) Reset() {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.entries = make(map[string]models.UnreadEntry)
	u.notifyLocked()
}

func (u *UnreadService) totalLocked() int {
	total := 0
	for _, e := range u.entries {
		total += e.Count
	}
	return total
}

func (u *UnreadService) notifyLocked() {
	if u.onChange != nil {
		u.onChange(u.totalLocked())
	}
}
