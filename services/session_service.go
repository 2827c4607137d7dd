package services

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/akinalp/ulak/models"
	"github.com/akinalp/ulak/pkg"
	"github.com/akinalp/ulak/pkg/logging"
	"github.com/akinalp/ulak/realtime"
	"github.com/akinalp/ulak/reconcile"
	"github.com/akinalp/ulak/repository"
)

var log = logging.Component("services")

// ChatAPI, session controller'ın REST katmanından beklediği sözleşme.
// api.Client bu interface'i implemente eder; testlerde fake ile değiştirilir.
type ChatAPI interface {
	OpenChannel(ctx context.Context, partnerID string) (*models.ChannelInfo, error)
	GetPartner(ctx context.Context, partnerID string) (*models.PartnerMeta, error)
	GetMessages(ctx context.Context, channelID, beforeID string, limit int) (*models.MessagePage, error)
	SendMessage(ctx context.Context, channelID string, req *models.SendMessageRequest) (*models.Message, error)
	EditMessage(ctx context.Context, messageID string, req *models.UpdateMessageRequest) (*models.Message, error)
	DeleteMessage(ctx context.Context, messageID string) error
	MarkRead(ctx context.Context, channelID string) error
	Upload(ctx context.Context, localPath string) (string, error)
}

// UnreadClearer, açılan konuşmanın badge'ini lokal olarak sıfırlamak için
// minimal sözleşme. UnreadService implemente eder; nil verilebilir.
type UnreadClearer interface {
	Clear(partnerID string)
}

// SessionState, konuşma oturumunun durumu.
type SessionState int

const (
	SessionIdle SessionState = iota
	SessionLoading
	SessionReady
)

// Snapshot, render callback'ine verilen immutable görüntü. Messages her
// çağrıda yeni bir slice'tır — alıcı saklayabilir, session bir daha dokunmaz.
type Snapshot struct {
	State        SessionState
	PartnerID    string
	Partner      *models.PartnerMeta
	ChannelID    string
	Messages     []models.Message
	HasMore      bool
	Sending      bool
	LoadingOlder bool
	TypingFrom   string
}

// RenderFunc, her finalize sonrası çağrılan render callback'i.
// Session lock'u altında çağrılır — callback session metodlarına geri
// çağırmamalıdır (UI katmanı snapshot'ı kendi event loop'una iletir).
type RenderFunc func(Snapshot)

// ConversationSession, açık tek bir DM konuşmasının sahibidir: ilk yükleme,
// geriye doğru pagination, optimistic gönderim ve realtime event uygulaması.
// Her state değişimi merge + finalize'dan geçer ve render callback'i ile
// dışarı verilir.
//
// Eşzamanlılık modeli: tüm mutation'lar mutex altında, snapshot-in/snapshot-out.
// Asenkron tamamlanmalar (yavaş fetch, geç gelen send onayı) epoch ile
// etiketlenir — Open veya Close epoch'u ilerletir, eski epoch'un tamamlanması
// state'e dokunamaz. Konuşma A'nın fetch'i uçuştayken B açılırsa A'nın
// sonucu sessizce düşer.
type ConversationSession struct {
	api     ChatAPI
	channel realtime.Channel
	history repository.HistoryRepository // nil → cache yok
	unreads UnreadClearer                // nil → badge entegrasyonu yok
	selfID  string

	pageSize int
	render   RenderFunc

	mu           sync.Mutex
	epoch        int
	state        SessionState
	partnerID    string
	channelID    string
	partner      *models.PartnerMeta
	msgs         []models.Message
	hasMore      bool
	sending      bool
	loadingOlder bool
	typingFrom   string

	// resolved: server onayıyla eşleşmiş nonce'lar. Aynı nonce'u taşıyan
	// sonraki event'ler güncelleme olarak işlenir, asla yeni satır açmaz.
	resolved map[string]bool
	offs     []func()
}

func NewConversationSession(
	api ChatAPI,
	channel realtime.Channel,
	history repository.HistoryRepository,
	unreads UnreadClearer,
	selfID string,
	pageSize int,
) *ConversationSession {
	if pageSize <= 0 {
		pageSize = 50
	}
	return &ConversationSession{
		api:      api,
		channel:  channel,
		history:  history,
		unreads:  unreads,
		selfID:   selfID,
		pageSize: pageSize,
		resolved: make(map[string]bool),
	}
}

// OnRender, render callback'ini kaydeder. Open'dan önce çağrılmalıdır.
func (s *ConversationSession) OnRender(fn RenderFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.render = fn
}

// Open, partner ile konuşmayı açar: kanal çözümü, cache seed, partner
// metadata, ilk history sayfası, okundu işareti, oda aboneliği.
//
// Metadata fallback zinciri tamamen 404 dönerse hint (veya minimal meta) ile
// devam edilir — metadata konuşma açılışını bloklamaz. History fetch'in
// başarısızlığı ise açılışı iptal eder ve hatayı döner.
func (s *ConversationSession) Open(ctx context.Context, partnerID string, hint *models.PartnerMeta) error {
	s.mu.Lock()
	s.teardownLocked()
	s.epoch++
	e := s.epoch
	s.state = SessionLoading
	s.partnerID = partnerID
	s.channelID = ""
	s.partner = hint
	s.msgs = nil
	s.hasMore = false
	s.sending = false
	s.loadingOlder = false
	s.typingFrom = ""
	s.resolved = make(map[string]bool)
	s.notifyLocked()
	s.mu.Unlock()

	ch, err := s.api.OpenChannel(ctx, partnerID)
	if err != nil {
		s.abandonOpen(e)
		return err
	}

	s.mu.Lock()
	if s.epoch != e {
		s.mu.Unlock()
		return nil
	}
	s.channelID = ch.ID
	if s.partner == nil {
		s.partner = ch.OtherUser
	}
	s.mu.Unlock()

	s.seedFromCache(ctx, e, ch.ID)

	meta, err := s.api.GetPartner(ctx, partnerID)
	switch {
	case err == nil:
		s.mu.Lock()
		if s.epoch == e {
			s.partner = meta
		}
		s.mu.Unlock()
	case errors.Is(err, pkg.ErrNotFound):
		// Tüm lookup endpoint'leri 404 — hint'le devam.
		s.mu.Lock()
		if s.epoch == e && s.partner == nil {
			s.partner = &models.PartnerMeta{ID: partnerID}
		}
		s.mu.Unlock()
	default:
		s.abandonOpen(e)
		return err
	}

	page, err := s.api.GetMessages(ctx, ch.ID, "", s.pageSize)
	if err != nil {
		s.abandonOpen(e)
		return err
	}

	s.mu.Lock()
	if s.epoch != e {
		s.mu.Unlock()
		return nil
	}
	s.applyBatchLocked(page.Messages)
	s.hasMore = page.HasMore || len(page.Messages) >= s.pageSize
	s.state = SessionReady
	s.subscribeLocked(e)
	if err := s.channel.Join(roomName(ch.ID)); err != nil {
		log.Warn().Err(err).Str("channel", ch.ID).Msg("room join failed")
	}
	s.notifyLocked()
	persisted := s.copyMessagesLocked()
	s.mu.Unlock()

	if err := s.api.MarkRead(ctx, ch.ID); err != nil {
		log.Warn().Err(err).Str("channel", ch.ID).Msg("mark read failed")
	} else if s.unreads != nil {
		s.unreads.Clear(partnerID)
	}

	s.persist(ctx, ch.ID, persisted)
	return nil
}

// LoadOlder, mevcut en eski server kimlikli mesajdan strictly eski bir sayfa
// getirir. Zaten yükleniyorsa, daha eski mesaj yoksa veya liste boşsa no-op.
// Başarısızlık sessizdir — mevcut sayfada kalınır, hasMore değişmez.
func (s *ConversationSession) LoadOlder(ctx context.Context) {
	s.mu.Lock()
	if s.state != SessionReady || s.loadingOlder || !s.hasMore || len(s.msgs) == 0 {
		s.mu.Unlock()
		return
	}
	beforeID := ""
	for _, m := range s.msgs {
		if m.ServerID != "" {
			beforeID = m.ServerID
			break
		}
	}
	if beforeID == "" {
		// Elde sadece onaylanmamış kayıt var — cursor yok.
		s.mu.Unlock()
		return
	}
	e := s.epoch
	channelID := s.channelID
	s.loadingOlder = true
	s.notifyLocked()
	s.mu.Unlock()

	page, err := s.api.GetMessages(ctx, channelID, beforeID, s.pageSize)

	s.mu.Lock()
	if s.epoch != e {
		s.mu.Unlock()
		return
	}
	s.loadingOlder = false
	if err != nil {
		log.Debug().Err(err).Str("channel", channelID).Msg("load older failed, staying on current page")
		s.notifyLocked()
		s.mu.Unlock()
		return
	}
	s.applyBatchLocked(page.Messages)
	if len(page.Messages) < s.pageSize && !page.HasMore {
		s.hasMore = false
	}
	s.notifyLocked()
	persisted := s.copyMessagesLocked()
	s.mu.Unlock()

	s.persist(ctx, channelID, persisted)
}

// Send, metni optimistic olarak ekler ve authoritative yazımı yapar.
// Boş/whitespace metin ve uçuşta gönderim varken no-op. Başarısızlıkta
// optimistic kayıt listeden çıkmaz, yerinde failed işaretlenir — hata
// kullanıcıya mesaj başına görünür, global değil.
func (s *ConversationSession) Send(ctx context.Context, text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	e, nonce, channelID, ok := s.beginSend(text, models.KindText)
	if !ok {
		return
	}

	confirmed, err := s.api.SendMessage(ctx, channelID, &models.SendMessageRequest{
		Content: text,
		Type:    models.KindText,
		Nonce:   nonce,
	})
	s.completeSend(ctx, e, nonce, channelID, confirmed, err)
}

// SendMedia, medya gönderiminin optimistic-then-confirm hali: önce lokal
// dosya yolu body olarak eklenir, sonra upload, sonra yazım.
//
// Upload başarısız olursa yazım lokal path ile yine de denenir (degraded
// delivery): mesaj kaybolmaz ama body diğer client'larda açılamayan bir
// cihaz yoludur. Kaynaktaki availability-over-correctness tradeoff'u —
// bilinçli olarak korunuyor.
func (s *ConversationSession) SendMedia(ctx context.Context, localPath string, kind models.MessageKind) {
	if strings.TrimSpace(localPath) == "" {
		return
	}
	if kind == "" {
		kind = models.KindPhoto
	}
	e, nonce, channelID, ok := s.beginSend(localPath, kind)
	if !ok {
		return
	}

	body := localPath
	if url, err := s.api.Upload(ctx, localPath); err != nil {
		log.Warn().Err(err).Str("file", localPath).Msg("upload failed, sending local path (degraded delivery)")
	} else {
		body = url
	}

	confirmed, err := s.api.SendMessage(ctx, channelID, &models.SendMessageRequest{
		Content: body,
		Type:    kind,
		Nonce:   nonce,
	})
	s.completeSend(ctx, e, nonce, channelID, confirmed, err)
}

// Edit, mesaj içeriğini server'da günceller ve lokal satırı patch'ler.
// Server ayrıca dm_message_update yayınlar; patch idempotenttir.
func (s *ConversationSession) Edit(ctx context.Context, serverID, content string) error {
	s.mu.Lock()
	if s.state != SessionReady {
		s.mu.Unlock()
		return nil
	}
	e := s.epoch
	s.mu.Unlock()

	msg, err := s.api.EditMessage(ctx, serverID, &models.UpdateMessageRequest{Content: content})
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.epoch != e {
		return nil
	}
	s.patchLocked(serverID, msg.Body, models.StateEdited)
	s.notifyLocked()
	return nil
}

// Delete, mesajı server'da siler ve lokal satırı tombstone'lar.
func (s *ConversationSession) Delete(ctx context.Context, serverID string) error {
	s.mu.Lock()
	if s.state != SessionReady {
		s.mu.Unlock()
		return nil
	}
	e := s.epoch
	s.mu.Unlock()

	if err := s.api.DeleteMessage(ctx, serverID); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.epoch != e {
		return nil
	}
	s.tombstoneLocked(serverID)
	s.notifyLocked()
	return nil
}

// Typing, açık konuşmada "yazıyor" sinyali yayar. Fire and forget.
func (s *ConversationSession) Typing() {
	s.mu.Lock()
	if s.state != SessionReady {
		s.mu.Unlock()
		return
	}
	channelID := s.channelID
	s.mu.Unlock()

	_ = s.channel.Emit(realtime.OpDMTyping, realtime.DMTypingPayload{
		ChannelID: channelID,
		From:      s.selfID,
	})
}

// Close, odadan ayrılır, abonelikleri bırakır ve oturumu Idle'a döndürür.
// Epoch ilerler — uçuştaki tüm tamamlanmalar geçersizleşir.
func (s *ConversationSession) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.teardownLocked()
	s.epoch++
	s.state = SessionIdle
	s.partnerID = ""
	s.channelID = ""
	s.partner = nil
	s.msgs = nil
	s.hasMore = false
	s.sending = false
	s.loadingOlder = false
	s.typingFrom = ""
	s.notifyLocked()
}

// ---- iç mekanikler ----

func roomName(channelID string) string {
	return "dm:" + channelID
}

// beginSend, guard'ları uygular ve optimistic kaydı ekler.
// ok=false → no-op (hazır değil veya gönderim zaten uçuşta).
func (s *ConversationSession) beginSend(body string, kind models.MessageKind) (e int, nonce, channelID string, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != SessionReady || s.sending {
		return 0, "", "", false
	}

	nonce = uuid.NewString()
	optimistic := models.Message{
		Nonce:     nonce,
		ChannelID: s.channelID,
		From:      s.selfID,
		To:        s.partnerID,
		Kind:      kind,
		Body:      body,
		Timestamp: time.Now(),
		State:     models.StateSent,
	}
	s.msgs = reconcile.Finalize(reconcile.MergeOne(s.msgs, optimistic, reconcile.PreferLocal))
	s.sending = true
	s.notifyLocked()
	return s.epoch, nonce, s.channelID, true
}

// completeSend, authoritative yazımın sonucunu state'e uygular.
func (s *ConversationSession) completeSend(ctx context.Context, e int, nonce, channelID string, confirmed *models.Message, sendErr error) {
	s.mu.Lock()
	if s.epoch != e {
		s.mu.Unlock()
		return
	}
	s.sending = false

	if sendErr != nil {
		log.Warn().Err(sendErr).Str("nonce", nonce).Msg("send failed, marking in place")
		for i := range s.msgs {
			if s.msgs[i].Nonce == nonce && s.msgs[i].ServerID == "" {
				s.msgs[i].State = models.StateFailed
			}
		}
		s.notifyLocked()
		s.mu.Unlock()
		return
	}

	s.resolved[nonce] = true
	s.msgs = reconcile.Finalize(reconcile.MergeOne(s.msgs, *confirmed, reconcile.PreferServer))
	s.notifyLocked()
	persisted := s.copyMessagesLocked()
	s.mu.Unlock()

	s.persist(ctx, channelID, persisted)
}

// applyBatchLocked, gelen batch'i PreferServer ile merge edip finalize eder
// ve resolved nonce defterini günceller.
func (s *ConversationSession) applyBatchLocked(batch []models.Message) {
	for _, m := range batch {
		if m.ServerID != "" && m.Nonce != "" {
			s.resolved[m.Nonce] = true
		}
	}
	s.msgs = reconcile.Finalize(reconcile.Merge(s.msgs, batch, reconcile.PreferServer))
}

// subscribeLocked, açık konuşmanın realtime handler'larını bağlar.
// Her handler açılış epoch'unu taşır — Close/yeni Open sonrası gelen
// event'ler state'e dokunamaz.
func (s *ConversationSession) subscribeLocked(e int) {
	s.offs = append(s.offs,
		s.channel.On(realtime.OpDMMessageCreate, s.handleCreate(e)),
		s.channel.On(realtime.OpDMMessageUpdate, s.handleUpdate(e)),
		s.channel.On(realtime.OpDMMessageDelete, s.handleDelete(e)),
		s.channel.On(realtime.OpDMTypingStart, s.handleTyping(e)),
	)
}

func (s *ConversationSession) handleCreate(e int) realtime.Handler {
	return func(data json.RawMessage) {
		var p realtime.DMMessagePayload
		if err := json.Unmarshal(data, &p); err != nil {
			log.Debug().Err(err).Msg("malformed dm_message_create payload dropped")
			return
		}
		if !p.Valid() {
			return
		}

		s.mu.Lock()
		defer s.mu.Unlock()
		if s.epoch != e || p.ChannelID != s.channelID {
			return
		}

		m := p.ToMessage(time.Now())
		if m.ServerID == "" && m.Nonce != "" && s.resolved[m.Nonce] && !s.hasNonceLocked(m.Nonce) {
			// Çoktan onaylanmış bir nonce'un geç echo'su, satır da artık
			// elde değil — yeniden insert etmek duplikasyon olurdu.
			return
		}
		if m.ServerID != "" && m.Nonce != "" {
			s.resolved[m.Nonce] = true
		}
		s.msgs = reconcile.Finalize(reconcile.MergeOne(s.msgs, m, reconcile.PreferServer))
		s.notifyLocked()
	}
}

func (s *ConversationSession) handleUpdate(e int) realtime.Handler {
	return func(data json.RawMessage) {
		var p realtime.DMMessageUpdatePayload
		if err := json.Unmarshal(data, &p); err != nil || p.ID == "" {
			return
		}

		s.mu.Lock()
		defer s.mu.Unlock()
		if s.epoch != e || (p.ChannelID != "" && p.ChannelID != s.channelID) {
			return
		}
		// Targeted patch — merge'den geçmez, nonce güvenilir taşınmaz.
		s.patchLocked(p.ID, p.Content, models.StateEdited)
		s.notifyLocked()
	}
}

func (s *ConversationSession) handleDelete(e int) realtime.Handler {
	return func(data json.RawMessage) {
		var p realtime.DMMessageDeletePayload
		if err := json.Unmarshal(data, &p); err != nil || p.ID == "" {
			return
		}

		s.mu.Lock()
		defer s.mu.Unlock()
		if s.epoch != e || (p.ChannelID != "" && p.ChannelID != s.channelID) {
			return
		}
		s.tombstoneLocked(p.ID)
		s.notifyLocked()
	}
}

func (s *ConversationSession) handleTyping(e int) realtime.Handler {
	return func(data json.RawMessage) {
		var p realtime.DMTypingPayload
		if err := json.Unmarshal(data, &p); err != nil {
			return
		}

		s.mu.Lock()
		defer s.mu.Unlock()
		if s.epoch != e || p.ChannelID != s.channelID || p.From == s.selfID {
			return
		}
		who := p.Username
		if who == "" {
			who = p.From
		}
		s.typingFrom = who
		s.notifyLocked()

		// Transient state: karşı taraf sinyali yenilemezse kendiliğinden söner.
		time.AfterFunc(4*time.Second, func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			if s.epoch == e && s.typingFrom == who {
				s.typingFrom = ""
				s.notifyLocked()
			}
		})
	}
}

// patchLocked, serverID ile bulunan satıra içerik patch'i uygular.
// Timestamp'e dokunulmaz — mesaj history'deki pozisyonunu korur.
func (s *ConversationSession) patchLocked(serverID, body string, state models.MessageState) {
	for i := range s.msgs {
		if s.msgs[i].ServerID == serverID {
			s.msgs[i].Body = body
			s.msgs[i].State = state
			return
		}
	}
}

// tombstoneLocked: silinen mesaj listeden çıkmaz, body temizlenir.
func (s *ConversationSession) tombstoneLocked(serverID string) {
	for i := range s.msgs {
		if s.msgs[i].ServerID == serverID {
			s.msgs[i].Body = ""
			s.msgs[i].State = models.StateDeleted
			return
		}
	}
}

func (s *ConversationSession) hasNonceLocked(nonce string) bool {
	for _, m := range s.msgs {
		if m.Nonce == nonce {
			return true
		}
	}
	return false
}

// seedFromCache, konuşmayı son bilinen mesajlarla önceden doldurur.
// Crash'ten dönen onaylanmamış optimistic satır failed olarak gösterilir —
// gönderim belirsiz kaldı, kullanıcı yeniden deneyebilmeli.
func (s *ConversationSession) seedFromCache(ctx context.Context, e int, channelID string) {
	if s.history == nil {
		return
	}
	cached, err := s.history.GetMessages(ctx, channelID, s.pageSize)
	if err != nil {
		log.Debug().Err(err).Str("channel", channelID).Msg("cache seed failed")
		return
	}
	if len(cached) == 0 {
		return
	}
	for i := range cached {
		if cached[i].ServerID == "" && cached[i].State == models.StateSent {
			cached[i].State = models.StateFailed
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.epoch != e {
		return
	}
	s.msgs = reconcile.Finalize(cached)
	s.notifyLocked()
}

// persist, finalize edilmiş listeyi cache'e yazar. Best-effort.
func (s *ConversationSession) persist(ctx context.Context, channelID string, msgs []models.Message) {
	if s.history == nil || channelID == "" {
		return
	}
	if err := s.history.ReplaceConversation(ctx, channelID, msgs); err != nil {
		log.Warn().Err(err).Str("channel", channelID).Msg("history cache write failed")
	}
}

func (s *ConversationSession) teardownLocked() {
	if s.channelID != "" && s.state == SessionReady {
		if err := s.channel.Leave(roomName(s.channelID)); err != nil {
			log.Debug().Err(err).Str("channel", s.channelID).Msg("room leave failed")
		}
	}
	for _, off := range s.offs {
		off()
	}
	s.offs = nil
}

// abandonOpen, başarısız açılışı Idle'a döndürür (epoch hâlâ bizimse).
func (s *ConversationSession) abandonOpen(e int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.epoch != e {
		return
	}
	s.state = SessionIdle
	s.notifyLocked()
}

func (s *ConversationSession) copyMessagesLocked() []models.Message {
	return append([]models.Message(nil), s.msgs...)
}

func (s *ConversationSession) notifyLocked() {
	if s.render == nil {
		return
	}
	s.render(Snapshot{
		State:        s.state,
		PartnerID:    s.partnerID,
		Partner:      s.partner,
		ChannelID:    s.channelID,
		Messages:     s.copyMessagesLocked(),
		HasMore:      s.hasMore,
		Sending:      s.sending,
		LoadingOlder: s.loadingOlder,
		TypingFrom:   s.typingFrom,
	})
}
