package services

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/akinalp/ulak/models"
	"github.com/akinalp/ulak/realtime"
)

// fakeChatAPI, fonksiyon alanlarıyla override edilebilen test double'ı.
// Set edilmeyen alanlar makul default'larla cevap verir.
type fakeChatAPI struct {
	mu sync.Mutex

	openChannelFn func(partnerID string) (*models.ChannelInfo, error)
	getPartnerFn  func(partnerID string) (*models.PartnerMeta, error)
	getMessagesFn func(channelID, beforeID string, limit int) (*models.MessagePage, error)
	sendMessageFn func(channelID string, req *models.SendMessageRequest) (*models.Message, error)
	editMessageFn func(messageID string, req *models.UpdateMessageRequest) (*models.Message, error)
	deleteFn      func(messageID string) error
	markReadFn    func(channelID string) error
	uploadFn      func(localPath string) (string, error)
	unreadsFn     func() ([]models.UnreadEntry, error)

	sentRequests []*models.SendMessageRequest
	markedRead   []string
}

func (f *fakeChatAPI) OpenChannel(_ context.Context, partnerID string) (*models.ChannelInfo, error) {
	if f.openChannelFn != nil {
		return f.openChannelFn(partnerID)
	}
	return &models.ChannelInfo{ID: "ch-" + partnerID}, nil
}

func (f *fakeChatAPI) GetPartner(_ context.Context, partnerID string) (*models.PartnerMeta, error) {
	if f.getPartnerFn != nil {
		return f.getPartnerFn(partnerID)
	}
	return &models.PartnerMeta{ID: partnerID, Username: "user-" + partnerID}, nil
}

func (f *fakeChatAPI) GetMessages(_ context.Context, channelID, beforeID string, limit int) (*models.MessagePage, error) {
	if f.getMessagesFn != nil {
		return f.getMessagesFn(channelID, beforeID, limit)
	}
	return &models.MessagePage{}, nil
}

func (f *fakeChatAPI) SendMessage(_ context.Context, channelID string, req *models.SendMessageRequest) (*models.Message, error) {
	f.mu.Lock()
	f.sentRequests = append(f.sentRequests, req)
	f.mu.Unlock()
	if f.sendMessageFn != nil {
		return f.sendMessageFn(channelID, req)
	}
	return &models.Message{
		ServerID:  "srv-" + req.Nonce,
		Nonce:     req.Nonce,
		ChannelID: channelID,
		Body:      req.Content,
		Kind:      req.Type,
	}, nil
}

func (f *fakeChatAPI) EditMessage(_ context.Context, messageID string, req *models.UpdateMessageRequest) (*models.Message, error) {
	if f.editMessageFn != nil {
		return f.editMessageFn(messageID, req)
	}
	return &models.Message{ServerID: messageID, Body: req.Content}, nil
}

func (f *fakeChatAPI) DeleteMessage(_ context.Context, messageID string) error {
	if f.deleteFn != nil {
		return f.deleteFn(messageID)
	}
	return nil
}

func (f *fakeChatAPI) MarkRead(_ context.Context, channelID string) error {
	f.mu.Lock()
	f.markedRead = append(f.markedRead, channelID)
	f.mu.Unlock()
	if f.markReadFn != nil {
		return f.markReadFn(channelID)
	}
	return nil
}

func (f *fakeChatAPI) Upload(_ context.Context, localPath string) (string, error) {
	if f.uploadFn != nil {
		return f.uploadFn(localPath)
	}
	return "https://cdn.example.com/uploaded", nil
}

func (f *fakeChatAPI) GetUnreadCounts(_ context.Context) ([]models.UnreadEntry, error) {
	if f.unreadsFn != nil {
		return f.unreadsFn()
	}
	return nil, nil
}

func (f *fakeChatAPI) sent() []*models.SendMessageRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*models.SendMessageRequest(nil), f.sentRequests...)
}

func (f *fakeChatAPI) readMarks() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.markedRead...)
}

// fakeChannel, in-memory realtime.Channel. push ile event enjekte edilir.
type fakeChannel struct {
	mu       sync.Mutex
	nextID   int
	handlers map[string]map[int]realtime.Handler
	joined   []string
	left     []string
	emitted  []realtime.Event
}

func newFakeChannel() *fakeChannel {
	return &fakeChannel{handlers: make(map[string]map[int]realtime.Handler)}
}

func (c *fakeChannel) Join(room string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.joined = append(c.joined, room)
	return nil
}

func (c *fakeChannel) Leave(room string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.left = append(c.left, room)
	return nil
}

func (c *fakeChannel) Emit(op string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.emitted = append(c.emitted, realtime.Event{Op: op, Data: data})
	return nil
}

func (c *fakeChannel) On(op string, h realtime.Handler) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.handlers[op] == nil {
		c.handlers[op] = make(map[int]realtime.Handler)
	}
	id := c.nextID
	c.nextID++
	c.handlers[op][id] = h
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.handlers[op], id)
	}
}

// push, server'dan event gelmiş gibi tüm abone handler'ları çağırır.
func (c *fakeChannel) push(op string, payload any) {
	data, _ := json.Marshal(payload)
	c.mu.Lock()
	hs := make([]realtime.Handler, 0, len(c.handlers[op]))
	for _, h := range c.handlers[op] {
		hs = append(hs, h)
	}
	c.mu.Unlock()
	for _, h := range hs {
		h(data)
	}
}

func (c *fakeChannel) handlerCount(op string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.handlers[op])
}

// fakeHistory, in-memory HistoryRepository.
type fakeHistory struct {
	mu       sync.Mutex
	byChan   map[string][]models.Message
	snapshot []models.UnreadEntry
}

func newFakeHistory() *fakeHistory {
	return &fakeHistory{byChan: make(map[string][]models.Message)}
}

func (h *fakeHistory) GetMessages(_ context.Context, channelID string, limit int) ([]models.Message, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	msgs := h.byChan[channelID]
	if len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	return append([]models.Message(nil), msgs...), nil
}

func (h *fakeHistory) ReplaceConversation(_ context.Context, channelID string, msgs []models.Message) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.byChan[channelID] = append([]models.Message(nil), msgs...)
	return nil
}

func (h *fakeHistory) GetUnreadSnapshot(_ context.Context) ([]models.UnreadEntry, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]models.UnreadEntry(nil), h.snapshot...), nil
}

func (h *fakeHistory) SaveUnreadSnapshot(_ context.Context, entries []models.UnreadEntry) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.snapshot = append([]models.UnreadEntry(nil), entries...)
	return nil
}

// snapshotRecorder, render callback'lerini sırayla biriktirir.
type snapshotRecorder struct {
	mu    sync.Mutex
	snaps []Snapshot
}

func (r *snapshotRecorder) record(s Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snaps = append(r.snaps, s)
}

func (r *snapshotRecorder) last() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.snaps) == 0 {
		return Snapshot{}
	}
	return r.snaps[len(r.snaps)-1]
}

func (r *snapshotRecorder) all() []Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Snapshot(nil), r.snaps...)
}
