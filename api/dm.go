package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/akinalp/ulak/models"
	"github.com/akinalp/ulak/pkg"
)

// OpenChannel, partner ile aradaki DM kanalını bulur veya oluşturur.
func (c *Client) OpenChannel(ctx context.Context, partnerID string) (*models.ChannelInfo, error) {
	var ch models.ChannelInfo
	body := map[string]string{"user_id": partnerID}
	if err := c.do(ctx, http.MethodPost, "/api/dms", nil, body, &ch); err != nil {
		return nil, err
	}
	return &ch, nil
}

// ListChannels, kullanıcının tüm DM kanallarını listeler.
func (c *Client) ListChannels(ctx context.Context) ([]models.ChannelInfo, error) {
	var channels []models.ChannelInfo
	if err := c.do(ctx, http.MethodGet, "/api/dms", nil, nil, &channels); err != nil {
		return nil, err
	}
	return channels, nil
}

// GetMessages, kanalın mesajlarını cursor-based pagination ile getirir.
// beforeID boşsa en yeni sayfa döner; doluysa o mesajdan strictly eski
// mesajlar döner.
func (c *Client) GetMessages(ctx context.Context, channelID, beforeID string, limit int) (*models.MessagePage, error) {
	query := url.Values{}
	query.Set("limit", strconv.Itoa(limit))
	if beforeID != "" {
		query.Set("before", beforeID)
	}

	var page models.MessagePage
	path := "/api/dms/" + url.PathEscape(channelID) + "/messages"
	if err := c.do(ctx, http.MethodGet, path, query, nil, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// SendMessage, authoritative mesaj yazımıdır. Dönen mesaj ServerID taşır
// ve request'teki nonce'u aynen geri yansıtır — optimistic kayıtla
// eşleşme bu nonce üzerinden yapılır.
func (c *Client) SendMessage(ctx context.Context, channelID string, req *models.SendMessageRequest) (*models.Message, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", pkg.ErrBadRequest, err)
	}

	var msg models.Message
	path := "/api/dms/" + url.PathEscape(channelID) + "/messages"
	if err := c.do(ctx, http.MethodPost, path, nil, req, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// EditMessage, mesaj içeriğini günceller.
func (c *Client) EditMessage(ctx context.Context, messageID string, req *models.UpdateMessageRequest) (*models.Message, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", pkg.ErrBadRequest, err)
	}

	var msg models.Message
	path := "/api/dms/messages/" + url.PathEscape(messageID)
	if err := c.do(ctx, http.MethodPatch, path, nil, req, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// DeleteMessage, mesajı siler. Server tarafı tombstone'lar; client'a
// dm_message_delete event'i döner.
func (c *Client) DeleteMessage(ctx context.Context, messageID string) error {
	path := "/api/dms/messages/" + url.PathEscape(messageID)
	return c.do(ctx, http.MethodDelete, path, nil, nil, nil)
}

// partnerEndpoints, metadata fallback zinciri. Backend sürümleri arasında
// kullanıcı lookup'ı farklı path'lerde yaşadı — ilk 404 olmayan sonuç
// kabul edilir.
var partnerEndpoints = []string{
	"/api/users/",
	"/api/members/",
	"/api/profiles/",
}

// GetPartner, partner metadata'sını fallback zinciriyle getirir.
// Tüm endpoint'ler 404 dönerse ErrNotFound döner — caller hint'leriyle
// devam eder, konuşma açılışı metadata yüzünden bloklanmaz.
// Başarılı sonuç TTL cache'e girer; zincir her açılışta yeniden koşmaz.
func (c *Client) GetPartner(ctx context.Context, partnerID string) (*models.PartnerMeta, error) {
	if meta, ok := c.partners.Get(partnerID); ok {
		return meta, nil
	}

	var lastErr error = pkg.ErrNotFound
	for _, prefix := range partnerEndpoints {
		var meta models.PartnerMeta
		err := c.do(ctx, http.MethodGet, prefix+url.PathEscape(partnerID), nil, nil, &meta)
		if err == nil {
			c.partners.Set(partnerID, &meta)
			return &meta, nil
		}
		if !errors.Is(err, pkg.ErrNotFound) {
			// 404 dışı hata — zincirde devam etmenin anlamı yok,
			// backend'e ulaşamıyoruz veya yetki sorunu var.
			return nil, err
		}
		log.Debug().Str("endpoint", prefix).Str("partner", partnerID).Msg("partner lookup 404, trying next")
		lastErr = err
	}
	return nil, lastErr
}

// MarkRead, kanalı okundu işaretler (read-receipt yazımı).
func (c *Client) MarkRead(ctx context.Context, channelID string) error {
	path := "/api/dms/" + url.PathEscape(channelID) + "/read"
	return c.do(ctx, http.MethodPost, path, nil, nil, nil)
}

// GetUnreadCounts, authoritative partner-başına okunmamış sayılarını
// getirir. Unread aggregator bu sonuçla mapping'ini TÜMÜYLE değiştirir.
func (c *Client) GetUnreadCounts(ctx context.Context) ([]models.UnreadEntry, error) {
	var entries []models.UnreadEntry
	if err := c.do(ctx, http.MethodGet, "/api/dms/unreads", nil, nil, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}
