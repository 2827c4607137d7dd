package repository

import (
	"context"
	"io/fs"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/akinalp/ulak/database"
	"github.com/akinalp/ulak/models"
)

func newTestRepo(t *testing.T) HistoryRepository {
	t.Helper()

	migrations, err := fs.Sub(database.EmbeddedMigrations, "migrations")
	require.NoError(t, err)

	db, err := database.New(filepath.Join(t.TempDir(), "cache.db"), migrations)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	return NewSQLiteHistoryRepo(db.Conn)
}

func cmsg(serverID, nonce, body string, sec int) models.Message {
	return models.Message{
		ServerID:  serverID,
		Nonce:     nonce,
		ChannelID: "ch1",
		From:      "u1",
		To:        "u2",
		Kind:      models.KindText,
		Body:      body,
		Timestamp: time.Date(2025, 6, 1, 12, 0, sec, 0, time.UTC),
		State:     models.StateSent,
	}
}

func TestReplaceAndGetRoundTrip(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	msgs := []models.Message{
		cmsg("s1", "", "a", 1),
		cmsg("", "c2", "b", 2), // henüz onaylanmamış optimistic kayıt
		cmsg("s3", "c3", "c", 3),
	}
	require.NoError(t, repo.ReplaceConversation(ctx, "ch1", msgs))

	got, err := repo.GetMessages(ctx, "ch1", 50)
	require.NoError(t, err)
	require.Len(t, got, 3)

	// Kronolojik sıra ve çifte kimlik korunur
	assert.Equal(t, "s1", got[0].ServerID)
	assert.Equal(t, "c2", got[1].Nonce)
	assert.Empty(t, got[1].ServerID)
	assert.Equal(t, "s3", got[2].ServerID)
	assert.Equal(t, "c3", got[2].Nonce)
	assert.Equal(t, int64(msgs[0].Timestamp.UnixMilli()), got[0].Timestamp.UnixMilli())
}

func TestReplaceOverwritesPreviousCache(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.ReplaceConversation(ctx, "ch1", []models.Message{cmsg("s1", "", "old", 1)}))
	require.NoError(t, repo.ReplaceConversation(ctx, "ch1", []models.Message{cmsg("s2", "", "new", 2)}))

	got, err := repo.GetMessages(ctx, "ch1", 50)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "s2", got[0].ServerID)
}

func TestGetMessagesLimitKeepsNewest(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	var msgs []models.Message
	for i := 1; i <= 5; i++ {
		msgs = append(msgs, cmsg("s"+string(rune('0'+i)), "", "m", i))
	}
	require.NoError(t, repo.ReplaceConversation(ctx, "ch1", msgs))

	got, err := repo.GetMessages(ctx, "ch1", 2)
	require.NoError(t, err)
	require.Len(t, got, 2)

	// En yeni ikisi, kronolojik sırada
	assert.Equal(t, "s4", got[0].ServerID)
	assert.Equal(t, "s5", got[1].ServerID)
}

func TestChannelsAreIsolated(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.ReplaceConversation(ctx, "ch1", []models.Message{cmsg("s1", "", "a", 1)}))

	other := cmsg("s2", "", "b", 2)
	other.ChannelID = "ch2"
	require.NoError(t, repo.ReplaceConversation(ctx, "ch2", []models.Message{other}))

	got, err := repo.GetMessages(ctx, "ch1", 50)
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestUnidentifiedWithoutRenderKeySkipped(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	ghost := models.Message{ChannelID: "ch1", Body: "ghost", Timestamp: time.Now()}
	require.NoError(t, repo.ReplaceConversation(ctx, "ch1", []models.Message{ghost}))

	got, err := repo.GetMessages(ctx, "ch1", 50)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestUnreadSnapshotRoundTrip(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	entries := []models.UnreadEntry{
		{PartnerID: "p1", ChannelID: "ch1", Count: 2},
		{PartnerID: "p3", ChannelID: "ch3", Count: 5},
	}
	require.NoError(t, repo.SaveUnreadSnapshot(ctx, entries))

	got, err := repo.GetUnreadSnapshot(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, entries, got)

	// Yeni snapshot eskisini tümüyle değiştirir
	require.NoError(t, repo.SaveUnreadSnapshot(ctx, []models.UnreadEntry{{PartnerID: "p1", ChannelID: "ch1", Count: 0}}))
	got, err = repo.GetUnreadSnapshot(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 0, got[0].Count)
}
