package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"peerline/go-backend/internal/domain"
)

func openTestStore(t *testing.T) *Messages {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "messages.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSaveAssignsIDAndTimestamp(t *testing.T) {
	s := openTestStore(t)

	m := &domain.Message{SenderID: "alice", Content: "hello"}
	require.NoError(t, s.Save(context.Background(), m))

	assert.NotEmpty(t, m.ID)
	assert.False(t, m.CreatedAt.IsZero())
}

func TestRecentNewestFirst(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	base := time.Now().UTC().Truncate(time.Millisecond)
	for i, content := range []string{"first", "second", "third"} {
		m := &domain.Message{
			SenderID:  "alice",
			Content:   content,
			CreatedAt: base.Add(time.Duration(i) * time.Second),
		}
		require.NoError(t, s.Save(ctx, m))
	}

	got, err := s.Recent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "third", got[0].Content)
	assert.Equal(t, "second", got[1].Content)
	assert.Equal(t, base.Add(2*time.Second), got[0].CreatedAt)
}

func TestSaveKeepsOptionalFields(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	m := &domain.Message{
		SenderID:    "alice",
		RecipientID: "bob",
		ReplyToID:   "m-0",
		Content:     "reply",
	}
	require.NoError(t, s.Save(ctx, m))

	got, err := s.Recent(ctx, 1)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, domain.UserID("bob"), got[0].RecipientID)
	assert.Equal(t, domain.MessageID("m-0"), got[0].ReplyToID)
}
