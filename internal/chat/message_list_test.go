package chat

import (
	"testing"
	"time"

	"bookswap/pkg/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

func msgAt(id string, sec int) models.ChatMessage {
	return models.ChatMessage{ID: id, RoomID: "r1", SenderID: "u1", Body: id, CreatedAt: t0.Add(time.Duration(sec) * time.Second)}
}

func ids(msgs []models.ChatMessage) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.ID
	}
	return out
}

func TestMessageList_AppendIgnoresKnownID(t *testing.T) {
	l := NewMessageList()

	assert.True(t, l.Append(msgAt("a", 1)))
	assert.False(t, l.Append(msgAt("a", 1)))
	assert.Equal(t, 1, l.Len())
	assert.True(t, l.Contains("a"))
}

func TestMessageList_AppendKeepsTimeOrder(t *testing.T) {
	l := NewMessageList()
	l.Append(msgAt("a", 1))
	l.Append(msgAt("c", 3))
	l.Append(msgAt("b", 2))

	assert.Equal(t, []string{"a", "b", "c"}, ids(l.Messages()))
}

func TestMessageList_MergeReturnsOnlyFresh(t *testing.T) {
	l := NewMessageList()
	fresh := l.Merge([]models.ChatMessage{msgAt("a", 1), msgAt("b", 2)})
	assert.Equal(t, []string{"a", "b"}, ids(fresh))

	fresh = l.Merge([]models.ChatMessage{msgAt("a", 1), msgAt("b", 2), msgAt("c", 3)})
	assert.Equal(t, []string{"c"}, ids(fresh))

	assert.Nil(t, l.Merge([]models.ChatMessage{msgAt("a", 1), msgAt("b", 2), msgAt("c", 3)}))
	assert.Equal(t, []string{"a", "b", "c"}, ids(l.Messages()))
}

func TestMessageList_SentThenPolledIsHeldOnce(t *testing.T) {
	l := NewMessageList()
	l.Merge([]models.ChatMessage{msgAt("a", 1)})

	mine := msgAt("b", 2)
	require.True(t, l.Append(mine))

	fresh := l.Merge([]models.ChatMessage{msgAt("a", 1), mine})
	assert.Empty(t, fresh)
	assert.Equal(t, []string{"a", "b"}, ids(l.Messages()))
}

func TestMessageList_MergeKeepsPendingLocalSend(t *testing.T) {
	l := NewMessageList()
	l.Merge([]models.ChatMessage{msgAt("a", 1)})
	// sent after the snapshot below was taken
	l.Append(msgAt("mine", 5))

	fresh := l.Merge([]models.ChatMessage{msgAt("a", 1), msgAt("b", 3)})

	assert.Equal(t, []string{"b"}, ids(fresh))
	assert.Equal(t, []string{"a", "b", "mine"}, ids(l.Messages()))
}

func TestMessageList_MergeDropsDuplicateIDsInSnapshot(t *testing.T) {
	l := NewMessageList()
	fresh := l.Merge([]models.ChatMessage{msgAt("a", 1), msgAt("a", 1), msgAt("b", 2)})

	assert.Equal(t, []string{"a", "b"}, ids(fresh))
	assert.Equal(t, 2, l.Len())
}

func TestMessageList_Reset(t *testing.T) {
	l := NewMessageList()
	l.Append(msgAt("a", 1))
	l.Reset()

	assert.Zero(t, l.Len())
	assert.False(t, l.Contains("a"))
}
