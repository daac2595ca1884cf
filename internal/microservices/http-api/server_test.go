package httpapi

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"bookswap/database"
	"bookswap/internal/chat"
	"bookswap/internal/chat/httptransport"
	"bookswap/internal/config"
	"bookswap/pkg/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	db, err := database.Open("sqlite", ":memory:")
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})

	cfg := &config.Config{
		GoEnv:          "test",
		JWTSecret:      "0123456789abcdef0123456789abcdef",
		AccessTokenTTL: time.Hour,
	}
	srv := httptest.NewServer(NewRouter(cfg, db, nil, nil))
	t.Cleanup(srv.Close)
	return srv
}

// signup registers name and returns a client holding its token.
func signup(t *testing.T, baseURL, name string) (*httptransport.Client, models.User) {
	t.Helper()
	anon := httptransport.New(httptransport.Config{BaseURL: baseURL, RateLimit: 1000, RateBurst: 1000})
	resp, err := anon.Signup(context.Background(), models.SignupRequest{Username: name, Password: "secret1"})
	require.NoError(t, err)
	return httptransport.New(httptransport.Config{
		BaseURL:   baseURL,
		Tokens:    httptransport.StaticToken(resp.AccessToken),
		RateLimit: 1000,
		RateBurst: 1000,
	}), resp.User
}

func TestCheckConn(t *testing.T) {
	srv := newTestServer(t)

	resp, err := http.Get(srv.URL + "/check-conn")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestChatRoundTrip(t *testing.T) {
	srv := newTestServer(t)
	base := srv.URL + "/api/v1"
	ctx := context.Background()

	aliceClient, alice := signup(t, base, "alice")
	bobClient, bob := signup(t, base, "bob")

	me, err := aliceClient.Me(ctx)
	require.NoError(t, err)
	assert.Equal(t, alice.ID, me.ID)

	room, err := aliceClient.CreateOrGetRoom(ctx, bob.ID, "Dune")
	require.NoError(t, err)
	same, err := bobClient.CreateOrGetRoom(ctx, alice.ID, "Dune")
	require.NoError(t, err)
	assert.Equal(t, room.ID, same.ID)

	_, err = aliceClient.SendMessage(ctx, room.ID, "  is it still available? ")
	require.NoError(t, err)

	rooms, err := bobClient.ListRooms(ctx)
	require.NoError(t, err)
	require.Len(t, rooms, 1)
	assert.Equal(t, 1, rooms[0].UnreadCount)
	assert.Equal(t, "is it still available?", rooms[0].Preview())

	full, err := bobClient.GetRoomWithMessages(ctx, room.ID)
	require.NoError(t, err)
	require.Len(t, full.Messages, 1)
	assert.Equal(t, alice.ID, full.Messages[0].SenderID)
	assert.Equal(t, "alice", full.Messages[0].SenderUsername)

	rooms, err = bobClient.ListRooms(ctx)
	require.NoError(t, err)
	assert.Zero(t, rooms[0].UnreadCount)

	_, err = aliceClient.SendMessage(ctx, room.ID, "   ")
	assert.ErrorIs(t, err, chat.ErrValidation)

	require.NoError(t, bobClient.DeleteRoom(ctx, room.ID))
	_, err = aliceClient.GetRoomWithMessages(ctx, room.ID)
	assert.ErrorIs(t, err, chat.ErrNotFound)
}

func TestOutsiderIsForbidden(t *testing.T) {
	srv := newTestServer(t)
	base := srv.URL + "/api/v1"
	ctx := context.Background()

	aliceClient, _ := signup(t, base, "alice")
	_, bob := signup(t, base, "bob")
	carolClient, _ := signup(t, base, "carol")

	room, err := aliceClient.CreateOrGetRoom(ctx, bob.ID, "Dune")
	require.NoError(t, err)

	_, err = carolClient.GetRoomWithMessages(ctx, room.ID)
	assert.ErrorIs(t, err, chat.ErrForbidden)
	_, err = carolClient.SendMessage(ctx, room.ID, "hi")
	assert.ErrorIs(t, err, chat.ErrForbidden)
}

func TestAuthErrors(t *testing.T) {
	srv := newTestServer(t)
	base := srv.URL + "/api/v1"
	ctx := context.Background()

	signup(t, base, "alice")
	anon := httptransport.New(httptransport.Config{BaseURL: base})

	_, err := anon.Signup(ctx, models.SignupRequest{Username: "alice", Password: "secret1"})
	assert.ErrorIs(t, err, chat.ErrValidation)

	_, err = anon.Login(ctx, models.LoginRequest{Username: "alice", Password: "wrong-pass"})
	assert.ErrorIs(t, err, chat.ErrAuth)

	var hookCalls atomic.Int32
	bad := httptransport.New(httptransport.Config{
		BaseURL:        base,
		Tokens:         httptransport.StaticToken("not-a-token"),
		OnUnauthorized: func(context.Context, error) { hookCalls.Add(1) },
	})
	_, err = bad.ListRooms(ctx)
	assert.ErrorIs(t, err, chat.ErrAuth)
	assert.Equal(t, int32(1), hookCalls.Load())
}

func TestSessionPollsRealBackend(t *testing.T) {
	srv := newTestServer(t)
	base := srv.URL + "/api/v1"
	ctx := context.Background()

	aliceClient, alice := signup(t, base, "alice")
	bobClient, bob := signup(t, base, "bob")

	room, err := aliceClient.CreateOrGetRoom(ctx, bob.ID, "Dune")
	require.NoError(t, err)

	session := chat.NewSession(bobClient, chat.Identity{UserID: bob.ID, Username: bob.Username}, chat.SessionConfig{
		MessagePollInterval:  20 * time.Millisecond,
		RoomListPollInterval: 20 * time.Millisecond,
	})
	defer session.Close()

	list, err := session.NewRoomListPoller()
	require.NoError(t, err)
	require.NoError(t, list.Focus(ctx))
	assert.Zero(t, session.Unread().Total())

	_, err = aliceClient.SendMessage(ctx, room.ID, "hello bob")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return session.Unread().Total() == 1
	}, 2*time.Second, 10*time.Millisecond)
	list.Blur()

	fresh := make(chan models.ChatMessage, 4)
	poller, err := session.NewMessagePoller(chat.MessagePollerConfig{
		OnNewMessages: func(_ models.ChatRoom, msgs []models.ChatMessage) {
			for _, m := range msgs {
				fresh <- m
			}
		},
	})
	require.NoError(t, err)

	opened, err := poller.Open(ctx, room.ID)
	require.NoError(t, err)
	require.Len(t, opened.Messages, 1)
	assert.False(t, session.IsMine(opened.Messages[0]))
	assert.Equal(t, alice.ID, session.OtherParticipant(opened.ChatRoom))

	_, err = aliceClient.SendMessage(ctx, room.ID, "still there?")
	require.NoError(t, err)

	select {
	case m := <-fresh:
		assert.Equal(t, "still there?", m.Body)
	case <-time.After(2 * time.Second):
		t.Fatal("poller never delivered the new message")
	}

	sent, err := poller.Send(ctx, "yes")
	require.NoError(t, err)
	assert.True(t, session.IsMine(*sent))
	assert.Len(t, poller.Messages(), 3)

	require.NoError(t, aliceClient.DeleteRoom(ctx, room.ID))
	require.Eventually(t, func() bool {
		return poller.State() == chat.Stopped
	}, 2*time.Second, 10*time.Millisecond)
	_, ok := session.Store().Room(room.ID)
	assert.False(t, ok)

	closed, reason := session.Closed()
	assert.False(t, closed)
	assert.False(t, errors.Is(reason, chat.ErrAuth))
}
