package service

import (
	"context"
	"strings"
	"sync"
	"testing"

	"bookswap/database"
	"bookswap/internal/microservices/http-api/models"
	"bookswap/internal/microservices/http-api/repository"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"gorm.io/gorm"
)

type ChatServiceSuite struct {
	suite.Suite
	db     *gorm.DB
	mr     *miniredis.Miniredis
	unread *repository.UnreadRepository
	svc    ChatService
	ctx    context.Context

	alice, bob, carol *models.User
}

func TestChatServiceSuite(t *testing.T) {
	suite.Run(t, new(ChatServiceSuite))
}

func (s *ChatServiceSuite) SetupTest() {
	t := s.T()
	db, err := database.Open("sqlite", ":memory:")
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	s.db = db
	s.ctx = context.Background()

	s.mr = miniredis.RunT(t)
	client, err := repository.NewRedisClient(s.ctx, "redis://"+s.mr.Addr(), "")
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })
	s.unread = repository.NewUnreadRepository(client)

	users := repository.NewUserRepository(db)
	s.svc = NewChatService(repository.NewChatRepository(db), users, s.unread, nil)

	for _, u := range []**models.User{&s.alice, &s.bob, &s.carol} {
		*u = &models.User{Password: "hash"}
	}
	s.alice.Username, s.bob.Username, s.carol.Username = "alice", "bob", "carol"
	for _, u := range []*models.User{s.alice, s.bob, s.carol} {
		require.NoError(t, users.Create(s.ctx, u))
	}
}

func (s *ChatServiceSuite) TestCreateOrGetReturnsSameRoomEitherDirection() {
	first, err := s.svc.CreateOrGetRoom(s.ctx, s.alice.ID, s.bob.ID, "  Dune ")
	s.Require().NoError(err)
	s.Equal("Dune", first.BookTitle)
	s.Equal("alice", first.User1Username)
	s.Equal("bob", first.User2Username)

	again, err := s.svc.CreateOrGetRoom(s.ctx, s.bob.ID, s.alice.ID, "Dune")
	s.Require().NoError(err)
	s.Equal(first.ID, again.ID)

	other, err := s.svc.CreateOrGetRoom(s.ctx, s.alice.ID, s.bob.ID, "Emma")
	s.Require().NoError(err)
	s.NotEqual(first.ID, other.ID)
}

func (s *ChatServiceSuite) TestCreateOrGetConcurrentCreatorsShareOneRoom() {
	const n = 8
	ids := make([]string, n)
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			a, b := s.alice.ID, s.bob.ID
			if i%2 == 1 {
				a, b = b, a
			}
			room, err := s.svc.CreateOrGetRoom(s.ctx, a, b, "Dune")
			errs[i] = err
			if err == nil {
				ids[i] = room.ID
			}
		}(i)
	}
	wg.Wait()

	for i := 0; i < n; i++ {
		s.Require().NoError(errs[i])
		s.Equal(ids[0], ids[i])
	}
	var count int64
	s.Require().NoError(s.db.Model(&models.ChatRoom{}).Count(&count).Error)
	s.Equal(int64(1), count)
}

func (s *ChatServiceSuite) TestCreateOrGetValidation() {
	_, err := s.svc.CreateOrGetRoom(s.ctx, s.alice.ID, s.bob.ID, "   ")
	s.ErrorIs(err, ErrInvalidTitle)

	_, err = s.svc.CreateOrGetRoom(s.ctx, s.alice.ID, s.alice.ID, "Dune")
	s.ErrorIs(err, ErrSelfChat)

	_, err = s.svc.CreateOrGetRoom(s.ctx, s.alice.ID, uuid.NewString(), "Dune")
	s.ErrorIs(err, ErrUserNotFound)

	_, err = s.svc.CreateOrGetRoom(s.ctx, s.alice.ID, "not-a-uuid", "Dune")
	s.ErrorIs(err, ErrUserNotFound)
}

func (s *ChatServiceSuite) TestSendTrimsAndValidates() {
	room, err := s.svc.CreateOrGetRoom(s.ctx, s.alice.ID, s.bob.ID, "Dune")
	s.Require().NoError(err)

	msg, err := s.svc.SendMessage(s.ctx, s.alice.ID, room.ID, "  hello  ")
	s.Require().NoError(err)
	s.Equal("hello", msg.Body)
	s.Equal("alice", msg.SenderUsername)
	s.Equal(room.ID, msg.RoomID)
	s.False(msg.IsRead)

	_, err = s.svc.SendMessage(s.ctx, s.alice.ID, room.ID, " \n ")
	s.ErrorIs(err, ErrInvalidMessage)

	_, err = s.svc.SendMessage(s.ctx, s.alice.ID, room.ID, strings.Repeat("é", 501))
	s.ErrorIs(err, ErrInvalidMessage)

	_, err = s.svc.SendMessage(s.ctx, s.alice.ID, room.ID, strings.Repeat("é", 500))
	s.NoError(err)
}

func (s *ChatServiceSuite) TestOnlyParticipantsMayAccess() {
	room, err := s.svc.CreateOrGetRoom(s.ctx, s.alice.ID, s.bob.ID, "Dune")
	s.Require().NoError(err)

	_, err = s.svc.GetRoom(s.ctx, s.carol.ID, room.ID)
	s.ErrorIs(err, ErrNotParticipant)
	_, err = s.svc.SendMessage(s.ctx, s.carol.ID, room.ID, "hi")
	s.ErrorIs(err, ErrNotParticipant)
	s.ErrorIs(s.svc.DeleteRoom(s.ctx, s.carol.ID, room.ID), ErrNotParticipant)

	_, err = s.svc.GetRoom(s.ctx, s.alice.ID, uuid.NewString())
	s.ErrorIs(err, ErrRoomNotFound)
	_, err = s.svc.GetRoom(s.ctx, s.alice.ID, "garbage")
	s.ErrorIs(err, ErrRoomNotFound)
}

func (s *ChatServiceSuite) TestListRoomsCarriesPreviewAndUnread() {
	dune, err := s.svc.CreateOrGetRoom(s.ctx, s.alice.ID, s.bob.ID, "Dune")
	s.Require().NoError(err)
	emma, err := s.svc.CreateOrGetRoom(s.ctx, s.carol.ID, s.alice.ID, "Emma")
	s.Require().NoError(err)

	_, err = s.svc.SendMessage(s.ctx, s.bob.ID, dune.ID, "one")
	s.Require().NoError(err)
	_, err = s.svc.SendMessage(s.ctx, s.bob.ID, dune.ID, "two")
	s.Require().NoError(err)
	_, err = s.svc.SendMessage(s.ctx, s.carol.ID, emma.ID, "hey")
	s.Require().NoError(err)

	rooms, err := s.svc.ListRooms(s.ctx, s.alice.ID)
	s.Require().NoError(err)
	s.Require().Len(rooms, 2)
	s.Equal(emma.ID, rooms[0].ID)
	s.Equal("hey", rooms[0].Preview())
	s.Equal(1, rooms[0].UnreadCount)
	s.Equal(dune.ID, rooms[1].ID)
	s.Equal("two", rooms[1].Preview())
	s.Equal(2, rooms[1].UnreadCount)

	s.Equal("2", s.mr.HGet("unread:user:"+s.alice.ID, dune.ID))
}

func (s *ChatServiceSuite) TestGetRoomMarksOtherPartyRead() {
	room, err := s.svc.CreateOrGetRoom(s.ctx, s.alice.ID, s.bob.ID, "Dune")
	s.Require().NoError(err)
	_, err = s.svc.SendMessage(s.ctx, s.bob.ID, room.ID, "from bob")
	s.Require().NoError(err)
	_, err = s.svc.SendMessage(s.ctx, s.alice.ID, room.ID, "from alice")
	s.Require().NoError(err)

	full, err := s.svc.GetRoom(s.ctx, s.alice.ID, room.ID)
	s.Require().NoError(err)
	s.Require().Len(full.Messages, 2)
	s.Equal("from bob", full.Messages[0].Body)
	s.Equal("bob", full.Messages[0].SenderUsername)
	s.True(full.Messages[0].IsRead)
	s.False(full.Messages[1].IsRead)
	s.Empty(s.mr.HGet("unread:user:"+s.alice.ID, room.ID))

	rooms, err := s.svc.ListRooms(s.ctx, s.alice.ID)
	s.Require().NoError(err)
	s.Zero(rooms[0].UnreadCount)

	rooms, err = s.svc.ListRooms(s.ctx, s.bob.ID)
	s.Require().NoError(err)
	s.Equal(1, rooms[0].UnreadCount)
}

func (s *ChatServiceSuite) TestListSurvivesLostMirror() {
	dune, err := s.svc.CreateOrGetRoom(s.ctx, s.alice.ID, s.bob.ID, "Dune")
	s.Require().NoError(err)
	emma, err := s.svc.CreateOrGetRoom(s.ctx, s.carol.ID, s.alice.ID, "Emma")
	s.Require().NoError(err)

	_, err = s.svc.SendMessage(s.ctx, s.bob.ID, dune.ID, "one")
	s.Require().NoError(err)
	_, err = s.svc.SendMessage(s.ctx, s.bob.ID, dune.ID, "two")
	s.Require().NoError(err)
	_, err = s.svc.ListRooms(s.ctx, s.alice.ID)
	s.Require().NoError(err)

	// redis restarted: the next increment recreates a one-field hash
	s.mr.FlushAll()
	_, err = s.svc.SendMessage(s.ctx, s.carol.ID, emma.ID, "hey")
	s.Require().NoError(err)

	for range 2 {
		rooms, err := s.svc.ListRooms(s.ctx, s.alice.ID)
		s.Require().NoError(err)
		unread := map[string]int{}
		for _, r := range rooms {
			unread[r.ID] = r.UnreadCount
		}
		s.Equal(map[string]int{dune.ID: 2, emma.ID: 1}, unread)
	}
	s.Equal("2", s.mr.HGet("unread:user:"+s.alice.ID, dune.ID))
}

func (s *ChatServiceSuite) TestListReadsSeededMirror() {
	room, err := s.svc.CreateOrGetRoom(s.ctx, s.alice.ID, s.bob.ID, "Dune")
	s.Require().NoError(err)
	_, err = s.svc.SendMessage(s.ctx, s.bob.ID, room.ID, "hi")
	s.Require().NoError(err)

	rooms, err := s.svc.ListRooms(s.ctx, s.alice.ID)
	s.Require().NoError(err)
	s.Equal(1, rooms[0].UnreadCount)

	_, err = s.svc.SendMessage(s.ctx, s.bob.ID, room.ID, "still there?")
	s.Require().NoError(err)
	s.Equal("2", s.mr.HGet("unread:user:"+s.alice.ID, room.ID))

	rooms, err = s.svc.ListRooms(s.ctx, s.alice.ID)
	s.Require().NoError(err)
	s.Equal(2, rooms[0].UnreadCount)
}

func (s *ChatServiceSuite) TestFailedIncrementDropsMirror() {
	room, err := s.svc.CreateOrGetRoom(s.ctx, s.alice.ID, s.bob.ID, "Dune")
	s.Require().NoError(err)
	_, err = s.svc.ListRooms(s.ctx, s.alice.ID)
	s.Require().NoError(err)
	key := "unread:user:" + s.alice.ID
	s.NotEmpty(s.mr.HGet(key, "_seeded"))

	// HINCRBY fails on a non-integer field while DEL still works
	s.mr.HSet(key, room.ID, "garbage")
	_, err = s.svc.SendMessage(s.ctx, s.bob.ID, room.ID, "hi")
	s.Require().NoError(err)
	s.False(s.mr.Exists(key))

	rooms, err := s.svc.ListRooms(s.ctx, s.alice.ID)
	s.Require().NoError(err)
	s.Equal(1, rooms[0].UnreadCount)
}

func (s *ChatServiceSuite) TestListFallsBackToSQLWhenRedisDown() {
	room, err := s.svc.CreateOrGetRoom(s.ctx, s.alice.ID, s.bob.ID, "Dune")
	s.Require().NoError(err)
	_, err = s.svc.SendMessage(s.ctx, s.bob.ID, room.ID, "hi")
	s.Require().NoError(err)

	s.mr.Close()

	rooms, err := s.svc.ListRooms(s.ctx, s.alice.ID)
	s.Require().NoError(err)
	s.Require().Len(rooms, 1)
	s.Equal(1, rooms[0].UnreadCount)
}

func (s *ChatServiceSuite) TestListWithoutMirror() {
	svc := NewChatService(repository.NewChatRepository(s.db), repository.NewUserRepository(s.db), nil, nil)
	room, err := svc.CreateOrGetRoom(s.ctx, s.alice.ID, s.bob.ID, "Dune")
	s.Require().NoError(err)
	_, err = svc.SendMessage(s.ctx, s.bob.ID, room.ID, "hi")
	s.Require().NoError(err)

	rooms, err := svc.ListRooms(s.ctx, s.alice.ID)
	s.Require().NoError(err)
	s.Equal(1, rooms[0].UnreadCount)
}

func (s *ChatServiceSuite) TestDeleteRoom() {
	room, err := s.svc.CreateOrGetRoom(s.ctx, s.alice.ID, s.bob.ID, "Dune")
	s.Require().NoError(err)
	_, err = s.svc.SendMessage(s.ctx, s.alice.ID, room.ID, "hi")
	s.Require().NoError(err)

	s.Require().NoError(s.svc.DeleteRoom(s.ctx, s.bob.ID, room.ID))
	s.Empty(s.mr.HGet("unread:user:"+s.bob.ID, room.ID))

	_, err = s.svc.GetRoom(s.ctx, s.alice.ID, room.ID)
	s.ErrorIs(err, ErrRoomNotFound)
	s.ErrorIs(s.svc.DeleteRoom(s.ctx, s.alice.ID, room.ID), ErrRoomNotFound)

	rooms, err := s.svc.ListRooms(s.ctx, s.alice.ID)
	s.Require().NoError(err)
	s.Empty(rooms)
}
