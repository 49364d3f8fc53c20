package room

import (
	"fmt"
	"sync"
	"testing"

	"github.com/SphrGhfri/roomchat/internal/domain"
	"github.com/SphrGhfri/roomchat/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	general = domain.NewRoomKey(domain.RoomTypePublic, "general")
	lobby   = domain.NewRoomKey(domain.RoomTypePublic, "lobby")
	team    = domain.NewRoomKey(domain.RoomTypePrivate, "r1")
)

func newRegistry() *Registry {
	return NewRegistry(logger.Nop(), WithDefaultRooms("general"))
}

func TestCreateRoom(t *testing.T) {
	reg := newRegistry()

	t.Run("it should create a private room", func(t *testing.T) {
		info, created, err := reg.CreateRoom(team, "Team", "x")
		require.NoError(t, err)
		assert.True(t, created)
		assert.Equal(t, domain.RoomInfo{ID: "r1", Name: "Team", HasPassword: true}, info)
	})

	t.Run("it should keep an existing room untouched", func(t *testing.T) {
		_, err := reg.Join("u1", team, "x")
		require.NoError(t, err)

		info, created, err := reg.CreateRoom(team, "Other", "")
		require.NoError(t, err)
		assert.False(t, created)
		assert.Equal(t, "Team", info.Name)
		assert.True(t, info.HasPassword)
		assert.Equal(t, 1, info.MemberCount)
	})

	t.Run("it should reject direct rooms", func(t *testing.T) {
		_, _, err := reg.CreateRoom(domain.NewRoomKey(domain.RoomTypeDirect, "dm"), "dm", "")
		assert.ErrorIs(t, err, domain.ErrInvalidRoomType)
	})

	t.Run("it should drop passwords on public rooms", func(t *testing.T) {
		info, _, err := reg.CreateRoom(lobby, "Lobby", "ignored")
		require.NoError(t, err)
		assert.False(t, info.HasPassword)
	})
}

func TestJoinPrivateRoomPasswords(t *testing.T) {
	reg := newRegistry()

	_, err := reg.Join("u1", team, "x")
	assert.ErrorIs(t, err, domain.ErrRoomNotFound)

	_, _, err = reg.CreateRoom(team, "Team", "abc")
	require.NoError(t, err)

	_, err = reg.Join("u1", team, "xyz")
	assert.ErrorIs(t, err, domain.ErrBadPassword)
	assert.False(t, reg.IsMember("u1", team))

	_, err = reg.Join("u1", team, "abc")
	require.NoError(t, err)
	assert.True(t, reg.IsMember("u1", team))
}

func TestJoinPrivateRoomWithoutPassword(t *testing.T) {
	reg := newRegistry()
	_, _, err := reg.CreateRoom(team, "Team", "")
	require.NoError(t, err)

	_, err = reg.Join("u1", team, "anything")
	assert.NoError(t, err)
}

func TestJoinCreatesPublicRoomLazily(t *testing.T) {
	reg := newRegistry()
	assert.False(t, reg.Exists(lobby))

	backlog, err := reg.Join("u1", lobby, "")
	require.NoError(t, err)
	assert.True(t, reg.Exists(lobby))
	assert.Empty(t, backlog.Messages)
	assert.False(t, backlog.Hydrated)
	assert.NotEmpty(t, backlog.Boundary)
}

func TestLeave(t *testing.T) {
	reg := newRegistry()

	t.Run("it should be a no-op for non members", func(t *testing.T) {
		_, err := reg.Join("u1", general, "")
		require.NoError(t, err)

		assert.False(t, reg.Leave("u2", general))
		assert.False(t, reg.Leave("u2", lobby))
		assert.Equal(t, []string{"u1"}, reg.Members(general))
	})

	t.Run("it should keep default rooms when empty", func(t *testing.T) {
		assert.True(t, reg.Leave("u1", general))
		assert.False(t, reg.Leave("u1", general))
		assert.True(t, reg.Exists(general))
	})

	t.Run("it should prune empty lazily created rooms", func(t *testing.T) {
		_, err := reg.Join("u1", lobby, "")
		require.NoError(t, err)
		assert.True(t, reg.Leave("u1", lobby))
		assert.False(t, reg.Exists(lobby))
	})

	t.Run("it should keep empty private rooms", func(t *testing.T) {
		_, _, err := reg.CreateRoom(team, "Team", "x")
		require.NoError(t, err)
		_, err = reg.Join("u1", team, "x")
		require.NoError(t, err)
		assert.True(t, reg.Leave("u1", team))
		assert.True(t, reg.Exists(team))
	})
}

func TestLeaveAll(t *testing.T) {
	reg := newRegistry()
	_, _, err := reg.CreateRoom(team, "Team", "")
	require.NoError(t, err)
	for _, key := range []domain.RoomKey{general, lobby, team} {
		_, err := reg.Join("u1", key, "")
		require.NoError(t, err)
	}

	left := reg.LeaveAll("u1")
	assert.ElementsMatch(t, []domain.RoomKey{general, lobby, team}, left)
	assert.Empty(t, reg.LeaveAll("u1"))
	assert.False(t, reg.IsMember("u1", general))
}

func TestDeleteRoom(t *testing.T) {
	reg := newRegistry()
	_, _, err := reg.CreateRoom(team, "Team", "")
	require.NoError(t, err)
	_, err = reg.Join("u2", team, "")
	require.NoError(t, err)
	_, err = reg.Join("u1", team, "")
	require.NoError(t, err)

	name, members, err := reg.DeleteRoom(team)
	require.NoError(t, err)
	assert.Equal(t, "Team", name)
	assert.Equal(t, []string{"u1", "u2"}, members)
	assert.False(t, reg.Exists(team))
	assert.Empty(t, reg.LeaveAll("u1"))

	_, _, err = reg.DeleteRoom(team)
	assert.ErrorIs(t, err, domain.ErrRoomNotFound)
}

func TestListAvailableRooms(t *testing.T) {
	reg := newRegistry()
	_, _, err := reg.CreateRoom(team, "Team", "x")
	require.NoError(t, err)
	_, err = reg.Join("u1", general, "")
	require.NoError(t, err)
	_, err = reg.Join("u2", general, "")
	require.NoError(t, err)

	rooms := reg.ListAvailableRooms()
	assert.Equal(t, []domain.RoomInfo{{ID: "general", Name: "general", MemberCount: 2}}, rooms[domain.RoomTypePublic])
	assert.Equal(t, []domain.RoomInfo{{ID: "r1", Name: "Team", HasPassword: true}}, rooms[domain.RoomTypePrivate])
}

func TestBufferCap(t *testing.T) {
	reg := newRegistry()
	_, err := reg.Join("u1", general, "")
	require.NoError(t, err)

	var ids []string
	for i := 0; i < 75; i++ {
		msg, _, err := reg.Post(general, "u1", fmt.Sprintf("m%d", i))
		require.NoError(t, err)
		ids = append(ids, msg.ID)
	}

	buffered := reg.Messages(general)
	require.Len(t, buffered, domain.MaxBufferedMessages)
	assert.Equal(t, ids[25], buffered[0].ID)
	assert.Equal(t, "m74", buffered[49].Content)

	require.NoError(t, reg.AppendMessage(general, domain.Message{ID: domain.NewID(), Content: "extra"}))
	buffered = reg.Messages(general)
	require.Len(t, buffered, domain.MaxBufferedMessages)
	assert.Equal(t, "extra", buffered[49].Content)
	assert.Equal(t, "m26", buffered[0].Content)

	assert.ErrorIs(t, reg.AppendMessage(lobby, domain.Message{}), domain.ErrRoomNotFound)
}

func TestPost(t *testing.T) {
	reg := newRegistry()
	for _, id := range []string{"u1", "u2", "u3"} {
		_, err := reg.Join(id, general, "")
		require.NoError(t, err)
	}

	t.Run("it should exclude the sender from recipients", func(t *testing.T) {
		msg, recipients, err := reg.Post(general, "u2", "hello")
		require.NoError(t, err)
		assert.Equal(t, []string{"u1", "u3"}, recipients)
		assert.Equal(t, "u2", msg.SenderID)
		assert.Equal(t, general, msg.Key())
	})

	t.Run("it should reject non members", func(t *testing.T) {
		_, _, err := reg.Post(general, "u9", "hello")
		assert.ErrorIs(t, err, domain.ErrNotMember)
	})

	t.Run("it should reject unknown rooms", func(t *testing.T) {
		_, _, err := reg.Post(lobby, "u1", "hello")
		assert.ErrorIs(t, err, domain.ErrRoomNotFound)
	})
}

func TestJoinBacklogAndHydrate(t *testing.T) {
	reg := newRegistry()
	_, err := reg.Join("u1", general, "")
	require.NoError(t, err)
	posted, _, err := reg.Post(general, "u1", "live")
	require.NoError(t, err)

	backlog, err := reg.Join("u2", general, "")
	require.NoError(t, err)
	require.Len(t, backlog.Messages, 1)
	assert.False(t, backlog.Hydrated)
	assert.Less(t, posted.ID, backlog.Boundary)

	older := domain.Message{ID: "00000000000000000000000001", RoomType: general.Type, RoomID: general.ID, Content: "old"}
	reg.Hydrate(general, []domain.Message{older, posted})

	backlog, err = reg.Join("u3", general, "")
	require.NoError(t, err)
	assert.True(t, backlog.Hydrated)
	require.Len(t, backlog.Messages, 2)
	assert.Equal(t, "old", backlog.Messages[0].Content)
	assert.Equal(t, "live", backlog.Messages[1].Content)

	later, _, err := reg.Post(general, "u1", "after")
	require.NoError(t, err)
	assert.Greater(t, later.ID, backlog.Boundary)
}

func TestConcurrentJoinPostLeave(t *testing.T) {
	reg := newRegistry()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			pid := fmt.Sprintf("u%d", i)
			_, err := reg.Join(pid, general, "")
			assert.NoError(t, err)
			for j := 0; j < 10; j++ {
				_, _, err := reg.Post(general, pid, "msg")
				assert.NoError(t, err)
			}
			reg.Leave(pid, general)
		}(i)
	}
	wg.Wait()

	assert.Empty(t, reg.Members(general))
	assert.Len(t, reg.Messages(general), domain.MaxBufferedMessages)
}
