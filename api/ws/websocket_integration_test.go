package ws

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/SphrGhfri/roomchat/internal/direct"
	"github.com/SphrGhfri/roomchat/internal/domain"
	"github.com/SphrGhfri/roomchat/internal/room"
	"github.com/SphrGhfri/roomchat/internal/store"
	"github.com/SphrGhfri/roomchat/internal/websocket"
	"github.com/SphrGhfri/roomchat/pkg/logger"
	"github.com/SphrGhfri/roomchat/service"
	gws "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "integration-secret"

type testClient struct {
	conn *gws.Conn
	id   string
	t    *testing.T
}

type testEnv struct {
	server *httptest.Server
	auth   *Authenticator
	store  *store.Store
}

func setupTest(t *testing.T, limit RateLimit) *testEnv {
	t.Helper()
	log := logger.Nop()
	ctx := logger.NewContext(context.Background(), log)

	st, err := store.Open(":memory:")
	require.NoError(t, err)

	persister := service.NewPersister(st, service.DefaultPersisterConfig(), log)
	persister.Start()

	hub := websocket.NewHub(log)
	chat := service.NewChatService(service.Deps{
		Connections: hub,
		Rooms:       room.NewRegistry(log, room.WithDefaultRooms("general")),
		Directs:     direct.NewRegistry(log),
		Store:       st,
		Sink:        persister,
		Logger:      log,
	})

	stats := func() map[string]interface{} {
		return map[string]interface{}{"persist_pending": persister.Pending()}
	}
	auth := NewAuthenticator(testSecret)
	server := httptest.NewServer(SetupWebSocketRoutes(WSConfig{
		ChatService:   chat,
		Authenticator: auth,
		Conn:          websocket.DefaultConnConfig(),
		RateLimit:     limit,
		Health:        st.Ping,
		Stats:         stats,
		RootCtx:       ctx,
	}))

	t.Cleanup(func() {
		server.Close()
		hub.Close()
		_ = persister.Stop(context.Background())
		st.Close()
	})
	return &testEnv{server: server, auth: auth, store: st}
}

func (e *testEnv) token(t *testing.T, id string) string {
	t.Helper()
	tok, err := e.auth.Issue(id, strings.ToUpper(id), time.Hour)
	require.NoError(t, err)
	return tok
}

func (e *testEnv) connect(t *testing.T, id string) *testClient {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(e.server.URL, "http") + "/ws?token=" + url.QueryEscape(e.token(t, id))
	conn, _, err := gws.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return &testClient{conn: conn, id: id, t: t}
}

func (c *testClient) send(frame domain.Frame) {
	require.NoError(c.t, c.conn.WriteJSON(frame))
}

func (c *testClient) receive() domain.Payload {
	var p domain.Payload
	c.conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	require.NoError(c.t, c.conn.ReadJSON(&p))
	return p
}

// receiveType skips payloads until one of the wanted type arrives.
func (c *testClient) receiveType(want domain.PayloadType) domain.Payload {
	for {
		p := c.receive()
		if p.Type == want {
			return p
		}
	}
}

func TestRejectsUnauthenticated(t *testing.T) {
	env := setupTest(t, RateLimit{})
	wsURL := "ws" + strings.TrimPrefix(env.server.URL, "http") + "/ws?token=garbage"

	_, resp, err := gws.DefaultDialer.Dial(wsURL, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestWebSocketChatFlow(t *testing.T) {
	env := setupTest(t, RateLimit{})
	alice := env.connect(t, "alice")
	bob := env.connect(t, "bob")
	general := domain.Frame{Type: domain.FrameJoinRoom, RoomID: "general"}

	t.Run("join broadcasts a notice", func(t *testing.T) {
		alice.send(general)
		assert.Equal(t, "User ALICE joined the room", alice.receiveType(domain.PayloadSystem).Content)

		bob.send(general)
		assert.Equal(t, "User BOB joined the room", bob.receiveType(domain.PayloadSystem).Content)
		assert.Equal(t, "User BOB joined the room", alice.receiveType(domain.PayloadSystem).Content)
	})

	t.Run("messages reach other members", func(t *testing.T) {
		alice.send(domain.Frame{Type: domain.FrameChatMessage, RoomID: "general", Content: "Hello Bob!"})

		msg := bob.receiveType(domain.PayloadMessage)
		assert.Equal(t, "Hello Bob!", msg.Content)
		assert.Equal(t, "alice", msg.SenderID)
		assert.Equal(t, "ALICE", msg.Sender)
		assert.NotEmpty(t, msg.ID)
		_, err := time.Parse(time.RFC3339, msg.Timestamp)
		assert.NoError(t, err)
	})

	t.Run("malformed frames get an error", func(t *testing.T) {
		require.NoError(t, alice.conn.WriteMessage(gws.TextMessage, []byte("not json")))
		p := alice.receiveType(domain.PayloadError)
		assert.Contains(t, p.Content, domain.ErrMalformedPayload.Error())
	})

	t.Run("late joiners get history", func(t *testing.T) {
		carol := env.connect(t, "carol")
		carol.send(general)
		hist := carol.receiveType(domain.PayloadHistorical)
		assert.Equal(t, "Hello Bob!", hist.Content)
		assert.Equal(t, "ALICE", hist.Sender)
	})
}

func TestRateLimit(t *testing.T) {
	env := setupTest(t, RateLimit{PerSecond: 0.001, Burst: 1})
	alice := env.connect(t, "alice")

	alice.send(domain.Frame{Type: domain.FrameListRooms})
	assert.Equal(t, domain.PayloadRooms, alice.receive().Type)

	alice.send(domain.Frame{Type: domain.FrameListRooms})
	p := alice.receive()
	assert.Equal(t, domain.PayloadError, p.Type)
	assert.Equal(t, domain.ErrRateLimited.Error(), p.Content)
}

func TestRoomsAPI(t *testing.T) {
	env := setupTest(t, RateLimit{})
	client := env.server.Client()
	auth := "Bearer " + env.token(t, "admin")

	post := func(body string, withAuth bool) *http.Response {
		req, err := http.NewRequest(http.MethodPost, env.server.URL+"/api/rooms", bytes.NewBufferString(body))
		require.NoError(t, err)
		if withAuth {
			req.Header.Set("Authorization", auth)
		}
		resp, err := client.Do(req)
		require.NoError(t, err)
		t.Cleanup(func() { resp.Body.Close() })
		return resp
	}

	t.Run("create requires a token", func(t *testing.T) {
		resp := post(`{"room_type":"private","room_id":"r1","name":"Team","password":"x"}`, false)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("create then create again", func(t *testing.T) {
		resp := post(`{"room_type":"private","room_id":"r1","name":"Team","password":"x"}`, true)
		assert.Equal(t, http.StatusCreated, resp.StatusCode)

		resp = post(`{"room_type":"private","room_id":"r1","name":"Other"}`, true)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		var out createRoomResponse
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
		assert.False(t, out.Created)
		assert.Equal(t, "Team", out.Room.Name)
	})

	t.Run("room ids are trimmed", func(t *testing.T) {
		resp := post(`{"room_type":"private","room_id":"  spaced  ","password":"pw"}`, true)
		assert.Equal(t, http.StatusCreated, resp.StatusCode)

		member := env.connect(t, "member")
		member.send(domain.Frame{Type: domain.FrameJoinRoom, RoomType: "private", RoomID: "spaced", Password: "pw"})
		assert.Equal(t, "User MEMBER joined the room", member.receiveType(domain.PayloadSystem).Content)
		member.send(domain.Frame{Type: domain.FrameLeaveRoom, RoomType: "private", RoomID: "spaced"})
		member.receiveType(domain.PayloadSystem)

		req, err := http.NewRequest(http.MethodDelete, env.server.URL+"/api/rooms/private/spaced", nil)
		require.NoError(t, err)
		req.Header.Set("Authorization", auth)
		resp, err = client.Do(req)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	})

	t.Run("bad room type", func(t *testing.T) {
		resp := post(`{"room_type":"direct","room_id":"x"}`, true)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("list rooms", func(t *testing.T) {
		resp, err := client.Get(env.server.URL + "/api/rooms")
		require.NoError(t, err)
		defer resp.Body.Close()

		var rooms map[domain.RoomType][]domain.RoomInfo
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&rooms))
		assert.Equal(t, []domain.RoomInfo{{ID: "r1", Name: "Team", HasPassword: true}}, rooms[domain.RoomTypePrivate])
		assert.Len(t, rooms[domain.RoomTypePublic], 1)
	})

	t.Run("delete room", func(t *testing.T) {
		req, err := http.NewRequest(http.MethodDelete, env.server.URL+"/api/rooms/private/r1", nil)
		require.NoError(t, err)
		req.Header.Set("Authorization", auth)
		resp, err := client.Do(req)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusNoContent, resp.StatusCode)

		resp, err = client.Do(req)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})

	t.Run("health", func(t *testing.T) {
		resp, err := client.Get(env.server.URL + "/healthz")
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode)

		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		assert.Equal(t, "ok", body["status"])
		assert.EqualValues(t, 0, body["persist_pending"])
	})
}

func TestKickParticipant(t *testing.T) {
	env := setupTest(t, RateLimit{})
	alice := env.connect(t, "alice")
	bob := env.connect(t, "bob")
	general := domain.Frame{Type: domain.FrameJoinRoom, RoomID: "general"}
	alice.send(general)
	alice.receiveType(domain.PayloadSystem)
	bob.send(general)
	bob.receiveType(domain.PayloadSystem)
	alice.receiveType(domain.PayloadSystem)

	kick := func(id string, withAuth bool) int {
		req, err := http.NewRequest(http.MethodDelete, env.server.URL+"/api/participants/"+id, nil)
		require.NoError(t, err)
		if withAuth {
			req.Header.Set("Authorization", "Bearer "+env.token(t, "admin"))
		}
		resp, err := env.server.Client().Do(req)
		require.NoError(t, err)
		resp.Body.Close()
		return resp.StatusCode
	}

	assert.Equal(t, http.StatusUnauthorized, kick("bob", false))
	assert.Equal(t, http.StatusNoContent, kick("bob", true))
	assert.Equal(t, "User BOB left the room", alice.receiveType(domain.PayloadSystem).Content)
	assert.Equal(t, http.StatusNotFound, kick("bob", true))
}
