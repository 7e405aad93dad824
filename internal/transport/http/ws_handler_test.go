package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"

	"trivia-room-service/internal/app"
	"trivia-room-service/internal/catalog"
	"trivia-room-service/internal/domain"
	"trivia-room-service/internal/infra/memory"
)

func TestWebSocketMatchFlow(t *testing.T) {
	server, _ := newTestServer(t)
	defer server.Close()

	x := dial(t, server)
	defer x.Close()
	y := dial(t, server)
	defer y.Close()

	send(t, x, "createRoom", map[string]any{"capacity": 2, "subject": "HTML", "displayName": "X"})
	var joined domain.Joined
	readUntil(t, x, "joined", &joined)
	if joined.RoomID == "" || joined.PlayerID == "" {
		t.Fatalf("expected room and player ids, got %+v", joined)
	}

	send(t, y, "joinRoom", map[string]any{"roomId": joined.RoomID, "displayName": "Y"})
	var yJoined domain.Joined
	readUntil(t, y, "joined", &yJoined)
	// X sees its own creation snapshot first, then the one with Y seated.
	var snap domain.RoomSnapshot
	readUntil(t, x, "updateRoom", &snap)
	if len(snap.Players) != 2 {
		readUntil(t, x, "updateRoom", &snap)
	}
	if len(snap.Players) != 2 {
		t.Fatalf("expected 2 players in snapshot, got %d", len(snap.Players))
	}

	send(t, x, "playerReady", map[string]any{"roomId": joined.RoomID})
	send(t, y, "playerReady", map[string]any{"roomId": joined.RoomID})

	readUntil(t, x, "gameStart", nil)
	var question map[string]any
	readUntil(t, x, "newQuestion", &question)
	if _, leaked := question["correctIndex"]; leaked {
		t.Fatalf("newQuestion leaked the correct answer: %v", question)
	}
	readUntil(t, y, "newQuestion", nil)

	send(t, x, "submitAnswer", map[string]any{"roomId": joined.RoomID, "answerIndex": 1})
	send(t, y, "submitAnswer", map[string]any{"roomId": joined.RoomID, "answerIndex": 0})

	var result domain.RoundResult
	readUntil(t, x, "roundResult", &result)
	if result.CorrectAnswer != 1 {
		t.Fatalf("expected correct answer 1, got %d", result.CorrectAnswer)
	}
	if result.Scores[joined.PlayerID] != 1000 {
		t.Fatalf("expected X to score 1000 at elapsed 0, got %d", result.Scores[joined.PlayerID])
	}
	if result.Scores[yJoined.PlayerID] != 0 {
		t.Fatalf("expected Y unchanged, got %d", result.Scores[yJoined.PlayerID])
	}
}

func TestWebSocketJoinUnknownRoomSendsError(t *testing.T) {
	server, _ := newTestServer(t)
	defer server.Close()

	c := dial(t, server)
	defer c.Close()

	// Garbage first: it is dropped and the connection stays usable.
	if err := c.WriteMessage(websocket.TextMessage, []byte("{not json")); err != nil {
		t.Fatalf("write: %v", err)
	}
	send(t, c, "joinRoom", map[string]any{"roomId": "000000", "displayName": "Z"})

	var msg domain.ErrorMessage
	readUntil(t, c, "errorMsg", &msg)
	if msg.Message != domain.ErrRoomNotFound.Error() {
		t.Fatalf("unexpected error message %q", msg.Message)
	}
}

func TestWebSocketDisconnectFreesRoom(t *testing.T) {
	server, registry := newTestServer(t)
	defer server.Close()

	c := dial(t, server)
	send(t, c, "createRoom", map[string]any{"capacity": 2, "subject": "html", "displayName": "X"})
	var joined domain.Joined
	readUntil(t, c, "joined", &joined)
	_ = c.Close()

	deadline := time.Now().Add(2 * time.Second)
	for registry.Len() > 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if registry.Len() != 0 {
		t.Fatalf("expected room to close after its only player left")
	}
}

func TestRoomsHandlerListsLiveRooms(t *testing.T) {
	server, _ := newTestServer(t)
	defer server.Close()

	c := dial(t, server)
	defer c.Close()
	send(t, c, "createRoom", map[string]any{"capacity": 3, "subject": "html", "displayName": "X"})
	readUntil(t, c, "joined", nil)

	resp, err := http.Get(server.URL + "/rooms")
	if err != nil {
		t.Fatalf("get rooms: %v", err)
	}
	defer resp.Body.Close()

	var rooms []domain.RoomSnapshot
	if err := json.NewDecoder(resp.Body).Decode(&rooms); err != nil {
		t.Fatalf("decode rooms: %v", err)
	}
	if len(rooms) != 1 || rooms[0].Capacity != 3 || rooms[0].Phase != domain.PhaseWaiting {
		t.Fatalf("unexpected rooms %+v", rooms)
	}
}

func TestConnSinkDropsOldestWhenFull(t *testing.T) {
	s := newConnSink(2)
	for _, typ := range []domain.EventType{"a", "b", "c"} {
		s.Send(domain.Event{Type: typ})
	}
	if got := (<-s.out).Type; got != "b" {
		t.Fatalf("expected oldest event dropped, got %s first", got)
	}
	if got := (<-s.out).Type; got != "c" {
		t.Fatalf("expected c, got %s", got)
	}

	s.close()
	s.Send(domain.Event{Type: "d"})
	if len(s.out) != 0 {
		t.Fatalf("expected sends after close to be dropped")
	}
}

func newTestServer(t *testing.T) (*httptest.Server, *app.Registry) {
	t.Helper()
	bank := catalog.New(memory.NewSubjectRepository(memory.NewStaticLoader(map[string][]domain.Question{
		"html": {{ID: "q1", Category: "HTML", Prompt: "Which tag makes a link?", Options: []string{"<p>", "<a>", "<div>"}, CorrectIndex: 1}},
	}), time.Minute), []string{"html"})
	bank.Load(context.Background())

	registry := app.NewRegistry(memory.NewRoomStore(), bank, app.DefaultRules(), app.WithClock(clockwork.NewFakeClock()))
	t.Cleanup(func() { registry.Close(context.Background()) })

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", NewWSHandler(registry, 100, 100).ServeWS)
	mux.HandleFunc("/rooms", RoomsHandler(registry))
	return httptest.NewServer(mux), registry
}

func dial(t *testing.T, server *httptest.Server) *websocket.Conn {
	t.Helper()
	u := "ws" + server.URL[len("http"):] + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	return conn
}

func send(t *testing.T, conn *websocket.Conn, typ string, payload any) {
	t.Helper()
	if err := conn.WriteJSON(map[string]any{"type": typ, "payload": payload}); err != nil {
		t.Fatalf("write %s: %v", typ, err)
	}
}

// readUntil skips events until one of type expect arrives and decodes its payload into out.
func readUntil(t *testing.T, conn *websocket.Conn, expect string, out any) {
	t.Helper()
	for i := 0; i < 20; i++ {
		var msg struct {
			Type    string          `json:"type"`
			Payload json.RawMessage `json:"payload"`
		}
		_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("read json waiting for %s: %v", expect, err)
		}
		if msg.Type != expect {
			continue
		}
		if out != nil {
			if err := json.Unmarshal(msg.Payload, out); err != nil {
				t.Fatalf("decode %s: %v", expect, err)
			}
		}
		return
	}
	t.Fatalf("no %s event within 20 messages", expect)
}
