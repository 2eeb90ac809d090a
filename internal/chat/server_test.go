package chat

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"karaoke-service/internal/session"
)

func newTestServer(t *testing.T) (*httptest.Server, *Hub) {
	t.Helper()
	store := session.NewStore("", stubResolver{})
	hub := NewHub()
	go hub.Run()
	router := NewRouter(store, nil, hub.Broadcast)
	srv := NewServer(router, hub, store)
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	return ts, hub
}

func dialWS(t *testing.T, ts *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws?" + query
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", url, err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

type wsMessage struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// readUntil reads frames until one of the wanted type arrives.
func readUntil(t *testing.T, conn *websocket.Conn, msgType string) wsMessage {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	_ = conn.SetReadDeadline(deadline)
	for time.Now().Before(deadline) {
		_, data, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		var msg wsMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}
		if msg.Type == msgType {
			return msg
		}
	}
	t.Fatalf("no %q message before deadline", msgType)
	return wsMessage{}
}

// newServerConn hands back the server side of a live websocket connection.
func newServerConn(t *testing.T) *websocket.Conn {
	t.Helper()
	conns := make(chan *websocket.Conn, 1)
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		conns <- conn
	}))
	t.Cleanup(ts.Close)

	peer, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = peer.Close() })
	return <-conns
}

// A reply produced after the hub has already evicted the client, as from a
// command still resolving on the network, must be dropped rather than sent
// on a dead channel.
func TestReplyAfterEvictionIsDropped(t *testing.T) {
	hub := NewHub()
	go hub.Run()

	c := &Client{
		hub:  hub,
		conn: newServerConn(t),
		send: make(chan []byte, 1),
		done: make(chan struct{}),
	}
	hub.register <- c
	c.send <- []byte("backlog") // nothing drains this

	// Broadcasting against the full buffer evicts the client.
	hub.Broadcast([]byte("event"))
	select {
	case <-c.done:
	case <-time.After(2 * time.Second):
		t.Fatal("client was not evicted")
	}

	if c.queueReply([]byte("late reply")) {
		t.Error("reply to an evicted client should be dropped")
	}

	// The read pump's deferred unregister for an already-evicted client is a
	// no-op, and later broadcasts keep flowing.
	hub.unregister <- c
	hub.Broadcast([]byte("second event"))
}

func TestHealthEndpoint(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/health")
	if err != nil {
		t.Fatalf("get health: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var body map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["status"] != "ok" || body["service"] != "karaoke-service" {
		t.Errorf("body = %v", body)
	}
}

func TestWSRequiresUser(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/ws")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d; want 400", resp.StatusCode)
	}
}

func TestWSChatFlow(t *testing.T) {
	ts, _ := newTestServer(t)

	alice := dialWS(t, ts, "user=a&name=Alice")
	readUntil(t, alice, "welcome")

	if err := alice.WriteMessage(websocket.TextMessage, []byte("/startsession")); err != nil {
		t.Fatalf("write: %v", err)
	}
	reply := readUntil(t, alice, "reply")
	if !strings.Contains(reply.Text, "Created new karaoke session with code: ") {
		t.Fatalf("reply = %q", reply.Text)
	}
	code := codePattern.FindStringSubmatch(reply.Text)[1]

	bob := dialWS(t, ts, "user=b&name=Bob")
	readUntil(t, bob, "welcome")

	if err := bob.WriteMessage(websocket.TextMessage, []byte("/join "+code)); err != nil {
		t.Fatalf("write: %v", err)
	}
	reply = readUntil(t, bob, "reply")
	if !strings.Contains(reply.Text, "joined session: "+code) {
		t.Fatalf("reply = %q", reply.Text)
	}

	// Bob adds a video; everyone connected sees the broadcast event.
	if err := bob.WriteMessage(websocket.TextMessage, []byte("/add https://youtu.be/XYZ")); err != nil {
		t.Fatalf("write: %v", err)
	}
	event := readUntil(t, alice, "queue.added")
	if event.Type != "queue.added" {
		t.Fatalf("event = %+v", event)
	}
	reply = readUntil(t, bob, "reply")
	if !strings.Contains(reply.Text, "Added to queue!") {
		t.Fatalf("reply = %q", reply.Text)
	}
}

func TestSessionReadEndpoints(t *testing.T) {
	store := session.NewStore("", stubResolver{})
	hub := NewHub()
	go hub.Run()
	router := NewRouter(store, nil, nil)
	srv := NewServer(router, hub, store)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	code := startSession(t, router, Caller{ID: "a", Name: "Alice"})
	router.HandleMessage(context.Background(), Caller{ID: "a", Name: "Alice"}, "/add https://youtu.be/abc")

	resp, err := http.Get(ts.URL + "/sessions/" + code + "/queue")
	if err != nil {
		t.Fatalf("get queue: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var body struct {
		Items []session.QueueItem `json:"items"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Items) != 1 || body.Items[0].Video.ID != "abc" {
		t.Errorf("items = %+v", body.Items)
	}

	resp2, err := http.Get(ts.URL + "/sessions/NOSUCH/queue")
	if err != nil {
		t.Fatalf("get queue: %v", err)
	}
	defer resp2.Body.Close()
	if resp2.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d; want 404", resp2.StatusCode)
	}
}
