package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/KevinKickass/OpenStimCore/internal/stimulation"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

type staticStatus stimulation.Status

func (s staticStatus) Status() stimulation.Status { return stimulation.Status(s) }

func startHub(t *testing.T) (*Hub, *websocket.Conn) {
	t.Helper()
	hub := NewHub(zap.NewNop(), nil)
	hub.SetStatusProvider(staticStatus{Initialized: true, Ready: true})

	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ServeWs(hub, w, r)
	}))

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		conn.Close()
		cancel()
		srv.Close()
	})
	return hub, conn
}

func readMessage(t *testing.T, conn *websocket.Conn) map[string]interface{} {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg map[string]interface{}
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatal(err)
	}
	return msg
}

func TestHubSendsStatusOnRegister(t *testing.T) {
	_, conn := startHub(t)

	msg := readMessage(t, conn)
	if msg["type"] != string(MessageTypeStatus) {
		t.Fatalf("first message %v", msg)
	}
	data := msg["data"].(map[string]interface{})
	if data["ready"] != true {
		t.Fatalf("status payload %v", data)
	}
}

func TestHubBroadcastsControllerEvents(t *testing.T) {
	hub, conn := startHub(t)
	readMessage(t, conn) // status

	session := uuid.New()
	hub.Publish(stimulation.Event{ID: uuid.New(), Type: stimulation.EventStarted, SessionID: session, Time: time.Now()})

	msg := readMessage(t, conn)
	if msg["type"] != string(MessageTypeControllerEvent) {
		t.Fatalf("got %v", msg)
	}
	raw, _ := json.Marshal(msg["data"])
	var ev stimulation.Event
	if err := json.Unmarshal(raw, &ev); err != nil {
		t.Fatal(err)
	}
	if ev.Type != stimulation.EventStarted || ev.SessionID != session {
		t.Fatalf("event %+v", ev)
	}
	if hub.GetClientCount() != 1 {
		t.Fatalf("clients=%d", hub.GetClientCount())
	}
}

func TestHubAnswersStatusRequest(t *testing.T) {
	_, conn := startHub(t)
	readMessage(t, conn)

	if err := conn.WriteJSON(map[string]string{"type": "status"}); err != nil {
		t.Fatal(err)
	}
	if msg := readMessage(t, conn); msg["type"] != string(MessageTypeStatus) {
		t.Fatalf("got %v", msg)
	}

	if err := conn.WriteJSON(map[string]string{"type": "subscribe"}); err != nil {
		t.Fatal(err)
	}
	if msg := readMessage(t, conn); msg["type"] != string(MessageTypeError) {
		t.Fatalf("got %v", msg)
	}
}
