package signaling

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

var testUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// stubRelay upgrades one connection and runs script against it.
func stubRelay(t *testing.T, script func(conn *websocket.Conn)) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()
		script(conn)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func connect(t *testing.T, srv *httptest.Server) (*Client, *Handler) {
	t.Helper()
	client := NewClient("ws" + strings.TrimPrefix(srv.URL, "http"))
	if err := client.Connect(); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	t.Cleanup(client.Close)

	handler := NewHandler(client)
	go handler.Start()
	return client, handler
}

func TestHandlerRoutesEvents(t *testing.T) {
	srv := stubRelay(t, func(conn *websocket.Conn) {
		conn.WriteJSON(NewMessage(TypeRoomCreated, RoomCreatedPayload{Code: "4821"}))
		conn.WriteJSON(NewMessage(TypeReceiverJoined, ReceiverJoinedPayload{ReceiverID: "peer-1"}))
		conn.WriteJSON(NewMessage(TypeError, &ServerError{Code: "room-full"}))
		// Hold the socket open until the test is done reading.
		conn.ReadMessage()
	})

	_, handler := connect(t, srv)

	select {
	case code := <-handler.RoomCreated:
		if code != "4821" {
			t.Fatalf("code = %q", code)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("room-created never routed")
	}

	select {
	case id := <-handler.ReceiverJoined:
		if id != "peer-1" {
			t.Fatalf("receiver = %q", id)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("receiver-joined never routed")
	}

	select {
	case serverErr := <-handler.Errors:
		if serverErr.Code != "room-full" {
			t.Fatalf("error code = %q", serverErr.Code)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("error never routed")
	}
}

func TestServerErrorFormatting(t *testing.T) {
	bare := &ServerError{Code: "room-not-found"}
	if bare.Error() != "room-not-found" {
		t.Fatalf("Error() = %q", bare.Error())
	}
	detailed := &ServerError{Code: "room-not-found", Message: "no room with code 0000"}
	if detailed.Error() != "room-not-found: no room with code 0000" {
		t.Fatalf("Error() = %q", detailed.Error())
	}
}

func TestDisconnectedClosesOnServerDrop(t *testing.T) {
	srv := stubRelay(t, func(conn *websocket.Conn) {
		conn.WriteJSON(NewMessage(TypeRoomCreated, RoomCreatedPayload{Code: "1111"}))
		// Return immediately: the deferred close drops the socket.
	})

	_, handler := connect(t, srv)

	select {
	case <-handler.RoomCreated:
	case <-time.After(2 * time.Second):
		t.Fatal("room-created never arrived")
	}

	select {
	case <-handler.Disconnected:
	case <-time.After(2 * time.Second):
		t.Fatal("Disconnected never closed after server drop")
	}
}

func TestSendReachesServer(t *testing.T) {
	got := make(chan *Message, 1)
	srv := stubRelay(t, func(conn *websocket.Conn) {
		for {
			var msg Message
			if err := conn.ReadJSON(&msg); err != nil {
				return
			}
			if msg.Type == TypePing {
				conn.WriteJSON(NewMessage(TypePong, nil))
				continue
			}
			got <- &msg
			return
		}
	})

	client, _ := connect(t, srv)
	client.Send(NewMessage(TypeJoinRoom, JoinPayload{Code: "4821"}))

	select {
	case msg := <-got:
		if msg.Type != TypeJoinRoom {
			t.Fatalf("server saw %q", msg.Type)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("join-room never reached the server")
	}
}
