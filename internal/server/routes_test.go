package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/danish296/Code-Drop/internal/relay"
	"github.com/danish296/Code-Drop/internal/storage"
)

func startServer(t *testing.T) *httptest.Server {
	t.Helper()

	store, err := storage.New(t.TempDir(), time.Hour)
	if err != nil {
		t.Fatalf("storage.New: %v", err)
	}

	hub := relay.NewHub(relay.DefaultConfig())
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	srv := httptest.NewServer(NewRouter(hub, store))
	t.Cleanup(func() {
		srv.Close()
		cancel()
	})
	return srv
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

type wireMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

func send(t *testing.T, conn *websocket.Conn, msgType string, payload any) {
	t.Helper()
	msg := wireMessage{Type: msgType}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("marshal payload: %v", err)
		}
		msg.Payload = raw
	}
	if err := conn.WriteJSON(msg); err != nil {
		t.Fatalf("write %s: %v", msgType, err)
	}
}

func read(t *testing.T, conn *websocket.Conn, want string) wireMessage {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg wireMessage
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read (want %s): %v", want, err)
	}
	if msg.Type != want {
		t.Fatalf("got %s, want %s (payload %s)", msg.Type, want, msg.Payload)
	}
	return msg
}

func TestHealthEndpoint(t *testing.T) {
	srv := startServer(t)

	resp, err := http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatalf("GET /health: %v", err)
	}
	defer resp.Body.Close()

	var body struct {
		Status      string `json:"status"`
		Rooms       int64  `json:"rooms"`
		Connections int64  `json:"connections"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Status != "ok" {
		t.Fatalf("status = %q", body.Status)
	}
}

func TestSignalingOverWebsocket(t *testing.T) {
	srv := startServer(t)

	sender := dial(t, srv)
	receiver := dial(t, srv)

	send(t, sender, "create-room", nil)
	created := read(t, sender, "room-created")
	var room struct {
		Code string `json:"code"`
	}
	json.Unmarshal(created.Payload, &room)
	if len(room.Code) != 4 {
		t.Fatalf("code = %q", room.Code)
	}

	send(t, receiver, "join-room", map[string]string{"code": room.Code})
	read(t, receiver, "room-joined")

	joined := read(t, sender, "receiver-joined")
	var peer struct {
		ReceiverID string `json:"receiverId"`
	}
	json.Unmarshal(joined.Payload, &peer)
	if peer.ReceiverID == "" {
		t.Fatal("receiver-joined missing receiverId")
	}

	// The sender's offer travels to the receiver with attribution.
	send(t, sender, "offer", map[string]string{"target": peer.ReceiverID, "sdp": "v=0"})
	offer := read(t, receiver, "offer")
	var fwd struct {
		SDP      string `json:"sdp"`
		SenderID string `json:"senderId"`
	}
	json.Unmarshal(offer.Payload, &fwd)
	if fwd.SDP != "v=0" || fwd.SenderID == "" {
		t.Fatalf("forwarded offer = %+v", fwd)
	}

	// Dropping the receiver tells the sender and closes the room.
	receiver.Close()
	read(t, sender, "peer-disconnected")
	read(t, sender, "room-closed")
}

func TestPingOverWebsocket(t *testing.T) {
	srv := startServer(t)
	conn := dial(t, srv)

	send(t, conn, "ping", nil)
	read(t, conn, "pong")
}

func TestUploadAndDownload(t *testing.T) {
	srv := startServer(t)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", "hello.txt")
	if err != nil {
		t.Fatalf("CreateFormFile: %v", err)
	}
	fw.Write([]byte("hello over http"))
	mw.Close()

	resp, err := http.Post(srv.URL+"/upload", mw.FormDataContentType(), &buf)
	if err != nil {
		t.Fatalf("POST /upload: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("upload status = %d", resp.StatusCode)
	}

	var result struct {
		Link string `json:"link"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !strings.HasPrefix(result.Link, "/files/") {
		t.Fatalf("link = %q", result.Link)
	}

	down, err := http.Get(srv.URL + result.Link)
	if err != nil {
		t.Fatalf("GET %s: %v", result.Link, err)
	}
	defer down.Body.Close()
	data, _ := io.ReadAll(down.Body)
	if string(data) != "hello over http" {
		t.Fatalf("downloaded %q", data)
	}
}

func TestUploadRejectsGet(t *testing.T) {
	srv := startServer(t)

	resp, err := http.Get(srv.URL + "/upload")
	if err != nil {
		t.Fatalf("GET /upload: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d, want 405", resp.StatusCode)
	}
}
