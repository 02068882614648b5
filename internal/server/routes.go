package server

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/danish296/Code-Drop/internal/relay"
	"github.com/danish296/Code-Drop/internal/storage"
)

// maxUploadSize bounds the fallback upload endpoint.
const maxUploadSize = 2 << 30 // 2 GiB

var upgrader = websocket.Upgrader{
	ReadBufferSize:  64 * 1024,
	WriteBufferSize: 64 * 1024,

	// Browsers enforce origin on their end; the rooms themselves are
	// capability-protected by their codes.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// NewRouter builds the full HTTP surface: websocket signaling, health,
// and the upload/download fallback.
func NewRouter(hub *relay.Hub, store *storage.Store) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", ServeWs(hub))
	mux.HandleFunc("/health", healthHandler(hub))
	mux.HandleFunc("/upload", uploadHandler(store))
	mux.Handle("/files/", http.StripPrefix("/files/", http.FileServer(http.Dir(store.Dir()))))
	return mux
}

// ServeWs upgrades the connection, registers it with the hub, and
// starts the read/write pumps.
func ServeWs(hub *relay.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			slog.Warn("server: websocket upgrade failed", "err", err)
			return
		}

		client := relay.NewClient(hub, conn)
		hub.Register <- client

		go client.WritePump()
		go client.ReadPump()
	}
}

// healthHandler reports liveness plus active room and connection
// counts.
func healthHandler(hub *relay.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stats := hub.Stats()
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"status":      "ok",
			"rooms":       stats.Rooms,
			"connections": stats.Connections,
		})
	}
}

// uploadHandler accepts a single-file multipart upload and answers
// with the link the file is served under.
func uploadHandler(store *storage.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
		file, header, err := r.FormFile("file")
		if err != nil {
			http.Error(w, "missing file field", http.StatusBadRequest)
			return
		}
		defer file.Close()

		stored, err := store.Save(header.Filename, file)
		if err != nil {
			slog.Error("server: upload failed", "file", header.Filename, "err", err)
			http.Error(w, "upload failed", http.StatusInternalServerError)
			return
		}

		slog.Info("server: upload stored", "file", stored, "size", header.Size)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"link": "/files/" + stored})
	}
}
