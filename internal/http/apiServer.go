package http

import (
	"context"
	"log"
	"net/http"
	"sync"

	"campus/internal/api"
	"campus/internal/auth"
	"campus/internal/filestore"
	"campus/internal/notify"
	"campus/internal/storage"
	"campus/internal/ws"
)

type APIServer struct {
	server *http.Server
	wg     sync.WaitGroup
}

func NewAPIServer(
	authService *auth.Service,
	hub *ws.Hub,
	notifier *notify.Notifier,
	store *storage.BboltStorage,
	files filestore.FileStore,
	addr string,
	baseURL string,
) *APIServer {
	server := ws.NewServer(authService, hub)
	handlers := api.New(authService, hub, notifier, store, files, baseURL)

	mux := http.NewServeMux()

	mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	// API endpoints
	mux.HandleFunc("POST /api/login", handlers.LoginHandler)
	mux.HandleFunc("POST /api/register", handlers.RequireAuth(handlers.RequireAdmin(handlers.RegisterHandler)))
	mux.HandleFunc("GET /api/me", handlers.RequireAuth(handlers.MeHandler))
	mux.HandleFunc("GET /api/users", handlers.RequireAuth(handlers.UsersHandler))
	mux.HandleFunc("POST /api/groups", handlers.RequireAuth(handlers.CreateGroupHandler))
	mux.HandleFunc("GET /api/groups", handlers.RequireAuth(handlers.GroupsHandler))
	mux.HandleFunc("GET /api/messages/{peer}", handlers.RequireAuth(handlers.MessagesHandler))
	mux.HandleFunc("POST /api/notifications", handlers.RequireAuth(handlers.RequireAdmin(handlers.CreateNotificationHandler)))
	mux.HandleFunc("GET /api/notifications", handlers.RequireAuth(handlers.NotificationsHandler))
	mux.HandleFunc("POST /api/announcements", handlers.RequireAuth(handlers.RequireAdmin(handlers.CreateAnnouncementHandler)))
	mux.HandleFunc("GET /api/announcements", handlers.RequireAuth(handlers.AnnouncementsHandler))
	mux.HandleFunc("POST /api/upload-file", handlers.RequireAuth(handlers.UploadFileHandler))
	mux.HandleFunc("POST /api/push-subscribe", handlers.RequireAuth(handlers.PushSubscribeHandler))
	mux.HandleFunc("GET /uploads/{id}", handlers.ServeUploadHandler)

	// WebSocket endpoint
	mux.HandleFunc("/api/chat", server.HandleConnections)

	if addr == "" {
		addr = ":5000"
	}

	return &APIServer{
		server: &http.Server{
			Addr:    addr,
			Handler: mux,
		},
	}
}

func (s *APIServer) Start() error {
	log.Printf("Server started on %s", s.server.Addr)
	s.wg.Add(1)
	defer s.wg.Done()

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *APIServer) Shutdown(ctx context.Context) error {
	defer s.wg.Wait()
	return s.server.Shutdown(ctx)
}
