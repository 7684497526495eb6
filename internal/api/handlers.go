package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"campus/internal/auth"
	"campus/internal/filestore"
	"campus/internal/models"
	"campus/internal/notify"
	"campus/internal/storage"
	"campus/internal/ws"

	"github.com/h2non/filetype"
	"github.com/h2non/filetype/types"
)

const maxUploadSize = 10 << 20

type ctxKey int

const claimsKey ctxKey = 0

type API struct {
	auth     *auth.Service
	hub      *ws.Hub
	notifier *notify.Notifier
	store    *storage.BboltStorage
	files    filestore.FileStore
	baseURL  string
}

func New(
	authService *auth.Service,
	hub *ws.Hub,
	notifier *notify.Notifier,
	store *storage.BboltStorage,
	files filestore.FileStore,
	baseURL string,
) *API {
	return &API{
		auth:     authService,
		hub:      hub,
		notifier: notifier,
		store:    store,
		files:    files,
		baseURL:  strings.TrimRight(baseURL, "/"),
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func jsonError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// RequireAuth verifies the Authorization header and stores the claims
// in the request context.
func (a *API) RequireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, err := a.auth.ParseBearer(r.Header.Get("Authorization"))
		if err != nil {
			if errors.Is(err, auth.ErrNoToken) {
				jsonError(w, http.StatusUnauthorized, "No token provided")
				return
			}
			jsonError(w, http.StatusUnauthorized, "Invalid token")
			return
		}
		next(w, r.WithContext(context.WithValue(r.Context(), claimsKey, claims)))
	}
}

// RequireAdmin rejects non-admin callers. Must run inside RequireAuth.
func (a *API) RequireAdmin(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if claimsFrom(r).Role != models.RoleAdmin {
			jsonError(w, http.StatusForbidden, "Admin access required")
			return
		}
		next(w, r)
	}
}

func claimsFrom(r *http.Request) auth.Claims {
	claims, _ := r.Context().Value(claimsKey).(auth.Claims)
	return claims
}

func (a *API) LoginHandler(w http.ResponseWriter, r *http.Request) {
	var req auth.LoginRequest

	// Support both JSON and form bodies
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			jsonError(w, http.StatusBadRequest, "Invalid request body")
			return
		}
	} else {
		if err := r.ParseForm(); err != nil {
			jsonError(w, http.StatusBadRequest, "Failed to parse form")
			return
		}
		req.Username = r.FormValue("username")
		req.Password = r.FormValue("password")
	}

	resp, err := a.auth.Login(req)
	if err != nil {
		jsonError(w, http.StatusUnauthorized, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

func (a *API) MeHandler(w http.ResponseWriter, r *http.Request) {
	user, err := a.store.GetUser(claimsFrom(r).UserID)
	if err != nil {
		jsonError(w, http.StatusNotFound, "User not found")
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// UsersHandler lists everyone except the caller, for starting chats.
func (a *API) UsersHandler(w http.ResponseWriter, r *http.Request) {
	users, err := a.store.ListUsers()
	if err != nil {
		slog.Error("failed to list users", "error", err)
		jsonError(w, http.StatusInternalServerError, "Failed to list users")
		return
	}

	callerID := claimsFrom(r).UserID
	others := make([]models.User, 0, len(users))
	for _, u := range users {
		if u.ID != callerID {
			others = append(others, u)
		}
	}
	writeJSON(w, http.StatusOK, others)
}

type createGroupRequest struct {
	Name      string  `json:"name"`
	MemberIDs []int64 `json:"memberIds"`
}

// CreateGroupHandler creates a chat group with a fresh room name. The
// caller is always a member.
func (a *API) CreateGroupHandler(w http.ResponseWriter, r *http.Request) {
	var req createGroupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Name == "" || len(req.MemberIDs) == 0 {
		jsonError(w, http.StatusBadRequest, "Group name and members are required")
		return
	}

	group, err := a.store.CreateGroup(models.Group{
		Name:      req.Name,
		RoomID:    ws.NewGroupRoom(),
		CreatedBy: claimsFrom(r).UserID,
	}, req.MemberIDs)
	if err != nil {
		slog.Error("failed to create group", "error", err)
		jsonError(w, http.StatusInternalServerError, "Failed to create group")
		return
	}

	writeJSON(w, http.StatusCreated, group)
}

func (a *API) GroupsHandler(w http.ResponseWriter, r *http.Request) {
	groups, err := a.store.ListGroupsForUser(claimsFrom(r).UserID)
	if err != nil {
		slog.Error("failed to list groups", "error", err)
		jsonError(w, http.StatusInternalServerError, "Failed to list groups")
		return
	}
	writeJSON(w, http.StatusOK, groups)
}

// MessagesHandler returns the history of one room. The peer path
// segment is either a user id, resolving to the direct room shared
// with the caller, or a group room name.
func (a *API) MessagesHandler(w http.ResponseWriter, r *http.Request) {
	peer := r.PathValue("peer")

	var room string
	if peerID, err := strconv.ParseInt(peer, 10, 64); err == nil {
		room = ws.DirectRoom(claimsFrom(r).UserID, peerID)
	} else {
		group, err := a.store.GetGroupByRoom(peer)
		if err != nil {
			jsonError(w, http.StatusNotFound, "Room not found")
			return
		}
		room = group.RoomID
	}

	messages, err := a.store.ListMessages(room)
	if err != nil {
		slog.Error("failed to list messages", "room", room, "error", err)
		jsonError(w, http.StatusInternalServerError, "Failed to list messages")
		return
	}
	writeJSON(w, http.StatusOK, messages)
}

// UploadFileHandler stores a multipart file and returns its public URL.
// Only jpeg, png and pdf content survive the sniff test.
func (a *API) UploadFileHandler(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		jsonError(w, http.StatusBadRequest, "Failed to parse upload")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		jsonError(w, http.StatusBadRequest, "File is required")
		return
	}
	defer file.Close()

	kind, err := sniffType(file)
	if err != nil {
		jsonError(w, http.StatusBadRequest, "Unsupported file type")
		return
	}

	hash, err := a.files.Save(file)
	if err != nil {
		slog.Error("failed to store upload", "error", err)
		jsonError(w, http.StatusInternalServerError, "Failed to store file")
		return
	}

	upload, err := a.store.InsertUpload(models.Upload{
		Name:       header.Filename,
		Hash:       hash,
		MimeType:   kind.MIME.Value,
		UploadedBy: claimsFrom(r).UserID,
	})
	if err != nil {
		slog.Error("failed to record upload", "error", err)
		jsonError(w, http.StatusInternalServerError, "Failed to store file")
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"fileUrl":  a.baseURL + "/uploads/" + strconv.FormatInt(upload.ID, 10),
		"fileName": upload.Name,
	})
}

// sniffType reads the magic bytes, checks the content is an allowed
// type and rewinds the reader.
func sniffType(file io.ReadSeeker) (types.Type, error) {
	head := make([]byte, 261)
	n, err := io.ReadFull(file, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) {
		return types.Unknown, err
	}

	kind, err := filetype.Match(head[:n])
	if err != nil {
		return types.Unknown, err
	}
	switch kind.Extension {
	case "jpg", "png", "pdf":
	default:
		return types.Unknown, errors.New("unsupported file type")
	}

	if _, err := file.Seek(0, io.SeekStart); err != nil {
		return types.Unknown, err
	}
	return kind, nil
}

// ServeUploadHandler streams a stored file back by record id.
func (a *API) ServeUploadHandler(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		jsonError(w, http.StatusBadRequest, "Invalid file id")
		return
	}

	upload, err := a.store.GetUpload(id)
	if err != nil {
		jsonError(w, http.StatusNotFound, "File not found")
		return
	}

	f, err := a.files.Get(upload.Hash)
	if err != nil {
		slog.Error("failed to open stored file", "id", id, "error", err)
		jsonError(w, http.StatusInternalServerError, "Failed to read file")
		return
	}
	defer f.Close()

	w.Header().Set("Content-Type", upload.MimeType)
	w.Header().Set("Content-Disposition", `inline; filename="`+upload.Name+`"`)
	if _, err := io.Copy(w, f); err != nil {
		slog.Warn("failed to stream file", "id", id, "error", err)
	}
}

// PushSubscribeHandler stores a web push subscription for the caller.
func (a *API) PushSubscribeHandler(w http.ResponseWriter, r *http.Request) {
	var sub models.PushSubscription
	if err := json.NewDecoder(r.Body).Decode(&sub); err != nil {
		jsonError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if sub.Endpoint == "" {
		jsonError(w, http.StatusBadRequest, "Endpoint is required")
		return
	}
	sub.UserID = claimsFrom(r).UserID

	if err := a.store.UpsertPushSubscription(sub); err != nil {
		slog.Error("failed to store push subscription", "error", err)
		jsonError(w, http.StatusInternalServerError, "Failed to store subscription")
		return
	}

	w.WriteHeader(http.StatusCreated)
}
