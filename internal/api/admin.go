package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"campus/internal/auth"
	"campus/internal/models"
)

// RegisterHandler creates a user account. Accounts are provisioned by
// an admin; there is no self-service signup. The body is either JSON
// or a multipart form with an optional profile image.
func (a *API) RegisterHandler(w http.ResponseWriter, r *http.Request) {
	var req auth.RegisterRequest

	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		if err := r.ParseMultipartForm(maxUploadSize); err != nil {
			jsonError(w, http.StatusBadRequest, "Failed to parse form")
			return
		}
		req = auth.RegisterRequest{
			Username: r.FormValue("username"),
			Password: r.FormValue("password"),
			Name:     r.FormValue("name"),
			Email:    r.FormValue("email"),
			Phone:    r.FormValue("phone"),
			Role:     models.Role(r.FormValue("role")),
			Course:   r.FormValue("course"),
			Module:   r.FormValue("module"),
			Address:  r.FormValue("address"),
		}

		imageURL, err := a.saveProfileImage(r)
		if err != nil {
			jsonError(w, http.StatusBadRequest, err.Error())
			return
		}
		req.ImageURL = imageURL
	} else {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			jsonError(w, http.StatusBadRequest, "Invalid request body")
			return
		}
	}

	user, err := a.auth.Register(req)
	if err != nil {
		if errors.Is(err, auth.ErrUserExists) {
			jsonError(w, http.StatusConflict, "Username already exists")
			return
		}
		jsonError(w, http.StatusBadRequest, err.Error())
		return
	}

	writeJSON(w, http.StatusCreated, user)
}

// saveProfileImage stores the optional image part of a registration
// form and returns its public URL, or "" when no image was sent.
func (a *API) saveProfileImage(r *http.Request) (string, error) {
	file, header, err := r.FormFile("image")
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			return "", nil
		}
		return "", errors.New("failed to read image")
	}
	defer file.Close()

	kind, err := sniffType(file)
	if err != nil || (kind.Extension != "jpg" && kind.Extension != "png") {
		return "", errors.New("profile image must be jpeg or png")
	}

	hash, err := a.files.Save(file)
	if err != nil {
		slog.Error("failed to store profile image", "error", err)
		return "", errors.New("failed to store image")
	}

	upload, err := a.store.InsertUpload(models.Upload{
		Name:     header.Filename,
		Hash:     hash,
		MimeType: kind.MIME.Value,
	})
	if err != nil {
		slog.Error("failed to record profile image", "error", err)
		return "", errors.New("failed to store image")
	}

	return a.baseURL + "/uploads/" + strconv.FormatInt(upload.ID, 10), nil
}

type createNotificationRequest struct {
	RecipientID *int64 `json:"recipientId"`
	Message     string `json:"message"`
	Type        string `json:"type"`
}

// CreateNotificationHandler sends an administrative notification. A
// missing recipient means every student and lecturer. The response
// carries the stored record and the per-recipient delivery outcomes.
func (a *API) CreateNotificationHandler(w http.ResponseWriter, r *http.Request) {
	var req createNotificationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Message == "" {
		jsonError(w, http.StatusBadRequest, "Message is required")
		return
	}

	notification, results, err := a.notifier.SendNotification(
		claimsFrom(r).UserID, req.RecipientID, req.Message, req.Type)
	if err != nil {
		slog.Error("failed to send notification", "error", err)
		jsonError(w, http.StatusInternalServerError, "Failed to send notification")
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"notification":    notification,
		"deliveryResults": results,
	})
}

// NotificationsHandler lists notifications. Admins see everything,
// everyone else sees broadcasts plus what was addressed to them.
func (a *API) NotificationsHandler(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r)

	var notifications []models.Notification
	var err error
	if claims.Role == models.RoleAdmin {
		notifications, err = a.store.ListNotifications()
	} else {
		notifications, err = a.store.ListNotificationsForUser(claims.UserID)
	}
	if err != nil {
		slog.Error("failed to list notifications", "error", err)
		jsonError(w, http.StatusInternalServerError, "Failed to list notifications")
		return
	}
	writeJSON(w, http.StatusOK, notifications)
}

type createAnnouncementRequest struct {
	Message string `json:"message"`
}

func (a *API) CreateAnnouncementHandler(w http.ResponseWriter, r *http.Request) {
	var req createAnnouncementRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Message == "" {
		jsonError(w, http.StatusBadRequest, "Message is required")
		return
	}

	announcement, err := a.notifier.SendAnnouncement(claimsFrom(r).UserID, req.Message)
	if err != nil {
		slog.Error("failed to send announcement", "error", err)
		jsonError(w, http.StatusInternalServerError, "Failed to send announcement")
		return
	}

	writeJSON(w, http.StatusCreated, announcement)
}

func (a *API) AnnouncementsHandler(w http.ResponseWriter, r *http.Request) {
	announcements, err := a.store.ListAnnouncements()
	if err != nil {
		slog.Error("failed to list announcements", "error", err)
		jsonError(w, http.StatusInternalServerError, "Failed to list announcements")
		return
	}
	writeJSON(w, http.StatusOK, announcements)
}
