package main

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"campus/internal/auth"
	"campus/internal/models"
	"campus/internal/storage"
	"campus/internal/ws"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

func TestIntegration(t *testing.T) {
	tmpDir := t.TempDir()
	dbFile := filepath.Join(tmpDir, "integration_test.db")
	apiAddr := ":8891"
	baseURL := "http://localhost:8891"

	t.Setenv("CAMPUS_DB", dbFile)
	t.Setenv("API_ADDR", apiAddr)
	t.Setenv("BASE_URL", baseURL)
	t.Setenv("UPLOADS_PATH", filepath.Join(tmpDir, "uploads"))
	t.Setenv("JWT_SECRET", "very-secure-test-secret")

	// Bootstrap the first admin directly, the way -add-admin does.
	store, err := storage.NewBboltStorage(dbFile)
	require.NoError(t, err)
	hash, err := auth.HashPassword("adminpass")
	require.NoError(t, err)
	admin, err := store.CreateUser(models.User{
		Username: "root",
		Name:     "Administrator",
		Role:     models.RoleAdmin,
	}, hash)
	require.NoError(t, err)
	require.NotZero(t, admin.ID)
	require.NoError(t, store.Close())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		if err := run(ctx, ""); err != nil && err != context.Canceled {
			t.Errorf("Server error: %v", err)
		}
	}()

	waitForServer(t, baseURL+"/", 20)

	client := &http.Client{}

	// Step 1: Login as admin
	adminToken := login(t, client, baseURL, "root", "adminpass")

	// No token means no access.
	{
		req, _ := http.NewRequest("GET", baseURL+"/api/users", nil)
		resp, err := client.Do(req)
		require.NoError(t, err)
		defer func() { _ = resp.Body.Close() }()
		require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	}

	// Step 2: Admin provisions a student and a lecturer
	aliceID := registerUser(t, client, baseURL, adminToken, map[string]any{
		"Username": "alice",
		"Password": "alicepass",
		"Name":     "Alice",
		"Email":    "alice@campus.test",
		"Role":     "student",
		"Course":   "CS",
	})
	bobID := registerUser(t, client, baseURL, adminToken, map[string]any{
		"Username": "bob",
		"Password": "bobpass",
		"Name":     "Bob",
		"Role":     "lecturer",
	})

	// Non-admins cannot provision accounts.
	aliceToken := login(t, client, baseURL, "alice", "alicepass")
	{
		body, _ := json.Marshal(map[string]any{"Username": "eve", "Password": "x"})
		req, _ := http.NewRequest("POST", baseURL+"/api/register", bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+aliceToken)
		resp, err := client.Do(req)
		require.NoError(t, err)
		defer func() { _ = resp.Body.Close() }()
		require.Equal(t, http.StatusForbidden, resp.StatusCode)
	}

	bobToken := login(t, client, baseURL, "bob", "bobpass")

	// Step 3: Alice creates a group with Bob
	var group models.Group
	{
		body, _ := json.Marshal(map[string]any{"name": "Cohort 1", "memberIds": []int64{bobID}})
		req, _ := http.NewRequest("POST", baseURL+"/api/groups", bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+aliceToken)
		resp, err := client.Do(req)
		require.NoError(t, err)
		defer func() { _ = resp.Body.Close() }()
		require.Equal(t, http.StatusCreated, resp.StatusCode)
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&group))
		require.True(t, strings.HasPrefix(group.RoomID, ws.GroupRoomPrefix))
		require.Equal(t, "Cohort 1", group.Name)
	}

	// Both members see the group.
	{
		req, _ := http.NewRequest("GET", baseURL+"/api/groups", nil)
		req.Header.Set("Authorization", "Bearer "+bobToken)
		resp, err := client.Do(req)
		require.NoError(t, err)
		defer func() { _ = resp.Body.Close() }()
		var groups []models.Group
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&groups))
		require.Len(t, groups, 1)
		require.Equal(t, group.ID, groups[0].ID)
	}

	// Step 4: Both connect over websocket and join
	aliceWS := dialWS(t, "ws://localhost:8891/api/chat", aliceToken)
	defer func() { _ = aliceWS.Close() }()
	bobWS := dialWS(t, "ws://localhost:8891/api/chat", bobToken)
	defer func() { _ = bobWS.Close() }()

	require.NoError(t, aliceWS.WriteJSON(models.ClientEvent{Type: models.ClientEventJoin, Name: "Alice"}))
	ev := readEvent(t, bobWS, models.ServerEventUserJoined)
	require.Equal(t, aliceID, ev.UserID)
	require.Equal(t, "Alice", ev.Name)

	require.NoError(t, bobWS.WriteJSON(models.ClientEvent{Type: models.ClientEventJoin, Name: "Bob"}))
	readEvent(t, aliceWS, models.ServerEventUserJoined)

	// Step 5: Group chat
	require.NoError(t, bobWS.WriteJSON(models.ClientEvent{Type: models.ClientEventJoinRoom, Room: group.RoomID}))
	time.Sleep(100 * time.Millisecond) // let the join land before broadcasting

	require.NoError(t, aliceWS.WriteJSON(models.ClientEvent{
		Type:      models.ClientEventSendMessage,
		SenderID:  aliceID,
		GroupID:   &group.ID,
		Message:   "meeting at noon",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}))

	ev = readEvent(t, bobWS, models.ServerEventReceiveMessage)
	require.NotNil(t, ev.Message)
	require.Equal(t, "meeting at noon", ev.Message.Body)
	require.Equal(t, "Alice", ev.SenderName)
	require.NotZero(t, ev.Message.ID)

	readEvent(t, aliceWS, models.ServerEventReceiveMessage)

	// Step 6: Direct chat
	require.NoError(t, aliceWS.WriteJSON(models.ClientEvent{
		Type:        models.ClientEventSendMessage,
		SenderID:    aliceID,
		RecipientID: &bobID,
		Message:     "got a minute?",
		Timestamp:   time.Now().UTC().Format(time.RFC3339),
	}))

	// Bob is told which room to subscribe to on his personal channel.
	ev = readEvent(t, bobWS, models.ServerEventJoinRoom)
	require.Equal(t, ws.DirectRoom(aliceID, bobID), ev.Room)
	readEvent(t, aliceWS, models.ServerEventReceiveMessage)

	// Step 7: History over REST
	{
		req, _ := http.NewRequest("GET", fmt.Sprintf("%s/api/messages/%d", baseURL, bobID), nil)
		req.Header.Set("Authorization", "Bearer "+aliceToken)
		resp, err := client.Do(req)
		require.NoError(t, err)
		defer func() { _ = resp.Body.Close() }()
		require.Equal(t, http.StatusOK, resp.StatusCode)
		var msgs []models.Message
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&msgs))
		require.Len(t, msgs, 1)
		require.Equal(t, "got a minute?", msgs[0].Body)

		req, _ = http.NewRequest("GET", baseURL+"/api/messages/"+group.RoomID, nil)
		req.Header.Set("Authorization", "Bearer "+bobToken)
		resp, err = client.Do(req)
		require.NoError(t, err)
		defer func() { _ = resp.Body.Close() }()
		var groupMsgs []models.Message
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&groupMsgs))
		require.Len(t, groupMsgs, 1)
	}

	// Step 8: Admin notification to Alice
	{
		body, _ := json.Marshal(map[string]any{
			"recipientId": aliceID,
			"message":     "see me after class",
			"type":        "direct",
		})
		req, _ := http.NewRequest("POST", baseURL+"/api/notifications", bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+adminToken)
		resp, err := client.Do(req)
		require.NoError(t, err)
		defer func() { _ = resp.Body.Close() }()
		require.Equal(t, http.StatusCreated, resp.StatusCode)

		var created struct {
			Notification    models.Notification `json:"notification"`
			DeliveryResults []struct {
				RecipientID int64  `json:"recipientId"`
				EmailSent   bool   `json:"emailSent"`
				EmailError  string `json:"emailError"`
			} `json:"deliveryResults"`
		}
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&created))
		require.NotZero(t, created.Notification.ID)
		require.Len(t, created.DeliveryResults, 1)
		require.Equal(t, aliceID, created.DeliveryResults[0].RecipientID)
		// No SMTP configured in this test, so the channel reports why.
		require.False(t, created.DeliveryResults[0].EmailSent)

		ev := readEvent(t, aliceWS, models.ServerEventReceiveNotification)
		require.NotNil(t, ev.Notification)
		require.Equal(t, "see me after class", ev.Notification.Message)

		// Alice's non-admin view includes it, Bob's does not.
		req, _ = http.NewRequest("GET", baseURL+"/api/notifications", nil)
		req.Header.Set("Authorization", "Bearer "+bobToken)
		resp, err = client.Do(req)
		require.NoError(t, err)
		defer func() { _ = resp.Body.Close() }()
		var bobView []models.Notification
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&bobView))
		require.Empty(t, bobView)
	}

	// Non-admins cannot send notifications.
	{
		body, _ := json.Marshal(map[string]any{"message": "spam"})
		req, _ := http.NewRequest("POST", baseURL+"/api/notifications", bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+aliceToken)
		resp, err := client.Do(req)
		require.NoError(t, err)
		defer func() { _ = resp.Body.Close() }()
		require.Equal(t, http.StatusForbidden, resp.StatusCode)
	}

	// Step 9: Announcement reaches everyone
	{
		body, _ := json.Marshal(map[string]any{"message": "campus closed friday"})
		req, _ := http.NewRequest("POST", baseURL+"/api/announcements", bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+adminToken)
		resp, err := client.Do(req)
		require.NoError(t, err)
		defer func() { _ = resp.Body.Close() }()
		require.Equal(t, http.StatusCreated, resp.StatusCode)

		for _, conn := range []*websocket.Conn{aliceWS, bobWS} {
			ev := readEvent(t, conn, models.ServerEventReceiveAnnouncement)
			require.NotNil(t, ev.Announcement)
			require.Equal(t, "campus closed friday", ev.Announcement.Message)
		}
	}

	// Step 10: File upload and download
	{
		pngBase64 := "iVBORw0KGgoAAAANSUhEUgAAAAEAAAABCAQAAAC1HAwCAAAAC0lEQVR42mNkYAAAAAYAAjCB0C8AAAAASUVORK5CYII="
		pngDecoded, err := base64.StdEncoding.DecodeString(pngBase64)
		require.NoError(t, err)

		var buf bytes.Buffer
		mw := multipart.NewWriter(&buf)
		part, err := mw.CreateFormFile("file", "pixel.png")
		require.NoError(t, err)
		_, err = part.Write(pngDecoded)
		require.NoError(t, err)
		require.NoError(t, mw.Close())

		req, _ := http.NewRequest("POST", baseURL+"/api/upload-file", &buf)
		req.Header.Set("Content-Type", mw.FormDataContentType())
		req.Header.Set("Authorization", "Bearer "+aliceToken)
		resp, err := client.Do(req)
		require.NoError(t, err)
		defer func() { _ = resp.Body.Close() }()
		require.Equal(t, http.StatusCreated, resp.StatusCode)

		var uploaded struct {
			FileURL  string `json:"fileUrl"`
			FileName string `json:"fileName"`
		}
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&uploaded))
		require.Contains(t, uploaded.FileURL, "/uploads/")
		require.Equal(t, "pixel.png", uploaded.FileName)

		respGet, err := client.Get(uploaded.FileURL)
		require.NoError(t, err)
		defer func() { _ = respGet.Body.Close() }()
		require.Equal(t, http.StatusOK, respGet.StatusCode)
		require.Equal(t, "image/png", respGet.Header.Get("Content-Type"))
		data, err := io.ReadAll(respGet.Body)
		require.NoError(t, err)
		require.Equal(t, pngDecoded, data)
	}

	// A text file does not pass the sniff test.
	{
		var buf bytes.Buffer
		mw := multipart.NewWriter(&buf)
		part, err := mw.CreateFormFile("file", "notes.txt")
		require.NoError(t, err)
		_, err = part.Write([]byte("just some text"))
		require.NoError(t, err)
		require.NoError(t, mw.Close())

		req, _ := http.NewRequest("POST", baseURL+"/api/upload-file", &buf)
		req.Header.Set("Content-Type", mw.FormDataContentType())
		req.Header.Set("Authorization", "Bearer "+aliceToken)
		resp, err := client.Do(req)
		require.NoError(t, err)
		defer func() { _ = resp.Body.Close() }()
		require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	}
}

func login(t *testing.T, client *http.Client, baseURL, username, password string) string {
	t.Helper()
	body, _ := json.Marshal(map[string]string{"username": username, "password": password})
	req, _ := http.NewRequest("POST", baseURL+"/api/login", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := client.Do(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var loginResp auth.LoginResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&loginResp))
	require.NotEmpty(t, loginResp.Token)
	return loginResp.Token
}

func registerUser(t *testing.T, client *http.Client, baseURL, adminToken string, fields map[string]any) int64 {
	t.Helper()
	body, _ := json.Marshal(fields)
	req, _ := http.NewRequest("POST", baseURL+"/api/register", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+adminToken)
	resp, err := client.Do(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var user models.User
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&user))
	require.NotZero(t, user.ID)
	return user.ID
}

func dialWS(t *testing.T, url, token string) *websocket.Conn {
	t.Helper()
	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)
	conn, resp, err := websocket.DefaultDialer.Dial(url, header)
	require.NoError(t, err)
	if resp != nil {
		defer func() { _ = resp.Body.Close() }()
	}
	return conn
}

// readEvent reads frames until one of the wanted type arrives. Other
// event types are presence noise and get skipped.
func readEvent(t *testing.T, conn *websocket.Conn, want models.ServerEventType) models.ServerEvent {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	for {
		var ev models.ServerEvent
		require.NoError(t, conn.ReadJSON(&ev))
		if ev.Type == want {
			return ev
		}
	}
}

func waitForServer(t *testing.T, urlStr string, retries int) {
	t.Helper()
	client := &http.Client{Timeout: 500 * time.Millisecond}
	for i := 0; i < retries; i++ {
		resp, err := client.Get(urlStr)
		if err == nil {
			_ = resp.Body.Close()
			return
		}
		time.Sleep(100 * time.Millisecond)
	}
	t.Fatalf("Server failed to start at %s after %d retries", urlStr, retries)
}
