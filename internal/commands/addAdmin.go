package commands

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"

	"campus/internal/auth"
	"campus/internal/config"
	"campus/internal/models"
	"campus/internal/storage"
)

// AddAdmin creates an administrator account directly in the database.
// Meant for bootstrapping a fresh install: all other accounts are
// provisioned by an admin through the API.
func AddAdmin(username string, cfg *config.Config) error {
	store, err := storage.NewBboltStorage(cfg.DBFile)
	if err != nil {
		return fmt.Errorf("failed to open database: %w. Is the server running?", err)
	}
	defer func() { _ = store.Close() }()

	password, err := randomPassword()
	if err != nil {
		return fmt.Errorf("failed to generate password: %w", err)
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	user, err := store.CreateUser(models.User{
		Username: username,
		Name:     username,
		Role:     models.RoleAdmin,
	}, hash)
	if err != nil {
		return fmt.Errorf("failed to create admin: %w", err)
	}

	fmt.Printf("\nAdmin Created Successfully!\n")
	fmt.Printf("ID:       %d\n", user.ID)
	fmt.Printf("Username: %s\n", user.Username)
	fmt.Printf("Password: %s\n\n", password)
	fmt.Println("Please store the password safely; it cannot be recovered.")
	return nil
}

func randomPassword() (string, error) {
	buf := make([]byte, 18)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
