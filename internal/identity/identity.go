// Package identity persists who is signed in to taskflow in a data directory.
// The signed-in user is the actor recorded on every change made from the CLI.
package identity

import (
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const identityFile = "identity.json"

// Identity is the signed-in user of a data directory.
type Identity struct {
	UserID     string    `json:"user_id"`
	TenantID   string    `json:"tenant_id,omitempty"`
	SignedInAt time.Time `json:"signed_in_at"`
}

// Decode parses an identity document such as one piped from a sign-in helper.
func Decode(r io.Reader) (*Identity, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}

	if len(data) == 0 {
		return nil, errors.New("no identity input")
	}

	var id Identity
	if unmarshalErr := json.Unmarshal(data, &id); unmarshalErr != nil {
		return nil, unmarshalErr
	}

	id.UserID = strings.TrimSpace(id.UserID)
	if id.UserID == "" {
		return nil, errors.New("user_id is required")
	}

	return &id, nil
}

func identityPath(basePath string) string {
	return filepath.Join(basePath, identityFile)
}

// Exists checks if someone is signed in.
func Exists(basePath string) bool {
	_, err := os.Stat(identityPath(basePath))
	return err == nil
}

// Load reads the identity from disk.
func Load(basePath string) (*Identity, error) {
	data, err := os.ReadFile(identityPath(basePath))
	if err != nil {
		return nil, err
	}

	var id Identity
	if unmarshalErr := json.Unmarshal(data, &id); unmarshalErr != nil {
		return nil, unmarshalErr
	}

	return &id, nil
}

// Save writes the identity to disk.
func Save(basePath string, id *Identity) error {
	//nolint:gosec // G301: 0755 is appropriate for user-accessible data directory
	if mkdirErr := os.MkdirAll(basePath, 0o755); mkdirErr != nil {
		return mkdirErr
	}

	data, err := json.MarshalIndent(id, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(identityPath(basePath), data, 0o600)
}

// Login signs userID in, replacing any previous identity. It returns the
// user that was signed in before, if any.
func Login(basePath, userID, tenantID string, now time.Time) (string, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return "", errors.New("user is required")
	}

	var previous string
	existing, loadErr := Load(basePath)
	switch {
	case loadErr == nil:
		previous = existing.UserID
	case !os.IsNotExist(loadErr):
		return "", loadErr
	}

	id := &Identity{UserID: userID, TenantID: tenantID, SignedInAt: now.UTC()}
	if saveErr := Save(basePath, id); saveErr != nil {
		return "", saveErr
	}
	return previous, nil
}

// Logout removes the identity. Logging out twice is not an error.
func Logout(basePath string) error {
	err := os.Remove(identityPath(basePath))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

// Actor returns the signed-in user, falling back to the OS user name and
// then to "unknown".
func Actor(basePath string) string {
	if id, err := Load(basePath); err == nil && id.UserID != "" {
		return id.UserID
	}
	if user := os.Getenv("USER"); user != "" {
		return user
	}
	return "unknown"
}
