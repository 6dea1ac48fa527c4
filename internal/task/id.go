package task

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	minIDLength  = 4
	maxIDLength  = 10
	nonceSize    = 16 // 128 bits of entropy
	hexChunkSize = 4  // Process 4 hex chars (16 bits) at a time for base36 conversion
)

// GenerateID creates a short task ID from the tenant, title and creation time.
// It starts with minIDLength characters and grows up to maxIDLength to avoid collisions.
func GenerateID(tenantID, title string, createdAt time.Time, existsFn func(string) bool) string {
	nonce := make([]byte, nonceSize)
	if _, err := rand.Read(nonce); err != nil {
		panic("crypto/rand failed: " + err.Error())
	}

	h := sha256.New()
	h.Write([]byte(tenantID))
	h.Write([]byte(title))
	h.Write([]byte(createdAt.Format(time.RFC3339Nano)))
	h.Write(nonce)

	base36 := hexToBase36(hex.EncodeToString(h.Sum(nil)))

	for length := minIDLength; length <= maxIDLength && length <= len(base36); length++ {
		candidate := base36[:length]
		if !existsFn(candidate) {
			return candidate
		}
	}
	return base36[:maxIDLength]
}

// NewEntryID returns an identifier for records nested inside a task
// (history entries, timer sessions, workflow rules).
func NewEntryID() string {
	return uuid.NewString()
}

// hexToBase36 converts a hex string to base36.
func hexToBase36(hexStr string) string {
	var result strings.Builder
	for i := 0; i < len(hexStr); i += hexChunkSize {
		end := min(i+hexChunkSize, len(hexStr))
		val, _ := strconv.ParseUint(hexStr[i:end], 16, 64)
		result.WriteString(strconv.FormatUint(val, 36))
	}
	return result.String()
}
