package utils

import (
	"crypto/rand"
	"encoding/hex"
	"os"
	"path/filepath"
	"strings"
)

// GetPersistentServerID resolves the owner tag stamped on conversation
// locks, so a lock left behind by a crashed replica can be traced back.
// Preference order: explicit override, the id saved under the storage
// path, the hostname, and finally a generated id persisted so restarts
// keep the same identity.
func GetPersistentServerID(override, storagePath string) string {
	if override != "" {
		return override
	}

	idFile := filepath.Join(storagePath, ".server_id")
	if data, err := os.ReadFile(idFile); err == nil {
		if id := strings.TrimSpace(string(data)); id != "" {
			return id
		}
	}

	if hostname, err := os.Hostname(); err == nil && hostname != "" && hostname != "localhost" {
		if clean := hostnameTag(hostname); clean != "" {
			return "zapdesk-" + clean
		}
	}

	buf := make([]byte, 4)
	rand.Read(buf)
	id := "zapdesk-" + hex.EncodeToString(buf)

	_ = os.MkdirAll(storagePath, 0755)
	_ = os.WriteFile(idFile, []byte(id), 0644)
	return id
}

// hostnameTag keeps only the characters safe for a lock owner column.
func hostnameTag(hostname string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		}
		return -1
	}, hostname)
}
