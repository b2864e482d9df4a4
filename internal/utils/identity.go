package utils

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// RelayIdentity holds the persistent identity of a relay instance
type RelayIdentity struct {
	InstanceID string `json:"instance_id"`
}

// NewID returns a fresh random identifier for graph records
func NewID() string {
	return uuid.NewString()
}

// NewClientID returns a connection id with the given prefix
func NewClientID(prefix string) string {
	return prefix + "-" + uuid.NewString()[:8]
}

// LoadOrGenerateRelayIdentity ensures the relay keeps a stable instance id across restarts.
// An explicit id wins, then the identity file in dir, then a newly generated one that is saved to dir.
func LoadOrGenerateRelayIdentity(explicit, dir string) (*RelayIdentity, error) {
	if explicit != "" {
		return &RelayIdentity{InstanceID: explicit}, nil
	}

	identityFile := filepath.Join(dir, "relay_identity.json")
	if data, err := os.ReadFile(identityFile); err == nil {
		var identity RelayIdentity
		if err := json.Unmarshal(data, &identity); err == nil && identity.InstanceID != "" {
			return &identity, nil
		}
	}

	identity := &RelayIdentity{InstanceID: NewClientID("relay")}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return identity, fmt.Errorf("failed to create identity dir: %w", err)
	}
	data, _ := json.MarshalIndent(identity, "", "  ")
	if err := os.WriteFile(identityFile, data, 0o600); err != nil {
		return identity, fmt.Errorf("failed to save identity: %w", err)
	}
	return identity, nil
}
