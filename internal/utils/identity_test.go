package utils

import (
	"strings"
	"testing"

	"github.com/google/uuid"
)

func TestNewID(t *testing.T) {
	a, b := NewID(), NewID()
	if a == b {
		t.Error("ids should be unique")
	}
	if _, err := uuid.Parse(a); err != nil {
		t.Errorf("expected uuid, got %q", a)
	}
}

func TestNewClientID(t *testing.T) {
	id := NewClientID("exam")
	if !strings.HasPrefix(id, "exam-") || len(id) != len("exam-")+8 {
		t.Errorf("unexpected client id %q", id)
	}
}

func TestLoadOrGenerateRelayIdentity(t *testing.T) {
	dir := t.TempDir()

	explicit, err := LoadOrGenerateRelayIdentity("relay-fixed", dir)
	if err != nil || explicit.InstanceID != "relay-fixed" {
		t.Fatalf("explicit id ignored: %+v %v", explicit, err)
	}

	first, err := LoadOrGenerateRelayIdentity("", dir)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	second, err := LoadOrGenerateRelayIdentity("", dir)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if first.InstanceID != second.InstanceID {
		t.Errorf("identity not persisted: %s vs %s", first.InstanceID, second.InstanceID)
	}
}
