package sync

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/xelth-com/examroom/internal/graph"
	"github.com/xelth-com/examroom/internal/models"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "journal.db")
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(models.All()...); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return db
}

func apply(t *testing.T, g *graph.Graph, j *Journal, op graph.Op) {
	t.Helper()
	changes := g.Apply(op)
	if err := j.Record(context.Background(), op, changes); err != nil {
		t.Fatalf("record: %v", err)
	}
}

func put(path string, state int64, fields map[string]string) graph.Op {
	raw := make(map[string]json.RawMessage, len(fields))
	for k, v := range fields {
		raw[k] = json.RawMessage(v)
	}
	return graph.Op{Path: graph.ParsePath(path), Fields: raw, State: state, Origin: "relay-test"}
}

func TestJournal_RoundTrip(t *testing.T) {
	db := openTestDB(t)
	j := NewJournal(db)
	g := graph.New()

	apply(t, g, j, put("room/a", 100, map[string]string{"name": `"Nino"`, "status": `"pending"`}))
	apply(t, g, j, put("room/a", 200, map[string]string{"status": `"approved"`}))
	apply(t, g, j, put("room/b", 150, map[string]string{"name": `"Giorgi"`}))

	restored := graph.New()
	clock := graph.NewClock()
	n, err := NewJournal(db).Load(context.Background(), restored, clock)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if n != 3 {
		t.Fatalf("expected 3 field rows, got %d", n)
	}

	a := restored.Node(graph.ParsePath("room/a"))
	if string(a["status"].Value) != `"approved"` || a["status"].State != 200 {
		t.Errorf("unexpected status field %+v", a["status"])
	}
	if string(a["name"].Value) != `"Nino"` {
		t.Errorf("unexpected name field %+v", a["name"])
	}
	if next := clock.Next(); next <= 200 {
		t.Errorf("clock should have advanced past restored states, got %d", next)
	}
}

func TestJournal_StaleWriteNotPersisted(t *testing.T) {
	db := openTestDB(t)
	j := NewJournal(db)
	g := graph.New()

	apply(t, g, j, put("room/a", 300, map[string]string{"status": `"approved"`}))
	apply(t, g, j, put("room/a", 100, map[string]string{"status": `"pending"`}))

	var row models.GraphField
	if err := db.Where("node_path = ? AND field = ?", "room/a", "status").Take(&row).Error; err != nil {
		t.Fatalf("load row: %v", err)
	}
	if string(row.Value) != `"approved"` || row.State != 300 {
		t.Errorf("stale write leaked into journal: %s @ %d", row.Value, row.State)
	}
}

func TestJournal_TombstoneClearsSubtree(t *testing.T) {
	db := openTestDB(t)
	j := NewJournal(db)
	g := graph.New()

	apply(t, g, j, put("room/a", 100, map[string]string{"name": `"Nino"`}))
	apply(t, g, j, put("room/b", 110, map[string]string{"name": `"Giorgi"`}))
	apply(t, g, j, put("room_other/x", 120, map[string]string{"name": `"Keep"`}))
	apply(t, g, j, graph.Op{Path: graph.ParsePath("room"), Tombstone: true, State: 500, Origin: "relay-test"})
	apply(t, g, j, put("room/c", 600, map[string]string{"name": `"Late"`}))

	var count int64
	db.Model(&models.GraphField{}).Count(&count)
	if count != 2 {
		t.Fatalf("expected 2 surviving rows, got %d", count)
	}

	restored := graph.New()
	if _, err := j.Load(context.Background(), restored, nil); err != nil {
		t.Fatalf("load: %v", err)
	}
	if restored.Node(graph.ParsePath("room/a")) != nil {
		t.Error("room/a should stay cleared")
	}
	if restored.Node(graph.ParsePath("room_other/x")) == nil {
		t.Error("room_other/x is not under room and must survive")
	}
	if restored.Node(graph.ParsePath("room/c")) == nil {
		t.Error("write after the reset must survive")
	}

	// a late write from before the reset is still rejected after restart
	if changes := restored.Apply(put("room/a", 400, map[string]string{"name": `"Ghost"`})); len(changes) != 0 {
		t.Errorf("pre-reset write accepted after restore: %+v", changes)
	}
	if s := restored.Tombstones()["room"]; s != 500 {
		t.Errorf("expected tombstone state 500, got %d", s)
	}
}

func TestJournal_OlderTombstoneKeepsNewer(t *testing.T) {
	db := openTestDB(t)
	j := NewJournal(db)
	g := graph.New()

	apply(t, g, j, graph.Op{Path: graph.ParsePath("room"), Tombstone: true, State: 500})
	apply(t, g, j, graph.Op{Path: graph.ParsePath("room"), Tombstone: true, State: 200})

	var ts models.GraphTombstone
	if err := db.Where("node_path = ?", "room").Take(&ts).Error; err != nil {
		t.Fatalf("load tombstone: %v", err)
	}
	if ts.State != 500 {
		t.Errorf("expected newest tombstone to win, got %d", ts.State)
	}
}

func TestEscapeLike(t *testing.T) {
	if got := escapeLike(`a_b%c\d`); got != `a\_b\%c\\d` {
		t.Errorf("escapeLike = %q", got)
	}
}
