package sync

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/xelth-com/examroom/internal/graph"
	"github.com/xelth-com/examroom/internal/models"
)

// Journal persists the relay graph through gorm so a restarted relay
// resumes with the same rooms instead of an empty graph.
type Journal struct {
	db *gorm.DB
}

// NewJournal creates a journal on an already migrated database
func NewJournal(db *gorm.DB) *Journal {
	return &Journal{db: db}
}

// Record stores the result of one applied op.
// Field rows are only written for fields the op actually won.
func (j *Journal) Record(ctx context.Context, op graph.Op, changes []graph.Change) error {
	return j.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if op.Tombstone {
			return recordTombstone(tx, op)
		}

		for _, change := range changes {
			if change.Removed() {
				continue
			}
			nodePath := change.Path.String()
			for name, f := range change.Fields {
				if f.State != op.State {
					continue
				}
				row := models.GraphField{NodePath: nodePath, Field: name}
				err := tx.Where("node_path = ? AND field = ?", nodePath, name).
					Assign(models.GraphField{
						Value:  datatypes.JSON(f.Value),
						State:  f.State,
						Origin: op.Origin,
					}).
					FirstOrCreate(&row).Error
				if err != nil {
					return fmt.Errorf("upsert %s.%s: %w", nodePath, name, err)
				}
			}
		}
		return nil
	})
}

func recordTombstone(tx *gorm.DB, op graph.Op) error {
	key := op.Path.String()

	err := tx.Where("(node_path = ? OR node_path LIKE ? ESCAPE '\\') AND state < ?", key, escapeLike(key)+"/%", op.State).
		Delete(&models.GraphField{}).Error
	if err != nil {
		return fmt.Errorf("clear %s: %w", key, err)
	}

	var existing models.GraphTombstone
	err = tx.Where("node_path = ?", key).Take(&existing).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return tx.Create(&models.GraphTombstone{NodePath: key, State: op.State, Origin: op.Origin}).Error
	case err != nil:
		return fmt.Errorf("load tombstone %s: %w", key, err)
	case op.State > existing.State:
		return tx.Model(&existing).Updates(map[string]interface{}{
			"state":      op.State,
			"origin":     op.Origin,
			"cleared_at": time.Now().UTC(),
		}).Error
	}
	return nil
}

// Load replays persisted tombstones and fields into g and advances clock past them.
// It returns the number of field rows loaded.
func (j *Journal) Load(ctx context.Context, g *graph.Graph, clock *graph.Clock) (int, error) {
	db := j.db.WithContext(ctx)

	var tombstones []models.GraphTombstone
	if err := db.Find(&tombstones).Error; err != nil {
		return 0, fmt.Errorf("failed to load tombstones: %w", err)
	}
	for _, t := range tombstones {
		g.RestoreTombstone(graph.ParsePath(t.NodePath), t.State)
		if clock != nil {
			clock.Observe(t.State)
		}
	}

	var fields []models.GraphField
	if err := db.Order("state asc").Find(&fields).Error; err != nil {
		return 0, fmt.Errorf("failed to load fields: %w", err)
	}
	for _, f := range fields {
		g.Restore(graph.ParsePath(f.NodePath), f.Field, graph.Field{Value: []byte(f.Value), State: f.State})
		if clock != nil {
			clock.Observe(f.State)
		}
	}

	log.Printf("📚 Journal: restored %d fields, %d tombstones", len(fields), len(tombstones))
	return len(fields), nil
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
