package models

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// GraphField is one persisted field of a relay graph node
type GraphField struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	NodePath  string         `gorm:"type:varchar(512);not null;uniqueIndex:idx_node_field,priority:1;index:idx_node_path" json:"nodePath"`
	Field     string         `gorm:"type:varchar(255);not null;uniqueIndex:idx_node_field,priority:2" json:"field"`
	Value     datatypes.JSON `json:"value"`
	State     int64          `gorm:"not null;index:idx_field_state" json:"state"`
	Origin    string         `gorm:"type:varchar(255)" json:"origin"`
	CreatedAt time.Time      `json:"createdAt"`
	UpdatedAt time.Time      `json:"updatedAt"`
}

// TableName specifies the table name
func (GraphField) TableName() string {
	return "graph_fields"
}

// GraphTombstone records the newest reset applied to a node path
type GraphTombstone struct {
	NodePath  string    `gorm:"type:varchar(512);primaryKey" json:"nodePath"`
	State     int64     `gorm:"not null" json:"state"`
	Origin    string    `gorm:"type:varchar(255)" json:"origin"`
	ClearedAt time.Time `gorm:"not null" json:"clearedAt"`
}

// TableName specifies the table name
func (GraphTombstone) TableName() string {
	return "graph_tombstones"
}

// BeforeCreate hook
func (t *GraphTombstone) BeforeCreate(tx *gorm.DB) error {
	if t.ClearedAt.IsZero() {
		t.ClearedAt = time.Now().UTC()
	}
	return nil
}

// All returns every model the relay migrates
func All() []interface{} {
	return []interface{}{
		&GraphField{},
		&GraphTombstone{},
	}
}
