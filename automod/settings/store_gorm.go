package settings

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type GormSetting struct {
	Namespace string `gorm:"primaryKey"`
	Name      string `gorm:"primaryKey"`
	// JSON-encoded
	Value     string
	UpdatedAt time.Time
}

// SQL-backed settings store, one row per key.
type GormStore struct {
	db        *gorm.DB
	Namespace string
}

var _ Store = (*GormStore)(nil)

func NewGormStore(db *gorm.DB, namespace string) (*GormStore, error) {
	if err := db.AutoMigrate(&GormSetting{}); err != nil {
		return nil, fmt.Errorf("migrating settings table: %w", err)
	}
	return &GormStore{
		db:        db,
		Namespace: namespace,
	}, nil
}

func (s *GormStore) Get(ctx context.Context) (Values, error) {
	var rows []GormSetting
	if err := s.db.WithContext(ctx).Where("namespace = ?", s.Namespace).Find(&rows).Error; err != nil {
		return nil, err
	}
	raw := make(Values, len(rows))
	for _, row := range rows {
		var v any
		if err := json.Unmarshal([]byte(row.Value), &v); err != nil {
			return nil, fmt.Errorf("decoding setting %s: %w", row.Name, err)
		}
		raw[row.Name] = v
	}
	return normalizeStored(raw)
}

func (s *GormStore) Set(ctx context.Context, key string, raw any) error {
	v, err := Normalize(key, raw)
	if err != nil {
		return err
	}
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	row := GormSetting{
		Namespace: s.Namespace,
		Name:      key,
		Value:     string(b),
		UpdatedAt: time.Now(),
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "namespace"}, {Name: "name"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&row).Error
}
