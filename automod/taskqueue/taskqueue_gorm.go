package taskqueue

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type GormTask struct {
	ID        string `gorm:"primaryKey"`
	Kind      string
	RunAt     time.Time
	VisibleAt time.Time `gorm:"index"`
	Attempts  int
	Payload   []byte
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (t *GormTask) task() Task {
	return Task{
		ID:       t.ID,
		Kind:     Kind(t.Kind),
		RunAt:    t.RunAt,
		Attempts: t.Attempts,
		Payload:  t.Payload,
	}
}

// SQL-backed queue. Claims are optimistic: a row is only claimed if its visibility time is unchanged since it was read.
type GormQueue struct {
	db *gorm.DB
}

var _ Store = (*GormQueue)(nil)

func NewGormQueue(db *gorm.DB) (*GormQueue, error) {
	if err := db.AutoMigrate(&GormTask{}); err != nil {
		return nil, err
	}
	return &GormQueue{db: db}, nil
}

func (q *GormQueue) Enqueue(ctx context.Context, kind Kind, payload any, runAt time.Time) (string, error) {
	t, err := NewTask(kind, payload, runAt)
	if err != nil {
		return "", err
	}
	row := GormTask{
		ID:        t.ID,
		Kind:      string(t.Kind),
		RunAt:     t.RunAt,
		VisibleAt: t.RunAt,
		Payload:   t.Payload,
	}
	err = q.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&row).Error
	if err != nil {
		return "", err
	}
	return t.ID, nil
}

func (q *GormQueue) Claim(ctx context.Context, now time.Time, limit int, lease time.Duration) ([]Task, error) {
	// stored times are UTC, and sqlite compares them as text
	now = now.UTC()
	var rows []GormTask
	err := q.db.WithContext(ctx).
		Where("visible_at <= ?", now).
		Order("visible_at").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]Task, 0, len(rows))
	for i := range rows {
		row := &rows[i]
		res := q.db.WithContext(ctx).Model(&GormTask{}).
			Where("id = ? AND visible_at = ?", row.ID, row.VisibleAt).
			Update("visible_at", now.Add(lease))
		if res.Error != nil {
			return nil, res.Error
		}
		if res.RowsAffected == 0 {
			// claimed by another worker
			continue
		}
		out = append(out, row.task())
	}
	return out, nil
}

func (q *GormQueue) Complete(ctx context.Context, id string) error {
	return q.db.WithContext(ctx).Delete(&GormTask{}, "id = ?", id).Error
}

func (q *GormQueue) Retry(ctx context.Context, task *Task, runAt time.Time) error {
	return q.db.WithContext(ctx).Model(&GormTask{}).
		Where("id = ?", task.ID).
		Updates(map[string]any{
			"attempts":   task.Attempts + 1,
			"visible_at": runAt.UTC(),
		}).Error
}
