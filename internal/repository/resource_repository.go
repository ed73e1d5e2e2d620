package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-timetable/internal/models"
)

// ResourceRepository holds the room capacity and class headcount catalogs.
type ResourceRepository struct {
	db *sqlx.DB
}

// NewResourceRepository constructs the repository.
func NewResourceRepository(db *sqlx.DB) *ResourceRepository {
	return &ResourceRepository{db: db}
}

func (r *ResourceRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// ListRooms returns the rooms of an institution.
func (r *ResourceRepository) ListRooms(ctx context.Context, exec sqlx.ExtContext, institutionID string) ([]models.Room, error) {
	const query = `SELECT id, institution_id, name, capacity, updated_at FROM rooms WHERE institution_id = $1 ORDER BY id ASC`
	var rooms []models.Room
	if err := sqlx.SelectContext(ctx, r.exec(exec), &rooms, query, institutionID); err != nil {
		return nil, fmt.Errorf("list rooms: %w", err)
	}
	return rooms, nil
}

// UpsertRooms inserts or updates rooms.
func (r *ResourceRepository) UpsertRooms(ctx context.Context, exec sqlx.ExtContext, rooms []models.Room) error {
	const query = `
INSERT INTO rooms (id, institution_id, name, capacity, updated_at)
VALUES (:id, :institution_id, :name, :capacity, :updated_at)
ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, capacity = EXCLUDED.capacity, updated_at = EXCLUDED.updated_at`
	target := r.exec(exec)
	now := time.Now().UTC()
	for i := range rooms {
		room := &rooms[i]
		if room.ID == "" {
			room.ID = uuid.NewString()
		}
		room.UpdatedAt = now
		if _, err := sqlx.NamedExecContext(ctx, target, query, room); err != nil {
			return fmt.Errorf("upsert room: %w", err)
		}
	}
	return nil
}

// ListClasses returns the class groups of an institution.
func (r *ResourceRepository) ListClasses(ctx context.Context, exec sqlx.ExtContext, institutionID string) ([]models.ClassGroup, error) {
	const query = `SELECT id, institution_id, name, headcount, updated_at FROM class_groups WHERE institution_id = $1 ORDER BY id ASC`
	var classes []models.ClassGroup
	if err := sqlx.SelectContext(ctx, r.exec(exec), &classes, query, institutionID); err != nil {
		return nil, fmt.Errorf("list class groups: %w", err)
	}
	return classes, nil
}

// UpsertClasses inserts or updates class groups.
func (r *ResourceRepository) UpsertClasses(ctx context.Context, exec sqlx.ExtContext, classes []models.ClassGroup) error {
	const query = `
INSERT INTO class_groups (id, institution_id, name, headcount, updated_at)
VALUES (:id, :institution_id, :name, :headcount, :updated_at)
ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, headcount = EXCLUDED.headcount, updated_at = EXCLUDED.updated_at`
	target := r.exec(exec)
	now := time.Now().UTC()
	for i := range classes {
		class := &classes[i]
		if class.ID == "" {
			class.ID = uuid.NewString()
		}
		class.UpdatedAt = now
		if _, err := sqlx.NamedExecContext(ctx, target, query, class); err != nil {
			return fmt.Errorf("upsert class group: %w", err)
		}
	}
	return nil
}
