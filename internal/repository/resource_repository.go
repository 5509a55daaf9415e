package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/aftab-edu/exam-studio-api/internal/models"
)

// ResourceRepository provides database access for school reference material.
type ResourceRepository struct {
	db *sqlx.DB
}

// NewResourceRepository creates a new instance of ResourceRepository.
func NewResourceRepository(db *sqlx.DB) *ResourceRepository {
	return &ResourceRepository{db: db}
}

// Create inserts a new school resource.
func (r *ResourceRepository) Create(ctx context.Context, resource *models.SchoolResource) error {
	if resource.ID == "" {
		resource.ID = uuid.NewString()
	}
	if resource.CreatedAt.IsZero() {
		resource.CreatedAt = time.Now().UTC()
	}

	const query = `INSERT INTO school_resources (id, school_name, title, content, tags, added_by, created_at) VALUES (:id, :school_name, :title, :content, :tags, :added_by, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, resource); err != nil {
		return fmt.Errorf("create school resource: %w", err)
	}
	return nil
}

// FindByID returns a resource by identifier.
func (r *ResourceRepository) FindByID(ctx context.Context, id string) (*models.SchoolResource, error) {
	const query = `SELECT id, school_name, title, content, tags, added_by, created_at FROM school_resources WHERE id = $1 LIMIT 1`
	var resource models.SchoolResource
	if err := r.db.GetContext(ctx, &resource, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find school resource by id: %w", err)
	}
	return &resource, nil
}

// ListBySchool returns all resources registered for a school, newest first.
func (r *ResourceRepository) ListBySchool(ctx context.Context, schoolName string) ([]models.SchoolResource, error) {
	const query = `SELECT id, school_name, title, content, tags, added_by, created_at FROM school_resources WHERE school_name = $1 ORDER BY created_at DESC`
	var resources []models.SchoolResource
	if err := r.db.SelectContext(ctx, &resources, query, schoolName); err != nil {
		return nil, fmt.Errorf("list school resources: %w", err)
	}
	return resources, nil
}

// Delete removes a resource. Deleting an absent id is a no-op.
func (r *ResourceRepository) Delete(ctx context.Context, id string) error {
	const query = `DELETE FROM school_resources WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("delete school resource: %w", err)
	}
	return nil
}
