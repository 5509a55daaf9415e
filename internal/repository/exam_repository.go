package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/aftab-edu/exam-studio-api/internal/models"
)

// ExamRepository provides database access for exam documents.
type ExamRepository struct {
	db *sqlx.DB
}

// NewExamRepository creates a new instance of ExamRepository.
func NewExamRepository(db *sqlx.DB) *ExamRepository {
	return &ExamRepository{db: db}
}

const examColumns = `id, user_id, author_name, school_name, title, topic, grade_level, questions, raw_content, created_at, updated_at`

// Upsert inserts an exam or, when the id already exists, replaces its mutable
// fields. Ownership columns never change on conflict.
func (r *ExamRepository) Upsert(ctx context.Context, exam *models.Exam) error {
	if exam.ID == "" {
		exam.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if exam.CreatedAt.IsZero() {
		exam.CreatedAt = now
	}
	exam.UpdatedAt = now

	const query = `INSERT INTO exams (id, user_id, author_name, school_name, title, topic, grade_level, questions, raw_content, created_at, updated_at)
		VALUES (:id, :user_id, :author_name, :school_name, :title, :topic, :grade_level, :questions, :raw_content, :created_at, :updated_at)
		ON CONFLICT (id) DO UPDATE SET
			title = EXCLUDED.title,
			topic = EXCLUDED.topic,
			grade_level = EXCLUDED.grade_level,
			questions = EXCLUDED.questions,
			raw_content = EXCLUDED.raw_content,
			updated_at = EXCLUDED.updated_at`
	if _, err := r.db.NamedExecContext(ctx, query, exam); err != nil {
		return fmt.Errorf("upsert exam: %w", err)
	}
	return nil
}

// FindByID returns an exam by identifier.
func (r *ExamRepository) FindByID(ctx context.Context, id string) (*models.Exam, error) {
	query := fmt.Sprintf(`SELECT %s FROM exams WHERE id = $1 LIMIT 1`, examColumns)
	var exam models.Exam
	if err := r.db.GetContext(ctx, &exam, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find exam by id: %w", err)
	}
	return &exam, nil
}

// List returns exams matching the filter, newest first, with total count.
func (r *ExamRepository) List(ctx context.Context, filter models.ExamFilter) ([]models.Exam, int, error) {
	baseQuery := `FROM exams WHERE 1=1`
	var conditions []string
	var args []interface{}

	if filter.SchoolName != "" {
		conditions = append(conditions, fmt.Sprintf("school_name = $%d", len(args)+1))
		args = append(args, filter.SchoolName)
	}
	if filter.UserID != "" {
		conditions = append(conditions, fmt.Sprintf("user_id = $%d", len(args)+1))
		args = append(args, filter.UserID)
	}
	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("(LOWER(title) LIKE $%d OR LOWER(topic) LIKE $%d)", len(args)+1, len(args)+1))
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
	}

	if len(conditions) > 0 {
		baseQuery += " AND " + strings.Join(conditions, " AND ")
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}
	offset := (page - 1) * pageSize

	listQuery := fmt.Sprintf("SELECT %s %s ORDER BY created_at DESC LIMIT %d OFFSET %d", examColumns, baseQuery, pageSize, offset)

	var exams []models.Exam
	if err := r.db.SelectContext(ctx, &exams, listQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("list exams: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", baseQuery)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count exams: %w", err)
	}

	return exams, total, nil
}

// Delete removes an exam. Deleting an absent id is a no-op.
func (r *ExamRepository) Delete(ctx context.Context, id string) error {
	const query = `DELETE FROM exams WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("delete exam: %w", err)
	}
	return nil
}

// CountBySchool returns the number of exams stored for a school. An empty
// school counts across all schools.
func (r *ExamRepository) CountBySchool(ctx context.Context, schoolName string) (int, error) {
	var total int
	if schoolName == "" {
		const query = `SELECT COUNT(*) FROM exams`
		if err := r.db.GetContext(ctx, &total, query); err != nil {
			return 0, fmt.Errorf("count exams: %w", err)
		}
		return total, nil
	}
	const query = `SELECT COUNT(*) FROM exams WHERE school_name = $1`
	if err := r.db.GetContext(ctx, &total, query, schoolName); err != nil {
		return 0, fmt.Errorf("count exams: %w", err)
	}
	return total, nil
}
