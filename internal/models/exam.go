package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// QuestionType enumerates the supported question layouts.
type QuestionType string

const (
	QuestionMultipleChoice QuestionType = "multiple_choice"
	QuestionDescriptive    QuestionType = "descriptive"
	QuestionFillInBlank    QuestionType = "fill_in_blank"
)

// SegmentType tags a question fragment as natural-language text or a math
// expression; the two render with different directionality.
type SegmentType string

const (
	SegmentText SegmentType = "text"
	SegmentMath SegmentType = "math"
)

// QuestionSegment is a fragment of question content.
type QuestionSegment struct {
	Type    SegmentType `json:"type"`
	Content string      `json:"content"`
}

// Question is a single exam item. QuestionText is a flattened rendering of the
// segments, kept for clients that do not handle segmented content.
type Question struct {
	ID            string            `json:"id"`
	Type          QuestionType      `json:"type"`
	QuestionText  string            `json:"question_text"`
	Segments      []QuestionSegment `json:"segments,omitempty"`
	Options       []string          `json:"options,omitempty"`
	CorrectAnswer string            `json:"correct_answer,omitempty"`
	Points        float64           `json:"points"`
}

// QuestionList stores the ordered question sequence as a JSONB document.
type QuestionList []Question

// Value implements driver.Valuer for JSONB persistence.
func (q QuestionList) Value() (driver.Value, error) {
	if q == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(q)
}

// Scan implements sql.Scanner for JSONB persistence.
func (q *QuestionList) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		*q = nil
		return nil
	case []byte:
		return json.Unmarshal(v, q)
	case string:
		return json.Unmarshal([]byte(v), q)
	default:
		return fmt.Errorf("unsupported question list source type %T", src)
	}
}

// Exam is a generated exam sheet. SchoolName is stamped from the creating
// user's school at creation time and never re-validated afterwards.
type Exam struct {
	ID         string       `db:"id" json:"id"`
	UserID     string       `db:"user_id" json:"user_id"`
	AuthorName string       `db:"author_name" json:"author_name"`
	SchoolName string       `db:"school_name" json:"school_name"`
	Title      string       `db:"title" json:"title"`
	Topic      string       `db:"topic" json:"topic"`
	GradeLevel string       `db:"grade_level" json:"grade_level"`
	Questions  QuestionList `db:"questions" json:"questions"`
	RawContent string       `db:"raw_content" json:"raw_content,omitempty"`
	CreatedAt  time.Time    `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time    `db:"updated_at" json:"updated_at"`
}

// TotalPoints sums the point values of all questions.
func (e *Exam) TotalPoints() float64 {
	var total float64
	for _, q := range e.Questions {
		total += q.Points
	}
	return total
}

// ExamFilter captures filtering criteria for listing exams.
type ExamFilter struct {
	SchoolName string
	UserID     string
	Search     string
	Page       int
	PageSize   int
}

// Difficulty levels accepted by the generator.
const (
	DifficultyEasy   = "easy"
	DifficultyMedium = "medium"
	DifficultyHard   = "hard"
)

// GenerateExamParams is the user-supplied input for exam generation.
type GenerateExamParams struct {
	Topic          string `json:"topic" validate:"required"`
	GradeLevel     string `json:"grade_level" validate:"required"`
	Difficulty     string `json:"difficulty" validate:"required,oneof=easy medium hard"`
	QuestionCount  int    `json:"question_count" validate:"gte=0"`
	SourceMaterial string `json:"source_material,omitempty"`
}
