package models

import (
	"time"

	"github.com/lib/pq"
)

// SchoolResource is reference material an admin registers for their school.
// The generator folds resource content into prompts as a knowledge base.
type SchoolResource struct {
	ID         string         `db:"id" json:"id"`
	SchoolName string         `db:"school_name" json:"school_name"`
	Title      string         `db:"title" json:"title"`
	Content    string         `db:"content" json:"content"`
	Tags       pq.StringArray `db:"tags" json:"tags" swaggertype:"array,string"`
	AddedBy    string         `db:"added_by" json:"added_by"`
	CreatedAt  time.Time      `db:"created_at" json:"created_at"`
}
