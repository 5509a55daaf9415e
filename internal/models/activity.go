package models

import "time"

// Activity actions recorded in the log.
const (
	ActivityLogin         = "LOGIN"
	ActivityCreateExam    = "CREATE_EXAM"
	ActivityUpdateExam    = "UPDATE_EXAM"
	ActivityDeleteExam    = "DELETE_EXAM"
	ActivityDuplicateExam = "DUPLICATE_EXAM"
	ActivityAddUser       = "ADD_USER"
	ActivityUpdateUser    = "UPDATE_USER"
	ActivityDeleteUser    = "DELETE_USER"
	ActivityAddResource   = "ADD_RESOURCE"
)

// ActivityLogCap limits how many entries the log retains; every append trims
// older rows beyond this count.
const ActivityLogCap = 100

// ActivityLog is an append-only record of who did what, scoped by school.
type ActivityLog struct {
	ID         string    `db:"id" json:"id"`
	UserID     string    `db:"user_id" json:"user_id"`
	UserName   string    `db:"user_name" json:"user_name"`
	SchoolName string    `db:"school_name" json:"school_name"`
	Action     string    `db:"action" json:"action"`
	Details    string    `db:"details" json:"details"`
	Timestamp  time.Time `db:"timestamp" json:"timestamp"`
}
