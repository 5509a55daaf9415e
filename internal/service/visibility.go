package service

import (
	"github.com/aftab-edu/exam-studio-api/internal/models"
)

// Visibility rules are pure functions over the caller's claims so handlers
// and services share one definition of who sees and touches what.
//
// Read scope:
//   - super_admin sees every school.
//   - admin and teacher see their own school only.
//
// Teachers browse the whole school archive, not just their own exams; write
// access stays restricted to ownership rules below.
//
// A non-super-admin without a school is malformed: an empty school name must
// never widen into the unfiltered scope, so every rule here treats it as no
// access.

// UserScope returns the school filter a viewer is allowed to list users with.
// The boolean reports whether the viewer may list users at all.
func UserScope(viewer *models.JWTClaims) (schoolName string, ok bool) {
	switch viewer.Role {
	case models.RoleSuperAdmin:
		return "", true
	case models.RoleAdmin:
		return viewer.SchoolName, viewer.SchoolName != ""
	default:
		return "", false
	}
}

// ExamScope returns the school filter applied when listing exams.
func ExamScope(viewer *models.JWTClaims) (schoolName string, ok bool) {
	if viewer.Role == models.RoleSuperAdmin {
		return "", true
	}
	return viewer.SchoolName, viewer.SchoolName != ""
}

// ActivityScope returns the school filter applied when listing activity.
// Teachers do not see the activity log.
func ActivityScope(viewer *models.JWTClaims) (schoolName string, ok bool) {
	switch viewer.Role {
	case models.RoleSuperAdmin:
		return "", true
	case models.RoleAdmin:
		return viewer.SchoolName, viewer.SchoolName != ""
	default:
		return "", false
	}
}

// CanViewExam reports whether the viewer may read a single exam.
func CanViewExam(viewer *models.JWTClaims, exam *models.Exam) bool {
	if viewer.Role == models.RoleSuperAdmin {
		return true
	}
	return viewer.SchoolName != "" && exam.SchoolName == viewer.SchoolName
}

// CanModifyExam reports whether the viewer may update or delete an exam.
// Teachers touch only their own exams; admins manage their school's archive.
func CanModifyExam(viewer *models.JWTClaims, exam *models.Exam) bool {
	switch viewer.Role {
	case models.RoleSuperAdmin:
		return true
	case models.RoleAdmin:
		return viewer.SchoolName != "" && exam.SchoolName == viewer.SchoolName
	default:
		return exam.UserID == viewer.UserID
	}
}

// CanCreateUser reports whether the actor may create an account with the
// given role and school. Admins only provision teachers for their own school,
// and school-bound roles always need a school.
func CanCreateUser(actor *models.JWTClaims, role models.UserRole, schoolName string) bool {
	switch actor.Role {
	case models.RoleSuperAdmin:
		return role == models.RoleSuperAdmin || schoolName != ""
	case models.RoleAdmin:
		return role == models.RoleTeacher && schoolName != "" && schoolName == actor.SchoolName
	default:
		return false
	}
}

// CanUpdateUser reports whether the actor may edit the target's profile.
// Admins touch only their own school's teachers.
func CanUpdateUser(actor *models.JWTClaims, target *models.User) bool {
	switch actor.Role {
	case models.RoleSuperAdmin:
		return true
	case models.RoleAdmin:
		return target.Role == models.RoleTeacher && target.SchoolName == actor.SchoolName
	default:
		return false
	}
}

// CanDeleteUser reports whether the actor may delete the target account.
// Nobody deletes themselves, and only a super_admin removes privileged
// accounts.
func CanDeleteUser(actor *models.JWTClaims, target *models.User) bool {
	if actor.UserID == target.ID {
		return false
	}
	switch actor.Role {
	case models.RoleSuperAdmin:
		return true
	case models.RoleAdmin:
		return target.Role == models.RoleTeacher && target.SchoolName == actor.SchoolName
	default:
		return false
	}
}

// CanManageResources reports whether the actor may add or remove school
// reference material.
func CanManageResources(actor *models.JWTClaims) bool {
	return actor.Role == models.RoleSuperAdmin || actor.Role == models.RoleAdmin
}
