package summary

import (
	"github.com/smartbrief/core/internal/models"
	"github.com/smartbrief/core/internal/modules/auth"
)

var (
	// mutators may regenerate or delete any summary.
	mutators = []models.Role{models.RoleEditor, models.RoleAdmin}
	// readers may view and list any summary.
	readers = []models.Role{models.RoleReviewer, models.RoleEditor, models.RoleAdmin}
)

// CanView reports whether caller may read s.
func CanView(caller auth.Identity, s *models.SummaryModel) bool {
	return s.IsOwnedBy(caller.UserID) || auth.HasAnyRole(caller.Role, readers...)
}

// CanModify reports whether caller may regenerate or delete s.
func CanModify(caller auth.Identity, s *models.SummaryModel) bool {
	return s.IsOwnedBy(caller.UserID) || auth.HasAnyRole(caller.Role, mutators...)
}

// ListScope returns the owner id a listing is restricted to, or "" when
// caller may list every summary.
func ListScope(caller auth.Identity) string {
	if auth.HasAnyRole(caller.Role, readers...) {
		return ""
	}
	return caller.UserID
}
