package guard

import "github.com/upb/academy-hub/models"

// SidebarItem is one navigation entry of a dashboard shell
type SidebarItem struct {
	Label string `json:"label"`
	Path  string `json:"path"`
}

// Shell describes the chrome rendered around a role's dashboard
type Shell struct {
	Role    models.Role   `json:"role"`
	Title   string        `json:"title"`
	Sidebar []SidebarItem `json:"sidebar"`
}

// ShellFor returns the dashboard shell of role. ok is false for unknown roles.
func ShellFor(role models.Role) (Shell, bool) {
	switch role {
	case models.RoleSuperAdmin:
		return Shell{
			Role:  role,
			Title: "Super Admin",
			Sidebar: []SidebarItem{
				{Label: "Dashboard", Path: "/super-admin/dashboard"},
				{Label: "Academies", Path: "/super-admin/academies"},
				{Label: "Users", Path: "/super-admin/users"},
				{Label: "Security Rules", Path: "/super-admin/security-rules"},
				{Label: "Settings", Path: "/super-admin/settings"},
			},
		}, true
	case models.RoleOwner:
		return Shell{
			Role:  role,
			Title: "Academy Owner",
			Sidebar: []SidebarItem{
				{Label: "Dashboard", Path: "/owner/dashboard"},
				{Label: "Coaches", Path: "/owner/coaches"},
				{Label: "Students", Path: "/owner/students"},
				{Label: "Batches", Path: "/owner/batches"},
				{Label: "Fees", Path: "/owner/fees"},
				{Label: "Settings", Path: "/owner/settings"},
			},
		}, true
	case models.RoleCoach:
		return Shell{
			Role:  role,
			Title: "Coach",
			Sidebar: []SidebarItem{
				{Label: "Dashboard", Path: "/coach/dashboard"},
				{Label: "Students", Path: "/coach/students"},
				{Label: "Attendance", Path: "/coach/attendance"},
				{Label: "Schedule", Path: "/coach/schedule"},
			},
		}, true
	}
	return Shell{}, false
}
