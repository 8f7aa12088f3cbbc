package domain

// Roles stored on user profiles and carried in bearer tokens.
const (
	RoleAdmin   = "ADMIN"
	RoleFaculty = "FACULTY"
	RoleStudent = "STUDENT"
)

// HomePath returns the dashboard a role lands on after login.
func HomePath(role string) string {
	switch role {
	case RoleAdmin:
		return "/dashboard/admin"
	case RoleFaculty:
		return "/dashboard/faculty"
	case RoleStudent:
		return "/dashboard/student"
	default:
		return "/"
	}
}
