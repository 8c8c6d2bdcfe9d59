package route

// Marketplace page paths shared between the default table and the
// post-login redirect policy.
const (
	PathRoot        = "/"
	PathLogin       = "/login"
	PathRegister    = "/register"
	PathCatalog     = "/courses"
	PathStudentHome = "/courses"
	PathTeacherHome = "/teacher"
	PathAdminHome   = "/admin"
)

// RoleHome returns the landing path for a role. Used after login and when a
// known-but-forbidden route must redirect instead of rendering a 404.
func RoleHome(role Role) string {
	switch role {
	case RoleAdmin:
		return PathAdminHome
	case RoleTeacher:
		return PathTeacherHome
	case RoleStudent:
		return PathStudentHome
	default:
		return PathRoot
	}
}

// DefaultTable builds the marketplace route permission table. The table is
// returned frozen.
func DefaultTable() *Table {
	t := NewTable()

	// Registration cannot fail here: every pattern below is static and valid.
	_ = t.Register(RoleGuest,
		PathRoot,
		PathLogin,
		PathRegister,
		PathCatalog,
		"/courses/{id}",
	)
	_ = t.Register(RoleStudent,
		PathRoot,
		PathCatalog,
		"/courses/{id}",
		"/courses/{id}/learn",
		"/my-courses",
		"/favorites",
		"/profile",
	)
	_ = t.Register(RoleTeacher,
		PathRoot,
		PathTeacherHome,
		"/teacher/courses",
		"/teacher/courses/{id}",
		"/teacher/courses/{id}/edit",
		"/teacher/analytics",
		"/profile",
	)
	_ = t.Register(RoleAdmin,
		PathRoot,
		PathAdminHome,
		"/admin/users",
		"/admin/users/{id}",
		"/admin/courses",
		"/admin/categories",
		"/admin/charts",
		"/profile",
	)

	t.Freeze()
	return t
}
