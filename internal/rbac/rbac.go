package rbac

type Role string
type Action string

const (
	RoleViewer    Role = "viewer"
	RoleCommenter Role = "commenter"
	RoleModerator Role = "moderator"
	RoleAdmin     Role = "admin"
)

const (
	ActionRead      Action = "read"
	ActionComment   Action = "comment"
	ActionSubscribe Action = "subscribe"
	ActionModerate  Action = "moderate"
	ActionAdmin     Action = "admin"
)

func Can(role Role, action Action) bool {
	switch role {
	case RoleAdmin:
		return true
	case RoleModerator:
		return action == ActionRead || action == ActionComment || action == ActionSubscribe || action == ActionModerate
	case RoleCommenter:
		return action == ActionRead || action == ActionComment || action == ActionSubscribe
	case RoleViewer:
		return action == ActionRead
	default:
		return false
	}
}

// Normalize maps unknown or empty roles to the viewer role.
func Normalize(role string) Role {
	switch Role(role) {
	case RoleViewer, RoleCommenter, RoleModerator, RoleAdmin:
		return Role(role)
	default:
		return RoleViewer
	}
}

// AtLeast reports whether role ranks at or above min.
func AtLeast(role, min Role) bool {
	return rank(role) >= rank(min)
}

func rank(role Role) int {
	switch role {
	case RoleAdmin:
		return 3
	case RoleModerator:
		return 2
	case RoleCommenter:
		return 1
	default:
		return 0
	}
}
