package thread

import (
	"fmt"
	"strings"

	"commentary/api/internal/rbac"
)

// AllowAll grants the capability to everyone, anonymous callers included.
func AllowAll(*Thread, *Actor) bool { return true }

// DenyAll grants the capability to no one.
func DenyAll(*Thread, *Actor) bool { return false }

// RoleCan grants the capability to actors whose role permits action.
func RoleCan(action rbac.Action) Predicate {
	return func(_ *Thread, actor *Actor) bool {
		return actor != nil && rbac.Can(actor.Role, action)
	}
}

// RoleAtLeast grants the capability to actors ranked at or above min.
func RoleAtLeast(min rbac.Role) Predicate {
	return func(_ *Thread, actor *Actor) bool {
		return actor != nil && rbac.AtLeast(actor.Role, min)
	}
}

// ParsePredicate reads the textual predicate forms used in configuration:
// "all", "none", "role:<min role>" and "can:<action>".
func ParsePredicate(value string) (Predicate, error) {
	value = strings.TrimSpace(value)
	switch value {
	case "all":
		return AllowAll, nil
	case "none":
		return DenyAll, nil
	}

	kind, arg, ok := strings.Cut(value, ":")
	if ok {
		switch kind {
		case "role":
			role := rbac.Role(arg)
			if rbac.Normalize(arg) == role {
				return RoleAtLeast(role), nil
			}
		case "can":
			action := rbac.Action(arg)
			switch action {
			case rbac.ActionRead, rbac.ActionComment, rbac.ActionSubscribe, rbac.ActionModerate, rbac.ActionAdmin:
				return RoleCan(action), nil
			}
		}
	}
	return nil, fmt.Errorf("unknown predicate %q", value)
}
