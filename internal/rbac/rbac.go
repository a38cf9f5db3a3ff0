package rbac

import "innomatch/api/internal/auth"

type Role string
type Action string

const (
	RolePublic Role = "public"
	RoleMember Role = "member"
	RoleOwner  Role = "owner"
	RoleAdmin  Role = "admin"
)

const (
	ActionRead     Action = "read"
	ActionCreate   Action = "create"
	ActionWrite    Action = "write"
	ActionDelete   Action = "delete"
	ActionDecide   Action = "decide"
	ActionReport   Action = "report"
	ActionTaxonomy Action = "taxonomy"
)

func Can(role Role, action Action) bool {
	switch role {
	case RoleAdmin:
		return true
	case RoleOwner:
		return action == ActionRead || action == ActionCreate || action == ActionWrite || action == ActionDelete
	case RoleMember:
		return action == ActionRead || action == ActionCreate
	case RolePublic:
		return action == ActionRead
	default:
		return false
	}
}

// RoleFor resolves the caller's role relative to a record owned by ownerID.
// Pass an empty ownerID for actions that do not target an existing record.
func RoleFor(id auth.Identity, ownerID string) Role {
	switch {
	case id.IsAdmin:
		return RoleAdmin
	case id.CallerID != "" && id.CallerID == ownerID:
		return RoleOwner
	case id.CallerID != "":
		return RoleMember
	default:
		return RolePublic
	}
}
