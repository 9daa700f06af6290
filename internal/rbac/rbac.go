package rbac

type Role string
type Action string

const (
	RoleOwner        Role = "owner"
	RoleCollaborator Role = "collaborator"
)

const (
	ActionRead     Action = "read"
	ActionEdit     Action = "edit"
	ActionOrganize Action = "organize"
	ActionBin      Action = "bin"
	ActionCopy     Action = "copy"
	ActionAttach   Action = "attach"
	ActionShare    Action = "share"
	ActionUnshare  Action = "unshare"
	ActionDelete   Action = "delete"
)

func Can(role Role, action Action) bool {
	switch role {
	case RoleOwner:
		return true
	case RoleCollaborator:
		switch action {
		case ActionRead, ActionEdit, ActionOrganize, ActionCopy, ActionAttach:
			return true
		}
		return false
	default:
		return false
	}
}

func Valid(role Role) bool {
	return role == RoleOwner || role == RoleCollaborator
}

// Normalize maps unknown stored values to the least-privileged role.
func Normalize(role string) Role {
	if r := Role(role); Valid(r) {
		return r
	}
	return RoleCollaborator
}
