package rbac

// Role names. Keep these stable; they are part of auth/RBAC contracts.
const (
	RoleCallPipeline = "call_pipeline"
	RoleBilling      = "billing"
	RoleOperator     = "operator"
	RoleSuperAdmin   = "super_admin"
)

func IsSuperAdmin(role string) bool { return role == RoleSuperAdmin }

// IsWorkspaceScoped reports whether tokens of this role act on one workspace only.
func IsWorkspaceScoped(role string) bool { return role == RoleOperator }

func Known(role string) bool {
	switch role {
	case RoleCallPipeline, RoleBilling, RoleOperator, RoleSuperAdmin:
		return true
	}
	return false
}
