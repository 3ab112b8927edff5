package domain

// APIEntry is the first path segment of the JSON API.
const APIEntry = "api"

// Resource identifiers used in routes and action keys.
const (
	ResourceLogin                   = "login"
	ResourceLogout                  = "logout"
	ResourceAuth                    = "auth"
	ResourceBulk                    = "bulk"
	ResourceAccessData              = "access-data"
	ResourceABACAuthPolicies        = "abac-auth-policies"
	ResourceABACAuthPoliciesService = "abac-auth-policies-service"
	ResourceABACConditions          = "abac-conditions"
	ResourceTodos                   = "todos"
	ResourceUsers                   = "users"
	ResourceMyUser                  = "my-user"
	ResourceRoles                   = "roles"
)

// AllResources lists every resource identifier.
func AllResources() []string {
	return []string{
		ResourceLogin,
		ResourceLogout,
		ResourceAuth,
		ResourceBulk,
		ResourceAccessData,
		ResourceABACAuthPolicies,
		ResourceABACAuthPoliciesService,
		ResourceABACConditions,
		ResourceTodos,
		ResourceUsers,
		ResourceMyUser,
		ResourceRoles,
	}
}

// ProtectedResources lists the resources gated by access decisions.
func ProtectedResources() []string {
	return []string{
		ResourceAuth,
		ResourceTodos,
		ResourceUsers,
		ResourceMyUser,
		ResourceRoles,
		ResourceABACAuthPolicies,
		ResourceABACConditions,
	}
}
