package postgres

// Repositories groups concrete PostgreSQL repository implementations.
type Repositories struct {
	Users    *UserRepository
	Roles    *RoleRepository
	Todos    *TodoRepository
	Policies *PolicyRepository
}

// NewRepositories wires all repositories backed by the provided pool.
func NewRepositories(exec pgExecutor) *Repositories {
	return &Repositories{
		Users:    NewUserRepository(exec),
		Roles:    NewRoleRepository(exec),
		Todos:    NewTodoRepository(exec),
		Policies: NewPolicyRepository(exec),
	}
}
