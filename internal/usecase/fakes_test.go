package usecase

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	json "github.com/goccy/go-json"

	"github.com/arklim/abac-auth-service/internal/core/domain"
	"github.com/arklim/abac-auth-service/internal/core/port"
	"github.com/arklim/abac-auth-service/internal/repository"
)

type memUsers struct {
	mu    sync.Mutex
	users map[string]domain.User
}

func newMemUsers(users ...domain.User) *memUsers {
	r := &memUsers{users: map[string]domain.User{}}
	for _, u := range users {
		r.users[u.ID] = u
	}
	return r
}

func (r *memUsers) Create(_ context.Context, user domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.users[user.ID] = user
	return nil
}

func (r *memUsers) List(context.Context) ([]domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.User, 0, len(r.users))
	for _, u := range r.users {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Email < out[j].Email })
	return out, nil
}

func (r *memUsers) GetByID(_ context.Context, id string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &u, nil
}

func (r *memUsers) GetByEmail(_ context.Context, email string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if strings.EqualFold(u.Email, email) {
			copy := u
			return &copy, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *memUsers) Update(_ context.Context, user domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.users[user.ID]; !ok {
		return repository.ErrNotFound
	}
	r.users[user.ID] = user
	return nil
}

func (r *memUsers) SetCachedAccessToken(_ context.Context, id string, token *string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return repository.ErrNotFound
	}
	u.CachedAccessToken = token
	r.users[id] = u
	return nil
}

func (r *memUsers) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.users[id]; !ok {
		return repository.ErrNotFound
	}
	delete(r.users, id)
	return nil
}

type memRoles struct {
	mu          sync.Mutex
	users       *memUsers
	roles       map[string]domain.Role
	assignments map[string][]string // user id -> role ids
}

func newMemRoles(users *memUsers, roles ...domain.Role) *memRoles {
	r := &memRoles{users: users, roles: map[string]domain.Role{}, assignments: map[string][]string{}}
	for _, role := range roles {
		r.roles[role.ID] = role
	}
	return r
}

func (r *memRoles) Create(_ context.Context, role domain.Role) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.roles[role.ID] = role
	return nil
}

func (r *memRoles) List(context.Context) ([]domain.Role, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.Role, 0, len(r.roles))
	for _, role := range r.roles {
		out = append(out, role)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (r *memRoles) GetByID(_ context.Context, id string) (*domain.Role, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	role, ok := r.roles[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &role, nil
}

func (r *memRoles) GetByName(_ context.Context, name string) (*domain.Role, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, role := range r.roles {
		if role.Name == name {
			copy := role
			return &copy, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *memRoles) Update(_ context.Context, role domain.Role) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.roles[role.ID]; !ok {
		return repository.ErrNotFound
	}
	r.roles[role.ID] = role
	return nil
}

func (r *memRoles) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.roles[id]; !ok {
		return repository.ErrNotFound
	}
	delete(r.roles, id)
	for user, ids := range r.assignments {
		r.assignments[user] = without(ids, id)
	}
	return nil
}

func (r *memRoles) ListByUser(_ context.Context, userID string) ([]domain.Role, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Role
	for _, id := range r.assignments[userID] {
		out = append(out, r.roles[id])
	}
	return out, nil
}

func (r *memRoles) ListUsers(ctx context.Context, roleID string) ([]domain.User, error) {
	r.mu.Lock()
	var ids []string
	for user, roles := range r.assignments {
		for _, id := range roles {
			if id == roleID {
				ids = append(ids, user)
			}
		}
	}
	r.mu.Unlock()

	var out []domain.User
	for _, id := range ids {
		u, err := r.users.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, *u)
	}
	return out, nil
}

func (r *memRoles) Assign(_ context.Context, userID, roleID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, id := range r.assignments[userID] {
		if id == roleID {
			return nil
		}
	}
	r.assignments[userID] = append(r.assignments[userID], roleID)
	return nil
}

func (r *memRoles) Unassign(_ context.Context, userID, roleID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	before := len(r.assignments[userID])
	r.assignments[userID] = without(r.assignments[userID], roleID)
	if len(r.assignments[userID]) == before {
		return repository.ErrNotFound
	}
	return nil
}

func without(ids []string, drop string) []string {
	out := ids[:0]
	for _, id := range ids {
		if id != drop {
			out = append(out, id)
		}
	}
	return out
}

// memCache is an in-memory CredentialCache with whole-second TTLs driven by a fake clock.
type memCache struct {
	mu      sync.Mutex
	now     time.Time
	values  map[string][]byte
	expires map[string]time.Time
	hashes  map[string]map[string][]byte

	// beforeReplace runs between the read and the write of Replace.
	beforeReplace func()
}

func newMemCache() *memCache {
	return &memCache{
		now:     time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		values:  map[string][]byte{},
		expires: map[string]time.Time{},
		hashes:  map[string]map[string][]byte{},
	}
}

func (c *memCache) advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	for key, at := range c.expires {
		if !c.now.Before(at) {
			delete(c.values, key)
			delete(c.expires, key)
		}
	}
}

func (c *memCache) has(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.values[key]
	return ok
}

func (c *memCache) Save(_ context.Context, key string, value any) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.values[key] = payload
	delete(c.expires, key)
	return nil
}

func (c *memCache) SaveWithExpiration(ctx context.Context, key string, value any, ttl time.Duration) error {
	if err := c.Save(ctx, key, value); err != nil {
		return err
	}
	if ttl > 0 {
		c.mu.Lock()
		c.expires[key] = c.now.Add(ttl)
		c.mu.Unlock()
	}
	return nil
}

func (c *memCache) Replace(_ context.Context, key string, value any) (bool, error) {
	payload, err := json.Marshal(value)
	if err != nil {
		return false, err
	}
	if c.beforeReplace != nil {
		c.beforeReplace()
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.values[key]; !ok {
		return false, nil
	}
	c.values[key] = payload
	return true, nil
}

func (c *memCache) Get(_ context.Context, key string, dest any) (bool, error) {
	c.mu.Lock()
	payload, ok := c.values[key]
	c.mu.Unlock()
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(payload, dest)
}

func (c *memCache) GetExistingKeys(_ context.Context, keys []string) ([][]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out [][]byte
	for _, key := range keys {
		if payload, ok := c.values[key]; ok {
			out = append(out, payload)
		}
	}
	return out, nil
}

func (c *memCache) SetExpiration(_ context.Context, key string, ttl time.Duration) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.values[key]; !ok {
		return false, nil
	}
	c.expires[key] = c.now.Add(ttl)
	return true, nil
}

func (c *memCache) Delete(_ context.Context, key string) (int64, error) {
	return c.DeleteKeys(context.Background(), []string{key})
}

func (c *memCache) DeleteKeys(_ context.Context, keys []string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var n int64
	for _, key := range keys {
		if _, ok := c.values[key]; ok {
			n++
		}
		delete(c.values, key)
		delete(c.expires, key)
	}
	return n, nil
}

func (c *memCache) TimeToLive(_ context.Context, key string) (time.Duration, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.values[key]; !ok {
		return 0, repository.ErrNotFound
	}
	at, ok := c.expires[key]
	if !ok {
		return port.NoExpiration, nil
	}
	return at.Sub(c.now).Truncate(time.Second), nil
}

func (c *memCache) Exists(_ context.Context, keys ...string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var n int64
	for _, key := range keys {
		if _, ok := c.values[key]; ok {
			n++
		}
	}
	return n, nil
}

func (c *memCache) GetHash(_ context.Context, key, field string, dest any) (bool, error) {
	c.mu.Lock()
	payload, ok := c.hashes[key][field]
	c.mu.Unlock()
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(payload, dest)
}

func (c *memCache) SetHash(ctx context.Context, key, field string, value any) error {
	return c.SetMHash(ctx, key, map[string]any{field: value})
}

func (c *memCache) SetMHash(_ context.Context, key string, values map[string]any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.hashes[key] == nil {
		c.hashes[key] = map[string][]byte{}
	}
	for field, value := range values {
		payload, err := json.Marshal(value)
		if err != nil {
			return err
		}
		c.hashes[key][field] = payload
	}
	return nil
}

func (c *memCache) DeleteHash(_ context.Context, key string, fields ...string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var n int64
	for _, field := range fields {
		if _, ok := c.hashes[key][field]; ok {
			n++
			delete(c.hashes[key], field)
		}
	}
	return n, nil
}

type memSessions struct {
	mu       sync.Mutex
	next     int
	sessions map[string]domain.SessionData
	unlinked []string
}

func newMemSessions() *memSessions {
	return &memSessions{sessions: map[string]domain.SessionData{}}
}

func (s *memSessions) CreateSession(_ context.Context, data domain.SessionData) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.next++
	id := fmt.Sprintf("sess-%d", s.next)
	s.sessions[id] = data
	return id, nil
}

func (s *memSessions) ReadSession(_ context.Context, id string) (domain.SessionData, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.sessions[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return data, nil
}

func (s *memSessions) UpdateSession(_ context.Context, id string, data domain.SessionData) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[id] = data
	return nil
}

func (s *memSessions) DeleteSession(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
	return nil
}

func (s *memSessions) UnlinkToken(_ context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.unlinked = append(s.unlinked, token)
	for id, data := range s.sessions {
		if data.AccessToken() == token {
			delete(s.sessions, id)
		}
	}
	return nil
}

type plainHasher struct{}

func (plainHasher) Hash(password string) (string, error) { return "hashed:" + password, nil }

func (plainHasher) Verify(password, encoded string) (bool, error) {
	return encoded == "hashed:"+password, nil
}

// sequentialTokens returns tok-1, tok-2, ...
func sequentialTokens() TokenGenerator {
	var mu sync.Mutex
	n := 0
	return func(int) (string, error) {
		mu.Lock()
		defer mu.Unlock()
		n++
		return fmt.Sprintf("tok-%d", n), nil
	}
}

func sequentialIDs(prefix string) func() string {
	var mu sync.Mutex
	n := 0
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return fmt.Sprintf("%s-%d", prefix, n)
	}
}

type memPolicyStore struct {
	mu        sync.Mutex
	policies  []domain.Policy
	loadErr   error
	noTable   bool
	bulkCalls int
	loadCalls int
}

func (s *memPolicyStore) GetAllWithConditions(context.Context) ([]domain.Policy, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loadCalls++
	if s.loadErr != nil {
		return nil, s.loadErr
	}
	out := make([]domain.Policy, len(s.policies))
	for i, p := range s.policies {
		p.Conditions = append([]domain.Condition(nil), p.Conditions...)
		out[i] = p
	}
	return out, nil
}

func (s *memPolicyStore) Save(_ context.Context, policy domain.Policy) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.policies = append(s.policies, policy)
	return nil
}

func (s *memPolicyStore) find(id string) int {
	for i, p := range s.policies {
		if p.ID == id {
			return i
		}
	}
	return -1
}

func (s *memPolicyStore) Get(_ context.Context, id string) (*domain.Policy, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.find(id)
	if i < 0 {
		return nil, repository.ErrNotFound
	}
	p := s.policies[i]
	return &p, nil
}

func (s *memPolicyStore) Update(_ context.Context, id string, fields port.PolicyUpdate) (*domain.Policy, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.find(id)
	if i < 0 {
		return nil, repository.ErrNotFound
	}
	if fields.RoleName != nil {
		s.policies[i].RoleName = *fields.RoleName
	}
	if fields.ActionKey != nil {
		s.policies[i].ActionKey = *fields.ActionKey
	}
	if fields.ActionValue != nil {
		s.policies[i].ActionValue = *fields.ActionValue
	}
	p := s.policies[i]
	return &p, nil
}

func (s *memPolicyStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.find(id)
	if i < 0 {
		return repository.ErrNotFound
	}
	s.policies = append(s.policies[:i], s.policies[i+1:]...)
	return nil
}

func (s *memPolicyStore) SaveBulk(_ context.Context, policies []domain.Policy) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bulkCalls++
	s.policies = append(s.policies, policies...)
	return nil
}

func (s *memPolicyStore) ListConditions(_ context.Context, policyID string) ([]domain.Condition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.find(policyID)
	if i < 0 {
		return nil, nil
	}
	return s.policies[i].Conditions, nil
}

func (s *memPolicyStore) TableExists(context.Context) (bool, error) {
	return !s.noTable, nil
}

func (s *memPolicyStore) SaveCondition(_ context.Context, condition domain.Condition) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.find(condition.PolicyID)
	if i < 0 {
		return repository.ErrNotFound
	}
	s.policies[i].Conditions = append(s.policies[i].Conditions, condition)
	return nil
}

func (s *memPolicyStore) locateCondition(id string) (int, int) {
	for i, p := range s.policies {
		for j, c := range p.Conditions {
			if c.ID == id {
				return i, j
			}
		}
	}
	return -1, -1
}

func (s *memPolicyStore) GetCondition(_ context.Context, id string) (*domain.Condition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i, j := s.locateCondition(id)
	if i < 0 {
		return nil, repository.ErrNotFound
	}
	c := s.policies[i].Conditions[j]
	return &c, nil
}

func (s *memPolicyStore) GetConditionWithPolicy(_ context.Context, id string) (*domain.Condition, *domain.Policy, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i, j := s.locateCondition(id)
	if i < 0 {
		return nil, nil, repository.ErrNotFound
	}
	c := s.policies[i].Conditions[j]
	p := s.policies[i]
	return &c, &p, nil
}

func (s *memPolicyStore) UpdateCondition(_ context.Context, id string, fields port.ConditionUpdate) (*domain.Condition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i, j := s.locateCondition(id)
	if i < 0 {
		return nil, repository.ErrNotFound
	}
	c := &s.policies[i].Conditions[j]
	if fields.Key != nil {
		c.Key = *fields.Key
	}
	if fields.RHS != nil {
		c.RHS = *fields.RHS
	}
	if fields.LHS != nil {
		c.LHS = *fields.LHS
	}
	if fields.Operation != nil {
		c.Operation = *fields.Operation
	}
	updated := *c
	return &updated, nil
}

func (s *memPolicyStore) DeleteCondition(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i, j := s.locateCondition(id)
	if i < 0 {
		return repository.ErrNotFound
	}
	conds := s.policies[i].Conditions
	s.policies[i].Conditions = append(conds[:j], conds[j+1:]...)
	return nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []domain.PolicyChangedEvent
	err    error
}

func (p *recordingPublisher) PublishPolicyChanged(_ context.Context, event domain.PolicyChangedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return p.err
}

func (p *recordingPublisher) kinds() []domain.PolicyChangeKind {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]domain.PolicyChangeKind, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Kind)
	}
	return out
}

var (
	_ port.UserRepository  = (*memUsers)(nil)
	_ port.RoleRepository  = (*memRoles)(nil)
	_ port.CredentialCache = (*memCache)(nil)
	_ port.SessionStore    = (*memSessions)(nil)
	_ port.PolicyStore     = (*memPolicyStore)(nil)
	_ port.EventPublisher  = (*recordingPublisher)(nil)
	_ PasswordHasher       = plainHasher{}
)

type memTodos struct {
	mu    sync.Mutex
	items map[string]domain.Todo
}

func (r *memTodos) Create(_ context.Context, todo domain.Todo) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items[todo.ID] = todo
	return nil
}

func (r *memTodos) ListByUser(_ context.Context, userID string) ([]domain.Todo, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Todo
	for _, todo := range r.items {
		if todo.UserID == userID {
			out = append(out, todo)
		}
	}
	return out, nil
}

func (r *memTodos) GetByID(_ context.Context, id string) (*domain.Todo, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	todo, ok := r.items[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &todo, nil
}

func (r *memTodos) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.items[id]; !ok {
		return repository.ErrNotFound
	}
	delete(r.items, id)
	return nil
}

var _ port.TodoRepository = (*memTodos)(nil)
