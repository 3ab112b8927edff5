package handlers

import (
	"bytes"
	"context"
	"net/http/httptest"
	"sort"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	json "github.com/goccy/go-json"

	"github.com/arklim/abac-auth-service/internal/core/domain"
	"github.com/arklim/abac-auth-service/internal/core/port"
	"github.com/arklim/abac-auth-service/internal/repository"
	"github.com/arklim/abac-auth-service/internal/transport/http/middleware"
)

// memPolicyStore keeps policies and their conditions in memory. Methods not
// implemented here fall through to the nil embedded interface and panic.
type memPolicyStore struct {
	port.PolicyStore

	mu       sync.Mutex
	policies map[string]domain.Policy
	listErr  error
}

func newMemPolicyStore(policies ...domain.Policy) *memPolicyStore {
	s := &memPolicyStore{policies: map[string]domain.Policy{}}
	for _, p := range policies {
		s.policies[p.ID] = p
	}
	return s
}

func (s *memPolicyStore) GetAllWithConditions(context.Context) ([]domain.Policy, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listErr != nil {
		return nil, s.listErr
	}
	out := make([]domain.Policy, 0, len(s.policies))
	for _, p := range s.policies {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *memPolicyStore) Save(_ context.Context, policy domain.Policy) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.policies[policy.ID] = policy
	return nil
}

func (s *memPolicyStore) SaveBulk(_ context.Context, policies []domain.Policy) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range policies {
		s.policies[p.ID] = p
	}
	return nil
}

func (s *memPolicyStore) Get(_ context.Context, id string) (*domain.Policy, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.policies[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &p, nil
}

func (s *memPolicyStore) Update(_ context.Context, id string, fields port.PolicyUpdate) (*domain.Policy, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.policies[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	if fields.RoleName != nil {
		p.RoleName = *fields.RoleName
	}
	if fields.ActionKey != nil {
		p.ActionKey = *fields.ActionKey
	}
	if fields.ActionValue != nil {
		p.ActionValue = *fields.ActionValue
	}
	s.policies[id] = p
	return &p, nil
}

func (s *memPolicyStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.policies[id]; !ok {
		return repository.ErrNotFound
	}
	delete(s.policies, id)
	return nil
}

func (s *memPolicyStore) locateCondition(id string) (string, int) {
	for pid, p := range s.policies {
		for i, c := range p.Conditions {
			if c.ID == id {
				return pid, i
			}
		}
	}
	return "", -1
}

func (s *memPolicyStore) SaveCondition(_ context.Context, condition domain.Condition) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.policies[condition.PolicyID]
	if !ok {
		return repository.ErrNotFound
	}
	p.Conditions = append(p.Conditions, condition)
	s.policies[p.ID] = p
	return nil
}

func (s *memPolicyStore) GetCondition(_ context.Context, id string) (*domain.Condition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	pid, i := s.locateCondition(id)
	if i < 0 {
		return nil, repository.ErrNotFound
	}
	c := s.policies[pid].Conditions[i]
	return &c, nil
}

func (s *memPolicyStore) GetConditionWithPolicy(_ context.Context, id string) (*domain.Condition, *domain.Policy, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	pid, i := s.locateCondition(id)
	if i < 0 {
		return nil, nil, repository.ErrNotFound
	}
	p := s.policies[pid]
	c := p.Conditions[i]
	return &c, &p, nil
}

func (s *memPolicyStore) UpdateCondition(_ context.Context, id string, fields port.ConditionUpdate) (*domain.Condition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	pid, i := s.locateCondition(id)
	if i < 0 {
		return nil, repository.ErrNotFound
	}
	p := s.policies[pid]
	c := p.Conditions[i]
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
	if fields.Type != nil {
		c.Type = *fields.Type
	}
	if fields.LHSType != nil {
		c.LHSType = *fields.LHSType
	}
	if fields.RHSType != nil {
		c.RHSType = *fields.RHSType
	}
	p.Conditions[i] = c
	s.policies[pid] = p
	return &c, nil
}

func (s *memPolicyStore) DeleteCondition(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	pid, i := s.locateCondition(id)
	if i < 0 {
		return repository.ErrNotFound
	}
	p := s.policies[pid]
	p.Conditions = append(p.Conditions[:i:i], p.Conditions[i+1:]...)
	s.policies[pid] = p
	return nil
}

func asCaller(userID string, roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		data := domain.AccessData{Token: "t-" + userID, UserID: userID}
		data.UserData.User = domain.CachedUser{ID: userID}
		for _, r := range roles {
			data.UserData.Roles = append(data.UserData.Roles, domain.Role{ID: r, Name: r})
		}
		middleware.SetAccessData(c, data)
		c.Next()
	}
}

func doJSON(t *testing.T, router *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if raw, ok := body.(string); ok {
		reader = bytes.NewReader([]byte(raw))
	} else if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("encode request: %v", err)
		}
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder, dest any) {
	t.Helper()
	if err := json.Unmarshal(rr.Body.Bytes(), dest); err != nil {
		t.Fatalf("decode response %q: %v", rr.Body.String(), err)
	}
}
