package authz

import (
	"context"
	"errors"
	"fmt"
)

// ErrUnsupportedMethod is returned for protected requests whose verb has no action.
var ErrUnsupportedMethod = errors.New("authz: method has no action mapping")

// Authorizer applies the protected-resource gate in front of the index.
type Authorizer struct {
	index     *Index
	protected map[string]struct{}
}

// NewAuthorizer builds an Authorizer for the given protected resources.
func NewAuthorizer(index *Index, protected []string) *Authorizer {
	set := make(map[string]struct{}, len(protected))
	for _, resource := range protected {
		set[resource] = struct{}{}
	}
	return &Authorizer{index: index, protected: set}
}

// Index returns the underlying policy index.
func (a *Authorizer) Index() *Index {
	return a.index
}

// IsProtected reports whether requests on resource need an access decision.
func (a *Authorizer) IsProtected(resource string) bool {
	_, ok := a.protected[resource]
	return ok
}

// CheckAccess decides a request. Resources outside the protected set are allowed
// without consulting the index; protected requests without an allowing policy are denied.
func (a *Authorizer) CheckAccess(ctx context.Context, roles []string, method, resource string, attrs AttributeSource) (Result, bool, error) {
	if !a.IsProtected(resource) {
		return Result{Decision: Allow}, false, nil
	}

	action, ok := ActionForMethod(method)
	if !ok {
		return Result{Decision: Deny}, true, fmt.Errorf("%w: %s", ErrUnsupportedMethod, method)
	}

	result, err := a.index.Decide(ctx, roles, ActionKey(action, resource), attrs)
	if err != nil {
		return Result{Decision: Deny, Role: result.Role}, true, err
	}
	return result, true, nil
}
