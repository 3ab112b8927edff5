package authz

import (
	"net/http"
	"strings"
)

// Actions derived from HTTP verbs.
const (
	ActionRead   = "read"
	ActionCreate = "create"
	ActionUpdate = "update"
	ActionDelete = "delete"
)

// Actions lists every action prefix an action key can carry.
func Actions() []string {
	return []string{ActionRead, ActionCreate, ActionUpdate, ActionDelete}
}

// ActionForMethod maps an HTTP method to its action. Unknown methods report false.
func ActionForMethod(method string) (string, bool) {
	switch strings.ToUpper(method) {
	case http.MethodGet:
		return ActionRead, true
	case http.MethodPost:
		return ActionCreate, true
	case http.MethodPut:
		return ActionUpdate, true
	case http.MethodDelete:
		return ActionDelete, true
	}
	return "", false
}

// ActionKey builds the action-on-resource key, e.g. "readusers".
func ActionKey(action, resource string) string {
	return action + resource
}

// SplitActionKey splits key into an action matched by prefix and a resource matched by suffix
// against the known resources.
func SplitActionKey(key string, resources []string) (action, resource string, ok bool) {
	for _, a := range Actions() {
		if !strings.HasPrefix(key, a) {
			continue
		}
		rest := key[len(a):]
		for _, r := range resources {
			if rest == r {
				return a, r, true
			}
		}
	}
	return "", "", false
}
