package authz

import (
	"context"
	"time"
)

// Common request attribute names set by the HTTP layer.
const (
	AttrCallerID    = "callerId"
	AttrCallerEmail = "callerEmail"
	AttrNow         = "now"
	AttrMethod      = "method"
	AttrOwnerID     = "ownerId"
)

// Attributes is the typed bag of request facts conditions can reference.
// Supported value kinds are string, the integer kinds, float32/float64, bool and time.Time.
type Attributes map[string]any

// Lookup returns the named attribute. Empty names and nil values are treated as absent.
func (a Attributes) Lookup(name string) (any, bool) {
	if name == "" || a == nil {
		return nil, false
	}
	v, ok := a[name]
	if !ok || v == nil {
		return nil, false
	}
	return v, true
}

// Merge returns a new bag with other layered over a.
func (a Attributes) Merge(other Attributes) Attributes {
	out := make(Attributes, len(a)+len(other))
	for k, v := range a {
		out[k] = v
	}
	for k, v := range other {
		out[k] = v
	}
	return out
}

// AttributeSource builds request attributes on demand. It is only invoked when a
// candidate policy carries conditions.
type AttributeSource func(ctx context.Context) (Attributes, error)

// StaticAttributes wraps a prebuilt bag as an AttributeSource.
func StaticAttributes(attrs Attributes) AttributeSource {
	return func(context.Context) (Attributes, error) {
		return attrs, nil
	}
}

// BaseAttributes returns the attributes every request carries.
func BaseAttributes(callerID, callerEmail, method string, now time.Time) Attributes {
	return Attributes{
		AttrCallerID:    callerID,
		AttrCallerEmail: callerEmail,
		AttrMethod:      method,
		AttrNow:         now.UTC(),
	}
}
