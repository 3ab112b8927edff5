package domain

import "time"

// PolicyChangeKind names the administrative mutation behind a policy event.
type PolicyChangeKind string

const (
	PolicyCreated    PolicyChangeKind = "policy.created"
	PolicyUpdated    PolicyChangeKind = "policy.updated"
	PolicyDeleted    PolicyChangeKind = "policy.deleted"
	PoliciesBulk     PolicyChangeKind = "policy.bulk_created"
	ConditionChanged PolicyChangeKind = "condition.changed"
	IndexRebuilt     PolicyChangeKind = "index.rebuilt"
)

// PolicyChangedEvent tells peer instances that their policy index is stale.
type PolicyChangedEvent struct {
	EventID   string           `json:"event_id"`
	Kind      PolicyChangeKind `json:"kind"`
	PolicyID  string           `json:"policy_id,omitempty"`
	ActorID   string           `json:"actor_id,omitempty"`
	Origin    string           `json:"origin,omitempty"`
	ChangedAt time.Time        `json:"changed_at"`
}
