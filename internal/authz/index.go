package authz

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/arklim/abac-auth-service/internal/core/domain"
	"github.com/arklim/abac-auth-service/internal/core/port"
)

const tracerName = "github.com/arklim/abac-auth-service/internal/authz"

// Decision is the outcome of matching a request against the index.
type Decision int

const (
	NoMatch Decision = iota
	Allow
	Deny
)

func (d Decision) String() string {
	switch d {
	case Allow:
		return "allow"
	case Deny:
		return "deny"
	default:
		return "no_match"
	}
}

// Entry is one resolved policy as held by the index.
type Entry struct {
	PolicyID   string
	RoleName   string
	ActionKey  string
	Allow      bool
	Conditions []domain.Condition
}

// NewEntry converts a policy and its conditions into an index entry.
func NewEntry(policy domain.Policy, conditions []domain.Condition) Entry {
	return Entry{
		PolicyID:   policy.ID,
		RoleName:   policy.RoleName,
		ActionKey:  policy.ActionKey,
		Allow:      policy.ActionValue,
		Conditions: append([]domain.Condition(nil), conditions...),
	}
}

// snapshot is never mutated after it has been published.
type snapshot struct {
	byRole  map[string][]Entry
	entries int
	builtAt time.Time
}

func newSnapshot(policies []domain.Policy, builtAt time.Time) *snapshot {
	s := &snapshot{byRole: make(map[string][]Entry), builtAt: builtAt}
	for _, policy := range policies {
		s.add(NewEntry(policy, policy.Conditions))
	}
	return s
}

func (s *snapshot) add(entry Entry) {
	s.byRole[entry.RoleName] = append(s.byRole[entry.RoleName], entry)
	s.entries++
}

// with returns a copy of s that also holds entry. Only the affected role slice is copied.
func (s *snapshot) with(entry Entry) *snapshot {
	next := &snapshot{
		byRole:  make(map[string][]Entry, len(s.byRole)+1),
		entries: s.entries,
		builtAt: s.builtAt,
	}
	for role, entries := range s.byRole {
		next.byRole[role] = entries
	}
	current := s.byRole[entry.RoleName]
	role := make([]Entry, len(current), len(current)+1)
	copy(role, current)
	next.byRole[entry.RoleName] = role
	next.add(entry)
	return next
}

func (s *snapshot) has(policyID string) bool {
	for _, entries := range s.byRole {
		for _, e := range entries {
			if e.PolicyID == policyID {
				return true
			}
		}
	}
	return false
}

type pendingEntry struct {
	seq   uint64
	entry Entry
}

// Stats describes the published snapshot.
type Stats struct {
	Roles   int       `json:"roles"`
	Entries int       `json:"entries"`
	BuiltAt time.Time `json:"built_at"`
}

// Index is the in-memory policy index. Readers load the current snapshot through an
// atomic pointer; writers build a new snapshot and publish it in one store.
type Index struct {
	source  port.PolicySource
	current atomic.Pointer[snapshot]

	// mu serializes writers. It is never held while the store is queried.
	mu      sync.Mutex
	seq     uint64
	pending []pendingEntry

	// rebuilds counts started rebuilds; published is the number of the newest one
	// whose snapshot went live. An older rebuild finishing late is discarded.
	rebuilds  uint64
	published uint64

	logger  *zap.Logger
	metrics *Metrics
	tracer  trace.Tracer
	now     func() time.Time
}

// Option customizes an Index.
type Option func(*Index)

// WithLogger sets the logger used for rebuild and evaluation events.
func WithLogger(logger *zap.Logger) Option {
	return func(i *Index) {
		if logger != nil {
			i.logger = logger
		}
	}
}

// WithMetrics attaches Prometheus collectors.
func WithMetrics(metrics *Metrics) Option {
	return func(i *Index) {
		i.metrics = metrics
	}
}

// WithTracer overrides the OpenTelemetry tracer.
func WithTracer(tracer trace.Tracer) Option {
	return func(i *Index) {
		if tracer != nil {
			i.tracer = tracer
		}
	}
}

// WithClock overrides the clock for deterministic testing.
func WithClock(now func() time.Time) Option {
	return func(i *Index) {
		if now != nil {
			i.now = now
		}
	}
}

// NewIndex returns an empty index backed by source. Until the first Rebuild every
// lookup reports NoMatch.
func NewIndex(source port.PolicySource, opts ...Option) *Index {
	i := &Index{
		source: source,
		logger: zap.NewNop(),
		tracer: otel.Tracer(tracerName),
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(i)
	}
	i.current.Store(&snapshot{byRole: map[string][]Entry{}})
	return i
}

// Rebuild reloads every policy from the source and publishes a fresh snapshot.
// On failure the previous snapshot stays in place and the error is returned.
func (i *Index) Rebuild(ctx context.Context) error {
	ctx, span := i.tracer.Start(ctx, "authz.Index.Rebuild")
	defer span.End()

	started := i.now()

	i.mu.Lock()
	startSeq := i.seq
	i.rebuilds++
	generation := i.rebuilds
	i.mu.Unlock()

	policies, err := i.source.GetAllWithConditions(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "load policies")
		i.metrics.observeRebuild(false, 0, 0)
		i.logger.Error("policy index rebuild failed, serving last known snapshot",
			zap.Error(err),
			zap.Time("snapshot_built_at", i.current.Load().builtAt),
		)
		return fmt.Errorf("load policies: %w", err)
	}

	next := newSnapshot(policies, i.now())

	i.mu.Lock()
	if generation < i.published {
		i.mu.Unlock()
		span.SetAttributes(attribute.Bool("authz.superseded", true))
		i.logger.Debug("policy index rebuild superseded by a newer one, discarding",
			zap.Uint64("generation", generation),
			zap.Uint64("published", i.published),
		)
		return nil
	}
	i.published = generation
	kept := i.pending[:0]
	for _, p := range i.pending {
		if p.seq <= startSeq {
			continue
		}
		if !next.has(p.entry.PolicyID) {
			next.add(p.entry)
		}
		kept = append(kept, p)
	}
	i.pending = kept
	i.current.Store(next)
	i.mu.Unlock()

	elapsed := i.now().Sub(started)
	i.metrics.observeRebuild(true, elapsed.Seconds(), next.entries)
	span.SetAttributes(
		attribute.Int("authz.entries", next.entries),
		attribute.Int("authz.roles", len(next.byRole)),
	)
	i.logger.Info("policy index rebuilt",
		zap.Int("entries", next.entries),
		zap.Int("roles", len(next.byRole)),
		zap.Duration("elapsed", elapsed),
	)
	return nil
}

// AddEntry publishes a snapshot that additionally holds the given policy. The entry is
// replayed onto a rebuild that was already loading when it was added.
func (i *Index) AddEntry(policy domain.Policy, conditions []domain.Condition) {
	entry := NewEntry(policy, conditions)

	i.mu.Lock()
	defer i.mu.Unlock()

	i.seq++
	i.pending = append(i.pending, pendingEntry{seq: i.seq, entry: entry})
	next := i.current.Load().with(entry)
	i.current.Store(next)
	i.metrics.observeEntries(next.entries)
}

// Stats reports the size and age of the published snapshot.
func (i *Index) Stats() Stats {
	s := i.current.Load()
	return Stats{Roles: len(s.byRole), Entries: s.entries, BuiltAt: s.builtAt}
}

// Lookup matches one role against actionKey. Entries are scanned in order and the
// first entry whose conditions all hold decides. Allow entries whose conditions fail or
// cannot be evaluated are skipped; a deny entry that cannot be evaluated denies.
func (i *Index) Lookup(ctx context.Context, role, actionKey string, attrs AttributeSource) (Decision, error) {
	return i.lookup(ctx, i.current.Load(), role, actionKey, &lazyAttributes{source: attrs})
}

func (i *Index) lookup(ctx context.Context, snap *snapshot, role, actionKey string, attrs *lazyAttributes) (Decision, error) {
	for _, entry := range snap.byRole[role] {
		if entry.ActionKey != actionKey {
			continue
		}
		if len(entry.Conditions) > 0 {
			bag, err := attrs.get(ctx)
			if err != nil {
				return Deny, fmt.Errorf("resolve attributes: %w", err)
			}
			ok, err := EvaluateConditions(entry.Conditions, bag)
			if err != nil {
				i.metrics.observeConditionError(err)
				i.logger.Debug("condition evaluation failed closed",
					zap.String("policy_id", entry.PolicyID),
					zap.String("role", role),
					zap.String("action_key", actionKey),
					zap.Bool("deny_entry", !entry.Allow),
					zap.Error(err),
				)
				// A deny entry that cannot be evaluated still denies.
				if !entry.Allow {
					return Deny, nil
				}
				continue
			}
			if !ok {
				continue
			}
		}
		if entry.Allow {
			return Allow, nil
		}
		return Deny, nil
	}
	return NoMatch, nil
}

// Result is the outcome of Decide.
type Result struct {
	Decision Decision
	Role     string
}

// Allowed reports whether access is granted.
func (r Result) Allowed() bool {
	return r.Decision == Allow
}

// Decide checks every role in order and allows on the first role that grants access.
// An explicit deny only ends the scan of its own role. Without any allowing role the
// result is a denial. Errors always deny.
func (i *Index) Decide(ctx context.Context, roles []string, actionKey string, attrs AttributeSource) (Result, error) {
	ctx, span := i.tracer.Start(ctx, "authz.Index.Decide", trace.WithAttributes(
		attribute.String("authz.action_key", actionKey),
		attribute.StringSlice("authz.roles", roles),
	))
	defer span.End()

	snap := i.current.Load()
	lazy := &lazyAttributes{source: attrs}
	result := Result{Decision: NoMatch}

	for _, role := range roles {
		decision, err := i.lookup(ctx, snap, role, actionKey, lazy)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "decide")
			i.metrics.observeDecision(Deny)
			return Result{Decision: Deny, Role: role}, err
		}
		if decision == Allow {
			result = Result{Decision: Allow, Role: role}
			break
		}
		if decision == Deny && result.Decision == NoMatch {
			result = Result{Decision: Deny, Role: role}
		}
	}

	span.SetAttributes(attribute.String("authz.decision", result.Decision.String()))
	i.metrics.observeDecision(result.Decision)
	return result, nil
}

// RunReconciler rebuilds the index every interval until ctx is done.
func (i *Index) RunReconciler(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := i.Rebuild(ctx); err != nil {
				i.logger.Warn("scheduled policy index rebuild failed", zap.Error(err))
			}
		}
	}
}

type lazyAttributes struct {
	source AttributeSource
	attrs  Attributes
	err    error
	loaded bool
}

func (l *lazyAttributes) get(ctx context.Context) (Attributes, error) {
	if l.loaded {
		return l.attrs, l.err
	}
	l.loaded = true
	if l.source == nil {
		l.attrs = Attributes{}
		return l.attrs, nil
	}
	l.attrs, l.err = l.source(ctx)
	return l.attrs, l.err
}
