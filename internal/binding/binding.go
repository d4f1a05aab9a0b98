// Regsync - Global Registry Synchronization Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/regsync

// Package binding holds the resolved descriptors that say how a local record
// kind maps onto registry entity types and relationship types.
//
// A kind's behavior is composed, not inherited: a Binding carries an optional
// Entity descriptor and any number of Relationship descriptors. Both are
// immutable after Registry.Register has applied defaults and validated them.
package binding

import (
	"errors"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/tomtom215/regsync/internal/models"
)

const (
	// DefaultIDColumn is the meta column holding a record's remote id.
	DefaultIDColumn = "global_registry_id"

	// DefaultMDMTimeout is the minimum interval between mdm id pulls for one record.
	DefaultMDMTimeout = time.Minute

	// BindingEntity marks an endpoint whose remote id is its entity id.
	BindingEntity = "entity"
)

// Sentinel errors for descriptor registration.
var (
	ErrInvalidBinding  = errors.New("invalid binding")
	ErrDuplicateKind   = errors.New("kind already registered")
	ErrUnknownKind     = errors.New("unknown kind")
	ErrUnknownRelation = errors.New("unknown relationship")
)

// Entity describes how a kind is pushed as a registry entity.
type Entity struct {
	// Type is the registry entity type name. Defaults to the kind.
	Type Value[string]

	// IDColumn is the meta column holding the remote entity id.
	IDColumn string `validate:"required"`

	// FingerprintColumn enables change detection when non-empty.
	FingerprintColumn string

	// MDMIDColumn enables mdm id pulls when non-empty.
	MDMIDColumn string
	MDMTimeout  time.Duration

	// Parent is the link name of the parent association and ParentKind the
	// kind it points at. When ParentKind equals the owning kind the parent is
	// sent as a parent_id attribute instead of a dependent create.
	Parent           string
	ParentKind       string
	ParentForeignKey string

	Fields            Value[map[string]models.FieldType]
	Exclude           Value[[]string]
	IncludeAllColumns bool

	// EnsureType creates the remote entity type and its fields when missing.
	EnsureType bool

	PushOn []models.Event `validate:"dive,oneof=create update delete"`

	// If allows enqueueing only when it returns true; Unless suppresses it when true.
	If     Condition
	Unless Condition

	kind string
}

// DefaultEntity returns an Entity with defaults applied.
func DefaultEntity() Entity {
	return Entity{
		IDColumn:   DefaultIDColumn,
		MDMTimeout: DefaultMDMTimeout,
		EnsureType: true,
		PushOn:     []models.Event{models.EventCreate, models.EventUpdate, models.EventDelete},
	}
}

// Kind returns the kind the descriptor was registered for.
func (e *Entity) Kind() string {
	return e.kind
}

// TypeName resolves the remote entity type for r.
func (e *Entity) TypeName(r *models.Record) string {
	return e.Type.Or(r, e.kind)
}

// HasParent reports whether a parent association is configured.
func (e *Entity) HasParent() bool {
	return e.Parent != ""
}

// ParentIsSelf reports whether the parent is a record of the same kind.
func (e *Entity) ParentIsSelf() bool {
	return e.HasParent() && e.ParentKind == e.kind
}

// ParentRequired reports whether push must wait for a parent to be attached.
func (e *Entity) ParentRequired() bool {
	return e.HasParent() && !e.ParentIsSelf()
}

// PushesOn reports whether the lifecycle event schedules work.
func (e *Entity) PushesOn(ev models.Event) bool {
	return slices.Contains(e.PushOn, ev)
}

// Allowed evaluates If and Unless for r.
func (e *Entity) Allowed(r *models.Record) bool {
	return allowed(e.If, e.Unless, r)
}

// ExcludeFields returns the column names never pushed for r. A computed
// Exclude replaces the defaults; a constant one extends them.
func (e *Entity) ExcludeFields(r *models.Record) []string {
	if e.Exclude.IsComputed() {
		return e.Exclude.Resolve(r)
	}
	out := []string{"id", "created_at", "updated_at", e.IDColumn}
	out = appendNonEmpty(out, e.MDMIDColumn, e.FingerprintColumn, e.ParentForeignKey)
	return append(out, e.Exclude.Resolve(r)...)
}

// Columns resolves the column name to field type map pushed for r.
func (e *Entity) Columns(r *models.Record) map[string]models.FieldType {
	return resolveColumns(r, e.IncludeAllColumns, e.Fields, e.ExcludeFields(r))
}

// Relationship describes one relationship edge owned by a kind.
type Relationship struct {
	// Name identifies the relationship within the owning kind.
	Name string `validate:"required"`

	// Type is the registry name of the relationship's backing entity type.
	// Defaults to Name.
	Type Value[string]

	IDColumn string `validate:"required"`

	// ClientIntegrationID defaults to the owning record's id.
	ClientIntegrationID Value[string]

	Primary Endpoint
	Related Endpoint

	// RelatedType names the related entity type when the related end has no
	// local record; RelatedRemoteIDColumn is the value column carrying its id.
	RelatedType           string
	RelatedRemoteIDColumn string

	Fields            Value[map[string]models.FieldType]
	Exclude           Value[[]string]
	IncludeAllColumns bool

	EnsureType       bool
	RenameEntityType bool

	If     Condition
	Unless Condition

	kind string
}

// Endpoint is one side of a relationship.
type Endpoint struct {
	// Link is the association name on the owning record. An empty primary
	// link means the owning record itself is the primary endpoint.
	Link string

	// Kind is the local kind the link points at.
	Kind string

	// Binding is BindingEntity, or the name of a relationship on Kind whose
	// edge id stands in for this endpoint.
	Binding string

	// Name is the role label used for the edge. Defaults to the endpoint type.
	Name string

	// ForeignKey is the value column mirroring the link. Excluded from pushes
	// and used to derive change actions.
	ForeignKey string
}

// BoundToEntity reports whether the endpoint is a plain entity.
func (ep Endpoint) BoundToEntity() bool {
	return ep.Binding == "" || ep.Binding == BindingEntity
}

// DefaultRelationship returns a Relationship with defaults applied.
func DefaultRelationship(name string) Relationship {
	return Relationship{
		Name:             name,
		IDColumn:         DefaultIDColumn,
		EnsureType:       true,
		RenameEntityType: true,
		Primary:          Endpoint{Binding: BindingEntity},
		Related:          Endpoint{Binding: BindingEntity},
	}
}

// Kind returns the owning kind.
func (rel *Relationship) Kind() string {
	return rel.kind
}

// TypeName resolves the backing entity type name for r.
func (rel *Relationship) TypeName(r *models.Record) string {
	return rel.Type.Or(r, rel.Name)
}

// IntegrationID resolves the client integration id of the edge for r.
func (rel *Relationship) IntegrationID(r *models.Record) string {
	return rel.ClientIntegrationID.Or(r, r.ID)
}

// PrimaryIsSelf reports whether the owning record is the primary endpoint.
func (rel *Relationship) PrimaryIsSelf() bool {
	return rel.Primary.Link == ""
}

// RemoteRelated reports whether the related end is a remote foreign key with
// no local record.
func (rel *Relationship) RemoteRelated() bool {
	return rel.Related.Link == "" && rel.RelatedRemoteIDColumn != ""
}

// Allowed evaluates If and Unless for r.
func (rel *Relationship) Allowed(r *models.Record) bool {
	return allowed(rel.If, rel.Unless, r)
}

// ExcludeFields returns the columns never pushed on the edge for r.
func (rel *Relationship) ExcludeFields(r *models.Record) []string {
	if rel.Exclude.IsComputed() {
		return rel.Exclude.Resolve(r)
	}
	out := []string{"id", "created_at", "updated_at", rel.IDColumn}
	out = appendNonEmpty(out, rel.Primary.ForeignKey, rel.Related.ForeignKey, rel.RelatedRemoteIDColumn)
	return append(out, rel.Exclude.Resolve(r)...)
}

// Columns resolves the edge's column name to field type map for r.
func (rel *Relationship) Columns(r *models.Record) map[string]models.FieldType {
	return resolveColumns(r, rel.IncludeAllColumns, rel.Fields, rel.ExcludeFields(r))
}

// Binding composes the entity and relationship descriptors of one kind.
type Binding struct {
	Kind          string
	Entity        *Entity
	Relationships []Relationship
}

// Relationship returns the named relationship descriptor.
func (b *Binding) Relationship(name string) (*Relationship, bool) {
	for i := range b.Relationships {
		if b.Relationships[i].Name == name {
			return &b.Relationships[i], true
		}
	}
	return nil, false
}

// Registry maps kinds to their bindings. It is filled at startup and read
// concurrently by every synchronizer.
type Registry struct {
	mu       sync.RWMutex
	bindings map[string]*Binding
	validate *validator.Validate
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		bindings: make(map[string]*Binding),
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

// Register applies defaults to b, validates it and stores it.
func (r *Registry) Register(b Binding) error {
	if err := r.normalize(&b); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.bindings[b.Kind]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateKind, b.Kind)
	}
	r.bindings[b.Kind] = &b
	return nil
}

// MustRegister is Register for static setups in main and tests.
func (r *Registry) MustRegister(bindings ...Binding) *Registry {
	for _, b := range bindings {
		if err := r.Register(b); err != nil {
			panic(err)
		}
	}
	return r
}

// Get returns the binding for kind.
func (r *Registry) Get(kind string) (*Binding, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.bindings[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownKind, kind)
	}
	return b, nil
}

// Entity returns the entity descriptor for kind.
func (r *Registry) Entity(kind string) (*Entity, error) {
	b, err := r.Get(kind)
	if err != nil {
		return nil, err
	}
	if b.Entity == nil {
		return nil, fmt.Errorf("%w: %s has no entity binding", ErrUnknownKind, kind)
	}
	return b.Entity, nil
}

// Relationship returns the named relationship descriptor of kind.
func (r *Registry) Relationship(kind, name string) (*Relationship, error) {
	b, err := r.Get(kind)
	if err != nil {
		return nil, err
	}
	rel, ok := b.Relationship(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s.%s", ErrUnknownRelation, kind, name)
	}
	return rel, nil
}

// Kinds returns the registered kinds in sorted order.
func (r *Registry) Kinds() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	kinds := make([]string, 0, len(r.bindings))
	for k := range r.bindings {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}

func (r *Registry) normalize(b *Binding) error {
	if err := r.validate.Var(b.Kind, "required"); err != nil {
		return fmt.Errorf("%w: kind: %w", ErrInvalidBinding, err)
	}
	if b.Entity == nil && len(b.Relationships) == 0 {
		return fmt.Errorf("%w: %s binds neither an entity nor a relationship", ErrInvalidBinding, b.Kind)
	}

	idColumns := make(map[string]string)
	claim := func(column, owner string) error {
		if prev, taken := idColumns[column]; taken {
			return fmt.Errorf("%w: %s id column %q used by both %s and %s",
				ErrInvalidBinding, b.Kind, column, prev, owner)
		}
		idColumns[column] = owner
		return nil
	}

	if b.Entity != nil {
		e := *b.Entity
		e.kind = b.Kind
		if e.IDColumn == "" {
			e.IDColumn = DefaultIDColumn
		}
		if e.HasParent() {
			if e.ParentKind == "" {
				e.ParentKind = e.Parent
			}
			if e.ParentForeignKey == "" {
				e.ParentForeignKey = e.Parent + "_id"
			}
		}
		if e.PushOn == nil {
			e.PushOn = DefaultEntity().PushOn
		}
		if e.MDMIDColumn != "" && e.MDMTimeout == 0 {
			e.MDMTimeout = DefaultMDMTimeout
		}
		if err := r.validate.Struct(&e); err != nil {
			return fmt.Errorf("%w: %s entity: %w", ErrInvalidBinding, b.Kind, err)
		}
		if err := claim(e.IDColumn, "entity"); err != nil {
			return err
		}
		b.Entity = &e
	}

	seen := make(map[string]bool, len(b.Relationships))
	rels := make([]Relationship, len(b.Relationships))
	for i, rel := range b.Relationships {
		rel.kind = b.Kind
		if seen[rel.Name] {
			return fmt.Errorf("%w: %s relationship %q declared twice", ErrInvalidBinding, b.Kind, rel.Name)
		}
		seen[rel.Name] = true
		if rel.IDColumn == "" {
			rel.IDColumn = DefaultIDColumn
		}
		normalizeEndpoint(&rel.Primary)
		normalizeEndpoint(&rel.Related)
		if rel.PrimaryIsSelf() {
			rel.Primary.Kind = b.Kind
		}
		if err := r.validate.Struct(&rel); err != nil {
			return fmt.Errorf("%w: %s relationship %s: %w", ErrInvalidBinding, b.Kind, rel.Name, err)
		}
		if rel.Related.Link == "" && rel.RelatedRemoteIDColumn == "" {
			return fmt.Errorf("%w: %s relationship %s needs a related link or a related remote id column",
				ErrInvalidBinding, b.Kind, rel.Name)
		}
		if rel.RemoteRelated() && rel.RelatedType == "" {
			return fmt.Errorf("%w: %s relationship %s: related type is required for a remote foreign key",
				ErrInvalidBinding, b.Kind, rel.Name)
		}
		if err := claim(rel.IDColumn, "relationship "+rel.Name); err != nil {
			return err
		}
		rels[i] = rel
	}
	b.Relationships = rels
	return nil
}

func normalizeEndpoint(ep *Endpoint) {
	if ep.Binding == "" {
		ep.Binding = BindingEntity
	}
	if ep.Link == "" {
		return
	}
	if ep.Kind == "" {
		ep.Kind = ep.Link
	}
	if ep.ForeignKey == "" {
		ep.ForeignKey = ep.Link + "_id"
	}
}

func allowed(ifCond, unless Condition, r *models.Record) bool {
	if ifCond != nil && !ifCond(r) {
		return false
	}
	if unless != nil && unless(r) {
		return false
	}
	return true
}

func appendNonEmpty(dst []string, values ...string) []string {
	for _, v := range values {
		if v != "" {
			dst = append(dst, v)
		}
	}
	return dst
}
