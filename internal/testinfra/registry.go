// Regsync - Global Registry Synchronization Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/regsync

// Package testinfra provides in-memory fakes shared by package tests.
package testinfra

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"sort"
	"strings"
	"sync"
	"testing"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"
)

// Call is one request received by the fake registry.
type Call struct {
	Method string
	Path   string
	Query  url.Values
	Body   map[string]any
	Auth   string
}

// FakeEntityType is an entity type held by the fake.
type FakeEntityType struct {
	ID        string
	Name      string
	ParentID  string
	FieldType string
}

// FakeEntity is an entity held by the fake.
type FakeEntity struct {
	ID       string
	Type     string
	Attrs    map[string]any
	ParentID string
	MDMID    string
}

// FakeEdge is a relationship edge held by the fake.
type FakeEdge struct {
	ID                  string
	PrimaryID           string
	Role                string
	RelatedType         string
	RelatedID           string
	ClientIntegrationID string
	Attrs               map[string]any
}

// FakeRelationshipType is a relationship type held by the fake.
type FakeRelationshipType struct {
	ID                       string
	EntityType1ID            string
	EntityType2ID            string
	Relationship1            string
	Relationship2            string
	RelationshipEntityTypeID string
	Fields                   []map[string]any
}

type fault struct {
	method string
	prefix string
	status int
	body   string
}

// FakeRegistry is an httptest server that implements the registry REST
// contract in memory and records every call.
type FakeRegistry struct {
	Server *httptest.Server

	mu       sync.Mutex
	calls    []Call
	faults   []fault
	types    map[string]*FakeEntityType
	entities map[string]*FakeEntity
	edges    map[string]*FakeEdge
	relTypes map[string]*FakeRelationshipType
}

// NewFakeRegistry starts a fake registry that is closed with the test.
func NewFakeRegistry(t *testing.T) *FakeRegistry {
	t.Helper()

	f := &FakeRegistry{
		types:    make(map[string]*FakeEntityType),
		entities: make(map[string]*FakeEntity),
		edges:    make(map[string]*FakeEdge),
		relTypes: make(map[string]*FakeRelationshipType),
	}
	f.Server = httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(f.Server.Close)
	return f
}

// URL returns the base URL of the fake.
func (f *FakeRegistry) URL() string {
	return f.Server.URL
}

// FailNext makes the next request matching method and path prefix answer
// with status and body instead of being served.
func (f *FakeRegistry) FailNext(method, pathPrefix string, status int, body string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.faults = append(f.faults, fault{method: method, prefix: pathPrefix, status: status, body: body})
}

// Calls returns a copy of the recorded calls.
func (f *FakeRegistry) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Call, len(f.calls))
	copy(out, f.calls)
	return out
}

// CountCalls counts recorded calls matching method and path prefix.
func (f *FakeRegistry) CountCalls(method, pathPrefix string) int {
	n := 0
	for _, c := range f.Calls() {
		if c.Method == method && strings.HasPrefix(c.Path, pathPrefix) {
			n++
		}
	}
	return n
}

// ResetCalls clears the call log.
func (f *FakeRegistry) ResetCalls() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = nil
}

// AddEntityType seeds an entity type and returns its id.
func (f *FakeRegistry) AddEntityType(name, parentID, fieldType string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.addType(name, parentID, fieldType).ID
}

// EntityTypeByName returns the first type with name.
func (f *FakeRegistry) EntityTypeByName(name string) (FakeEntityType, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, t := range f.sortedTypes() {
		if t.Name == name {
			return *t, true
		}
	}
	return FakeEntityType{}, false
}

// FieldNames returns the field names declared under a type id.
func (f *FakeRegistry) FieldNames(typeID string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var names []string
	for _, t := range f.types {
		if t.ParentID == typeID && t.FieldType != "entity" {
			names = append(names, t.Name)
		}
	}
	sort.Strings(names)
	return names
}

// Entity returns a stored entity.
func (f *FakeRegistry) Entity(id string) (FakeEntity, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.entities[id]
	if !ok {
		return FakeEntity{}, false
	}
	return *e, true
}

// EntitiesOfType returns all stored entities of a type.
func (f *FakeRegistry) EntitiesOfType(typ string) []FakeEntity {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []FakeEntity
	for _, e := range f.entities {
		if e.Type == typ {
			out = append(out, *e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// AddEntity seeds an entity and returns its id.
func (f *FakeRegistry) AddEntity(typ string, attrs map[string]any) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.addEntity(typ, attrs, "").ID
}

// SetMDMID attaches an mdm id to an entity.
func (f *FakeRegistry) SetMDMID(entityID, mdmID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if e, ok := f.entities[entityID]; ok {
		e.MDMID = mdmID
	}
}

// Edge returns a stored relationship edge.
func (f *FakeRegistry) Edge(id string) (FakeEdge, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.edges[id]
	if !ok {
		return FakeEdge{}, false
	}
	return *e, true
}

// Edges returns all stored edges.
func (f *FakeRegistry) Edges() []FakeEdge {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]FakeEdge, 0, len(f.edges))
	for _, e := range f.edges {
		out = append(out, *e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// AddEdge seeds a relationship edge and returns its id.
func (f *FakeRegistry) AddEdge(primaryID, role, relatedType, relatedID, cid string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	e := &FakeEdge{
		ID: uuid.NewString(), PrimaryID: primaryID, Role: role,
		RelatedType: relatedType, RelatedID: relatedID, ClientIntegrationID: cid,
		Attrs: map[string]any{},
	}
	f.edges[e.ID] = e
	return e.ID
}

// RelationshipTypes returns all stored relationship types.
func (f *FakeRegistry) RelationshipTypes() []FakeRelationshipType {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]FakeRelationshipType, 0, len(f.relTypes))
	for _, rt := range f.relTypes {
		out = append(out, *rt)
	}
	return out
}

func (f *FakeRegistry) serve(w http.ResponseWriter, r *http.Request) {
	var body map[string]any
	if r.Body != nil {
		dec := json.NewDecoder(r.Body)
		dec.UseNumber()
		_ = dec.Decode(&body)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls = append(f.calls, Call{
		Method: r.Method,
		Path:   r.URL.Path,
		Query:  r.URL.Query(),
		Body:   body,
		Auth:   r.Header.Get("Authorization"),
	})

	for i, ft := range f.faults {
		if ft.method == r.Method && strings.HasPrefix(r.URL.Path, ft.prefix) {
			f.faults = append(f.faults[:i], f.faults[i+1:]...)
			w.WriteHeader(ft.status)
			_, _ = w.Write([]byte(ft.body))
			return
		}
	}

	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	id := ""
	if len(parts) > 1 {
		id = parts[1]
	}
	switch {
	case parts[0] == "entity_types" && r.Method == http.MethodGet:
		f.findEntityTypes(w, r.URL.Query())
	case parts[0] == "entity_types" && r.Method == http.MethodPost:
		f.createEntityType(w, obj(body, "entity_type"))
	case parts[0] == "entity_types" && r.Method == http.MethodPut:
		f.renameEntityType(w, id, obj(body, "entity_type"))
	case parts[0] == "entities" && r.Method == http.MethodPost:
		f.createEntity(w, obj(body, "entity"))
	case parts[0] == "entities" && r.Method == http.MethodPut:
		f.updateEntity(w, id, obj(body, "entity"))
	case parts[0] == "entities" && r.Method == http.MethodGet:
		f.getEntity(w, id, r.URL.Query())
	case parts[0] == "entities" && r.Method == http.MethodDelete:
		f.deleteEntity(w, id)
	case parts[0] == "relationship_types" && r.Method == http.MethodGet:
		f.findRelationshipTypes(w, r.URL.Query())
	case parts[0] == "relationship_types" && r.Method == http.MethodPost:
		f.createRelationshipType(w, obj(body, "relationship_type"))
	case parts[0] == "relationship_types" && r.Method == http.MethodPut:
		f.updateRelationshipType(w, id, obj(body, "relationship_type"))
	default:
		writeJSON(w, http.StatusNotFound, map[string]any{"error": "no route"})
	}
}

func (f *FakeRegistry) findEntityTypes(w http.ResponseWriter, q url.Values) {
	name := q.Get("filters[name]")
	parent, hasParent := q["filters[parent_id]"]
	out := []any{}
	for _, t := range f.sortedTypes() {
		if t.Name != name || t.FieldType != "entity" {
			continue
		}
		if hasParent && t.ParentID != parent[0] {
			continue
		}
		out = append(out, f.typeJSON(t))
	}
	writeJSON(w, http.StatusOK, map[string]any{"entity_types": out})
}

func (f *FakeRegistry) createEntityType(w http.ResponseWriter, in map[string]any) {
	t := f.addType(str(in["name"]), str(in["parent_id"]), str(in["field_type"]))
	writeJSON(w, http.StatusOK, map[string]any{"entity_type": f.typeJSON(t)})
}

func (f *FakeRegistry) renameEntityType(w http.ResponseWriter, id string, in map[string]any) {
	t, ok := f.types[id]
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]any{"error": "entity type not found"})
		return
	}
	t.Name = str(in["name"])
	writeJSON(w, http.StatusOK, map[string]any{"entity_type": f.typeJSON(t)})
}

func (f *FakeRegistry) createEntity(w http.ResponseWriter, in map[string]any) {
	for typ, v := range in {
		attrs, _ := v.(map[string]any)
		e := f.addEntity(typ, attrs, "")
		writeJSON(w, http.StatusOK, map[string]any{"entity": map[string]any{typ: entityJSON(e)}})
		return
	}
	writeJSON(w, http.StatusBadRequest, map[string]any{"error": "empty entity"})
}

func (f *FakeRegistry) updateEntity(w http.ResponseWriter, id string, in map[string]any) {
	if edge, ok := f.edges[id]; ok {
		for k, v := range in {
			edge.Attrs[k] = v
		}
		writeJSON(w, http.StatusOK, map[string]any{"entity": map[string]any{"id": edge.ID}})
		return
	}

	e, ok := f.entities[id]
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]any{"error": "entity not found"})
		return
	}
	attrs := obj(in, e.Type)
	resp := entityJSON(e)

	for k, v := range attrs {
		switch {
		case strings.HasSuffix(k, ":relationship"):
			role := strings.TrimSuffix(k, ":relationship")
			edges, status, msg := f.upsertEdges(e, role, v)
			if status != http.StatusOK {
				writeJSON(w, status, map[string]any{"error": msg})
				return
			}
			resp[k] = edges
		case isObject(v):
			resp[k] = f.upsertChild(e, k, v.(map[string]any))
		default:
			e.Attrs[k] = v
		}
	}
	for k, v := range e.Attrs {
		if _, set := resp[k]; !set {
			resp[k] = v
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"entity": map[string]any{e.Type: resp}})
}

// upsertEdges creates one edge under primary. A client integration id already
// used by another edge of the same role is rejected like the real registry does.
func (f *FakeRegistry) upsertEdges(primary *FakeEntity, role string, v any) ([]any, int, string) {
	in, _ := v.(map[string]any)
	cid := str(in["client_integration_id"])
	for _, existing := range f.edges {
		if existing.PrimaryID == primary.ID && existing.Role == role && existing.ClientIntegrationID == cid {
			return nil, http.StatusBadRequest, "client_integration_id " + cid + " already exists"
		}
	}
	edge := &FakeEdge{
		ID:                  uuid.NewString(),
		PrimaryID:           primary.ID,
		Role:                role,
		ClientIntegrationID: cid,
		Attrs:               map[string]any{},
	}
	for k, val := range in {
		if k == "client_integration_id" {
			continue
		}
		if s, ok := val.(string); ok && f.entityByIDOfType(s, k) {
			edge.RelatedType, edge.RelatedID = k, s
			continue
		}
		edge.Attrs[k] = val
	}
	f.edges[edge.ID] = edge
	return []any{map[string]any{
		"relationship_entity_id": edge.ID,
		"client_integration_id":  map[string]any{"value": cid},
		edge.RelatedType:         edge.RelatedID,
	}}, http.StatusOK, ""
}

func (f *FakeRegistry) upsertChild(parent *FakeEntity, typ string, attrs map[string]any) []any {
	cid := str(attrs["client_integration_id"])
	var child *FakeEntity
	for _, e := range f.entities {
		if e.ParentID == parent.ID && e.Type == typ && str(e.Attrs["client_integration_id"]) == cid {
			child = e
			break
		}
	}
	if child == nil {
		child = f.addEntity(typ, attrs, parent.ID)
	} else {
		for k, v := range attrs {
			child.Attrs[k] = v
		}
	}
	var out []any
	for _, e := range f.sortedEntities() {
		if e.ParentID == parent.ID && e.Type == typ {
			out = append(out, entityJSON(e))
		}
	}
	return out
}

func (f *FakeRegistry) getEntity(w http.ResponseWriter, id string, q url.Values) {
	e, ok := f.entities[id]
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]any{"error": "entity not found"})
		return
	}
	body := entityJSON(e)
	for _, field := range strings.Split(q.Get("fields"), ",") {
		role, isEdge := strings.CutSuffix(field, ":relationship")
		if !isEdge {
			continue
		}
		edges := []any{}
		for _, edge := range f.sortedEdges() {
			if edge.PrimaryID == id && edge.Role == role {
				edges = append(edges, map[string]any{
					"relationship_entity_id": edge.ID,
					"client_integration_id":  map[string]any{"value": edge.ClientIntegrationID},
					edge.RelatedType:         edge.RelatedID,
				})
			}
		}
		body[field] = edges
	}
	if e.MDMID != "" {
		master := "master_" + e.Type
		body[master+":relationship"] = map[string]any{master: e.MDMID}
	}
	writeJSON(w, http.StatusOK, map[string]any{"entity": map[string]any{e.Type: body}})
}

func (f *FakeRegistry) deleteEntity(w http.ResponseWriter, id string) {
	if _, ok := f.edges[id]; ok {
		delete(f.edges, id)
		writeJSON(w, http.StatusOK, map[string]any{})
		return
	}
	if _, ok := f.entities[id]; !ok {
		writeJSON(w, http.StatusNotFound, map[string]any{"error": "entity not found"})
		return
	}
	delete(f.entities, id)
	for eid, e := range f.edges {
		if e.PrimaryID == id || e.RelatedID == id {
			delete(f.edges, eid)
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{})
}

func (f *FakeRegistry) findRelationshipTypes(w http.ResponseWriter, q url.Values) {
	ids := strings.SplitN(q.Get("filters[between]"), ",", 2)
	out := []any{}
	for _, rt := range f.relTypes {
		if len(ids) == 2 && rt.EntityType1ID == ids[0] && rt.EntityType2ID == ids[1] {
			out = append(out, relTypeJSON(rt))
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"relationship_types": out})
}

func (f *FakeRegistry) createRelationshipType(w http.ResponseWriter, in map[string]any) {
	rt := &FakeRelationshipType{
		ID:            uuid.NewString(),
		EntityType1ID: str(in["entity_type1_id"]),
		EntityType2ID: str(in["entity_type2_id"]),
		Relationship1: str(in["relationship1"]),
		Relationship2: str(in["relationship2"]),
	}
	rt.RelationshipEntityTypeID = f.addType(rt.Relationship1+"_"+rt.Relationship2, "", "entity").ID
	f.relTypes[rt.ID] = rt
	writeJSON(w, http.StatusOK, map[string]any{"relationship_type": relTypeJSON(rt)})
}

func (f *FakeRegistry) updateRelationshipType(w http.ResponseWriter, id string, in map[string]any) {
	rt, ok := f.relTypes[id]
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]any{"error": "relationship type not found"})
		return
	}
	fields, _ := in["fields"].([]any)
	for _, fv := range fields {
		if m, ok := fv.(map[string]any); ok {
			rt.Fields = append(rt.Fields, map[string]any{"name": m["name"], "field_type": m["field_type"]})
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"relationship_type": relTypeJSON(rt)})
}

// helpers, called with mu held

func (f *FakeRegistry) addType(name, parentID, fieldType string) *FakeEntityType {
	t := &FakeEntityType{ID: uuid.NewString(), Name: name, ParentID: parentID, FieldType: fieldType}
	f.types[t.ID] = t
	return t
}

func (f *FakeRegistry) addEntity(typ string, attrs map[string]any, parentID string) *FakeEntity {
	e := &FakeEntity{ID: uuid.NewString(), Type: typ, Attrs: map[string]any{}, ParentID: parentID}
	for k, v := range attrs {
		e.Attrs[k] = v
	}
	f.entities[e.ID] = e
	return e
}

func (f *FakeRegistry) entityByIDOfType(id, typ string) bool {
	e, ok := f.entities[id]
	return ok && e.Type == typ
}

func (f *FakeRegistry) typeJSON(t *FakeEntityType) map[string]any {
	fields := []any{}
	for _, c := range f.sortedTypes() {
		if c.ParentID == t.ID && c.FieldType != "entity" {
			fields = append(fields, map[string]any{"id": c.ID, "name": c.Name, "field_type": c.FieldType})
		}
	}
	out := map[string]any{"id": t.ID, "name": t.Name, "field_type": t.FieldType, "fields": fields}
	if t.ParentID != "" {
		out["parent_id"] = t.ParentID
	}
	return out
}

func (f *FakeRegistry) sortedTypes() []*FakeEntityType {
	out := make([]*FakeEntityType, 0, len(f.types))
	for _, t := range f.types {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (f *FakeRegistry) sortedEntities() []*FakeEntity {
	out := make([]*FakeEntity, 0, len(f.entities))
	for _, e := range f.entities {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (f *FakeRegistry) sortedEdges() []*FakeEdge {
	out := make([]*FakeEdge, 0, len(f.edges))
	for _, e := range f.edges {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func entityJSON(e *FakeEntity) map[string]any {
	out := map[string]any{"id": e.ID}
	for k, v := range e.Attrs {
		if !isObject(v) {
			out[k] = v
		}
	}
	return out
}

func relTypeJSON(rt *FakeRelationshipType) map[string]any {
	fields := make([]any, 0, len(rt.Fields))
	for _, fld := range rt.Fields {
		fields = append(fields, fld)
	}
	return map[string]any{
		"id":                          rt.ID,
		"relationship1":               map[string]any{"entity_type": rt.EntityType1ID, "relationship_name": rt.Relationship1},
		"relationship2":               map[string]any{"entity_type": rt.EntityType2ID, "relationship_name": rt.Relationship2},
		"relationship_entity_type_id": rt.RelationshipEntityTypeID,
		"fields":                      fields,
	}
}

func obj(m map[string]any, key string) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	v, _ := m[key].(map[string]any)
	if v == nil {
		return map[string]any{}
	}
	return v
}

func isObject(v any) bool {
	_, ok := v.(map[string]any)
	return ok
}

func str(v any) string {
	switch sv := v.(type) {
	case nil:
		return ""
	case string:
		return sv
	case json.Number:
		return sv.String()
	default:
		b, _ := json.Marshal(sv)
		return strings.Trim(string(b), `"`)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
