// Regsync - Global Registry Synchronization Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/regsync

package models

import "testing"

func TestTaskKey(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		task Task
		want string
	}{
		{"entity", PushEntityTask("person", "1"), "push_entity:person:1"},
		{"relationship", PushRelationshipTask("assignment", "7", "assignment"), "push_relationship:assignment:7:assignment"},
		{"delete", DeleteEntityTask("gr-1"), "delete_entity:gr-1"},
		{"mdm", PullMDMIDTask("person", "1"), "pull_mdm_id:person:1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := tt.task.Key(); got != tt.want {
				t.Errorf("Key() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestTaskKeyIgnoresAttempt(t *testing.T) {
	t.Parallel()

	first := PushEntityTask("person", "1")
	retried := first
	retried.Attempt = 4
	if first.Key() != retried.Key() {
		t.Errorf("Key() differs across attempts: %q vs %q", first.Key(), retried.Key())
	}
}

func TestRecordMeta(t *testing.T) {
	t.Parallel()

	r := &Record{Kind: "person", ID: "1"}
	if got := r.MetaValue("global_registry_id"); got != "" {
		t.Errorf("MetaValue on empty record = %q, want empty", got)
	}

	r.SetMeta("global_registry_id", "gr-1")
	if got := r.MetaValue("global_registry_id"); got != "gr-1" {
		t.Errorf("MetaValue = %q, want gr-1", got)
	}

	r.SetMeta("global_registry_id", "")
	if _, ok := r.Meta["global_registry_id"]; ok {
		t.Error("SetMeta with empty value should remove the column")
	}
}

func TestRecordCloneDoesNotShareMaps(t *testing.T) {
	t.Parallel()

	r := &Record{Kind: "person", ID: "1", Values: map[string]any{"first_name": "Tony"}}
	c := r.Clone()
	c.Values["first_name"] = "Pepper"
	c.SetMeta("global_registry_id", "gr-1")

	if r.Values["first_name"] != "Tony" {
		t.Errorf("clone mutation leaked into original values: %v", r.Values)
	}
	if r.MetaValue("global_registry_id") != "" {
		t.Error("clone mutation leaked into original meta")
	}
}

func TestChangeLinkChanged(t *testing.T) {
	t.Parallel()

	person := Ref{Kind: "person", ID: "1"}
	other := Ref{Kind: "person", ID: "2"}

	created := Change{Event: EventCreate, Record: &Record{Links: map[string]Ref{"person": person}}}
	if _, cur, changed := created.LinkChanged("person"); !changed || cur != person {
		t.Errorf("create: changed=%v cur=%v, want true %v", changed, cur, person)
	}

	moved := Change{
		Event:    EventUpdate,
		Record:   &Record{Links: map[string]Ref{"person": other}},
		Previous: &Record{Links: map[string]Ref{"person": person}},
	}
	prev, cur, changed := moved.LinkChanged("person")
	if !changed || prev != person || cur != other {
		t.Errorf("update: prev=%v cur=%v changed=%v", prev, cur, changed)
	}

	same := Change{Event: EventUpdate, Record: &Record{}, Previous: &Record{}}
	if _, _, changed := same.LinkChanged("person"); changed {
		t.Error("unchanged empty link reported as changed")
	}
}
