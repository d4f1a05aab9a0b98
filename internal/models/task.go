// Regsync - Global Registry Synchronization Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/regsync

package models

import "strings"

// TaskOp names the unit of work a Task performs.
type TaskOp string

const (
	OpPushEntity       TaskOp = "push_entity"
	OpPushRelationship TaskOp = "push_relationship"
	OpDeleteEntity     TaskOp = "delete_entity"
	OpPullMDMID        TaskOp = "pull_mdm_id"
)

// Task is the unit scheduled on the queue.
type Task struct {
	Op           TaskOp `json:"op" validate:"required,oneof=push_entity push_relationship delete_entity pull_mdm_id"`
	Kind         string `json:"kind,omitempty" validate:"required_unless=Op delete_entity"`
	ID           string `json:"id,omitempty" validate:"required_unless=Op delete_entity"`
	Relationship string `json:"relationship,omitempty" validate:"required_if=Op push_relationship"`
	RemoteID     string `json:"remote_id,omitempty" validate:"required_if=Op delete_entity"`
	Attempt      int    `json:"attempt,omitempty" validate:"gte=0"`
}

// PushEntityTask builds an entity push for the given record.
func PushEntityTask(kind, id string) Task {
	return Task{Op: OpPushEntity, Kind: kind, ID: id}
}

// PushRelationshipTask builds a relationship push for the given record.
func PushRelationshipTask(kind, id, relationship string) Task {
	return Task{Op: OpPushRelationship, Kind: kind, ID: id, Relationship: relationship}
}

// DeleteEntityTask deletes a remote entity or edge by id.
func DeleteEntityTask(remoteID string) Task {
	return Task{Op: OpDeleteEntity, RemoteID: remoteID}
}

// PullMDMIDTask fetches the mdm id for the given record.
func PullMDMIDTask(kind, id string) Task {
	return Task{Op: OpPullMDMID, Kind: kind, ID: id}
}

// Key identifies the task for deduplication. Attempt is not part of it.
func (t Task) Key() string {
	if t.Op == OpDeleteEntity {
		return string(t.Op) + ":" + t.RemoteID
	}
	parts := []string{string(t.Op), t.Kind, t.ID}
	if t.Relationship != "" {
		parts = append(parts, t.Relationship)
	}
	return strings.Join(parts, ":")
}

// String renders the task for logs and error messages, e.g. "person(42)".
func (t Task) String() string {
	switch t.Op {
	case OpDeleteEntity:
		return "entity(" + t.RemoteID + ")"
	case OpPushRelationship:
		return t.Kind + "(" + t.ID + ")." + t.Relationship
	default:
		return t.Kind + "(" + t.ID + ")"
	}
}
