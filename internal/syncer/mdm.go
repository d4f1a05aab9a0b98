// Regsync - Global Registry Synchronization Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/regsync

package syncer

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	"github.com/tomtom215/regsync/internal/models"
	"github.com/tomtom215/regsync/internal/registry"
)

// PullMDMID copies the master data id the registry assigned to an entity
// into the record's MDM column.
func (s *Syncer) PullMDMID(ctx context.Context, kind, id string) (Result, error) {
	e, err := s.bindings.Entity(kind)
	if err != nil {
		return fatal(err), nil
	}
	if e.MDMIDColumn == "" {
		return skipped("mdm disabled"), nil
	}
	rec, ok, err := s.load(ctx, kind, id)
	if err != nil {
		return Result{}, err
	}
	if !ok {
		return skipped("record deleted"), nil
	}

	remoteID := rec.MetaValue(e.IDColumn)
	if remoteID == "" {
		t := models.PushEntityTask(kind, id)
		s.enqueue(ctx, t)
		return retry(fmt.Errorf("%w: %s", ErrRecordMissingRemoteID, t), t), nil
	}

	query := url.Values{}
	query.Set("filters[owned_by]", "mdm")
	doc, err := s.client.GetEntity(ctx, remoteID, query)
	if errors.Is(err, registry.ErrNotFound) {
		s.logger(ctx).Warn().Str("kind", kind).Str("id", id).Str("remote_id", remoteID).
			Msg("entity not found while pulling mdm id")
		return skipped("entity not found"), nil
	}
	if err != nil {
		return Result{}, fmt.Errorf("get entity %s: %w", remoteID, err)
	}

	typeName := e.TypeName(rec)
	master := "master_" + typeName
	var mdmID string
	if links := doc.List("entity", typeName, master+":relationship"); len(links) > 0 {
		mdmID = links[0].String(master)
	}
	if mdmID == "" {
		return retry(fmt.Errorf("%w: %s(%s)", ErrEntityMissingMDMID, kind, id)), nil
	}

	if rec.MetaValue(e.MDMIDColumn) == mdmID {
		return skipped("mdm id unchanged"), nil
	}
	if err := s.setMeta(ctx, rec, map[string]string{e.MDMIDColumn: mdmID}); err != nil {
		return Result{}, err
	}
	s.logger(ctx).Info().Str("kind", kind).Str("id", id).Str("mdm_id", mdmID).Msg("mdm id pulled")
	return pushed("mdm id stored"), nil
}
