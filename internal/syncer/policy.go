// Regsync - Global Registry Synchronization Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/regsync

package syncer

import (
	"fmt"
	"strings"
)

// ErrorAction decides what happens to enqueue and transport failures.
type ErrorAction string

const (
	ActionIgnore ErrorAction = "ignore"
	ActionLog    ErrorAction = "log"
	ActionRaise  ErrorAction = "raise"
)

// ParseErrorAction parses a configured action. Empty means ActionLog.
func ParseErrorAction(s string) (ErrorAction, error) {
	switch a := ErrorAction(strings.ToLower(strings.TrimSpace(s))); a {
	case "":
		return ActionLog, nil
	case ActionIgnore, ActionLog, ActionRaise:
		return a, nil
	default:
		return "", fmt.Errorf("unknown error action %q", s)
	}
}
