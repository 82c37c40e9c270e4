// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-hsm.
//
// go-hsm is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

package health

import (
	"context"
	"fmt"

	"github.com/jeremyhahn/go-hsm/pkg/hsm"
)

// SessionCheck reports whether an authenticated device session exists.
// It inspects local state only and never touches the device.
func SessionCheck(manager *hsm.SessionManager) CheckFunc {
	return func(ctx context.Context) CheckResult {
		result := CheckResult{Name: "session"}
		if manager == nil || !manager.IsAuthenticated() {
			result.Status = StatusUnhealthy
			result.Message = "No active device session"
			return result
		}
		result.Status = StatusHealthy
		if id, ok := manager.SessionID(); ok {
			result.Message = fmt.Sprintf("Session %s active", id)
		}
		return result
	}
}

// DeviceCheck exercises the device session end to end by listing the probe
// object, typically the configured signing key. An absent probe object
// degrades the check rather than failing it: the session still answered,
// the operator just has no key under that id.
func DeviceCheck(manager *hsm.SessionManager, probeID hsm.ObjectID) CheckFunc {
	return func(ctx context.Context) CheckResult {
		result := CheckResult{Name: "device"}
		if manager == nil || !manager.IsAuthenticated() {
			result.Status = StatusUnhealthy
			result.Message = "No active device session"
			return result
		}

		summaries, err := manager.ListObjectSummaries(hsm.ObjectFilter{ID: probeID})
		switch {
		case err != nil:
			result.Status = StatusUnhealthy
			result.Message = "Device round trip failed"
			result.Error = err.Error()
		case len(summaries) == 0:
			result.Status = StatusDegraded
			result.Message = fmt.Sprintf("Probe object %s not present", probeID)
		default:
			result.Status = StatusHealthy
			result.Message = fmt.Sprintf("Probe object %s (%s) reachable", summaries[0].ID, summaries[0].Type)
		}
		return result
	}
}
