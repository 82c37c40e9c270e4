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

package hsm

import (
	"fmt"
	"time"

	"github.com/jeremyhahn/go-hsm/pkg/audit"
	"github.com/jeremyhahn/go-hsm/pkg/metrics"
)

// DeleteObject removes one object from the device.
//
// Deleting authentication keys is refused unconditionally with
// ErrInvalidInput before any device call, for any object id: losing the
// last authentication key would brick the device. This check is the single
// deletion entry point in the package and cannot be bypassed, since raw
// Device handles are never exposed. Remote failures surface as
// ErrDeletionFailed. There is no confirmation or undo at this layer.
func (c *Client) DeleteObject(id ObjectID, typ ObjectType) error {
	start := time.Now()

	if typ == TypeAuthenticationKey {
		err := fmt.Errorf("%w: deleting authentication keys is not allowed", ErrInvalidInput)
		c.record(metrics.OpDelete, start, err)
		ev := audit.NewEvent(audit.EventObjectDelete, audit.OutcomeDenied)
		ev.ObjectID = id.String()
		ev.ObjectType = typ.String()
		ev.Detail = err.Error()
		c.recordAudit(ev)
		return err
	}

	err := c.withDevice(func(d Device) error {
		return d.DeleteObject(id, typ)
	})
	if err != nil {
		err = fmt.Errorf("%w: %v", ErrDeletionFailed, err)
		c.record(metrics.OpDelete, start, err)
		ev := audit.NewEvent(audit.EventObjectDelete, audit.OutcomeFailure)
		ev.ObjectID = id.String()
		ev.ObjectType = typ.String()
		ev.Detail = err.Error()
		c.recordAudit(ev)
		return err
	}

	c.record(metrics.OpDelete, start, nil)
	ev := audit.NewEvent(audit.EventObjectDelete, audit.OutcomeSuccess)
	ev.ObjectID = id.String()
	ev.ObjectType = typ.String()
	c.recordAudit(ev)
	c.log.Info("deleted object",
		"object_id", id.String(),
		"object_type", typ.String())
	return nil
}
