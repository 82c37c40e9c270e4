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

// ListObjectSummaries enumerates every object visible under the session's
// authentication key and enriches each with its detailed metadata. Objects
// of type asymmetric-key additionally carry their public key hex-encoded;
// all other types carry an empty string.
//
// Summaries preserve device-reported enumeration order and are produced
// fresh on every call; nothing is cached. The listing is all-or-nothing:
// any per-object lookup failure aborts the whole call with ErrListingFailed
// and no partial results.
func (c *Client) ListObjectSummaries(filters ...ObjectFilter) ([]ObjectSummary, error) {
	start := time.Now()

	summaries, err := c.listObjectSummaries(filters...)
	c.record(metrics.OpList, start, err)

	ev := audit.NewEvent(audit.EventObjectList, audit.OutcomeSuccess)
	if err != nil {
		ev.Outcome = audit.OutcomeFailure
		ev.Detail = err.Error()
	} else {
		ev.Detail = fmt.Sprintf("objects=%d", len(summaries))
	}
	c.recordAudit(ev)

	if err == nil {
		metrics.SetObjectsTotal(c.connector, float64(len(summaries)))
	}
	return summaries, err
}

func (c *Client) listObjectSummaries(filters ...ObjectFilter) ([]ObjectSummary, error) {
	var entries []ObjectEntry
	err := c.withDevice(func(d Device) error {
		var derr error
		entries, derr = d.ListObjects(filters...)
		return derr
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrListingFailed, err)
	}

	summaries := make([]ObjectSummary, 0, len(entries))
	for _, entry := range entries {
		var info ObjectInfo
		err := c.withDevice(func(d Device) error {
			var derr error
			info, derr = d.GetObjectInfo(entry.ID, entry.Type)
			return derr
		})
		if err != nil {
			return nil, fmt.Errorf("%w: get object info %s: %v", ErrListingFailed, entry.ID, err)
		}

		summary := ObjectSummary{
			ID:        info.ID,
			Type:      info.Type,
			Algorithm: info.Algorithm,
			Sequence:  info.Sequence,
			Label:     info.Label,
		}

		if entry.Type == TypeAsymmetricKey {
			var pub PublicKey
			err := c.withDevice(func(d Device) error {
				var derr error
				pub, derr = d.GetPublicKey(entry.ID)
				return derr
			})
			if err != nil {
				return nil, fmt.Errorf("%w: get public key %s: %v", ErrListingFailed, entry.ID, err)
			}
			summary.PublicKey = pub.Hex()
		}

		summaries = append(summaries, summary)
	}
	return summaries, nil
}

// GetObjectInfo fetches the detailed metadata of one object. The result is
// immutable once read; callers re-read rather than cache across mutations.
func (c *Client) GetObjectInfo(id ObjectID, typ ObjectType) (ObjectInfo, error) {
	start := time.Now()

	var info ObjectInfo
	err := c.withDevice(func(d Device) error {
		var derr error
		info, derr = d.GetObjectInfo(id, typ)
		return derr
	})
	if err != nil {
		err = fmt.Errorf("%w: get object info %s: %v", ErrListingFailed, id, err)
	}
	c.record(metrics.OpGetInfo, start, err)

	ev := audit.NewEvent(audit.EventObjectInfo, audit.OutcomeSuccess)
	ev.ObjectID = id.String()
	ev.ObjectType = typ.String()
	if err != nil {
		ev.Outcome = audit.OutcomeFailure
		ev.Detail = err.Error()
	}
	c.recordAudit(ev)

	if err != nil {
		return ObjectInfo{}, err
	}
	return info, nil
}

// GetPublicKey fetches the raw public key material stored under id. The
// bytes are device-native, either 64-byte x||y or a 65-byte SEC1 point;
// use ParseP256PublicKey to normalize them.
func (c *Client) GetPublicKey(id ObjectID) (PublicKey, error) {
	start := time.Now()

	var pub PublicKey
	err := c.withDevice(func(d Device) error {
		var derr error
		pub, derr = d.GetPublicKey(id)
		return derr
	})
	if err != nil {
		err = fmt.Errorf("%w: %v", ErrGetPublicKeyFailed, err)
	}
	c.record(metrics.OpGetPublicKey, start, err)

	ev := audit.NewEvent(audit.EventObjectPubKey, audit.OutcomeSuccess)
	ev.ObjectID = id.String()
	if err != nil {
		ev.Outcome = audit.OutcomeFailure
		ev.Detail = err.Error()
	}
	c.recordAudit(ev)

	if err != nil {
		return PublicKey{}, err
	}
	return pub, nil
}
