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
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeremyhahn/go-hsm/pkg/audit"
)

func TestClient_DeleteObject(t *testing.T) {
	t.Run("deletes an asymmetric key", func(t *testing.T) {
		manager, dev := connectedManager(t)

		err := manager.DeleteObject(testSignKeyID, TypeAsymmetricKey)
		require.NoError(t, err)
		assert.Equal(t, 1, dev.deleteCalls)

		_, err = manager.GetObjectInfo(testSignKeyID, TypeAsymmetricKey)
		assert.Error(t, err)
	})

	t.Run("missing object fails as deletion failure", func(t *testing.T) {
		manager, _ := connectedManager(t)

		err := manager.DeleteObject(0x9999, TypeOpaque)
		assert.ErrorIs(t, err, ErrDeletionFailed)
		assert.Contains(t, err.Error(), "object not found")
	})

	t.Run("device failure wraps", func(t *testing.T) {
		manager, dev := connectedManager(t)
		dev.setFault("delete", errors.New("device busy"))

		err := manager.DeleteObject(testSignKeyID, TypeAsymmetricKey)
		assert.ErrorIs(t, err, ErrDeletionFailed)
		assert.Contains(t, err.Error(), "device busy")
	})
}

func TestClient_DeleteObjectRefusesAuthenticationKeys(t *testing.T) {
	t.Run("refuses before any device call", func(t *testing.T) {
		manager, dev := connectedManager(t)

		err := manager.DeleteObject(testAuthKeyID, TypeAuthenticationKey)
		assert.ErrorIs(t, err, ErrInvalidInput)
		assert.Contains(t, err.Error(), "deleting authentication keys is not allowed")
		assert.Equal(t, 0, dev.deleteCalls)
	})

	t.Run("refuses for any object id", func(t *testing.T) {
		manager, dev := connectedManager(t)

		// The guard is on the type, not the id; an auth key that is not the
		// session's own is refused just the same.
		err := manager.DeleteObject(0x5555, TypeAuthenticationKey)
		assert.ErrorIs(t, err, ErrInvalidInput)
		assert.Equal(t, 0, dev.deleteCalls)
	})

	t.Run("records a denied audit event", func(t *testing.T) {
		auditor := audit.NewMemoryAuditor()
		dev := newFakeDevice(t)
		manager := NewSessionManager(WithAuditor(auditor))
		require.NoError(t, manager.Connect(newFakeConnector(dev), testAuthKeyID, []byte(testPassword)))
		defer manager.Disconnect()

		err := manager.DeleteObject(testAuthKeyID, TypeAuthenticationKey)
		require.Error(t, err)

		events := auditor.EventsByType(audit.EventObjectDelete)
		require.Len(t, events, 1)
		assert.Equal(t, audit.OutcomeDenied, events[0].Outcome)
		assert.Equal(t, testAuthKeyID.String(), events[0].ObjectID)
		assert.Equal(t, TypeAuthenticationKey.String(), events[0].ObjectType)
	})

	t.Run("records a success audit event on allowed deletes", func(t *testing.T) {
		auditor := audit.NewMemoryAuditor()
		dev := newFakeDevice(t)
		manager := NewSessionManager(WithAuditor(auditor))
		require.NoError(t, manager.Connect(newFakeConnector(dev), testAuthKeyID, []byte(testPassword)))
		defer manager.Disconnect()

		require.NoError(t, manager.DeleteObject(testSignKeyID, TypeAsymmetricKey))

		events := auditor.EventsByType(audit.EventObjectDelete)
		require.Len(t, events, 1)
		assert.Equal(t, audit.OutcomeSuccess, events[0].Outcome)
		assert.Equal(t, testSignKeyID.String(), events[0].ObjectID)
	})
}
