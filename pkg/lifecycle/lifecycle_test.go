/*
Copyright Broca Project Contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package lifecycle

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLifecycle(t *testing.T) {
	t.Run("Default start and stop", func(t *testing.T) {
		lc := New("service1")
		require.NotNil(t, lc)
		require.Equal(t, StateNotStarted, lc.State())

		lc.Start()
		require.Equal(t, StateStarted, lc.State())

		lc.Stop()
		require.Equal(t, StateStopped, lc.State())
	})

	t.Run("With start and stop functions", func(t *testing.T) {
		started := false
		stopped := false

		lc := New("service2",
			WithStart(func() { started = true }),
			WithStop(func() { stopped = true }),
		)

		lc.Start()
		require.True(t, started)
		require.Equal(t, StateStarted, lc.State())

		lc.Stop()
		require.True(t, stopped)
		require.Equal(t, StateStopped, lc.State())
	})

	t.Run("Start and stop invoked at most once", func(t *testing.T) {
		startCount := 0
		stopCount := 0

		lc := New("service3",
			WithStart(func() { startCount++ }),
			WithStop(func() { stopCount++ }),
		)

		lc.Start()
		lc.Start()
		require.Equal(t, 1, startCount)

		lc.Stop()
		lc.Stop()
		require.Equal(t, 1, stopCount)
	})

	t.Run("Stop before start does nothing", func(t *testing.T) {
		stopped := false

		lc := New("service4", WithStop(func() { stopped = true }))

		lc.Stop()
		require.False(t, stopped)
		require.Equal(t, StateNotStarted, lc.State())
	})
}
