/*
Copyright Broca Project Contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package cmdutil

import (
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"
)

func TestGetUserSetVarFromString(t *testing.T) {
	t.Run("From flag", func(t *testing.T) {
		cmd := newCommand(t)
		require.NoError(t, cmd.Flags().Set("host-url", "https://example1.com"))

		value, err := GetUserSetVarFromString(cmd, "host-url", "BROCA_HOST_URL", false)
		require.NoError(t, err)
		require.Equal(t, "https://example1.com", value)
	})

	t.Run("From environment", func(t *testing.T) {
		t.Setenv("BROCA_HOST_URL", "https://example2.com")

		value, err := GetUserSetVarFromString(newCommand(t), "host-url", "BROCA_HOST_URL", false)
		require.NoError(t, err)
		require.Equal(t, "https://example2.com", value)
	})

	t.Run("Neither set -> error", func(t *testing.T) {
		_, err := GetUserSetVarFromString(newCommand(t), "host-url", "BROCA_HOST_URL", false)
		require.Error(t, err)
		require.Contains(t, err.Error(), "have been set")
	})

	t.Run("Optional not set -> empty", func(t *testing.T) {
		value := GetUserSetOptionalVarFromString(newCommand(t), "host-url", "BROCA_HOST_URL")
		require.Empty(t, value)
	})
}

func TestGetUserSetVarFromArrayString(t *testing.T) {
	t.Run("From environment with multiple values", func(t *testing.T) {
		t.Setenv("BROCA_TOKENS", "token1,token2")

		values, err := GetUserSetVarFromArrayString(newCommand(t), "tokens", "BROCA_TOKENS", false)
		require.NoError(t, err)
		require.Equal(t, []string{"token1", "token2"}, values)
	})

	t.Run("Optional not set -> empty", func(t *testing.T) {
		values := GetUserSetOptionalVarFromArrayString(newCommand(t), "tokens", "BROCA_TOKENS")
		require.Empty(t, values)
	})
}

func TestGetBool(t *testing.T) {
	t.Run("Default", func(t *testing.T) {
		value, err := GetBool(newCommand(t), "enable-delivery", "BROCA_ENABLE_DELIVERY", true)
		require.NoError(t, err)
		require.True(t, value)
	})

	t.Run("From environment", func(t *testing.T) {
		t.Setenv("BROCA_ENABLE_DELIVERY", "false")

		value, err := GetBool(newCommand(t), "enable-delivery", "BROCA_ENABLE_DELIVERY", true)
		require.NoError(t, err)
		require.False(t, value)
	})

	t.Run("Invalid -> error", func(t *testing.T) {
		t.Setenv("BROCA_ENABLE_DELIVERY", "invalid")

		_, err := GetBool(newCommand(t), "enable-delivery", "BROCA_ENABLE_DELIVERY", true)
		require.Error(t, err)
		require.Contains(t, err.Error(), "invalid value")
	})
}

func TestGetInt(t *testing.T) {
	t.Run("Default", func(t *testing.T) {
		value, err := GetInt(newCommand(t), "batch-size", "BROCA_BATCH_SIZE", 100)
		require.NoError(t, err)
		require.Equal(t, 100, value)
	})

	t.Run("From environment", func(t *testing.T) {
		t.Setenv("BROCA_BATCH_SIZE", "250")

		value, err := GetInt(newCommand(t), "batch-size", "BROCA_BATCH_SIZE", 100)
		require.NoError(t, err)
		require.Equal(t, 250, value)
	})

	t.Run("Invalid -> error", func(t *testing.T) {
		t.Setenv("BROCA_BATCH_SIZE", "many")

		_, err := GetInt(newCommand(t), "batch-size", "BROCA_BATCH_SIZE", 100)
		require.Error(t, err)
	})
}

func TestGetDuration(t *testing.T) {
	t.Run("Default", func(t *testing.T) {
		value, err := GetDuration(newCommand(t), "interval", "BROCA_INTERVAL", 5*time.Second)
		require.NoError(t, err)
		require.Equal(t, 5*time.Second, value)
	})

	t.Run("From environment", func(t *testing.T) {
		t.Setenv("BROCA_INTERVAL", "1m")

		value, err := GetDuration(newCommand(t), "interval", "BROCA_INTERVAL", 5*time.Second)
		require.NoError(t, err)
		require.Equal(t, time.Minute, value)
	})

	t.Run("Invalid -> error", func(t *testing.T) {
		t.Setenv("BROCA_INTERVAL", "sometime")

		_, err := GetDuration(newCommand(t), "interval", "BROCA_INTERVAL", 5*time.Second)
		require.Error(t, err)
	})
}

func newCommand(t *testing.T) *cobra.Command {
	t.Helper()

	cmd := &cobra.Command{Use: "start"}

	cmd.Flags().StringP("host-url", "", "", "")
	cmd.Flags().StringArrayP("tokens", "", nil, "")
	cmd.Flags().StringP("enable-delivery", "", "", "")
	cmd.Flags().StringP("batch-size", "", "", "")
	cmd.Flags().StringP("interval", "", "", "")

	return cmd
}
