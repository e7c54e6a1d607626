/*
Copyright Broca Project Contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package cmdutil

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

// GetUserSetOptionalVarFromString returns the value of either the command line flag or the environment variable.
// An empty string is returned if neither is set.
func GetUserSetOptionalVarFromString(cmd *cobra.Command, flagName, envKey string) string {
	v, _ := GetUserSetVarFromString(cmd, flagName, envKey, true) //nolint:errcheck

	return v
}

// GetUserSetVarFromString returns the value of either the command line flag or the environment variable.
func GetUserSetVarFromString(cmd *cobra.Command, flagName, envKey string, isOptional bool) (string, error) {
	if cmd.Flags().Changed(flagName) {
		value, err := cmd.Flags().GetString(flagName)
		if err != nil {
			return "", fmt.Errorf("%s flag not found: %w", flagName, err)
		}

		if value == "" {
			return "", fmt.Errorf("%s value is empty", flagName)
		}

		return value, nil
	}

	value, isSet := os.LookupEnv(envKey)

	if isOptional || isSet {
		if !isOptional && value == "" {
			return "", fmt.Errorf("%s value is empty", envKey)
		}

		return value, nil
	}

	return "", errors.New("Neither " + flagName + " (command line flag) nor " + envKey +
		" (environment variable) have been set.")
}

// GetUserSetOptionalVarFromArrayString returns the values of either the command line flag or the
// environment variable. An empty slice is returned if neither is set.
func GetUserSetOptionalVarFromArrayString(cmd *cobra.Command, flagName, envKey string) []string {
	v, _ := GetUserSetVarFromArrayString(cmd, flagName, envKey, true) //nolint:errcheck

	return v
}

// GetUserSetVarFromArrayString returns the values of either the command line flag or the environment variable.
// The environment variable may contain multiple values separated by commas.
func GetUserSetVarFromArrayString(cmd *cobra.Command, flagName, envKey string, isOptional bool) ([]string, error) {
	if cmd.Flags().Changed(flagName) {
		value, err := cmd.Flags().GetStringArray(flagName)
		if err != nil {
			return nil, fmt.Errorf("%s flag not found: %w", flagName, err)
		}

		if len(value) == 0 {
			return nil, fmt.Errorf("%s value is empty", flagName)
		}

		return value, nil
	}

	value, isSet := os.LookupEnv(envKey)

	if isOptional || isSet {
		if !isOptional && value == "" {
			return nil, fmt.Errorf("%s value is empty", envKey)
		}

		if value == "" {
			return []string{}, nil
		}

		return strings.Split(value, ","), nil
	}

	return nil, errors.New("Neither " + flagName + " (command line flag) nor " + envKey +
		" (environment variable) have been set.")
}

// GetBool returns the bool value of either the command line flag or the environment variable.
// The given default is returned if neither is set.
func GetBool(cmd *cobra.Command, flagName, envKey string, defaultValue bool) (bool, error) {
	str := GetUserSetOptionalVarFromString(cmd, flagName, envKey)
	if str == "" {
		return defaultValue, nil
	}

	value, err := strconv.ParseBool(str)
	if err != nil {
		return false, fmt.Errorf("invalid value for %s [%s]: %w", flagName, str, err)
	}

	return value, nil
}

// GetInt returns the int value of either the command line flag or the environment variable.
// The given default is returned if neither is set.
func GetInt(cmd *cobra.Command, flagName, envKey string, defaultValue int) (int, error) {
	str := GetUserSetOptionalVarFromString(cmd, flagName, envKey)
	if str == "" {
		return defaultValue, nil
	}

	value, err := strconv.Atoi(str)
	if err != nil {
		return 0, fmt.Errorf("invalid value for %s [%s]: %w", flagName, str, err)
	}

	return value, nil
}

// GetDuration returns the duration value of either the command line flag or the environment variable.
// The given default is returned if neither is set.
func GetDuration(cmd *cobra.Command, flagName, envKey string, defaultValue time.Duration) (time.Duration, error) {
	str := GetUserSetOptionalVarFromString(cmd, flagName, envKey)
	if str == "" {
		return defaultValue, nil
	}

	value, err := time.ParseDuration(str)
	if err != nil {
		return 0, fmt.Errorf("invalid value for %s [%s]: %w", flagName, str, err)
	}

	return value, nil
}
