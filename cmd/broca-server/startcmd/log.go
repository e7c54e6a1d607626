/*
Copyright Broca Project Contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package startcmd

import (
	"github.com/trustbloc/logutil-go/pkg/log"

	logfields "github.com/broca-activitypub/broca/internal/pkg/log"
)

const (
	// LogLevelFlagName is the flag name used for setting the default log level.
	LogLevelFlagName = "log-level"
	// LogLevelEnvKey is the env var name used for setting the default log level.
	LogLevelEnvKey = "BROCA_LOG_LEVEL"
	// LogLevelFlagShorthand is the shorthand flag name used for setting the default log level.
	LogLevelFlagShorthand = "l"
	// LogLevelFlagUsage is the usage text for the log level flag.
	LogLevelFlagUsage = "Sets logging levels for individual modules as well as the default level. " +
		"The format of the string is as follows: module1=level1:module2=level2:defaultLevel. " +
		"Supported levels are: ERROR, WARN, INFO, DEBUG. " +
		"Example: delivery=DEBUG:activitypub_store=WARN:INFO. " +
		"Defaults to info if not set. Setting to debug may adversely impact performance. " +
		commonEnvVarUsageText + LogLevelEnvKey
)

const logSpecErrorMsg = `Invalid log spec. It needs to be in the following format: "ModuleName1=Level1` +
	`:ModuleName2=Level2:ModuleNameN=LevelN:AllOtherModuleDefaultLevel"
Valid log levels: error,warn,info,debug
Error: %s`

// setLogLevels sets the log levels for individual modules as well as the default level.
func setLogLevels(logger *log.Log, logSpec string) {
	if err := log.SetSpec(logSpec); err != nil {
		logger.Warn(logSpecErrorMsg, log.WithError(err))

		log.SetDefaultLevel(log.INFO)
	} else {
		logger.Info("Successfully set log levels", logfields.WithLogSpec(log.GetSpec()))
	}
}
