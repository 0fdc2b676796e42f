/*
Copyright Trust Data Format Contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package metadata

import (
	"errors"
	"strings"
	"sync"
)

// Level defines all available log levels for logging messages.
type Level int

// Log levels.
const (
	CRITICAL Level = iota
	ERROR
	WARNING
	INFO // default logging level
	DEBUG
)

const (
	defaultLogLevel   = INFO
	defaultModuleName = ""
)

var levelNames = []string{ //nolint:gochecknoglobals
	"CRITICAL",
	"ERROR",
	"WARNING",
	"INFO",
	"DEBUG",
}

// ParseLevel returns the log level from a string representation.
func ParseLevel(level string) (Level, error) {
	for i, name := range levelNames {
		if strings.EqualFold(name, level) {
			return Level(i), nil
		}
	}

	return ERROR, errors.New("logger: invalid log level")
}

// ParseString returns string representation of given log level.
func ParseString(level Level) string {
	return levelNames[level]
}

type callerInfoKey struct {
	module string
	level  Level
}

// registry is the process-wide log metadata store. Levels and caller-info
// settings are read on every log line, so access is mutex guarded.
type registry struct {
	sync.RWMutex
	levels     map[string]Level
	showcaller map[callerInfoKey]bool
}

var instance = &registry{ //nolint:gochecknoglobals
	levels: make(map[string]Level),
	showcaller: map[callerInfoKey]bool{
		{defaultModuleName, CRITICAL}: true,
		{defaultModuleName, ERROR}:    true,
		{defaultModuleName, WARNING}:  true,
		{defaultModuleName, INFO}:     true,
		{defaultModuleName, DEBUG}:    true,
	},
}

// SetLevel sets the log level for given module.
func SetLevel(module string, level Level) {
	instance.Lock()
	defer instance.Unlock()

	instance.levels[module] = level
}

// GetLevel returns the log level for given module.
func GetLevel(module string) Level {
	instance.RLock()
	defer instance.RUnlock()

	level, exists := instance.levels[module]
	if !exists {
		level, exists = instance.levels[defaultModuleName]
		if !exists {
			return defaultLogLevel
		}
	}

	return level
}

// IsEnabledFor returns true if logging is enabled for given module and level.
func IsEnabledFor(module string, level Level) bool {
	return level <= GetLevel(module)
}

// ShowCallerInfo enables caller info for given module and level.
func ShowCallerInfo(module string, level Level) {
	instance.Lock()
	defer instance.Unlock()

	instance.showcaller[callerInfoKey{module, level}] = true
}

// HideCallerInfo disables caller info for given module and level.
func HideCallerInfo(module string, level Level) {
	instance.Lock()
	defer instance.Unlock()

	instance.showcaller[callerInfoKey{module, level}] = false
}

// IsCallerInfoEnabled returns if caller info enabled for given module and level.
func IsCallerInfoEnabled(module string, level Level) bool {
	instance.RLock()
	defer instance.RUnlock()

	enabled, exists := instance.showcaller[callerInfoKey{module, level}]
	if !exists {
		return instance.showcaller[callerInfoKey{defaultModuleName, level}]
	}

	return enabled
}
