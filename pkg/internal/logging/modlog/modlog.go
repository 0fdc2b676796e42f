/*
Copyright Trust Data Format Contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package modlog provides the default module-and-level filtered logger
// backing pkg/common/log.
package modlog

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/trustdataformat/kas-go/pkg/internal/logging/metadata"
)

const (
	logLevelFormatter   = "UTC %s-> %s "
	logPrefixFormatter  = " [%s] "
	callerInfoFormatter = "- %s "
)

// New returns a moduled logger backed by the standard library log package.
func New(module string) *ModLog {
	return &ModLog{
		logger: log.New(os.Stdout, fmt.Sprintf(logPrefixFormatter, module), log.Ldate|log.Ltime|log.LUTC),
		module: module,
	}
}

// ModLog is a moduled logger. Lines below the module's configured level are
// dropped before formatting.
type ModLog struct {
	logger *log.Logger
	module string
}

// Fatalf is CRITICAL log formatted followed by a call to os.Exit(1).
func (l *ModLog) Fatalf(format string, args ...interface{}) {
	l.logf(metadata.CRITICAL, format, args...)
	os.Exit(1)
}

// Panicf is CRITICAL log formatted followed by a call to panic().
func (l *ModLog) Panicf(format string, args ...interface{}) {
	l.logf(metadata.CRITICAL, format, args...)
	panic(fmt.Sprintf(format, args...))
}

// Debugf is for logging verbose messages.
// Arguments are handled in the manner of fmt.Printf.
func (l *ModLog) Debugf(format string, args ...interface{}) {
	if !metadata.IsEnabledFor(l.module, metadata.DEBUG) {
		return
	}

	l.logf(metadata.DEBUG, format, args...)
}

// Infof is for logging general information messages. INFO is the default
// logging level.
func (l *ModLog) Infof(format string, args ...interface{}) {
	if !metadata.IsEnabledFor(l.module, metadata.INFO) {
		return
	}

	l.logf(metadata.INFO, format, args...)
}

// Warnf is for logging possible errors.
func (l *ModLog) Warnf(format string, args ...interface{}) {
	if !metadata.IsEnabledFor(l.module, metadata.WARNING) {
		return
	}

	l.logf(metadata.WARNING, format, args...)
}

// Errorf is for logging errors.
func (l *ModLog) Errorf(format string, args ...interface{}) {
	if !metadata.IsEnabledFor(l.module, metadata.ERROR) {
		return
	}

	l.logf(metadata.ERROR, format, args...)
}

// ChangeOutput changes output destination for the logger.
func (l *ModLog) ChangeOutput(output io.Writer) {
	l.logger.SetOutput(output)
}

func (l *ModLog) logf(level metadata.Level, format string, args ...interface{}) {
	customPrefix := fmt.Sprintf(logLevelFormatter, l.getCallerInfo(level), metadata.ParseString(level))

	if err := l.logger.Output(2, customPrefix+fmt.Sprintf(format, args...)); err != nil { //nolint:gomnd
		fmt.Printf("error from logger.Output %v\n", err)
	}
}

func (l *ModLog) getCallerInfo(level metadata.Level) string {
	if !metadata.IsCallerInfoEnabled(l.module, level) {
		return ""
	}

	const (
		maxCallers  = 6
		skipCallers = 4
		notFound    = "n/a"
		logPrefix   = "log.(*Log)"
	)

	fpcs := make([]uintptr, maxCallers)

	n := runtime.Callers(skipCallers, fpcs)
	if n == 0 {
		return fmt.Sprintf(callerInfoFormatter, notFound)
	}

	frames := runtime.CallersFrames(fpcs[:n])
	funcIsNext := false

	for f, more := frames.Next(); more; f, more = frames.Next() {
		_, fnName := filepath.Split(f.Function)

		if f.Func == nil || f.Function == "" {
			fnName = notFound
		}

		if funcIsNext {
			return fmt.Sprintf(callerInfoFormatter, fnName)
		}

		if strings.HasPrefix(fnName, logPrefix) {
			funcIsNext = true
			continue
		}

		return fmt.Sprintf(callerInfoFormatter, fnName)
	}

	return fmt.Sprintf(callerInfoFormatter, notFound)
}
