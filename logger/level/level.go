/*
 * MIT License
 *
 * Copyright (c) 2023 Nicolas JUHEL
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 *
 */

// Package level defines the log severity scale shared by the logger and
// every package that emits through it.
package level

import (
	"strings"
	"sync/atomic"

	"github.com/sirupsen/logrus"
)

// Level is the severity of a log message. NilLevel silences output
// entirely.
type Level uint8

const (
	NilLevel Level = iota
	PanicLevel
	FatalLevel
	ErrorLevel
	WarnLevel
	InfoLevel
	DebugLevel
)

func (l Level) String() string {
	switch l {
	case PanicLevel:
		return "Critical"
	case FatalLevel:
		return "Fatal"
	case ErrorLevel:
		return "Error"
	case WarnLevel:
		return "Warning"
	case InfoLevel:
		return "Info"
	case DebugLevel:
		return "Debug"
	default:
		return ""
	}
}

// Parse maps a level name (case-insensitive, with common aliases) back to
// a Level, defaulting to InfoLevel.
func Parse(s string) Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "panic", "critical":
		return PanicLevel
	case "fatal":
		return FatalLevel
	case "error":
		return ErrorLevel
	case "warn", "warning":
		return WarnLevel
	case "debug":
		return DebugLevel
	case "nil", "none", "off":
		return NilLevel
	default:
		return InfoLevel
	}
}

// Logrus maps a Level to its logrus equivalent; NilLevel maps to
// PanicLevel with the expectation that the caller discards output.
func (l Level) Logrus() logrus.Level {
	switch l {
	case PanicLevel, NilLevel:
		return logrus.PanicLevel
	case FatalLevel:
		return logrus.FatalLevel
	case ErrorLevel:
		return logrus.ErrorLevel
	case WarnLevel:
		return logrus.WarnLevel
	case InfoLevel:
		return logrus.InfoLevel
	default:
		return logrus.DebugLevel
	}
}

// logf is the sink Level.Logf routes through. The logger package installs
// its default logger here so leaf packages (e.g. the cluster's raft
// logging bridge) can emit without holding a Logger instance.
var logf atomic.Value // func(lvl Level, format string, args ...interface{})

// SetLogf installs the default formatted-log sink.
func SetLogf(fn func(lvl Level, format string, args ...interface{})) {
	if fn != nil {
		logf.Store(fn)
	}
}

// Logf emits a formatted message at this level through the default sink.
// A message logged before any sink is installed is dropped.
func (l Level) Logf(format string, args ...interface{}) {
	if fn, ok := logf.Load().(func(lvl Level, format string, args ...interface{})); ok {
		fn(l, format, args...)
	}
}
