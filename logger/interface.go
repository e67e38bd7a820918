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

// Package logger is the structured, level-gated logging front used across
// the module, backed by logrus. Components receive a Logger (or a
// FuncLog factory for lazy binding) and emit either through the
// convenience methods or by assembling an Entry with fields.
package logger

import (
	"io"

	logent "github.com/Megallm/ultrabalancer-sub000/logger/entry"
	loglvl "github.com/Megallm/ultrabalancer-sub000/logger/level"
)

// Re-exported severity constants, so call sites need only this package.
const (
	NilLevel   = loglvl.NilLevel
	PanicLevel = loglvl.PanicLevel
	FatalLevel = loglvl.FatalLevel
	ErrorLevel = loglvl.ErrorLevel
	WarnLevel  = loglvl.WarnLevel
	InfoLevel  = loglvl.InfoLevel
	DebugLevel = loglvl.DebugLevel
)

// FuncLog returns a Logger when called, letting components bind lazily to
// a logger configured after them.
type FuncLog func() Logger

// Logger is the structured logging contract.
type Logger interface {
	io.Closer

	SetLevel(lvl loglvl.Level)
	GetLevel() loglvl.Level

	// SetFields attaches fields to every entry this logger emits.
	SetFields(fields map[string]interface{})

	// Entry starts a record at lvl with a fmt.Sprintf-formatted message.
	Entry(lvl loglvl.Level, msg string, args ...interface{}) logent.Entry

	Debug(msg string, args ...interface{})
	Info(msg string, args ...interface{})
	Warning(msg string, args ...interface{})
	Error(msg string, args ...interface{})
	Fatal(msg string, args ...interface{})

	// CheckError logs err at lvlKO (or logs msg at lvlOK when err is nil)
	// and reports whether err was non-nil.
	CheckError(lvlKO, lvlOK loglvl.Level, msg string, err error) bool
}
