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

// Package entry carries one log record being assembled: a level, a
// message, attached fields and collected errors, flushed with Log.
package entry

import (
	"github.com/sirupsen/logrus"

	loglvl "github.com/Megallm/ultrabalancer-sub000/logger/level"
)

// Entry is a single in-flight log record. FieldAdd and ErrorAdd return
// the Entry so call sites can chain before the final Log.
type Entry interface {
	FieldAdd(key string, value interface{}) Entry
	ErrorAdd(cleanNil bool, err ...error) Entry
	Log()
}

// New builds an Entry bound to the given logrus logger. A nil logger
// yields an Entry whose Log is a no-op.
func New(log *logrus.Logger, lvl loglvl.Level, msg string) Entry {
	return &model{
		log:    log,
		lvl:    lvl,
		msg:    msg,
		fields: make(logrus.Fields),
	}
}

type model struct {
	log    *logrus.Logger
	lvl    loglvl.Level
	msg    string
	fields logrus.Fields
	errs   []error
}

func (e *model) FieldAdd(key string, value interface{}) Entry {
	e.fields[key] = value
	return e
}

func (e *model) ErrorAdd(cleanNil bool, err ...error) Entry {
	for _, r := range err {
		if cleanNil && r == nil {
			continue
		}
		e.errs = append(e.errs, r)
	}
	return e
}

func (e *model) Log() {
	if e.log == nil || e.lvl == loglvl.NilLevel {
		return
	}

	ent := e.log.WithFields(e.fields)
	if len(e.errs) == 1 {
		ent = ent.WithError(e.errs[0])
	} else if len(e.errs) > 1 {
		ent = ent.WithField("errors", e.errs)
	}

	switch e.lvl {
	case loglvl.PanicLevel:
		ent.Panic(e.msg)
	case loglvl.FatalLevel:
		ent.Fatal(e.msg)
	case loglvl.ErrorLevel:
		ent.Error(e.msg)
	case loglvl.WarnLevel:
		ent.Warn(e.msg)
	case loglvl.InfoLevel:
		ent.Info(e.msg)
	default:
		ent.Debug(e.msg)
	}
}
