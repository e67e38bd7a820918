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

package logger

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/sirupsen/logrus"

	logent "github.com/Megallm/ultrabalancer-sub000/logger/entry"
	loglvl "github.com/Megallm/ultrabalancer-sub000/logger/level"
)

// Options configures a Logger at construction.
type Options struct {
	// Level names the minimum severity ("debug", "info", "warning",
	// "error", "none"). Empty means info.
	Level string `mapstructure:"level" json:"level" yaml:"level" toml:"level"`

	// FormatJSON switches the output from the text formatter to JSON.
	FormatJSON bool `mapstructure:"format_json" json:"format_json" yaml:"format_json" toml:"format_json"`

	// DisableStdout suppresses the default stderr/stdout sink.
	DisableStdout bool `mapstructure:"disable_stdout" json:"disable_stdout" yaml:"disable_stdout" toml:"disable_stdout"`

	// FilePath appends log output to the named file when set.
	FilePath string `mapstructure:"file_path" json:"file_path" yaml:"file_path" toml:"file_path"`

	// EnableTimestamp adds the full timestamp to the text formatter.
	EnableTimestamp bool `mapstructure:"enable_timestamp" json:"enable_timestamp" yaml:"enable_timestamp" toml:"enable_timestamp"`
}

// New builds a Logger from opts. The first logger built also becomes the
// default sink behind level.Logf.
func New(opts Options) (Logger, error) {
	log := logrus.New()
	log.SetLevel(loglvl.Parse(opts.Level).Logrus())

	if opts.FormatJSON {
		log.SetFormatter(&logrus.JSONFormatter{})
	} else {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: opts.EnableTimestamp})
	}

	var (
		sinks  []io.Writer
		closer io.Closer
	)
	if !opts.DisableStdout {
		sinks = append(sinks, os.Stderr)
	}
	if opts.FilePath != "" {
		f, err := os.OpenFile(opts.FilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, f)
		closer = f
	}
	switch len(sinks) {
	case 0:
		log.SetOutput(io.Discard)
	case 1:
		log.SetOutput(sinks[0])
	default:
		log.SetOutput(io.MultiWriter(sinks...))
	}

	l := &model{log: log, lvl: loglvl.Parse(opts.Level), closer: closer}
	registerDefault(l)
	return l, nil
}

var defaultOnce sync.Once

func registerDefault(l *model) {
	defaultOnce.Do(func() {
		loglvl.SetLogf(func(lvl loglvl.Level, format string, args ...interface{}) {
			l.Entry(lvl, format, args...).Log()
		})
	})
}

type model struct {
	mu     sync.Mutex
	log    *logrus.Logger
	lvl    loglvl.Level
	fields map[string]interface{}
	closer io.Closer
}

func (l *model) SetLevel(lvl loglvl.Level) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lvl = lvl
	l.log.SetLevel(lvl.Logrus())
}

func (l *model) GetLevel() loglvl.Level {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lvl
}

func (l *model) SetFields(fields map[string]interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.fields = fields
}

func (l *model) Entry(lvl loglvl.Level, msg string, args ...interface{}) logent.Entry {
	if len(args) > 0 {
		msg = fmt.Sprintf(msg, args...)
	}
	e := logent.New(l.log, lvl, msg)
	l.mu.Lock()
	for k, v := range l.fields {
		e.FieldAdd(k, v)
	}
	l.mu.Unlock()
	return e
}

func (l *model) Debug(msg string, args ...interface{}) {
	l.Entry(loglvl.DebugLevel, msg, args...).Log()
}

func (l *model) Info(msg string, args ...interface{}) {
	l.Entry(loglvl.InfoLevel, msg, args...).Log()
}

func (l *model) Warning(msg string, args ...interface{}) {
	l.Entry(loglvl.WarnLevel, msg, args...).Log()
}

func (l *model) Error(msg string, args ...interface{}) {
	l.Entry(loglvl.ErrorLevel, msg, args...).Log()
}

func (l *model) Fatal(msg string, args ...interface{}) {
	l.Entry(loglvl.FatalLevel, msg, args...).Log()
}

func (l *model) CheckError(lvlKO, lvlOK loglvl.Level, msg string, err error) bool {
	if err != nil {
		l.Entry(lvlKO, msg).ErrorAdd(true, err).Log()
		return true
	}
	if lvlOK != loglvl.NilLevel {
		l.Entry(lvlOK, msg).Log()
	}
	return false
}

func (l *model) Close() error {
	if l.closer != nil {
		return l.closer.Close()
	}
	return nil
}
