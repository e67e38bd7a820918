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

// Package atomic provides small generic wrappers over sync/atomic.Value and
// sync.Map, so callers get type-safe Load/Store without repeating the
// interface{} assertion dance at every call site. The typed counters and
// spinlock used by the dataplane hot path live in core/atomicx; this
// package only carries the boxed-value shapes the generic stores
// (cache, context, console) rely on.
package atomic

import "sync/atomic"

// Value is a type-safe wrapper around sync/atomic.Value. The zero Load
// before any Store returns T's zero value instead of a nil interface.
type Value[T any] interface {
	Load() T
	Store(v T)
}

// NewValue returns an empty Value for T.
func NewValue[T any]() Value[T] {
	return &value[T]{}
}

type value[T any] struct {
	v atomic.Value
}

// box keeps a consistent dynamic type inside atomic.Value even when T is
// itself an interface type, which sync/atomic.Value would otherwise
// reject on a type change.
type box[T any] struct {
	v T
}

func (o *value[T]) Load() T {
	if i := o.v.Load(); i == nil {
		var zero T
		return zero
	} else if b, ok := i.(box[T]); ok {
		return b.v
	} else {
		var zero T
		return zero
	}
}

func (o *value[T]) Store(v T) {
	o.v.Store(box[T]{v: v})
}
