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

package atomic

import "sync"

// Map is a sync.Map with typed keys and untyped (any) values, the shape
// the generic context store uses.
type Map[K comparable] interface {
	Load(key K) (any, bool)
	Store(key K, value any)
	Delete(key K)
	LoadOrStore(key K, value any) (any, bool)
	LoadAndDelete(key K) (any, bool)
	Range(fn func(key K, value any) bool)
}

// NewMapAny returns an empty Map keyed by K.
func NewMapAny[K comparable]() Map[K] {
	return &mapAny[K]{}
}

type mapAny[K comparable] struct {
	m sync.Map
}

func (o *mapAny[K]) Load(key K) (any, bool)  { return o.m.Load(key) }
func (o *mapAny[K]) Store(key K, value any)  { o.m.Store(key, value) }
func (o *mapAny[K]) Delete(key K)            { o.m.Delete(key) }

func (o *mapAny[K]) LoadOrStore(key K, value any) (any, bool) {
	return o.m.LoadOrStore(key, value)
}

func (o *mapAny[K]) LoadAndDelete(key K) (any, bool) {
	return o.m.LoadAndDelete(key)
}

func (o *mapAny[K]) Range(fn func(key K, value any) bool) {
	o.m.Range(func(k, v any) bool {
		kk, ok := k.(K)
		if !ok {
			return true
		}
		return fn(kk, v)
	})
}

// MapTyped is a sync.Map with typed keys and typed values.
type MapTyped[K comparable, V any] interface {
	Load(key K) (V, bool)
	Store(key K, value V)
	Delete(key K)
	LoadOrStore(key K, value V) (V, bool)
	LoadAndDelete(key K) (V, bool)
	Range(fn func(key K, value V) bool)
}

// NewMapTyped returns an empty MapTyped for K/V.
func NewMapTyped[K comparable, V any]() MapTyped[K, V] {
	return &mapTyped[K, V]{}
}

type mapTyped[K comparable, V any] struct {
	m sync.Map
}

func (o *mapTyped[K, V]) Load(key K) (V, bool) {
	if i, ok := o.m.Load(key); ok {
		if v, kk := i.(V); kk {
			return v, true
		}
	}
	var zero V
	return zero, false
}

func (o *mapTyped[K, V]) Store(key K, value V) { o.m.Store(key, value) }
func (o *mapTyped[K, V]) Delete(key K)         { o.m.Delete(key) }

func (o *mapTyped[K, V]) LoadOrStore(key K, value V) (V, bool) {
	i, loaded := o.m.LoadOrStore(key, value)
	if v, ok := i.(V); ok {
		return v, loaded
	}
	var zero V
	return zero, loaded
}

func (o *mapTyped[K, V]) LoadAndDelete(key K) (V, bool) {
	if i, ok := o.m.LoadAndDelete(key); ok {
		if v, kk := i.(V); kk {
			return v, true
		}
	}
	var zero V
	return zero, false
}

func (o *mapTyped[K, V]) Range(fn func(key K, value V) bool) {
	o.m.Range(func(k, v any) bool {
		kk, ok1 := k.(K)
		vv, ok2 := v.(V)
		if !ok1 || !ok2 {
			return true
		}
		return fn(kk, vv)
	})
}
