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

package kvdriver

import (
	libkvt "github.com/Megallm/ultrabalancer-sub000/database/kvtypes"
)

// KVDriver re-exports the generic driver contract so callers never need to
// import database/kvtypes directly just to hold a driver reference.
type KVDriver[K comparable, M any] = libkvt.KVDriver[K, M]

type FuncNew[K comparable, M any] func() libkvt.KVDriver[K, M]
type FuncGet[K comparable, M any] func(key K) (M, error)
type FuncSet[K comparable, M any] func(key K, model M) error
type FuncDel[K comparable] func(key K) error
type FuncList[K comparable, M any] func() ([]K, error)
type FuncSearch[K comparable] func(pattern K) ([]K, error)
type FctWalk[K comparable, M any] = libkvt.FctWalk[K, M]
type FuncWalk[K comparable, M any] func(fct FctWalk[K, M]) error

// Driver is a function-table implementation of KVDriver: every storage
// behaviour is supplied as a closure, so a single generic type backs
// in-memory maps (kvmap), sticky-table views and anything else that needs
// the Get/Set/Del/List/Search/Walk shape without writing a bespoke type.
type Driver[K comparable, M any] struct {
	FctNew    FuncNew[K, M]
	FctGet    FuncGet[K, M]
	FctSet    FuncSet[K, M]
	FctDel    FuncDel[K]
	FctList   FuncList[K, M]
	FctSearch FuncSearch[K]
	FctWalk   FuncWalk[K, M] // optional, falls back to List+Get
}

func New[K comparable, M any](fn FuncNew[K, M], fg FuncGet[K, M], fs FuncSet[K, M], fd FuncDel[K], fl FuncList[K, M], fw FuncWalk[K, M]) libkvt.KVDriver[K, M] {
	return &Driver[K, M]{
		FctNew:  fn,
		FctGet:  fg,
		FctSet:  fs,
		FctDel:  fd,
		FctList: fl,
		FctWalk: fw,
	}
}

// NewWithSearch is New plus an explicit Search implementation; New falls
// back to a List+filter scan when no search function is supplied.
func NewWithSearch[K comparable, M any](fn FuncNew[K, M], fg FuncGet[K, M], fs FuncSet[K, M], fd FuncDel[K], fl FuncList[K, M], fw FuncWalk[K, M], fse FuncSearch[K]) libkvt.KVDriver[K, M] {
	d := New(fn, fg, fs, fd, fl, fw).(*Driver[K, M])
	d.FctSearch = fse
	return d
}
