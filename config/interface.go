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

// Package config drives the viper/cobra-backed component lifecycle: each
// subsystem of the load balancer (proxy dataplane, health checker, DB
// proxy, stats export, cluster) registers as a Component under a
// config key, and the Manager starts, reloads and stops them in
// dependency order against a single configuration file (YAML or TOML)
// plus cobra flags.
package config

import (
	"context"

	spfcbr "github.com/spf13/cobra"
	spfvpr "github.com/spf13/viper"

	liberr "github.com/Megallm/ultrabalancer-sub000/errors"
	liblog "github.com/Megallm/ultrabalancer-sub000/logger"
)

// FuncViper returns the manager's viper instance, letting a component
// read its own config sub-tree lazily at Start/Reload time.
type FuncViper func() *spfvpr.Viper

// FuncComponentGet resolves a sibling component by key, for dependency
// lookups at Start time.
type FuncComponentGet func(key string) Component

// Component is one managed subsystem. Init is called once at
// registration; Start/Reload/Stop follow the configuration lifecycle.
type Component interface {
	// Type names the component kind (e.g. "proxy", "health").
	Type() string

	// Init binds the component to its config key and the manager's
	// shared handles. Called exactly once, before any Start.
	Init(key string, ctx context.Context, get FuncComponentGet, vpr FuncViper, log liblog.FuncLog)

	// RegisterFlag lets the component attach cobra flags overriding its
	// config-file keys.
	RegisterFlag(cmd *spfcbr.Command) error

	// Start reads the component's config sub-tree and brings it up.
	Start() liberr.Error

	// Reload applies a changed configuration to a started component.
	Reload() liberr.Error

	// Stop tears the component down. Must be idempotent.
	Stop()

	IsStarted() bool

	// Dependencies lists the config keys that must be started first.
	Dependencies() []string
}
