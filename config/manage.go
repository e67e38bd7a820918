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

package config

import (
	"context"
	"path/filepath"
	"strings"
	"sync"

	libmap "github.com/go-viper/mapstructure/v2"
	spfcbr "github.com/spf13/cobra"
	spfvpr "github.com/spf13/viper"

	tlsca "github.com/Megallm/ultrabalancer-sub000/certificates/ca"
	tlscrt "github.com/Megallm/ultrabalancer-sub000/certificates/certs"
	tlscpr "github.com/Megallm/ultrabalancer-sub000/certificates/cipher"
	tlscrv "github.com/Megallm/ultrabalancer-sub000/certificates/curves"
	libctx "github.com/Megallm/ultrabalancer-sub000/context"
	libdur "github.com/Megallm/ultrabalancer-sub000/duration"
	liberr "github.com/Megallm/ultrabalancer-sub000/errors"
	liblog "github.com/Megallm/ultrabalancer-sub000/logger"
)

// Manager owns the viper instance and the registered components,
// starting them in dependency order and stopping them in reverse.
type Manager struct {
	mu    sync.Mutex
	ctx   context.Context
	vpr   *spfvpr.Viper
	log   liblog.FuncLog
	keys  []string // registration order, the tiebreaker inside a dependency level
	cpt   libctx.Config[string]
	hooks []libmap.DecodeHookFunc
}

func NewManager(ctx context.Context, log liblog.FuncLog) *Manager {
	if ctx == nil {
		ctx = context.Background()
	}
	m := &Manager{
		ctx: ctx,
		vpr: spfvpr.New(),
		log: log,
		cpt: libctx.New[string](ctx),
	}
	m.HookRegister(libdur.ViperDecoderHook())
	m.HookRegister(tlsca.ViperDecoderHook())
	m.HookRegister(tlscrt.ViperDecoderHook())
	m.HookRegister(tlscpr.ViperDecoderHook())
	m.HookRegister(tlscrv.ViperDecoderHook())
	return m
}

// Viper exposes the manager's viper instance for flag binding.
func (m *Manager) Viper() *spfvpr.Viper { return m.vpr }

// HookRegister adds a decode hook applied by Unmarshal. NewManager
// registers the duration hook (so "2s"/"500ms" strings land in Duration
// fields) and the TLS CA, certificate, cipher and curve hooks by default.
func (m *Manager) HookRegister(hook libmap.DecodeHookFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hooks = append(m.hooks, hook)
}

// Unmarshal decodes the loaded settings into out through the registered
// decode hooks.
func (m *Manager) Unmarshal(out interface{}) liberr.Error {
	m.mu.Lock()
	hooks := append([]libmap.DecodeHookFunc(nil), m.hooks...)
	m.mu.Unlock()

	dec, err := libmap.NewDecoder(&libmap.DecoderConfig{
		DecodeHook:       libmap.ComposeDecodeHookFunc(hooks...),
		Result:           out,
		TagName:          "mapstructure",
		WeaklyTypedInput: true,
	})
	if err != nil {
		return liberr.ErrCodeConfigInvalid.Error(err)
	}
	if err := dec.Decode(m.vpr.AllSettings()); err != nil {
		return liberr.ErrCodeConfigInvalid.Error(err)
	}
	return nil
}

// Register binds a component under key. Registering the same key twice
// replaces the previous component (last wins, matching a config reload
// that swaps an implementation).
func (m *Manager) Register(key string, c Component) {
	m.mu.Lock()
	if _, ok := m.cpt.Load(key); !ok {
		m.keys = append(m.keys, key)
	}
	m.cpt.Store(key, c)
	m.mu.Unlock()

	c.Init(key, m.ctx, m.get, func() *spfvpr.Viper { return m.vpr }, m.log)
}

func (m *Manager) get(key string) Component {
	if v, ok := m.cpt.Load(key); ok {
		if c, ok := v.(Component); ok {
			return c
		}
	}
	return nil
}

// Get resolves a registered component by key, or nil.
func (m *Manager) Get(key string) Component { return m.get(key) }

// RegisterFlags attaches every component's cobra flags to cmd.
func (m *Manager) RegisterFlags(cmd *spfcbr.Command) error {
	m.mu.Lock()
	keys := append([]string(nil), m.keys...)
	m.mu.Unlock()
	for _, k := range keys {
		if c := m.get(k); c != nil {
			if err := c.RegisterFlag(cmd); err != nil {
				return err
			}
		}
	}
	return nil
}

// SetConfigFile points the manager at a YAML or TOML configuration file;
// the type is inferred from the extension (".cfg" is read as TOML, the
// flat key=value preset the classic dialect uses).
func (m *Manager) SetConfigFile(path string) liberr.Error {
	if path == "" {
		return nil
	}
	m.vpr.SetConfigFile(path)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		m.vpr.SetConfigType("yaml")
	case ".toml", ".cfg":
		m.vpr.SetConfigType("toml")
	case ".json":
		m.vpr.SetConfigType("json")
	}
	if err := m.vpr.ReadInConfig(); err != nil {
		return liberr.ErrCodeConfigInvalid.Error(err)
	}
	return nil
}

// Start brings every component up in dependency order.
func (m *Manager) Start() liberr.Error {
	order, err := m.order()
	if err != nil {
		return err
	}
	for _, k := range order {
		c := m.get(k)
		if c.IsStarted() {
			continue
		}
		if e := c.Start(); e != nil {
			return e
		}
	}
	return nil
}

// Reload re-reads the config file and reloads every started component in
// dependency order.
func (m *Manager) Reload() liberr.Error {
	if m.vpr.ConfigFileUsed() != "" {
		if err := m.vpr.ReadInConfig(); err != nil {
			return liberr.ErrCodeConfigInvalid.Error(err)
		}
	}
	order, err := m.order()
	if err != nil {
		return err
	}
	for _, k := range order {
		c := m.get(k)
		if !c.IsStarted() {
			continue
		}
		if e := c.Reload(); e != nil {
			return e
		}
	}
	return nil
}

// Stop tears components down in reverse start order.
func (m *Manager) Stop() {
	order, err := m.order()
	if err != nil {
		m.mu.Lock()
		order = append([]string(nil), m.keys...)
		m.mu.Unlock()
	}
	for i := len(order) - 1; i >= 0; i-- {
		if c := m.get(order[i]); c != nil && c.IsStarted() {
			c.Stop()
		}
	}
}

// order resolves a start sequence honouring every component's declared
// dependencies, registration order breaking ties. A dependency cycle or
// an unknown dependency key is a configuration error.
func (m *Manager) order() ([]string, liberr.Error) {
	m.mu.Lock()
	keys := append([]string(nil), m.keys...)
	m.mu.Unlock()
	cpt := make(map[string]Component, len(keys))
	m.cpt.Walk(func(k string, v interface{}) bool {
		if c, ok := v.(Component); ok {
			cpt[k] = c
		}
		return true
	})

	var (
		out   []string
		done  = make(map[string]bool, len(keys))
		visit func(k string, path map[string]bool) liberr.Error
	)
	visit = func(k string, path map[string]bool) liberr.Error {
		if done[k] {
			return nil
		}
		if path[k] {
			return liberr.ErrCodeConfigInvalid.Error(nil)
		}
		c, ok := cpt[k]
		if !ok {
			return liberr.ErrCodeConfigInvalid.Error(nil)
		}
		path[k] = true
		for _, d := range c.Dependencies() {
			if e := visit(d, path); e != nil {
				return e
			}
		}
		delete(path, k)
		done[k] = true
		out = append(out, k)
		return nil
	}

	for _, k := range keys {
		if e := visit(k, map[string]bool{}); e != nil {
			return nil, e
		}
	}
	return out, nil
}
