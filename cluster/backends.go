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

package cluster

import (
	"context"
	"encoding/json"
	"io"
	"sync"

	sm "github.com/lni/dragonboat/v3/statemachine"

	liberr "github.com/Megallm/ultrabalancer-sub000/errors"
)

// BackendHealthEvent is one replicated health transition: a freshly
// joined load balancer instance replays the log and inherits the fleet's
// current healthy set without waiting a full probe cycle of its own.
type BackendHealthEvent struct {
	Addr    string `json:"addr"`
	Healthy bool   `json:"healthy"`
}

// HealthStateMachine is the in-memory dragonboat state machine holding
// the replicated backend-health view: addr -> healthy.
type HealthStateMachine struct {
	mu    sync.RWMutex
	state map[string]bool
}

// NewHealthStateMachine is the sm.CreateStateMachineFunc the cluster's
// ClusterStart expects.
func NewHealthStateMachine(_ uint64, _ uint64) sm.IStateMachine {
	return &HealthStateMachine{state: make(map[string]bool)}
}

// Update applies one BackendHealthEvent from the replicated log.
func (h *HealthStateMachine) Update(data []byte) (sm.Result, error) {
	var ev BackendHealthEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return sm.Result{}, err
	}

	h.mu.Lock()
	h.state[ev.Addr] = ev.Healthy
	h.mu.Unlock()

	return sm.Result{Value: uint64(len(data))}, nil
}

// Lookup returns the full addr->healthy map as a copy.
func (h *HealthStateMachine) Lookup(_ interface{}) (interface{}, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make(map[string]bool, len(h.state))
	for k, v := range h.state {
		out[k] = v
	}
	return out, nil
}

func (h *HealthStateMachine) SaveSnapshot(w io.Writer, _ sm.ISnapshotFileCollection, _ <-chan struct{}) error {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return json.NewEncoder(w).Encode(h.state)
}

func (h *HealthStateMachine) RecoverFromSnapshot(r io.Reader, _ []sm.SnapshotFile, _ <-chan struct{}) error {
	state := make(map[string]bool)
	if err := json.NewDecoder(r).Decode(&state); err != nil {
		return err
	}
	h.mu.Lock()
	h.state = state
	h.mu.Unlock()
	return nil
}

func (h *HealthStateMachine) Close() error { return nil }

// HealthView binds a started Cluster to the health state machine:
// PublishTransition is wired as the health checker's onChange callback,
// and Snapshot reads the replicated view.
type HealthView struct {
	c Cluster
}

// NewHealthView wraps an already-configured Cluster whose create
// function is NewHealthStateMachine.
func NewHealthView(c Cluster) *HealthView {
	return &HealthView{c: c}
}

// PublishTransition proposes one health transition to the replicated
// log. Errors are returned, never retried here: a lost transition is
// re-published on the next probe-driven flip, and the local registry
// stays authoritative for local routing either way.
func (v *HealthView) PublishTransition(ctx context.Context, addr string, healthy bool) liberr.Error {
	data, err := json.Marshal(BackendHealthEvent{Addr: addr, Healthy: healthy})
	if err != nil {
		return ErrorCommandSync.Error(err)
	}
	_, e := v.c.SyncPropose(ctx, v.c.GetNoOPSession(), data)
	return e
}

// Snapshot reads the fleet-wide addr->healthy view.
func (v *HealthView) Snapshot(ctx context.Context) (map[string]bool, liberr.Error) {
	i, e := v.c.SyncRead(ctx, nil)
	if e != nil {
		return nil, e
	}
	if m, ok := i.(map[string]bool); ok {
		return m, nil
	}
	return nil, ErrorCommandSync.Error(nil)
}
