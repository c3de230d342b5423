// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package netmon

import (
	"sync"

	"github.com/mobiletoly/syncmw/model"
)

// StaticMonitor is a test double that reports whatever state was last set
// via SetState, with no background probing.
type StaticMonitor struct {
	mu     sync.RWMutex
	state  model.NetworkState
	states chan model.NetworkState
}

func NewStaticMonitor(initial model.NetworkState) *StaticMonitor {
	return &StaticMonitor{state: initial, states: make(chan model.NetworkState, 8)}
}

func (m *StaticMonitor) Current() model.NetworkState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

func (m *StaticMonitor) SetState(s model.NetworkState) {
	m.mu.Lock()
	m.state = s
	m.mu.Unlock()
	select {
	case m.states <- s:
	default:
	}
}

func (m *StaticMonitor) States() <-chan model.NetworkState {
	return m.states
}

func (m *StaticMonitor) Close() {}

var _ Monitor = (*StaticMonitor)(nil)
