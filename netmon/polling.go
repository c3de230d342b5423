// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package netmon

import (
	"crypto/tls"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/mobiletoly/syncmw/model"
)

// Prober performs one active connectivity check and reports whether the
// remote endpoint is reachable, generalizing
// umh-core/pkg/communicator/api.CheckIfAPIIsReachable into a pluggable
// function so PollingMonitor is not tied to one specific endpoint shape.
type Prober func() bool

// HTTPProber builds a Prober against url, grounded directly on
// CheckIfAPIIsReachable: a GET request through a client with TLS
// verification optionally disabled, reachable iff the response status is
// 200.
func HTTPProber(url string, insecureTLS bool) Prober {
	tr := http.DefaultTransport.(*http.Transport).Clone()
	tr.TLSClientConfig = &tls.Config{InsecureSkipVerify: insecureTLS}
	client := &http.Client{Transport: tr, Timeout: 5 * time.Second}

	return func() bool {
		resp, err := client.Get(url)
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}
}

// PollingMonitor probes connectivity on a fixed interval and publishes
// NetworkState transitions.
type PollingMonitor struct {
	prober   Prober
	interval time.Duration
	logger   *slog.Logger

	mu      sync.RWMutex
	current model.NetworkState

	states chan model.NetworkState
	stop   chan struct{}
	once   sync.Once
}

// NewPollingMonitor starts probing immediately in the background at the
// given interval. Close stops the probe loop.
func NewPollingMonitor(prober Prober, interval time.Duration, logger *slog.Logger) *PollingMonitor {
	if logger == nil {
		logger = slog.Default()
	}
	if interval <= 0 {
		interval = 15 * time.Second
	}
	m := &PollingMonitor{
		prober:   prober,
		interval: interval,
		logger:   logger,
		states:   make(chan model.NetworkState, 1),
		stop:     make(chan struct{}),
	}
	m.current = m.probeOnce()
	go m.loop()
	return m
}

func (m *PollingMonitor) probeOnce() model.NetworkState {
	online := m.prober()
	state := model.NetworkState{Online: online, Link: model.LinkUnknown, Effective: model.Effective4G}
	if !online {
		state.Effective = model.EffectiveSlow2G
	}
	return state
}

func (m *PollingMonitor) loop() {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
			next := m.probeOnce()
			m.mu.Lock()
			prev := m.current
			m.current = next
			m.mu.Unlock()
			if prev.Online != next.Online {
				m.logger.Info("network state changed", "online", next.Online)
				select {
				case m.states <- next:
				default:
				}
			}
		}
	}
}

func (m *PollingMonitor) Current() model.NetworkState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

func (m *PollingMonitor) States() <-chan model.NetworkState {
	return m.states
}

func (m *PollingMonitor) Close() {
	m.once.Do(func() { close(m.stop) })
}

var _ Monitor = (*PollingMonitor)(nil)
