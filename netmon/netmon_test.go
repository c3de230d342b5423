// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package netmon

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/mobiletoly/syncmw/model"
)

func TestHTTPProberReachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	prober := HTTPProber(srv.URL, false)
	if !prober() {
		t.Error("expected reachable")
	}
}

func TestHTTPProberUnreachable(t *testing.T) {
	prober := HTTPProber("http://127.0.0.1:1", false)
	if prober() {
		t.Error("expected unreachable")
	}
}

func TestStaticMonitorReportsSetState(t *testing.T) {
	m := NewStaticMonitor(model.NetworkState{Online: true})
	if !m.Current().Online {
		t.Error("expected initial online state")
	}
	m.SetState(model.NetworkState{Online: false})
	if m.Current().Online {
		t.Error("expected offline after SetState")
	}
	select {
	case s := <-m.States():
		if s.Online {
			t.Error("expected offline state on channel")
		}
	default:
		t.Error("expected a state on the channel")
	}
}
