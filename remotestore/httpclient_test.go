// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package remotestore

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/mobiletoly/syncmw/model"
)

func statusResp(code int) *http.Response {
	rec := httptest.NewRecorder()
	rec.WriteHeader(code)
	rec.Body.WriteString("boom")
	return rec.Result()
}

func TestStatusToErrorMapping(t *testing.T) {
	cases := []struct {
		status int
		kind   model.ErrorKind
	}{
		{http.StatusUnauthorized, model.ErrAuth},
		{http.StatusInternalServerError, model.ErrNetwork},
		{http.StatusBadRequest, model.ErrNetwork},
		{http.StatusOK, ""},
	}
	for _, c := range cases {
		err := statusToError(statusResp(c.status))
		if c.kind == "" {
			if err != nil {
				t.Errorf("status %d: expected nil error, got %v", c.status, err)
			}
			continue
		}
		syncErr, ok := err.(*model.Error)
		if !ok {
			t.Fatalf("status %d: expected *model.Error, got %T", c.status, err)
		}
		if syncErr.Kind != c.kind {
			t.Errorf("status %d: expected kind %s, got %s", c.status, c.kind, syncErr.Kind)
		}
	}
}

func TestStatusToErrorRetryability(t *testing.T) {
	err5xx := statusToError(statusResp(http.StatusServiceUnavailable)).(*model.Error)
	if !err5xx.IsRetryable() {
		t.Error("5xx should be retryable")
	}
	err4xx := statusToError(statusResp(http.StatusForbidden)).(*model.Error)
	if err4xx.IsRetryable() {
		t.Error("non-401 4xx should not be retryable")
	}
}
