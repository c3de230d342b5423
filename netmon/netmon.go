// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

// Package netmon implements the Network Monitor contract (C1): an
// online/offline + link-type stream, plus active connectivity probes.
package netmon

import "github.com/mobiletoly/syncmw/model"

// Monitor publishes network state changes and answers point-in-time
// queries. The Sync Engine reads Current() before each auto-sync tick and
// may subscribe to States() for push notifications.
type Monitor interface {
	Current() model.NetworkState
	States() <-chan model.NetworkState
	Close()
}
