// Couchrelay - Real-time console/controller relay hub
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/couchrelay

// Package services adapts long-running components to suture.Service.
//
//   - HTTPServerService: the chi router behind *http.Server (api layer)
//   - RelayService: registry sweep plus connection hub, with ordered shutdown
//     (relay layer)
//
// The events forwarder and embedded NATS server implement suture.Service
// themselves and are added to the messaging layer directly.
package services
