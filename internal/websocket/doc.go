// Couchrelay - Real-time console/controller relay hub
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/couchrelay

/*
Package websocket is the connection handler between gorilla/websocket
connections and relay rooms.

Key Components:

  - Client: one connection with a bounded outbound queue, a read pump and a
    write pump. It implements relay.Sender.
  - Hub: the process-wide set of live clients, closed together on shutdown.

Each client has two goroutines:
  - readPump: reads frames, polices them (rate limit, size, decode) and
    hands them to the room. It reports the disconnect to the room once.
  - writePump: drains the queue in FIFO order, pings on an interval and
    writes the close frame after the queue is flushed.

Connection Lifecycle:

 1. The HTTP handler authenticates and upgrades the request.
 2. NewClient and Start register the client and start the write pump.
 3. relay.Room.Admit enqueues the welcome and any replay.
 4. Attach starts the read pump.
 5. The peer leaves, the heartbeat lapses, or the room closes the client.
 6. The read pump calls Session.Detach (explicit only for close code 1000)
    and the write pump unregisters the client.

Inbound policing:

  - frames above Config.MaxFrameBytes close the connection with 1009;
  - frames over the token bucket are answered with rate_limited;
  - malformed frames are answered with decode_error;
  - more than Config.StrikeBudget consecutive failures close the connection
    with 1013 (rate) or 1008 (decode).

Thread Safety:

Enqueue and Close may be called from any goroutine and never block. The room
calls them while holding its own lock.
*/
package websocket
