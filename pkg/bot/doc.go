// Copyright 2024-2026 Aiku AI
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

// Package bot implements the resilient streaming client and event
// dispatch core of the Mattermost AI bot.
//
// # Core Types
//
// [Client] owns the single authenticated connection to the Mattermost
// server: REST calls for posting and file transfer, plus the persistent
// WebSocket with its reconnect state machine (disconnected, connecting,
// connected, reconnecting). Transport drops are recovered with a fixed
// delay and unbounded retries; only the initial authentication failure
// is terminal.
//
// [Service] is the single listener registered on the Client. It decodes
// each posted event, filters the bot's own posts, and classifies the
// text as a slash-command or free-form chat.
//
// [Dispatcher] parses command verbs and resolves them against built-in
// commands and the plugin registry.
//
// # Ordering
//
// All event handling runs sequentially on the client's single receive
// goroutine: events are dispatched in the exact order received, and a
// slow handler blocks delivery of the next event. Conversation state in
// the chat plugin relies on this ordering and is therefore lock-free.
package bot
