// Package sessionsync propagates sign-out signals to every open context of a
// client.
//
// A [Hub] is a per-client publish/subscribe channel with a single writer (the
// engine's sign-out path) and any number of readers (browser tabs attached
// over a websocket). Delivery is non-blocking and at most once per
// subscriber; receivers treat every event as a prompt to re-check their
// session, so duplicates and drops are harmless.
//
// [RedisRelay] extends a Hub across server instances over Redis pub/sub.
package sessionsync
