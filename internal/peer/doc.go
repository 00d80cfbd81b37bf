// Package peer is the client side of the relay: dialing and joining with
// backoff, and the tick-driven runtime that owns one replication.State per
// joined session.
package peer
