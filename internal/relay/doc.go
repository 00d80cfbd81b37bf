// Package relay implements the authoritative fan-out hub.
//
// Each joined peer gets one reader goroutine and one writer goroutine. The
// reader decodes inbound frames and hands each pose message to the hub,
// which enqueues it on every other peer's bounded outbound queue. A full
// queue or a gone connection drops that single delivery. The relay keeps no
// pose state; it only tracks which actor each connection is bound to so it
// can announce actor.leave when the connection ends.
package relay
