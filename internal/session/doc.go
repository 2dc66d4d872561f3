// Package session implements the quote session state machine.
//
// A Session owns the outbound sequence and request-id counters and the
// subscription map. It is driven by inbound messages from the receive
// activity and by explicit calls from the control thread:
//
//	Disconnected -> LoggingOn -> LoggedOn -> LoggingOut -> Closed
//
// Outbound sequence numbers are allocated, encoded and written under a single
// lock so that wire order always matches sequence order. Resend and gap-fill
// are not implemented; inbound gaps are only logged and counted.
package session
