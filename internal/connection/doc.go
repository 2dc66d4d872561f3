// Package connection implements the TCP transport for the quote session.
//
// The Client:
//   - Dials the quote server, optionally over TLS
//   - Frames inbound bytes into FIX messages with a bounded read deadline
//   - Delivers decoded messages in arrival order with a receive timestamp
//   - Serialises writes so that concurrent senders never interleave frames
package connection
