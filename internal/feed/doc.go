// Package feed wires the transport, session, market data pipeline and event
// outputs into one quote client.
//
// Client.Run drives a single session from connect to shutdown:
//
//	connect -> receive -> logon -> heartbeat -> subscribe -> staleness
//
// Activities run under an errgroup. Shutdown stops the staleness monitor,
// logs out when still logged on, closes the session and transport, then
// drains the event router and tick writer. A failed logon is terminal; there
// is no reconnect.
package feed
