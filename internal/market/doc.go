// Package market implements the Instrument Registry.
//
// The registry tracks every configured instrument through its subscription
// lifecycle (pending, active, rejected), counts snapshots and ticks, and
// publishes status changes. It receives outcomes from the tick pipeline.
package market
