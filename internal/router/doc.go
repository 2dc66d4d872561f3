// Package router implements the Event Router.
//
// The pipeline and the staleness monitor emit events into an unbounded
// queue; a single goroutine drains it in order and hands every event to each
// enabled publisher.
package router
