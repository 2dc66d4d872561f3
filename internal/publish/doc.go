// Package publish implements the event outputs fed by the router.
//
// Every output implements router.Publisher and receives events in the order
// the pipeline emitted them:
//   - Stdout: one JSON object per line, always on by default
//   - Hub: websocket broadcast server (gorilla/websocket)
//   - Redis: PUBLISH to a channel (go-redis)
//   - Kafka: messages keyed by ticker (kafka-go)
package publish
