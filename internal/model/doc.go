// Package model defines the data types shared between the session, the tick
// pipeline and the publishers.
//
// Conventions:
//   - Prices and sizes: shopspring decimal, exactly as received on the wire
//   - Events: JSON objects with ticker/bid/ask/midprice/spread/err; price
//     fields are null on any error event
//   - Timestamps: time.Time in UTC
package model
