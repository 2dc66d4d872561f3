// Package fix implements the tag=value wire codec used by the quote session.
//
// Messages are kept as an ordered list of fields so that repeating groups
// survive decoding intact. The parser frames messages out of an arbitrary
// byte stream using BodyLength (9) and verifies CheckSum (10).
package fix
