// Package indi implements the client side of the INDI instrument protocol.
//
// INDI devices publish their controls as named property vectors. A client
// learns about a device by receiving def*Vector messages, follows live state
// through set*Vector messages and changes the device by sending new*Vector
// messages back to the server. Nothing is polled: every value this package
// holds arrived as an event.
//
// # Architecture
//
//	┌──────────────┐  XML/TCP   ┌──────────────┐  Handler   ┌──────────────┐
//	│  indiserver  │◄──────────►│ indi.Client  │───────────►│  ccd.Device  │
//	│  + drivers   │            │ (this pkg)   │◄───────────│  controllers │
//	└──────────────┘            └──────────────┘   Exec     └──────────────┘
//
// The Client owns a property store per device (see Device). The store is the
// property directory consumed by the camera controllers: they read vectors
// from it, mutate the local copy and send it back.
//
// # Thread Safety
//
// A Client runs exactly one dispatch goroutine. Protocol messages are applied
// to the store and handed to the Handler on that goroutine, and commands
// submitted through Exec run there too, so handlers and commands never race
// on a property vector. Vectors returned by Device must not be retained or
// touched outside the dispatch goroutine.
//
// # BLOB Transfer
//
// Binary payloads arrive base64 encoded inside oneBLOB elements. Payloads whose
// format carries a ".z" suffix are zlib-compressed by the driver; the client
// inflates them and strips the suffix before dispatch.
//
// # References
//
//   - INDI protocol: https://www.indilib.org/develop/developer-manual/
package indi
