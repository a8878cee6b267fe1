// Package ccd implements the client-side controller for INDI cameras.
//
// A Device mirrors one camera driver. It never polls: every capability flag
// and live value is derived from property events delivered by the INDI
// session, and every command mutates a property snapshot and sends it back.
// The outcome of a command arrives later as an update of the same property
// carrying a Busy, Ok or Alert state.
//
// # Architecture
//
//	indi.Client ──events──▶ Device ──▶ Chip (primary, guide)
//	     ▲                    │
//	     └──── SendNumber ────┤
//	                          ├──▶ blob dispatcher ──▶ stream display
//	                          │          │
//	                          │          └──▶ file writer (single slot) ──▶ disk
//	                          │                     │
//	                          └──▶ Notifier ◀───────┘
//
// # Thread Safety
//
// A Device is not safe for concurrent use. All methods, including the
// event callbacks, must run on the session's dispatch goroutine (see
// indi.Client.Exec). The only other goroutine is the file writer, which owns
// the shared write buffer while a write is in flight and reports completion
// through the Notifier. Notifier implementations must therefore be safe for
// concurrent use.
//
// # Capture Files
//
// Batch captures are written as
//
//	<dir>/<prefix>[_<yyyy-MM-ddThh-mm-ss>]_<NNN><ext>
//
// with mode 0644. FITS payloads are written off the dispatch goroutine; a
// new write waits for the previous one to finish before reusing the buffer,
// so writes for one device are never reordered.
package ccd
