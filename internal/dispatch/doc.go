// Package dispatch implements the Event Dispatcher component.
//
// The dispatcher:
//   - Holds the set of subscribers registered by consumers
//   - Delivers each decoded server event to every subscriber synchronously
//   - Isolates subscriber failures: an error or panic is logged and the
//     remaining subscribers still run
//
// Events carry their raw JSON payload plus a typed Kind so consumers can
// decode at the boundary with Event.Decode or Event.Typed.
package dispatch
