// Package bridge is the typed marshalling and object-projection layer
// over the vm machine:
//
//   - typed pushers and peekers between Go values and stack slots, with
//     structured decode failures that carry a path
//   - an execution context binding a machine state to an error
//     conversion strategy
//   - the error conversion protocol that crosses the machine's raise
//     boundary safely in both directions
//   - reference management for values that must outlive a single call
//   - projection of arbitrary Go types into machine objects with
//     properties, methods, aliases and list semantics
//
// Every operation takes its Context explicitly. There is no ambient
// state, so several machine states can be driven side by side.
package bridge
