// Package vm implements the Deneb stack machine.
//
// This package contains:
//   - The operand stack and its indexing rules (1-based from the bottom,
//     negative offsets from the top)
//   - Tables with metatables, userdata, and host (Go) functions
//   - Protected calls, the raise protocol, and status reporting
//   - The registry and long-lived references
//   - Lightweight threads with yield/resume
//
// The machine executes no language of its own. Every callable is a Go
// function; embedders drive the machine exclusively through the stack.
package vm
