package main

import (
	"fmt"
	"os"

	"github.com/chazu/deneb/bridge"
	"github.com/chazu/deneb/vm"
	"github.com/chazu/deneb/wire"
)

// handleImageCommand processes the `deneb image` subcommand.
// Usage:
//
//	deneb image app.dnb    # load an image and print its value
func handleImageCommand(args []string, verbose bool) {
	if len(args) != 1 {
		fmt.Fprintln(os.Stderr, "Usage: deneb image <file>")
		os.Exit(1)
	}

	s := vm.NewState()
	defer s.Close()
	ctx := bridge.NewContext(s)

	status, err := wire.LoadFile(ctx, args[0])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(int(status))
	}

	display, err := bridge.ToDisplay(ctx, -1)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error rendering value: %v\n", err)
		os.Exit(int(vm.StatusRuntimeError))
	}
	fmt.Println(display)

	if verbose {
		fmt.Printf("Type:       %s\n", s.TypeOf(-1))
		fmt.Printf("Live refs:  %d\n", s.LiveRefs())
		fmt.Printf("Finalizers: %d\n", s.GC(vm.GCPending, 0))
		fmt.Printf("States:     %d\n", vm.OpenStates())
	}
}
