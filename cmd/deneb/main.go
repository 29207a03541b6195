// Deneb CLI - binding generation and image inspection for embedding hosts
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"
)

func main() {
	verbose := flag.Bool("v", false, "Verbose output")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: deneb [options] <command> [args...]\n\n")
		fmt.Fprintf(os.Stderr, "Commands:\n")
		fmt.Fprintf(os.Stderr, "  wrap [packages...]  Generate bindings for Go packages\n")
		fmt.Fprintf(os.Stderr, "  image <file>        Load an image file and print its value\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  deneb wrap                   # all packages from deneb.toml\n")
		fmt.Fprintf(os.Stderr, "  deneb wrap net/url           # single package, ad-hoc\n")
		fmt.Fprintf(os.Stderr, "  deneb wrap -o ./bindings     # custom output dir\n")
		fmt.Fprintf(os.Stderr, "  deneb image app.dnb          # inspect a saved image\n")
	}
	flag.Parse()

	verbosity := 0
	if *verbose {
		verbosity = 2
	}
	commonlog.Configure(verbosity, nil)

	args := flag.Args()
	if len(args) == 0 {
		flag.Usage()
		os.Exit(1)
	}

	switch args[0] {
	case "wrap":
		handleWrapCommand(args[1:], *verbose)
	case "image":
		handleImageCommand(args[1:], *verbose)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", args[0])
		flag.Usage()
		os.Exit(1)
	}
}
