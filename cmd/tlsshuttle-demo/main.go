// Command tlsshuttle-demo exercises the session engine over real TCP: a
// "server" subcommand accepts connections and echoes application data back
// on each, a "client" subcommand connects, sends one line, and prints what
// comes back.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)
	flag.Usage = func() {
		fmt.Fprintln(flag.CommandLine.Output(), "Usage: tlsshuttle-demo <command> [options]")
		flag.PrintDefaults()
	}
	flag.Parse()
	cmd := flag.Arg(0)
	var err error
	switch cmd {
	case "server":
		err = serverCommand(flag.Args()[1:])
	case "client":
		err = clientCommand(flag.Args()[1:])
	default:
		flag.Usage()
		os.Exit(2)
	}
	if err != nil {
		log.Fatal(err)
	}
}
