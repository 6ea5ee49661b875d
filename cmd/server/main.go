// Command server wires the configuration, the Game State Store, the
// Arbiter, and the optional diagnostic stream together and runs them
// until an interrupt, following the teacher's main.go entry-point shape.
package main

import (
	"fmt"
	"log"
	"os"

	"fourrow/internal/arbiter"
	"fourrow/internal/conf"
	"fourrow/internal/diag"
	"fourrow/internal/store"
)

func main() {
	c, err := conf.Load()
	if err != nil {
		log.Fatal(err)
	}

	st, err := store.Open(c.DatabaseFile, c.Log, c.Debug)
	if err != nil {
		// Store open/migration failure at startup is the one fatal
		// condition spec.md §7.6 names.
		log.Fatal(err)
	}
	c.Register(st)

	a := arbiter.New(c, st)

	if c.DiagEnabled {
		stream := diag.New(fmt.Sprintf(":%d", c.DiagPort), c.Log)
		a.SetSink(stream)
		c.Register(stream)
	}
	// Registered after the stream: managers shut down in reverse order,
	// so the arbiter's final "shutdown" event still reaches the stream.
	c.Register(a)

	c.Log.Printf("fourrow listening on database %s", c.DatabaseFile)
	c.Run()
	os.Exit(0)
}
