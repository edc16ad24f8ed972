// Command gtfsdemo opens a managed directory in verbose mode and runs a
// recovery pass over any stray per-file logs left behind by a crashed
// prior run, mirroring the standalone cleanup step a real deployment
// would run on startup before handing files to the rest of the process.
package main

import (
	"log"
	"os"

	gtfs "github.com/wcn4/AOS-Proj3"
)

func main() {
	dir := "data"
	if len(os.Args) > 1 {
		dir = os.Args[1]
	}

	store, err := gtfs.Open(dir, gtfs.WithVerbose(true))
	if err != nil {
		log.Fatalf("gtfs: open %s: %v", dir, err)
	}

	if err := store.Clean(); err != nil {
		log.Fatalf("gtfs: clean %s: %v", dir, err)
	}
}
