// Command example demonstrates the basic gtfs lifecycle: open a managed
// directory, open a file, write and sync a durable range, close, reopen,
// and read the recovered bytes back.
package main

import (
	"fmt"

	gtfs "github.com/wcn4/AOS-Proj3"
)

func main() {
	store, err := gtfs.Open("data")
	if err != nil {
		panic(err)
	}

	h, err := store.OpenFile("greeting", 100)
	if err != nil {
		panic(err)
	}

	intent, err := h.Write(10, []byte("Hi, I'm the writer.\n"))
	if err != nil {
		fmt.Println(err)
		return
	}
	if _, err := intent.Sync(); err != nil {
		fmt.Println(err)
		return
	}
	fmt.Println("write synced")

	if err := h.Close(); err != nil {
		panic(err)
	}

	h, err = store.OpenFile("greeting", 100)
	if err != nil {
		panic(err)
	}
	defer h.Close()

	out, err := h.Read(10, 21)
	if err != nil {
		fmt.Println(err)
		return
	}
	fmt.Printf("read back: %s", out)
}
