// Command server runs the threadline engine with its health and metrics endpoints.
package main

import (
	"log"

	"threadline/internal/server"
)

func main() {
	if err := server.Run(); err != nil {
		log.Fatalf("server exited: %v", err)
	}
}
