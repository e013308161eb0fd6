package main

import (
	"os"

	"fleetd/internal/fleetctl"
)

func main() { os.Exit(fleetctl.Main()) }
