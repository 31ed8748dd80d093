package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/picogrid/biosim/cmd/biosim/cmd"
	"github.com/picogrid/biosim/pkg/molio"

	// Import engines to register them
	_ "github.com/picogrid/biosim/pkg/engine/amber"
	_ "github.com/picogrid/biosim/pkg/engine/gromacs"
	_ "github.com/picogrid/biosim/pkg/engine/somd"
)

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	if err := molio.InitDefault(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
