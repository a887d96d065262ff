//go:build ignore

package main

import (
	"fmt"
	"os"

	"github.com/ormasoftchile/tessera/pkg/schema"
)

// Regenerates the checked-in suite JSON Schema for editor integrations:
//
//	go run scripts/gen-schema.go
func main() {
	data, err := schema.GenerateJSONSchema()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	if err := os.MkdirAll("schemas", 0755); err != nil {
		fmt.Fprintf(os.Stderr, "mkdir: %v\n", err)
		os.Exit(1)
	}
	if err := os.WriteFile("schemas/suite-v0.json", data, 0644); err != nil {
		fmt.Fprintf(os.Stderr, "write: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("wrote schemas/suite-v0.json")
}
