// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Command gen-schema writes the request body JSON Schema files.
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/holomush/schoolapi/internal/httpapi"
)

func main() {
	outDir := flag.String("out", "schemas", "output directory")
	flag.Parse()

	if err := generate(*outDir); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// generate writes <name>.schema.json for every request body into dir.
func generate(dir string) error {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("creating directory: %w", err)
	}

	for _, name := range httpapi.SchemaNames() {
		schema, err := httpapi.GenerateSchema(name)
		if err != nil {
			return fmt.Errorf("generating %s schema: %w", name, err)
		}

		outPath := filepath.Join(dir, name+".schema.json")
		if err := os.WriteFile(outPath, schema, 0o600); err != nil {
			return fmt.Errorf("writing %s: %w", outPath, err)
		}
		fmt.Printf("Generated %s\n", outPath)
	}
	return nil
}
