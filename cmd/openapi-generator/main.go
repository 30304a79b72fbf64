// Package main writes the OpenAPI 3.0 description of the semplan HTTP API
// for a catalog domain or catalog file.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/c360studio/semplan/api"
	"github.com/c360studio/semplan/catalog"
)

func main() {
	openapiOut := flag.String("o", "./specs/openapi.v3.yaml", "Output path for OpenAPI spec")
	domain := flag.String("domain", "lesson", "Built-in catalog domain")
	catalogPath := flag.String("catalog", "", "Catalog file (overrides -domain)")
	version := flag.String("version", "1.0.0", "API version")
	flag.Parse()

	log.Printf("Semplan OpenAPI Generator")
	log.Printf("  Output: %s", *openapiOut)

	def, err := loadCatalog(*domain, *catalogPath)
	if err != nil {
		log.Fatalf("Failed to load catalog: %v", err)
	}
	log.Printf("Catalog %s with %d components", def.Domain(), len(def.Components()))

	if err := generate(def.Catalog, *version, *openapiOut); err != nil {
		log.Fatalf("Failed to write OpenAPI spec: %v", err)
	}
	log.Printf("Generated OpenAPI spec: %s", *openapiOut)
}

func loadCatalog(domain, path string) (*catalog.Definition, error) {
	if path != "" {
		return catalog.LoadFile(path)
	}
	return catalog.Load(domain)
}

// generate builds the description and writes it as YAML to out.
func generate(cat *catalog.Catalog, version, out string) error {
	doc, err := api.BuildOpenAPI(cat, version)
	if err != nil {
		return err
	}
	data, err := api.MarshalOpenAPI(doc)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(out), 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	header := []byte(strings.TrimSpace(`
# OpenAPI 3.0 Specification for Semplan API
# Generated by openapi-generator tool
# DO NOT EDIT MANUALLY - This file is generated from the component catalog
`) + "\n\n")

	if err := os.WriteFile(out, append(header, data...), 0644); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}
	return nil
}
