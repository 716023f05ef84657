// Schema Generator
//
// Generates JSON Schema files from the API types so the dashboard can derive
// its client-side validation. Go is the source of truth for the API types.
//
// Usage:
//
//	go run ./cmd/schema-gen -out ./schemas
//
// Output:
//
//	<out>/proxy.json
//	<out>/stats.json
//	<out>/sync.json
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/invopop/jsonschema"

	"github.com/shapeeat/sales-service/internal/analytics"
	"github.com/shapeeat/sales-service/internal/handlers"
	"github.com/shapeeat/sales-service/internal/types"
)

// SchemaGroup represents a group of related schemas
type SchemaGroup struct {
	Name   string
	Types  []any
	Output string
}

func schemaGroups() []SchemaGroup {
	return []SchemaGroup{
		{
			Name: "proxy",
			Types: []any{
				handlers.HealthResponse{},
				handlers.MachinesResponse{},
				handlers.SalesResponse{},
				handlers.ConnectionResponse{},
				handlers.ErrorResponse{},
			},
			Output: "proxy.json",
		},
		{
			Name: "stats",
			Types: []any{
				// Request types
				handlers.StatsQuery{},
				// Response types
				handlers.StatsResponse{},
				analytics.PeriodStats{},
				analytics.Aggregate{},
				analytics.VenueStat{},
				analytics.ProductStat{},
				analytics.CategoryStat{},
				analytics.DailyPoint{},
				analytics.Report{},
			},
			Output: "stats.json",
		},
		{
			Name: "sync",
			Types: []any{
				// Request types
				handlers.SyncRequest{},
				handlers.ListSyncRunsRequest{},
				// Response types
				handlers.SyncStartedResponse{},
				handlers.SyncRunsResponse{},
				types.SyncRun{},
				// Persisted rows
				types.LineItem{},
				types.OrderSummary{},
			},
			Output: "sync.json",
		},
	}
}

func main() {
	outputDir := flag.String("out", "schemas", "output directory")
	flag.Parse()

	if err := os.MkdirAll(*outputDir, 0755); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create output directory: %v\n", err)
		os.Exit(1)
	}

	for _, group := range schemaGroups() {
		schema := generateGroupSchema(group)
		outputPath := filepath.Join(*outputDir, group.Output)

		if err := writeSchema(schema, outputPath); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to write %s: %v\n", group.Output, err)
			os.Exit(1)
		}

		fmt.Printf("Generated %s\n", outputPath)
	}

	fmt.Println("Schema generation complete!")
}

// generateGroupSchema creates a combined schema with all types in a group
func generateGroupSchema(group SchemaGroup) map[string]any {
	reflector := &jsonschema.Reflector{
		DoNotReference: false,
		ExpandedStruct: false,
	}

	// Create combined definitions
	definitions := make(map[string]any)

	for _, t := range group.Types {
		schema := reflector.Reflect(t)

		// Get the type name from the schema
		typeName := ""
		if schema.Ref != "" {
			// Extract type name from $ref like "#/$defs/SyncRun"
			typeName = filepath.Base(schema.Ref)
		}

		// Add all definitions from this type's schema
		for name, def := range schema.Definitions {
			definitions[name] = def
		}

		// If there's a main type, add it to definitions too
		if typeName != "" && schema.Definitions[typeName] != nil {
			definitions[typeName] = schema.Definitions[typeName]
		}
	}

	return map[string]any{
		"$schema":     "https://json-schema.org/draft/2020-12/schema",
		"$id":         fmt.Sprintf("https://shapeeat.fr/schemas/sales/%s.json", group.Name),
		"title":       fmt.Sprintf("%s API Types", capitalize(group.Name)),
		"description": fmt.Sprintf("JSON Schema for %s API types generated from Go structs", group.Name),
		"$defs":       definitions,
	}
}

// writeSchema writes a schema to a JSON file
func writeSchema(schema map[string]any, path string) error {
	data, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal schema: %w", err)
	}

	return os.WriteFile(path, data, 0644)
}

func capitalize(s string) string {
	if len(s) == 0 {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
