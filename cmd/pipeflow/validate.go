package main

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/loykin/pipeflow/internal/pipeline"
	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate pipeline definition files for syntax and structure",
	Long: `Validate pipeline definition files in the configured directory. This
command checks:
- YAML syntax validity
- Pipeline type correctness
- Stage and task name uniqueness
- Task action validity`,
	RunE: func(cmd *cobra.Command, args []string) error {
		doc, err := loadConfigDoc()
		if err != nil {
			return err
		}

		dir := strings.TrimSpace(doc.PipelineDir)
		if dir == "" {
			fmt.Println("No pipeline_dir configured; validating the builtin pipelines.")
			for typ, def := range pipeline.BuiltinDefinitions() {
				if err := pipeline.Validate(def); err != nil {
					return fmt.Errorf("builtin %s pipeline: %w", typ, err)
				}
				fmt.Printf("  ok: %s (%d stages)\n", typ, len(def.Stages))
			}
			return nil
		}

		if abs, err := filepath.Abs(dir); err == nil {
			dir = abs
		}
		fmt.Printf("Validating pipeline files in: %s\n", dir)

		defs, err := pipeline.LoadDir(dir)
		if err != nil {
			return fmt.Errorf("validation failed: %w", err)
		}

		types := make([]string, 0, len(defs))
		for typ := range defs {
			types = append(types, string(typ))
		}
		sort.Strings(types)
		for _, typ := range types {
			def := defs[pipeline.Type(typ)]
			fmt.Printf("  ok: %s (%d stages)\n", typ, len(def.Stages))
		}

		fmt.Printf("\nAll %d pipeline definitions are valid!\n", len(defs))
		return nil
	},
}
