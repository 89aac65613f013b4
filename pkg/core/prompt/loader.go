package prompt

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"text/template"

	"valuation_advisor/pkg/core/logger"
)

// LoadFromDirectory loads prompts and schemas from baseDir into the global
// registry. Files found there override the embedded defaults by ID.
// Expected structure:
//
//	baseDir/
//	  prompts/
//	    recommendation/
//	      investment.json
//	  schemas/
//	    recommendation.json
func LoadFromDirectory(baseDir string) error {
	return LoadInto(Get(), baseDir)
}

// LoadInto is LoadFromDirectory for an explicit registry.
func LoadInto(r *Registry, baseDir string) error {
	return loadTree(r, os.DirFS(baseDir), baseDir)
}

func loadTree(r *Registry, fsys fs.FS, label string) error {
	before := r.Count()
	if err := loadPrompts(r, fsys); err != nil {
		return fmt.Errorf("failed to load prompts: %w", err)
	}

	if err := loadSchemas(r, fsys); err != nil {
		logger.Get().Warnw("[PROMPT] No schemas loaded", "dir", label, "error", err)
	}

	logger.Get().Debugw("[PROMPT] Loaded prompt library",
		"dir", label, "prompts", r.Count(), "added", r.Count()-before)
	return nil
}

// loadPrompts recursively loads all .json files under prompts/
func loadPrompts(r *Registry, fsys fs.FS) error {
	if _, err := fs.Stat(fsys, "prompts"); err != nil {
		return fmt.Errorf("prompts directory not found: %w", err)
	}

	return fs.WalkDir(fsys, "prompts", func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || filepath.Ext(path) != ".json" {
			return nil
		}

		data, err := fs.ReadFile(fsys, path)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", path, err)
		}

		var pt PromptTemplate
		if err := json.Unmarshal(data, &pt); err != nil {
			return fmt.Errorf("failed to parse %s: %w", path, err)
		}

		rel := strings.TrimPrefix(path, "prompts/")
		if pt.ID == "" {
			pt.ID = generateIDFromPath(rel)
		}
		if pt.Category == "" {
			pt.Category = detectCategory(rel)
		}

		if _, err := template.New(pt.ID).Parse(pt.UserPromptTmpl); err != nil {
			return fmt.Errorf("invalid template in %s: %w", path, err)
		}

		if err := r.Register(&pt); err != nil {
			return fmt.Errorf("failed to register %s: %w", pt.ID, err)
		}
		return nil
	})
}

// loadSchemas loads all schema JSON files under schemas/
func loadSchemas(r *Registry, fsys fs.FS) error {
	if _, err := fs.Stat(fsys, "schemas"); err != nil {
		return nil // Schemas are optional
	}

	return fs.WalkDir(fsys, "schemas", func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || filepath.Ext(path) != ".json" {
			return nil
		}

		data, err := fs.ReadFile(fsys, path)
		if err != nil {
			return fmt.Errorf("failed to read schema %s: %w", path, err)
		}
		if !json.Valid(data) {
			return fmt.Errorf("schema %s is not valid JSON", path)
		}

		baseName := strings.TrimSuffix(filepath.Base(path), ".json")
		return r.RegisterSchema(&ResponseSchema{
			ID:         baseName,
			Name:       baseName,
			JSONSchema: string(data),
		})
	})
}

// generateIDFromPath creates a prompt ID from the path below prompts/
// e.g., "recommendation/investment.json" -> "recommendation.investment"
func generateIDFromPath(rel string) string {
	rel = strings.TrimSuffix(rel, ".json")
	return strings.ReplaceAll(rel, "/", ".")
}

// detectCategory extracts the category from the folder structure
func detectCategory(rel string) string {
	parts := strings.Split(rel, "/")
	if len(parts) > 1 {
		return parts[0]
	}
	return "default"
}

// RenderUserPrompt executes the user prompt template with the given context.
// Required variables missing from ctx take their declared default, or fail.
func RenderUserPrompt(pt *PromptTemplate, ctx *PromptExecutionContext) (string, error) {
	if pt.UserPromptTmpl == "" {
		return "", nil
	}
	if ctx == nil {
		ctx = NewContext()
	}
	if missing := pt.missingRequired(ctx); len(missing) > 0 {
		return "", fmt.Errorf("prompt %s: missing variables %s", pt.ID, strings.Join(missing, ", "))
	}

	tmpl, err := template.New(pt.ID).Option("missingkey=zero").Parse(pt.UserPromptTmpl)
	if err != nil {
		return "", fmt.Errorf("failed to parse template: %w", err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, ctx.Variables); err != nil {
		return "", fmt.Errorf("failed to execute template: %w", err)
	}

	return buf.String(), nil
}
