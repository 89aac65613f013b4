// Package prompt provides a centralized prompt library for LLM interactions.
// Prompts are defined in JSON files, embedded defaults are registered at
// startup and a resources directory can override them without code changes.
package prompt

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// PromptTemplate represents a reusable prompt with metadata
type PromptTemplate struct {
	ID               string           `json:"id"`                   // Unique identifier (e.g., "recommendation.investment")
	Name             string           `json:"name"`                 // Human-readable name
	Category         string           `json:"category"`             // Category derived from the folder
	Description      string           `json:"description"`          // Description of prompt purpose
	SystemPrompt     string           `json:"system_prompt"`        // The system prompt content
	UserPromptTmpl   string           `json:"user_prompt_template"` // Go template for user prompt
	ResponseSchemaID string           `json:"response_schema_ref"`  // Reference to response schema
	Variables        []PromptVariable `json:"variables"`            // Variables used in template
	Version          string           `json:"version"`              // Version for tracking changes
}

// PromptVariable defines a variable used in a prompt template
type PromptVariable struct {
	Name        string `json:"name"`        // Variable name (e.g., "Symbol")
	Type        string `json:"type"`        // Type: string, int, float, array, object
	Description string `json:"description"` // What this variable represents
	Required    bool   `json:"required"`    // Whether this variable is required
	Default     string `json:"default"`     // Default value if not provided
}

// ResponseSchema represents the expected JSON response structure
type ResponseSchema struct {
	ID          string `json:"id"`          // Schema identifier
	Name        string `json:"name"`        // Human-readable name
	Description string `json:"description"` // Description of the schema
	JSONSchema  string `json:"json_schema"` // JSON Schema definition as string
}

// Compact returns the schema with insignificant whitespace removed, ready to
// be embedded in a prompt.
func (s *ResponseSchema) Compact() (string, error) {
	var buf bytes.Buffer
	if err := json.Compact(&buf, []byte(s.JSONSchema)); err != nil {
		return "", fmt.Errorf("schema %s: %w", s.ID, err)
	}
	return buf.String(), nil
}

// RequiredFields returns the top-level "required" list of the schema.
func (s *ResponseSchema) RequiredFields() ([]string, error) {
	var doc struct {
		Required []string `json:"required"`
	}
	if err := json.Unmarshal([]byte(s.JSONSchema), &doc); err != nil {
		return nil, fmt.Errorf("schema %s: %w", s.ID, err)
	}
	return doc.Required, nil
}

// PromptExecutionContext holds runtime values for prompt execution
type PromptExecutionContext struct {
	Variables map[string]interface{} // Key-value pairs for template substitution
}

// NewContext creates a new execution context
func NewContext() *PromptExecutionContext {
	return &PromptExecutionContext{
		Variables: make(map[string]interface{}),
	}
}

// Set adds a variable to the context
func (c *PromptExecutionContext) Set(key string, value interface{}) *PromptExecutionContext {
	c.Variables[key] = value
	return c
}

// missingRequired fills declared defaults into ctx and returns the required
// variables that are still absent.
func (pt *PromptTemplate) missingRequired(ctx *PromptExecutionContext) []string {
	var missing []string
	for _, v := range pt.Variables {
		if _, ok := ctx.Variables[v.Name]; ok {
			continue
		}
		if v.Default != "" {
			ctx.Variables[v.Name] = v.Default
			continue
		}
		if v.Required {
			missing = append(missing, v.Name)
		}
	}
	return missing
}
