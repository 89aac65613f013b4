package prompt

import (
	"fmt"
	"sort"
	"sync"
)

// Registry holds all loaded prompts and schemas
type Registry struct {
	prompts map[string]*PromptTemplate
	schemas map[string]*ResponseSchema
	mu      sync.RWMutex
}

var globalRegistry *Registry
var once sync.Once

// NewRegistry returns an empty registry. Most callers use Get.
func NewRegistry() *Registry {
	return &Registry{
		prompts: make(map[string]*PromptTemplate),
		schemas: make(map[string]*ResponseSchema),
	}
}

// Get returns the global registry singleton, seeded with the embedded defaults.
func Get() *Registry {
	once.Do(func() {
		globalRegistry = NewRegistry()
		if err := RegisterDefaults(globalRegistry); err != nil {
			panic(fmt.Sprintf("prompt: embedded defaults are invalid: %v", err))
		}
	})
	return globalRegistry
}

// Register adds a prompt template to the registry, replacing any prompt with the same ID
func (r *Registry) Register(pt *PromptTemplate) error {
	if pt == nil || pt.ID == "" {
		return fmt.Errorf("prompt ID cannot be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.prompts[pt.ID] = pt
	return nil
}

// RegisterSchema adds a response schema to the registry
func (r *Registry) RegisterSchema(schema *ResponseSchema) error {
	if schema == nil || schema.ID == "" {
		return fmt.Errorf("schema ID cannot be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.schemas[schema.ID] = schema
	return nil
}

// GetPrompt retrieves a prompt by ID
func (r *Registry) GetPrompt(id string) (*PromptTemplate, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if p, ok := r.prompts[id]; ok {
		return p, nil
	}
	return nil, fmt.Errorf("prompt not found: %s", id)
}

// GetSchema retrieves a response schema by ID
func (r *Registry) GetSchema(id string) (*ResponseSchema, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if s, ok := r.schemas[id]; ok {
		return s, nil
	}
	return nil, fmt.Errorf("schema not found: %s", id)
}

// SchemaFor returns the response schema referenced by a prompt, or nil when
// the prompt declares none.
func (r *Registry) SchemaFor(promptID string) (*ResponseSchema, error) {
	pt, err := r.GetPrompt(promptID)
	if err != nil {
		return nil, err
	}
	if pt.ResponseSchemaID == "" {
		return nil, nil
	}
	return r.GetSchema(pt.ResponseSchemaID)
}

// ListPrompts returns all registered prompt IDs in lexical order
func (r *Registry) ListPrompts() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.prompts))
	for id := range r.prompts {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Count returns the number of registered prompts
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.prompts)
}
