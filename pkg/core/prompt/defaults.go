package prompt

import (
	"embed"
	"fmt"
	"io/fs"
)

//go:embed defaults
var defaultFS embed.FS

// RegisterDefaults registers the prompt library compiled into the binary.
func RegisterDefaults(r *Registry) error {
	sub, err := fs.Sub(defaultFS, "defaults")
	if err != nil {
		return fmt.Errorf("embedded prompts: %w", err)
	}
	return loadTree(r, sub, "embedded")
}
