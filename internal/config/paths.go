package config

import (
	"os"
	"path/filepath"
)

// Paths resolves the on-disk locations mnemosyne-brain owns: the row store,
// the screenshot cache and the serialized knowledge graph (spec section 6,
// "Filesystem").
type Paths struct {
	DataDir string
}

// GetPaths resolves Paths from the configured DB path's directory.
func (c *Config) GetPaths() Paths {
	dir := filepath.Dir(c.DBPath)
	if dir == "." || dir == "" {
		dir = ".mnemosyne"
	}
	return Paths{DataDir: dir}
}

// EnsurePaths creates the data directory and screenshot directory if absent.
func (p Paths) EnsurePaths(screenshotDir string) error {
	if err := os.MkdirAll(p.DataDir, 0755); err != nil {
		return err
	}
	if screenshotDir != "" {
		if err := os.MkdirAll(screenshotDir, 0755); err != nil {
			return err
		}
	}
	return nil
}

// KnowledgeGraphPath returns the path to the serialized knowledge graph.
func (p Paths) KnowledgeGraphPath() string {
	return filepath.Join(p.DataDir, "knowledge_graph.json")
}
