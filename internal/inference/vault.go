package inference

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/mnemosyne/brain/internal/logging"
)

// Vault is the in-memory set of known entity names scanned from a local
// notes vault (spec section 4.9, "vault-scan"). Entities come from
// Markdown filenames, not file contents — that's all the spec defines.
type Vault struct {
	// entities is sorted longest-first so augmentation prefers the most
	// specific match when one entity name is a substring of another.
	entities []string
}

// NewVault scans root recursively for "*.md" files and keeps their
// basenames (without extension) as known entities. An empty root (no
// vault configured) yields an empty, inert Vault.
func NewVault(root string) *Vault {
	v := &Vault{}
	if root == "" {
		return v
	}

	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() || !strings.EqualFold(filepath.Ext(path), ".md") {
			return nil
		}
		name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
		if name != "" {
			v.entities = append(v.entities, name)
		}
		return nil
	})
	if err != nil {
		logging.Debug().Err(err).Str("root", root).Msg("inference: vault scan failed")
	}

	sort.Slice(v.entities, func(i, j int) bool { return len(v.entities[i]) > len(v.entities[j]) })
	return v
}

// Enabled reports whether a vault was configured and contains entities.
func (v *Vault) Enabled() bool {
	return v != nil && len(v.entities) > 0
}
