package bundle

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"verity-health/outpost/pkg/rules"
)

// Load reads a rule-bundle document from disk. Bundles carry the same
// versioned, checksummed payload the control plane distributes, so IT
// can deliver updates to clinics with no connectivity at all. The
// checksum gate downstream applies identically; Load itself only
// parses.
func Load(path string) (*rules.RuleUpdate, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read bundle %q: %w", path, err)
	}

	var update rules.RuleUpdate
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		// Decode through an intermediate document so the JSON field
		// names used on the wire apply to YAML bundles too.
		var doc any
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("failed to parse bundle %q: %w", path, err)
		}
		raw, err := json.Marshal(doc)
		if err != nil {
			return nil, fmt.Errorf("failed to normalize bundle %q: %w", path, err)
		}
		if err := json.Unmarshal(raw, &update); err != nil {
			return nil, fmt.Errorf("failed to parse bundle %q: %w", path, err)
		}
	case ".json":
		if err := json.Unmarshal(data, &update); err != nil {
			return nil, fmt.Errorf("failed to parse bundle %q: %w", path, err)
		}
	default:
		return nil, fmt.Errorf("unsupported bundle format %q", ext)
	}

	if update.Version == "" {
		return nil, fmt.Errorf("bundle %q has no version", path)
	}
	if len(update.Rules) == 0 {
		return nil, fmt.Errorf("bundle %q contains no rules", path)
	}
	if update.Checksum == "" {
		return nil, fmt.Errorf("bundle %q has no checksum", path)
	}
	return &update, nil
}
