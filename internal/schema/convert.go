package schema

import (
	"bytes"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Convert returns the JSON config text of a schema document. The format
// is chosen by the extension of name: .json is compacted, .yaml, .yml and
// .toml are decoded and re-encoded as JSON.
func Convert(name string, data []byte) (string, error) {
	var doc map[string]any

	switch ext := strings.ToLower(filepath.Ext(name)); ext {
	case ".json", "":
		var buf bytes.Buffer
		if err := json.Compact(&buf, data); err != nil {
			return "", fmt.Errorf("%w: %v", ErrMalformedConfig, err)
		}
		return buf.String(), nil
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return "", fmt.Errorf("%w: %v", ErrMalformedConfig, err)
		}
	case ".toml":
		if _, err := toml.Decode(string(data), &doc); err != nil {
			return "", fmt.Errorf("%w: %v", ErrMalformedConfig, err)
		}
	default:
		return "", fmt.Errorf("unsupported schema file type %q", ext)
	}

	out, err := json.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("failed to encode config: %w", err)
	}
	return string(out), nil
}
