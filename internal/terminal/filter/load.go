package filter

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/goccy/go-yaml"
	"github.com/pelletier/go-toml/v2"
)

// PolicyFile is the on-disk shape of extra filter rules.
//
//	rules:
//	  - name: no-curl
//	    pattern: '\bcurl\b'
//	    reason: network downloads are disabled
//	protected_paths:
//	  - "**/.env"
type PolicyFile struct {
	Rules          []Rule   `yaml:"rules" toml:"rules"`
	ProtectedPaths []string `yaml:"protected_paths" toml:"protected_paths"`
}

// LoadPolicy builds the policy used by every connection. An empty path yields
// the default policy. Rules from the file are added to the defaults; a file
// cannot remove or redefine a default rule.
func LoadPolicy(path string) (*Policy, error) {
	if path == "" {
		return DefaultPolicy(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read filter policy: %w", err)
	}
	file, err := ParsePolicyFile(data, filepath.Ext(path))
	if err != nil {
		return nil, fmt.Errorf("parse filter policy %s: %w", path, err)
	}

	rules := append(DefaultRules(), file.Rules...)
	protected := append(DefaultProtectedPaths(), file.ProtectedPaths...)
	policy, err := NewPolicy(rules, protected)
	if err != nil {
		return nil, fmt.Errorf("compile filter policy %s: %w", path, err)
	}
	return policy, nil
}

// ParsePolicyFile decodes a policy file. ext selects the format: .yaml, .yml
// or .toml. Unknown fields are rejected.
func ParsePolicyFile(data []byte, ext string) (PolicyFile, error) {
	var file PolicyFile
	switch strings.ToLower(ext) {
	case ".yaml", ".yml":
		if err := yaml.UnmarshalWithOptions(data, &file, yaml.Strict()); err != nil {
			return PolicyFile{}, err
		}
	case ".toml":
		dec := toml.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&file); err != nil {
			return PolicyFile{}, err
		}
	default:
		return PolicyFile{}, fmt.Errorf("unsupported policy format %q", ext)
	}
	return file, nil
}
