// manifest.go: plugin manifest parsing, schema validation and module resolution
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package plughost

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/agilira/argus"
	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"
)

// DefaultManifestPatterns are the file names treated as plugin manifests.
var DefaultManifestPatterns = []string{
	"plugin.json", "plugin.yaml", "plugin.yml",
	"*.plugin.json", "*.plugin.yaml", "*.plugin.yml",
}

// ManifestSchema is the JSON schema every manifest must satisfy.
const ManifestSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["id", "name", "version"],
  "properties": {
    "id": {"type": "string", "pattern": "^[A-Za-z0-9][A-Za-z0-9._-]*$"},
    "name": {"type": "string", "minLength": 1},
    "version": {"type": "string", "minLength": 1},
    "description": {"type": "string"},
    "main": {"type": "string"},
    "author": {"type": "string"},
    "license": {"type": "string"},
    "homepage": {"type": "string"},
    "tags": {"type": "array", "items": {"type": "string"}},
    "capabilities": {
      "type": "object",
      "properties": {
        "commands": {"type": "array", "items": {"type": "string"}},
        "provided_services": {"type": "array", "items": {"type": "string"}},
        "supports_hot_reload": {"type": "boolean"},
        "supports_configuration": {"type": "boolean"}
      }
    },
    "compatibility": {
      "type": "object",
      "properties": {
        "min_host_version": {"type": "string"},
        "max_host_version": {"type": "string"},
        "constraint": {"type": "string"}
      }
    }
  }
}`

var manifestSchemaLoader = gojsonschema.NewStringLoader(ManifestSchema)

// PluginManifest is the sidecar description of a module on disk. It lets
// discovery report identity without starting the module.
type PluginManifest struct {
	ID          string `json:"id" yaml:"id"`
	Name        string `json:"name" yaml:"name"`
	Version     string `json:"version" yaml:"version"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`

	// Main is the module executable, relative to the manifest directory.
	Main string `json:"main,omitempty" yaml:"main,omitempty"`

	Author        string             `json:"author,omitempty" yaml:"author,omitempty"`
	License       string             `json:"license,omitempty" yaml:"license,omitempty"`
	Homepage      string             `json:"homepage,omitempty" yaml:"homepage,omitempty"`
	Tags          []string           `json:"tags,omitempty" yaml:"tags,omitempty"`
	Capabilities  PluginCapabilities `json:"capabilities" yaml:"capabilities"`
	Compatibility CompatibilityRange `json:"compatibility" yaml:"compatibility"`
}

// Identity returns the identity declared by the manifest.
func (m *PluginManifest) Identity() PluginIdentity {
	return PluginIdentity{ID: m.ID, Name: m.Name, Version: m.Version, Description: m.Description}
}

// Metadata returns the descriptive fields as PluginMetadata.
func (m *PluginManifest) Metadata() PluginMetadata {
	return PluginMetadata{
		Author:        m.Author,
		License:       m.License,
		Homepage:      m.Homepage,
		Tags:          append([]string(nil), m.Tags...),
		Compatibility: m.Compatibility,
	}
}

// IsManifestFile reports whether the base name of path matches one of the
// default manifest patterns.
func IsManifestFile(path string) bool {
	return matchesAny(filepath.Base(path), DefaultManifestPatterns)
}

func matchesAny(name string, patterns []string) bool {
	for _, pattern := range patterns {
		if matched, err := filepath.Match(pattern, name); err == nil && matched {
			return true
		}
	}
	return false
}

// ParseManifestFile reads and decodes the manifest at path. The format is
// taken from the extension; unknown extensions are tried as JSON and then
// YAML. With validate set the document is checked against ManifestSchema.
func ParseManifestFile(path string, validate bool) (*PluginManifest, error) {
	data, err := os.ReadFile(filepath.Clean(path)) // #nosec G304 -- manifest paths come from the scanner or the caller
	if err != nil {
		return nil, NewManifestError(path, "cannot read file", err)
	}
	return ParseManifest(path, data, validate)
}

// ParseManifest decodes manifest data. path is used for format detection
// and error context only.
func ParseManifest(path string, data []byte, validate bool) (*PluginManifest, error) {
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil, NewManifestError(path, "file is empty", nil)
	}

	var manifest PluginManifest
	var document []byte

	switch argus.DetectFormat(path) {
	case argus.FormatJSON:
		if err := json.Unmarshal(data, &manifest); err != nil {
			return nil, NewManifestError(path, "malformed JSON", err)
		}
		document = data
	case argus.FormatYAML:
		doc, err := decodeYAMLManifest(data, &manifest)
		if err != nil {
			return nil, NewManifestError(path, "malformed YAML", err)
		}
		document = doc
	default:
		if err := json.Unmarshal(data, &manifest); err == nil {
			document = data
			break
		}
		doc, err := decodeYAMLManifest(data, &manifest)
		if err != nil {
			return nil, NewManifestError(path, "not valid JSON or YAML", err)
		}
		document = doc
	}

	if validate {
		if err := validateManifestDocument(path, document); err != nil {
			return nil, err
		}
	}

	return &manifest, nil
}

// decodeYAMLManifest fills manifest and returns the document re-encoded as
// JSON for schema validation.
func decodeYAMLManifest(data []byte, manifest *PluginManifest) ([]byte, error) {
	if err := yaml.Unmarshal(data, manifest); err != nil {
		return nil, err
	}
	var generic map[string]any
	if err := yaml.Unmarshal(data, &generic); err != nil {
		return nil, err
	}
	return json.Marshal(generic)
}

func validateManifestDocument(path string, document []byte) error {
	result, err := gojsonschema.Validate(manifestSchemaLoader, gojsonschema.NewBytesLoader(document))
	if err != nil {
		return NewManifestError(path, "schema validation error", err)
	}
	if result.Valid() {
		return nil
	}

	problems := make([]string, 0, len(result.Errors()))
	for _, desc := range result.Errors() {
		problems = append(problems, desc.String())
	}
	return NewManifestError(path, strings.Join(problems, "; "), nil)
}

// ResolveModulePath turns a load path into the module executable path.
// A manifest with a Main entry resolves to that executable; anything else,
// including a manifest without Main, resolves to itself. The result is
// absolute and cleaned.
func ResolveModulePath(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", NewModuleResolutionError(path, "cannot make path absolute", err)
	}

	if !IsManifestFile(abs) {
		return abs, nil
	}

	manifest, err := ParseManifestFile(abs, false)
	if err != nil {
		return "", NewModuleResolutionError(path, "cannot read manifest", err)
	}
	if strings.TrimSpace(manifest.Main) == "" {
		return abs, nil
	}

	main := manifest.Main
	if !filepath.IsAbs(main) {
		main = filepath.Join(filepath.Dir(abs), main)
	}
	return filepath.Clean(main), nil
}
