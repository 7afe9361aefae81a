// manifest_test.go: tests for manifest parsing and module resolution
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package plughost

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const yamlManifest = `id: calculator
name: Calculator
version: 1.2.0
description: Basic arithmetic
main: ./bin/calculator
author: AGILira
tags: [math, demo]
capabilities:
  commands: [add, subtract]
  supports_hot_reload: true
compatibility:
  min_host_version: 1.0.0
  constraint: "<2"
`

func TestParseManifest_YAML(t *testing.T) {
	m, err := ParseManifest("plugin.yaml", []byte(yamlManifest), true)
	require.NoError(t, err)

	assert.Equal(t, PluginIdentity{ID: "calculator", Name: "Calculator", Version: "1.2.0", Description: "Basic arithmetic"}, m.Identity())
	assert.Equal(t, "./bin/calculator", m.Main)
	assert.Equal(t, []string{"add", "subtract"}, m.Capabilities.Commands)
	assert.True(t, m.Capabilities.SupportsHotReload)

	meta := m.Metadata()
	assert.Equal(t, "AGILira", meta.Author)
	assert.Equal(t, []string{"math", "demo"}, meta.Tags)
	assert.Equal(t, "1.0.0", meta.Compatibility.MinHostVersion)
	assert.True(t, meta.Compatibility.Allows("1.5.0"))
	assert.False(t, meta.Compatibility.Allows("2.0.0"))
}

func TestParseManifest_JSON(t *testing.T) {
	data := `{"id": "greeter", "name": "Greeter", "version": "0.1.0", "capabilities": {"commands": ["greet"]}}`
	m, err := ParseManifest("greeter.plugin.json", []byte(data), true)
	require.NoError(t, err)
	assert.Equal(t, "greeter", m.ID)
	assert.Equal(t, []string{"greet"}, m.Capabilities.Commands)
}

func TestParseManifest_UnknownExtensionFallsBack(t *testing.T) {
	m, err := ParseManifest("manifest.txt", []byte(`{"id":"a","name":"A","version":"1"}`), true)
	require.NoError(t, err)
	assert.Equal(t, "a", m.ID)

	m, err = ParseManifest("manifest.txt", []byte("id: b\nname: B\nversion: '1'\n"), true)
	require.NoError(t, err)
	assert.Equal(t, "b", m.ID)
}

func TestParseManifest_Errors(t *testing.T) {
	tests := []struct {
		name string
		path string
		data string
	}{
		{"empty", "plugin.yaml", "   \n"},
		{"malformed json", "plugin.json", "{not json"},
		{"malformed yaml", "plugin.yaml", "id: [unclosed"},
		{"missing required fields", "plugin.yaml", "id: x\n"},
		{"bad id pattern", "plugin.json", `{"id": "-bad id", "name": "X", "version": "1.0.0"}`},
		{"wrong type", "plugin.json", `{"id": "x", "name": "X", "version": "1.0.0", "tags": "math"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseManifest(tt.path, []byte(tt.data), true)
			require.Error(t, err)
			assert.True(t, HasErrorCode(err, ErrCodeManifest))
		})
	}
}

func TestParseManifest_SchemaOptional(t *testing.T) {
	m, err := ParseManifest("plugin.yaml", []byte("id: x\n"), false)
	require.NoError(t, err)
	assert.Equal(t, "x", m.ID)
	assert.Empty(t, m.Name)
}

func TestParseManifestFile_Missing(t *testing.T) {
	_, err := ParseManifestFile(filepath.Join(t.TempDir(), "plugin.yaml"), true)
	assert.True(t, HasErrorCode(err, ErrCodeManifest))
}

func TestIsManifestFile(t *testing.T) {
	for _, name := range []string{"plugin.json", "plugin.yaml", "plugin.yml", "calc.plugin.yaml", "/a/b/x.plugin.json"} {
		assert.True(t, IsManifestFile(name), name)
	}
	for _, name := range []string{"config.yaml", "plugin.toml", "calculator", "plugin.yaml.bak"} {
		assert.False(t, IsManifestFile(name), name)
	}
}

func TestResolveModulePath(t *testing.T) {
	dir := t.TempDir()

	withMain := writeFile(t, dir, "calc/plugin.yaml", "id: calc\nname: Calc\nversion: 1.0.0\nmain: bin/calc\n")
	got, err := ResolveModulePath(withMain)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "calc", "bin", "calc"), got)

	absMain := writeFile(t, dir, "abs/plugin.yaml", "id: a\nname: A\nversion: 1.0.0\nmain: /opt/plugins/a\n")
	got, err = ResolveModulePath(absMain)
	require.NoError(t, err)
	assert.Equal(t, "/opt/plugins/a", got)

	noMain := writeFile(t, dir, "nomain/plugin.yaml", "id: n\nname: N\nversion: 1.0.0\n")
	got, err = ResolveModulePath(noMain)
	require.NoError(t, err)
	assert.Equal(t, noMain, got)

	executable := writeFile(t, dir, "bin/tool", "#!/bin/sh\n")
	got, err = ResolveModulePath(executable)
	require.NoError(t, err)
	assert.Equal(t, executable, got)

	broken := writeFile(t, dir, "broken/plugin.json", "{")
	_, err = ResolveModulePath(broken)
	assert.True(t, HasErrorCode(err, ErrCodeModuleResolution))
}
