// handshake_test.go: tests for the host/plugin handshake
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package plughost

import (
	"strings"
	"testing"
)

func envMap(env []string) func(string) string {
	values := make(map[string]string, len(env))
	for _, kv := range env {
		k, v, _ := strings.Cut(kv, "=")
		values[k] = v
	}
	return func(key string) string { return values[key] }
}

func TestHandshakeConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		config  HandshakeConfig
		wantErr bool
	}{
		{"default", DefaultHandshakeConfig, false},
		{"zero protocol", HandshakeConfig{MagicCookieKey: "K", MagicCookieValue: "v"}, true},
		{"missing key", HandshakeConfig{ProtocolVersion: 1, MagicCookieValue: "v"}, true},
		{"missing value", HandshakeConfig{ProtocolVersion: 1, MagicCookieKey: "K"}, true},
		{"invalid key", HandshakeConfig{ProtocolVersion: 1, MagicCookieKey: "1-BAD KEY", MagicCookieValue: "v"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !HasErrorCode(err, ErrCodeHandshake) {
				t.Errorf("Expected handshake error code, got %v", err)
			}
		})
	}
}

func TestHandshake_RoundTrip(t *testing.T) {
	hc := DefaultHandshakeConfig
	env := hc.Environment(HandshakeInfo{SocketPath: "/tmp/p.sock", WatchParent: true})

	info, err := hc.readHandshake(envMap(env))
	if err != nil {
		t.Fatalf("readHandshake failed: %v", err)
	}
	if info.SocketPath != "/tmp/p.sock" {
		t.Errorf("SocketPath = %q", info.SocketPath)
	}
	if info.ProtocolVersion != hc.ProtocolVersion {
		t.Errorf("ProtocolVersion = %d", info.ProtocolVersion)
	}
	if !info.WatchParent {
		t.Error("WatchParent should be set")
	}

	env = hc.Environment(HandshakeInfo{SocketPath: "/tmp/p.sock"})
	info, err = hc.readHandshake(envMap(env))
	if err != nil {
		t.Fatalf("readHandshake failed: %v", err)
	}
	if info.WatchParent {
		t.Error("WatchParent should not be set")
	}
}

func TestHandshake_Rejections(t *testing.T) {
	hc := DefaultHandshakeConfig
	valid := hc.Environment(HandshakeInfo{SocketPath: "/tmp/p.sock"})

	without := func(prefix string) []string {
		var out []string
		for _, kv := range valid {
			if !strings.HasPrefix(kv, prefix+"=") {
				out = append(out, kv)
			}
		}
		return out
	}
	with := func(kv string) []string {
		return append(append([]string(nil), valid...), kv)
	}

	tests := []struct {
		name string
		env  []string
	}{
		{"launched directly", without(hc.MagicCookieKey)},
		{"wrong cookie", with(hc.MagicCookieKey + "=nope")},
		{"missing protocol", without(EnvProtocolVersion)},
		{"garbage protocol", with(EnvProtocolVersion + "=abc")},
		{"protocol mismatch", with(EnvProtocolVersion + "=99")},
		{"missing socket", without(EnvSocketPath)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := hc.readHandshake(envMap(tt.env))
			if err == nil {
				t.Fatal("Expected handshake to be rejected")
			}
			if !HasErrorCode(err, ErrCodeHandshake) {
				t.Errorf("Expected handshake error code, got %v", err)
			}
		})
	}
}

func TestHandshake_ReadFromProcessEnvironment(t *testing.T) {
	hc := HandshakeConfig{ProtocolVersion: 3, MagicCookieKey: "PLUGHOST_TEST_COOKIE", MagicCookieValue: "yes"}
	t.Setenv("PLUGHOST_TEST_COOKIE", "yes")
	t.Setenv(EnvProtocolVersion, "3")
	t.Setenv(EnvSocketPath, "/tmp/x.sock")
	t.Setenv(EnvWatchParent, "")

	info, err := hc.ReadHandshake()
	if err != nil {
		t.Fatalf("ReadHandshake failed: %v", err)
	}
	if info.ProtocolVersion != 3 || info.SocketPath != "/tmp/x.sock" {
		t.Errorf("Unexpected info %+v", info)
	}
}
