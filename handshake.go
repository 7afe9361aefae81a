// handshake.go: environment handshake between host and plugin process
//
// The host passes the socket path and protocol version to the child through
// environment variables guarded by a magic cookie. The cookie is not a
// security feature; it stops a module from being started by hand.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package plughost

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"time"
)

// Environment variables read by the plugin process.
const (
	EnvProtocolVersion = "PLUGHOST_PROTOCOL_VERSION"
	EnvSocketPath      = "PLUGHOST_SOCKET"
	EnvWatchParent     = "PLUGHOST_WATCH_PARENT"
)

// HandshakeTimeout is the default time a child has to start serving.
const HandshakeTimeout = 30 * time.Second

// HandshakeConfig is shared by host and plugin; both sides must agree.
type HandshakeConfig struct {
	ProtocolVersion  uint
	MagicCookieKey   string
	MagicCookieValue string
}

// DefaultHandshakeConfig is used when none is configured.
var DefaultHandshakeConfig = HandshakeConfig{
	ProtocolVersion:  1,
	MagicCookieKey:   "AGILIRA_PLUGHOST_MAGIC_COOKIE",
	MagicCookieValue: "agilira-plughost-v1",
}

var envNamePattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Validate checks that the config is usable.
func (hc HandshakeConfig) Validate() error {
	if hc.ProtocolVersion == 0 {
		return NewHandshakeError("protocol version must be greater than 0", nil)
	}
	if hc.MagicCookieKey == "" {
		return NewHandshakeError("magic cookie key is required", nil)
	}
	if hc.MagicCookieValue == "" {
		return NewHandshakeError("magic cookie value is required", nil)
	}
	if !envNamePattern.MatchString(hc.MagicCookieKey) {
		return NewHandshakeError("magic cookie key must be a valid environment variable name", nil)
	}
	return nil
}

// HandshakeInfo is what the plugin process learns from its environment.
type HandshakeInfo struct {
	ProtocolVersion uint
	SocketPath      string
	WatchParent     bool
}

// Environment returns the variables to append to the child environment.
func (hc HandshakeConfig) Environment(info HandshakeInfo) []string {
	env := []string{
		fmt.Sprintf("%s=%s", hc.MagicCookieKey, hc.MagicCookieValue),
		fmt.Sprintf("%s=%d", EnvProtocolVersion, hc.ProtocolVersion),
		fmt.Sprintf("%s=%s", EnvSocketPath, info.SocketPath),
	}
	if info.WatchParent {
		env = append(env, EnvWatchParent+"=1")
	}
	return env
}

// ReadHandshake validates the current process environment. It is called on
// the plugin side.
func (hc HandshakeConfig) ReadHandshake() (HandshakeInfo, error) {
	return hc.readHandshake(os.Getenv)
}

func (hc HandshakeConfig) readHandshake(getenv func(string) string) (HandshakeInfo, error) {
	if got := getenv(hc.MagicCookieKey); got != hc.MagicCookieValue {
		return HandshakeInfo{}, NewHandshakeError(
			"this binary is a plugin and must be launched by a plughost host", nil)
	}

	raw := getenv(EnvProtocolVersion)
	if raw == "" {
		return HandshakeInfo{}, NewHandshakeError("missing "+EnvProtocolVersion, nil)
	}
	version, err := strconv.ParseUint(raw, 10, 32)
	if err != nil {
		return HandshakeInfo{}, NewHandshakeError("invalid protocol version", err)
	}
	if uint(version) != hc.ProtocolVersion {
		return HandshakeInfo{}, NewHandshakeError(fmt.Sprintf("protocol version mismatch: expected %d, got %d",
			hc.ProtocolVersion, version), nil)
	}

	socket := getenv(EnvSocketPath)
	if socket == "" {
		return HandshakeInfo{}, NewHandshakeError("missing "+EnvSocketPath, nil)
	}

	return HandshakeInfo{
		ProtocolVersion: uint(version),
		SocketPath:      socket,
		WatchParent:     getenv(EnvWatchParent) == "1",
	}, nil
}
