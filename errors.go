// errors.go: structured error definitions for the plughost system
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package plughost

import (
	"errors"
	"fmt"

	goerrors "github.com/agilira/go-errors"
)

// Error codes for the plughost system
const (
	// Validation errors (1000-1099)
	ErrCodeMissingReference = "PLUGIN_1001"
	ErrCodeInvalidIdentity  = "PLUGIN_1002"
	ErrCodeIncompatible     = "PLUGIN_1003"

	// Execution errors (1100-1199)
	ErrCodeUnsupportedCommand = "PLUGIN_1101"
	ErrCodePluginNotFound     = "PLUGIN_1102"
	ErrCodePluginNotRunning   = "PLUGIN_1103"
	ErrCodeLifecycleHook      = "PLUGIN_1104"
	ErrCodeInvalidTransition  = "PLUGIN_1105"
	ErrCodeManagerClosed      = "PLUGIN_1106"

	// Module resolution and registry errors (1200-1299)
	ErrCodeModuleNotFound   = "REGISTRY_1201"
	ErrCodeModuleResolution = "REGISTRY_1202"
	ErrCodeDuplicatePlugin  = "REGISTRY_1203"
	ErrCodeBoundary         = "REGISTRY_1204"
	ErrCodeProcess          = "REGISTRY_1205"

	// RPC and communication errors (1300-1399)
	ErrCodeHandshake     = "RPC_1301"
	ErrCodeRPC           = "RPC_1302"
	ErrCodeSerialization = "RPC_1303"

	// Discovery and manifest errors (1400-1499)
	ErrCodeManifest  = "DISCOVERY_1401"
	ErrCodeDiscovery = "DISCOVERY_1402"

	// Configuration errors (1500-1599)
	ErrCodeConfigNotFound   = "CONFIG_1501"
	ErrCodeConfigParse      = "CONFIG_1502"
	ErrCodeConfigValidation = "CONFIG_1503"
	ErrCodeConfigWatcher    = "CONFIG_1504"
)

// Validation error constructors

func NewMissingReferenceError() *goerrors.Error {
	return goerrors.New(ErrCodeMissingReference, "Missing plugin reference").
		WithUserMessage("A plugin instance is required for validation").
		WithSeverity("error")
}

func NewInvalidIdentityError(field, value string) *goerrors.Error {
	return goerrors.New(ErrCodeInvalidIdentity, fmt.Sprintf("Plugin %s cannot be empty", identityLabel(field))).
		WithUserMessage("Plugin identity fields must be non-blank").
		WithContext("field", field).
		WithContext("provided_value", value).
		WithSeverity("error")
}

func NewIncompatibleError(pluginID, hostVersion string) *goerrors.Error {
	return goerrors.New(ErrCodeIncompatible, "Plugin is not compatible with host version "+hostVersion).
		WithUserMessage("The plugin declares a host version range that excludes this host").
		WithContext("plugin_id", pluginID).
		WithContext("host_version", hostVersion).
		WithSeverity("error")
}

// Execution error constructors

func NewUnsupportedCommandError(pluginID, command string) *goerrors.Error {
	return goerrors.New(ErrCodeUnsupportedCommand, "Unsupported command: "+command).
		WithUserMessage("The plugin does not advertise this command").
		WithContext("plugin_id", pluginID).
		WithContext("command", command).
		WithSeverity("error")
}

func NewPluginNotFoundError(pluginID string) *goerrors.Error {
	return goerrors.New(ErrCodePluginNotFound, "Plugin not found: "+pluginID).
		WithUserMessage("No plugin with this id is loaded").
		WithContext("plugin_id", pluginID).
		WithSeverity("error")
}

func NewPluginNotRunningError(pluginID string, state LifecycleState) *goerrors.Error {
	return goerrors.New(ErrCodePluginNotRunning, "Plugin is not running").
		WithUserMessage("The plugin must be running to accept commands").
		WithContext("plugin_id", pluginID).
		WithContext("state", state.String()).
		WithSeverity("error")
}

func NewLifecycleHookError(pluginID, hook string, cause error) *goerrors.Error {
	msg := fmt.Sprintf("Plugin %s hook failed", hook)
	if cause == nil {
		return goerrors.New(ErrCodeLifecycleHook, msg).
			WithUserMessage("A plugin lifecycle hook reported failure").
			WithContext("plugin_id", pluginID).
			WithContext("hook", hook).
			WithSeverity("error")
	}
	return wrap(cause, ErrCodeLifecycleHook, msg).
		WithUserMessage("A plugin lifecycle hook reported failure").
		WithContext("plugin_id", pluginID).
		WithContext("hook", hook).
		WithSeverity("error")
}

func NewInvalidTransitionError(from, to LifecycleState) *goerrors.Error {
	return goerrors.New(ErrCodeInvalidTransition, fmt.Sprintf("Invalid lifecycle transition %s -> %s", from, to)).
		WithContext("from", from.String()).
		WithContext("to", to.String()).
		WithSeverity("error")
}

func NewManagerClosedError() *goerrors.Error {
	return goerrors.New(ErrCodeManagerClosed, "Plugin manager is shut down").
		WithUserMessage("The plugin manager no longer accepts plugins").
		WithSeverity("error")
}

// Module resolution and registry error constructors

func NewModuleNotFoundError(path string, cause error) *goerrors.Error {
	return wrap(cause, ErrCodeModuleNotFound, "Plugin module not found: "+path).
		WithUserMessage("The plugin module path does not exist").
		WithContext("path", path).
		WithSeverity("error")
}

func NewModuleResolutionError(path, message string, cause error) *goerrors.Error {
	return wrap(cause, ErrCodeModuleResolution, "Module resolution failed: "+message).
		WithUserMessage("The plugin module could not be resolved").
		WithContext("path", path).
		WithSeverity("error")
}

func NewDuplicatePluginError(pluginID string) *goerrors.Error {
	return goerrors.New(ErrCodeDuplicatePlugin, fmt.Sprintf("Plugin with ID '%s' is already loaded", pluginID)).
		WithUserMessage("Duplicate plugin ID").
		WithContext("plugin_id", pluginID).
		WithSeverity("error")
}

func NewBoundaryError(message string, cause error) *goerrors.Error {
	return wrap(cause, ErrCodeBoundary, "Isolation boundary error: "+message).
		WithUserMessage("Plugin isolation boundary failed").
		WithSeverity("error")
}

func NewProcessError(message string, cause error) *goerrors.Error {
	return wrap(cause, ErrCodeProcess, "Process error: "+message).
		WithUserMessage("Plugin process management failed").
		WithSeverity("error")
}

// RPC and communication error constructors

func NewHandshakeError(message string, cause error) *goerrors.Error {
	return wrap(cause, ErrCodeHandshake, "Handshake error: "+message).
		WithUserMessage("Plugin handshake failed").
		WithSeverity("error")
}

func NewRPCError(method string, cause error) *goerrors.Error {
	return wrap(cause, ErrCodeRPC, "RPC error: "+method).
		WithUserMessage("RPC communication with the plugin process failed").
		WithContext("method", method).
		WithSeverity("error").
		AsRetryable()
}

func NewSerializationError(message string, cause error) *goerrors.Error {
	return wrap(cause, ErrCodeSerialization, "Serialization error: "+message).
		WithUserMessage("Data serialization failed").
		WithSeverity("error")
}

// Discovery error constructors

func NewManifestError(path, message string, cause error) *goerrors.Error {
	return wrap(cause, ErrCodeManifest, "Invalid manifest: "+message).
		WithUserMessage("The plugin manifest could not be read").
		WithContext("path", path).
		WithSeverity("error")
}

func NewDiscoveryError(message string, cause error) *goerrors.Error {
	return wrap(cause, ErrCodeDiscovery, "Discovery error: "+message).
		WithUserMessage("Plugin discovery failed").
		WithSeverity("warning")
}

// Configuration error constructors

func NewConfigNotFoundError(path string, cause error) *goerrors.Error {
	return wrap(cause, ErrCodeConfigNotFound, "Configuration file not found").
		WithContext("path", path).
		WithSeverity("error")
}

func NewConfigParseError(path string, cause error) *goerrors.Error {
	return wrap(cause, ErrCodeConfigParse, "Configuration parse error").
		WithUserMessage("The host configuration file is malformed").
		WithContext("path", path).
		WithSeverity("error")
}

func NewConfigValidationError(message string) *goerrors.Error {
	return goerrors.New(ErrCodeConfigValidation, "Configuration validation failed: "+message).
		WithUserMessage("The host configuration is invalid").
		WithSeverity("error")
}

func NewConfigWatcherError(message string, cause error) *goerrors.Error {
	return wrap(cause, ErrCodeConfigWatcher, "Configuration watcher error: "+message).
		WithSeverity("warning")
}

// wrap is goerrors.Wrap that tolerates a nil cause.
func wrap(cause error, code goerrors.ErrorCode, message string) *goerrors.Error {
	if cause == nil {
		return goerrors.New(code, message)
	}
	return goerrors.Wrap(cause, code, message)
}

// Predicates

// HasErrorCode reports whether err, or any error it wraps, carries code.
// Errors reported by plugin processes are matched through RemoteError.
func HasErrorCode(err error, code string) bool {
	var remote *RemoteError
	if errors.As(err, &remote) && remote.Code == code {
		return true
	}

	var e *goerrors.Error
	for err != nil {
		if !errors.As(err, &e) {
			return false
		}
		if e.Code == goerrors.ErrorCode(code) {
			return true
		}
		err = errors.Unwrap(e)
	}
	return false
}

// IsMissingReference reports a validation failure caused by an absent plugin.
func IsMissingReference(err error) bool { return HasErrorCode(err, ErrCodeMissingReference) }

// IsInvalidIdentity reports a validation failure caused by a blank identity field.
func IsInvalidIdentity(err error) bool { return HasErrorCode(err, ErrCodeInvalidIdentity) }

// IsIncompatible reports a validation failure caused by a host version mismatch.
func IsIncompatible(err error) bool { return HasErrorCode(err, ErrCodeIncompatible) }

// IsUnsupportedCommand reports an Execute call outside a plugin's capabilities.
func IsUnsupportedCommand(err error) bool { return HasErrorCode(err, ErrCodeUnsupportedCommand) }

// InvalidField returns the identity field named by an invalid-identity error,
// or "" when err is not one.
func InvalidField(err error) string {
	var e *goerrors.Error
	for err != nil {
		if !errors.As(err, &e) {
			return ""
		}
		if e.Code == goerrors.ErrorCode(ErrCodeInvalidIdentity) {
			if field, ok := e.Context["field"].(string); ok {
				return field
			}
			return ""
		}
		err = errors.Unwrap(e)
	}
	return ""
}

func identityLabel(field string) string {
	switch field {
	case "id":
		return "ID"
	case "name":
		return "Name"
	case "version":
		return "Version"
	default:
		return field
	}
}
