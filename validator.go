// validator.go: identity and compatibility checks for plugin instances
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package plughost

import (
	"context"
	"reflect"
	"strings"
)

// Validator checks a plugin instance before it is admitted to the registry.
// It has no side effects.
type Validator struct {
	hostVersion func() string
}

// NewValidator creates a validator that reads the host version from fn on
// every call, so configuration changes apply to the next validation.
func NewValidator(hostVersion func() string) *Validator {
	if hostVersion == nil {
		hostVersion = func() string { return DefaultHostVersion }
	}
	return &Validator{hostVersion: hostVersion}
}

// Validate returns nil when plugin may be admitted. Failures, checked in
// this order, are a missing plugin (ErrCodeMissingReference), a blank id,
// name or version (ErrCodeInvalidIdentity, with the field in the error
// context) and a rejected host version (ErrCodeIncompatible). A done ctx
// is reported before the plugin is queried.
func (v *Validator) Validate(ctx context.Context, plugin Plugin) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if isNilPlugin(plugin) {
		return NewMissingReferenceError()
	}

	fields := []struct {
		name  string
		value string
	}{
		{"id", plugin.ID()},
		{"name", plugin.Name()},
		{"version", plugin.Version()},
	}
	for _, f := range fields {
		if strings.TrimSpace(f.value) == "" {
			return NewInvalidIdentityError(f.name, f.value)
		}
	}

	if err := ctx.Err(); err != nil {
		return err
	}
	hostVersion := v.hostVersion()
	if !plugin.IsCompatible(hostVersion) {
		return NewIncompatibleError(plugin.ID(), hostVersion)
	}

	return nil
}

// HostVersion returns the version compatibility is checked against.
func (v *Validator) HostVersion() string {
	return v.hostVersion()
}

func isNilPlugin(p Plugin) bool {
	if p == nil {
		return true
	}
	rv := reflect.ValueOf(p)
	switch rv.Kind() {
	case reflect.Ptr, reflect.Interface, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan:
		return rv.IsNil()
	}
	return false
}
