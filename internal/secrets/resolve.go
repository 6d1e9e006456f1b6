// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package secrets

import (
	"strings"

	ragerr "github.com/sigil-dev/ragbot/pkg/errors"
	"github.com/spf13/viper"
)

// Scheme prefixes configuration values stored in the keyring.
const Scheme = "keyring://"

// IsReference reports whether value is a keyring:// reference.
func IsReference(value string) bool {
	return strings.HasPrefix(value, Scheme)
}

// Reference formats a keyring:// reference for service and account.
func Reference(service, account string) string {
	return Scheme + service + "/" + account
}

// ParseReference splits keyring://service/account.
func ParseReference(ref string) (service, account string, err error) {
	if !IsReference(ref) {
		return "", "", ragerr.Errorf(ragerr.CodeSecretInputInvalid, "not a keyring reference: %q", ref)
	}
	service, account, ok := strings.Cut(strings.TrimPrefix(ref, Scheme), "/")
	if !ok || service == "" || account == "" {
		return "", "", ragerr.Errorf(ragerr.CodeSecretInputInvalid,
			"invalid keyring reference %q: expected keyring://service/account", ref)
	}
	return service, account, nil
}

// Resolve returns the secret behind a keyring:// reference, or value itself
// when it is a plain string.
func Resolve(store Store, value string) (string, error) {
	if !IsReference(value) {
		return value, nil
	}
	service, account, err := ParseReference(value)
	if err != nil {
		return "", err
	}
	secret, err := store.Get(service, account)
	if err != nil {
		return "", ragerr.Wrapf(err, ragerr.CodeSecretResolveFailed, "resolving %q", value)
	}
	return secret, nil
}

// ResolveViper replaces every keyring:// string in v with its secret. It
// runs after the config file is read and before the config is validated.
// Every failing key is reported; resolved keys are applied either way.
func ResolveViper(v *viper.Viper, store Store) error {
	var errs []error
	for _, key := range v.AllKeys() {
		raw, ok := v.Get(key).(string)
		if !ok || !IsReference(raw) {
			continue
		}
		secret, err := Resolve(store, raw)
		if err != nil {
			errs = append(errs, ragerr.Wrapf(err, ragerr.CodeSecretResolveFailed, "config key %s", key))
			continue
		}
		v.Set(key, secret)
	}
	return ragerr.Join(errs...)
}
