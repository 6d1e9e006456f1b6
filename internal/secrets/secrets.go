// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

// Package secrets stores API keys and bot tokens outside the config file and
// resolves keyring://service/account references found in configuration.
package secrets

// DefaultService is the keyring service ragbot stores its secrets under.
const DefaultService = "ragbot"

// Store provides secret storage keyed by service and account.
type Store interface {
	Set(service, account, value string) error
	// Get returns a CodeSecretNotFound error when the account is missing.
	Get(service, account string) (string, error)
	Delete(service, account string) error
	List(service string) ([]string, error)
}
