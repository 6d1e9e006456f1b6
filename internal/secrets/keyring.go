// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package secrets

import (
	"encoding/json"
	"errors"
	"log/slog"
	"slices"

	ragerr "github.com/sigil-dev/ragbot/pkg/errors"
	"github.com/zalando/go-keyring"
)

// indexAccount holds the JSON list of account names for a service, since
// go-keyring cannot enumerate entries.
const indexAccount = "::accounts"

// KeyringStore implements Store on the OS keyring (Keychain, Secret Service
// or Windows Credential Manager).
type KeyringStore struct{}

// NewKeyringStore returns a KeyringStore.
func NewKeyringStore() *KeyringStore {
	return &KeyringStore{}
}

func checkNames(op, service, account string) error {
	if service == "" {
		return ragerr.New(ragerr.CodeSecretInputInvalid, op+": service must not be empty")
	}
	if account == "" {
		return ragerr.New(ragerr.CodeSecretInputInvalid, op+": account must not be empty")
	}
	if account == indexAccount {
		return ragerr.Errorf(ragerr.CodeSecretInputInvalid, "%s: account name %q is reserved", op, account)
	}
	return nil
}

func (s *KeyringStore) Set(service, account, value string) error {
	if err := checkNames("secret set", service, account); err != nil {
		return err
	}
	if err := keyring.Set(service, account, value); err != nil {
		return ragerr.Wrapf(err, ragerr.CodeSecretStoreFailure, "storing secret %s/%s", service, account)
	}

	accounts, err := s.List(service)
	if err != nil {
		return err
	}
	if slices.Contains(accounts, account) {
		return nil
	}
	return s.saveIndex(service, append(accounts, account))
}

func (s *KeyringStore) Get(service, account string) (string, error) {
	if err := checkNames("secret get", service, account); err != nil {
		return "", err
	}
	val, err := keyring.Get(service, account)
	if errors.Is(err, keyring.ErrNotFound) {
		return "", ragerr.Errorf(ragerr.CodeSecretNotFound, "secret %s/%s not found", service, account)
	}
	if err != nil {
		return "", ragerr.Wrapf(err, ragerr.CodeSecretStoreFailure, "reading secret %s/%s", service, account)
	}
	return val, nil
}

func (s *KeyringStore) Delete(service, account string) error {
	if err := checkNames("secret delete", service, account); err != nil {
		return err
	}
	err := keyring.Delete(service, account)
	if errors.Is(err, keyring.ErrNotFound) {
		return ragerr.Errorf(ragerr.CodeSecretNotFound, "secret %s/%s not found", service, account)
	}
	if err != nil {
		return ragerr.Wrapf(err, ragerr.CodeSecretStoreFailure, "deleting secret %s/%s", service, account)
	}

	accounts, err := s.List(service)
	if err != nil {
		return err
	}
	return s.saveIndex(service, slices.DeleteFunc(accounts, func(a string) bool { return a == account }))
}

// List returns the account names stored under service, in insertion order.
func (s *KeyringStore) List(service string) ([]string, error) {
	raw, err := keyring.Get(service, indexAccount)
	if errors.Is(err, keyring.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, ragerr.Wrapf(err, ragerr.CodeSecretStoreFailure, "loading account index for %s", service)
	}

	var accounts []string
	if err := json.Unmarshal([]byte(raw), &accounts); err != nil {
		return nil, ragerr.Wrapf(err, ragerr.CodeSecretStoreFailure, "decoding account index for %s", service)
	}
	return accounts, nil
}

func (s *KeyringStore) saveIndex(service string, accounts []string) error {
	if len(accounts) == 0 {
		if err := keyring.Delete(service, indexAccount); err != nil && !errors.Is(err, keyring.ErrNotFound) {
			slog.Debug("removing empty account index", "service", service, "error", err)
		}
		return nil
	}

	data, err := json.Marshal(accounts)
	if err != nil {
		return ragerr.Wrapf(err, ragerr.CodeSecretStoreFailure, "encoding account index for %s", service)
	}
	if err := keyring.Set(service, indexAccount, string(data)); err != nil {
		return ragerr.Wrapf(err, ragerr.CodeSecretStoreFailure, "saving account index for %s", service)
	}
	return nil
}
