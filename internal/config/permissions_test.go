// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

//go:build !windows

package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/sigil-dev/ragbot/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWarnInsecurePermissions(t *testing.T) {
	tests := []struct {
		name       string
		perm       os.FileMode
		expectWarn bool
	}{
		{name: "owner only 0600", perm: 0o600},
		{name: "read only 0400", perm: 0o400},
		{name: "group readable 0640", perm: 0o640, expectWarn: true},
		{name: "other readable 0604", perm: 0o604, expectWarn: true},
		{name: "world readable 0644", perm: 0o644, expectWarn: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "ragbot.yaml")
			require.NoError(t, os.WriteFile(path, []byte("rag:\n  k: 3\n"), 0o600))
			require.NoError(t, os.Chmod(path, tt.perm))

			assert.Equal(t, tt.expectWarn, config.WarnInsecurePermissions(path))
		})
	}
}

func TestWarnInsecurePermissions_MissingOrEmptyPath(t *testing.T) {
	assert.False(t, config.WarnInsecurePermissions(""))
	assert.False(t, config.WarnInsecurePermissions(filepath.Join(t.TempDir(), "absent.yaml")))
}
