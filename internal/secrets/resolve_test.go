// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package secrets_test

import (
	"testing"

	"github.com/sigil-dev/ragbot/internal/secrets"
	ragerr "github.com/sigil-dev/ragbot/pkg/errors"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseReference(t *testing.T) {
	tests := []struct {
		ref     string
		service string
		account string
		wantErr bool
	}{
		{"keyring://ragbot/groq-api-key", "ragbot", "groq-api-key", false},
		{"keyring://ragbot/nested/account", "ragbot", "nested/account", false},
		{"keyring://ragbot", "", "", true},
		{"keyring:///account", "", "", true},
		{"keyring://ragbot/", "", "", true},
		{"gsk-plain-value", "", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.ref, func(t *testing.T) {
			service, account, err := secrets.ParseReference(tt.ref)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, ragerr.IsInvalidInput(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.service, service)
			assert.Equal(t, tt.account, account)
		})
	}
}

func TestReferenceRoundTrip(t *testing.T) {
	ref := secrets.Reference(secrets.DefaultService, "telegram-token")
	assert.Equal(t, "keyring://ragbot/telegram-token", ref)
	assert.True(t, secrets.IsReference(ref))
}

func TestResolve(t *testing.T) {
	ks := secrets.NewKeyringStore()
	require.NoError(t, ks.Set("test-resolve", "key", "resolved"))

	val, err := secrets.Resolve(ks, "plain")
	require.NoError(t, err)
	assert.Equal(t, "plain", val)

	val, err = secrets.Resolve(ks, "keyring://test-resolve/key")
	require.NoError(t, err)
	assert.Equal(t, "resolved", val)

	_, err = secrets.Resolve(ks, "keyring://test-resolve/missing")
	require.Error(t, err)
	assert.True(t, ragerr.IsNotFound(err))
}

func TestResolveViper(t *testing.T) {
	ks := secrets.NewKeyringStore()
	require.NoError(t, ks.Set("ragbot-test", "groq-api-key", "gsk-secret"))
	require.NoError(t, ks.Set("ragbot-test", "telegram-token", "123:abc"))

	v := viper.New()
	v.Set("providers.groq.api_key", "keyring://ragbot-test/groq-api-key")
	v.Set("telegram.token", "keyring://ragbot-test/telegram-token")
	v.Set("server.listen", "127.0.0.1:8080")
	v.Set("rag.k", 5)

	require.NoError(t, secrets.ResolveViper(v, ks))

	assert.Equal(t, "gsk-secret", v.GetString("providers.groq.api_key"))
	assert.Equal(t, "123:abc", v.GetString("telegram.token"))
	assert.Equal(t, "127.0.0.1:8080", v.GetString("server.listen"))
	assert.Equal(t, 5, v.GetInt("rag.k"))
}

func TestResolveViper_ReportsMissingSecrets(t *testing.T) {
	ks := secrets.NewKeyringStore()
	require.NoError(t, ks.Set("ragbot-partial", "present", "ok"))

	v := viper.New()
	v.Set("providers.groq.api_key", "keyring://ragbot-partial/absent")
	v.Set("telegram.token", "keyring://ragbot-partial/present")

	err := secrets.ResolveViper(v, ks)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "providers.groq.api_key")
	assert.Equal(t, "ok", v.GetString("telegram.token"))
}
