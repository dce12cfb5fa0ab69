// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package tenant_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stacklok/toolgate/pkg/bridge"
	"github.com/stacklok/toolgate/pkg/bridge/config"
	"github.com/stacklok/toolgate/pkg/bridge/tenant"
)

var (
	tokenA     = "t-" + strings.Repeat("a", 30)
	tokenB     = "t-" + strings.Repeat("b", 30)
	workerTokB = "w-" + strings.Repeat("b", 30)
	workerTokC = "w-" + strings.Repeat("c", 30)
	adminTok   = "adm-" + strings.Repeat("c", 30)
)

func twoTenants() []config.APISpaceConfig {
	return []config.APISpaceConfig{
		{Name: "T1", BearerToken: tokenA, AllowedClientTokens: []string{workerTokB}},
		{Name: "T2", BearerToken: tokenB, AllowedClientTokens: []string{workerTokB, workerTokC}},
	}
}

func TestNewRegistry(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name          string
		spaces        []config.APISpaceConfig
		adminToken    string
		expectError   bool
		errorContains string
	}{
		{
			name:       "two tenants",
			spaces:     twoTenants(),
			adminToken: adminTok,
		},
		{
			name:          "no tenants",
			spaces:        nil,
			adminToken:    adminTok,
			expectError:   true,
			errorContains: "at least one tenant",
		},
		{
			name: "duplicate bearer token",
			spaces: []config.APISpaceConfig{
				{Name: "T1", BearerToken: tokenA, AllowedClientTokens: []string{workerTokB}},
				{Name: "T2", BearerToken: tokenA, AllowedClientTokens: []string{workerTokC}},
			},
			adminToken:    adminTok,
			expectError:   true,
			errorContains: "share a bearer token",
		},
		{
			name: "tenant token collides with admin token",
			spaces: []config.APISpaceConfig{
				{Name: "T1", BearerToken: adminTok, AllowedClientTokens: []string{workerTokB}},
			},
			adminToken:    adminTok,
			expectError:   true,
			errorContains: "admin token",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			reg, err := tenant.NewRegistry(tt.spaces, tt.adminToken)
			if tt.expectError {
				require.Error(t, err)
				assert.ErrorIs(t, err, bridge.ErrInvalidConfig)
				assert.Contains(t, err.Error(), tt.errorContains)
				return
			}
			require.NoError(t, err)
			require.NotNil(t, reg)
		})
	}
}

func TestRegistryLookups(t *testing.T) {
	t.Parallel()

	reg, err := tenant.NewRegistry(twoTenants(), adminTok)
	require.NoError(t, err)

	t1 := reg.ByToken(tokenA)
	require.NotNil(t, t1)
	assert.Equal(t, "T1", t1.Name)
	assert.Nil(t, reg.ByToken("unknown"))
	assert.Nil(t, reg.ByToken(adminTok), "admin token is not a tenant token")

	hash := bridge.TokenHash(tokenA)
	assert.Same(t, t1, reg.ByHash(hash))
	assert.Nil(t, reg.ByHash("0000000000000000"))
	assert.Equal(t, hash, reg.TokenHash(t1))
}

func TestRegistryAdmitting(t *testing.T) {
	t.Parallel()

	reg, err := tenant.NewRegistry(twoTenants(), adminTok)
	require.NoError(t, err)

	both := reg.Admitting(workerTokB)
	require.Len(t, both, 2)
	assert.Equal(t, "T1", both[0].Name, "configuration order is preserved")
	assert.Equal(t, "T2", both[1].Name)

	only := reg.Admitting(workerTokC)
	require.Len(t, only, 1)
	assert.Equal(t, "T2", only[0].Name)

	assert.Empty(t, reg.Admitting("w-"+strings.Repeat("z", 30)))
	assert.True(t, reg.KnowsWorkerToken(workerTokB))
	assert.False(t, reg.KnowsWorkerToken("w-"+strings.Repeat("z", 30)))

	t1 := reg.ByToken(tokenA)
	assert.True(t, reg.Admits(t1, workerTokB))
	assert.False(t, reg.Admits(t1, workerTokC))
	assert.False(t, reg.Admits(nil, workerTokB))
}

func TestRegistryList(t *testing.T) {
	t.Parallel()

	reg, err := tenant.NewRegistry(twoTenants(), adminTok)
	require.NoError(t, err)

	list := reg.List()
	require.Len(t, list, 2)
	assert.Equal(t, "T1", list[0].Name)
	assert.Equal(t, "T2", list[1].Name)
}
