package services

import (
	"context"
	"testing"

	"github.com/dmitrijs2005/accountctx/internal/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProxyService(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)

	tests := []struct {
		name    string
		kind    string
		address string
		wantErr error
	}{
		{"http", "http", "proxy.local:3128", nil},
		{"socks5", "socks5", "127.0.0.1:1080", nil},
		{"v2ray", "v2ray", "[::1]:443", nil},
		{"unknown kind", "ftp", "proxy:21", common.ErrorValidation},
		{"no port", "http", "proxy.local", common.ErrorValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := e.proxies.Create(ctx, "u-1", tt.kind, tt.address)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.NotEmpty(t, p.ID)
			assert.Equal(t, "u-1", p.UserID)
		})
	}

	list, err := e.proxies.List(ctx, "u-1")
	require.NoError(t, err)
	assert.Len(t, list, 3)

	list, err = e.proxies.List(ctx, "u-2")
	require.NoError(t, err)
	assert.Empty(t, list)
}
