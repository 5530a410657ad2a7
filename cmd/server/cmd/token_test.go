package cmd

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vovakirdan/campuschat/internal/app"
	"github.com/vovakirdan/campuschat/internal/auth"
	"github.com/vovakirdan/campuschat/internal/config"
)

func TestTokenCommandSignsVerifiableToken(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"token", "--config", path, "--user", "u42", "--name", "Ada"})
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetArgs(nil)
	})

	require.NoError(t, rootCmd.Execute())

	cfg, _, err := config.Load(nil, path)
	require.NoError(t, err)

	ident, err := auth.NewService(app.NewJWTConfig(&cfg)).Authenticate(context.Background(), strings.TrimSpace(out.String()))
	require.NoError(t, err)
	require.Equal(t, "u42", ident.UserID)
	require.Equal(t, "Ada", ident.Name)
}
