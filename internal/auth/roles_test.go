package auth

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultPolicy(t *testing.T) {
	t.Parallel()

	p := DefaultPolicy()
	tests := []struct {
		role Role
		perm Permission
		want bool
	}{
		{RoleAdmin, PermDelete, true},
		{RoleAdmin, PermForecast, true},
		{RoleEditor, PermUpload, true},
		{RoleEditor, PermEdit, true},
		{RoleEditor, PermDelete, false},
		{RoleViewer, PermView, true},
		{RoleViewer, PermExport, true},
		{RoleViewer, PermUpload, false},
		{Role("ghost"), PermView, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.role)+"/"+string(tt.perm), func(t *testing.T) {
			assert.Equal(t, tt.want, p.Can(tt.role, tt.perm))
		})
	}
	assert.Equal(t, []Role{RoleAdmin, RoleEditor, RoleViewer}, p.Roles())
	assert.Equal(t, []Permission{PermExport, PermView}, p.Permissions(RoleViewer))
}

func TestParseRole(t *testing.T) {
	t.Parallel()

	p := DefaultPolicy()
	assert.Equal(t, RoleAdmin, p.ParseRole(" Admin "))
	assert.Equal(t, RoleViewer, p.ParseRole(""))
	assert.Equal(t, RoleViewer, p.ParseRole("root"))
	assert.True(t, p.HasRole(RoleEditor))
	assert.False(t, p.HasRole("root"))
}

func TestParsePolicy(t *testing.T) {
	t.Parallel()

	p, err := ParsePolicy([]byte(`
default_role: analyst
roles:
  Analyst: [view, export, Forecast]
  viewer: [view]
`))
	require.NoError(t, err)
	assert.Equal(t, Role("analyst"), p.DefaultRole)
	assert.True(t, p.Can("analyst", PermForecast))
	assert.False(t, p.Can(RoleViewer, PermExport), "file replaces the built-in viewer")
	assert.True(t, p.Can(RoleAdmin, PermDelete), "built-in roles not in the file remain")
	assert.Equal(t, Role("analyst"), p.ParseRole("nobody"))
}

func TestParsePolicy_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"bad yaml", "roles: [", "auth: parse roles"},
		{"unknown permission", "roles:\n  ops: [view, reboot]\n", `unknown permission "reboot"`},
		{"undefined default", "default_role: ghost\n", "is not defined"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParsePolicy([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoadPolicy(t *testing.T) {
	path := filepath.Join(t.TempDir(), "roles.yaml")
	require.NoError(t, os.WriteFile(path, []byte("roles:\n  auditor: [view]\n"), 0o644))

	p, err := LoadPolicy(path)
	require.NoError(t, err)
	assert.True(t, p.Can("auditor", PermView))

	_, err = LoadPolicy(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "auth: read roles")
}
