// Package auth maps roles to the permissions they grant. Identity and
// credential checks happen upstream; this package only answers "may role R
// do P".
package auth

import (
	"os"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// Role names a set of permissions.
type Role string

// Built-in roles.
const (
	RoleAdmin  Role = "admin"
	RoleEditor Role = "editor"
	RoleViewer Role = "viewer"
)

// Permission is a single capability.
type Permission string

// Permissions checked by the API.
const (
	PermView     Permission = "view"
	PermUpload   Permission = "upload"
	PermEdit     Permission = "edit"
	PermDelete   Permission = "delete"
	PermExport   Permission = "export"
	PermForecast Permission = "forecast"
)

// AllPermissions lists every known permission.
var AllPermissions = []Permission{PermView, PermUpload, PermEdit, PermDelete, PermExport, PermForecast}

// Policy is the role table.
type Policy struct {
	DefaultRole Role
	roles       map[Role]map[Permission]bool
}

// DefaultPolicy returns the built-in table: admins may do everything, editors
// everything but delete, viewers may view and export.
func DefaultPolicy() *Policy {
	p := &Policy{DefaultRole: RoleViewer, roles: map[Role]map[Permission]bool{}}
	p.set(RoleAdmin, AllPermissions)
	p.set(RoleEditor, []Permission{PermView, PermUpload, PermEdit, PermExport, PermForecast})
	p.set(RoleViewer, []Permission{PermView, PermExport})
	return p
}

func (p *Policy) set(role Role, perms []Permission) {
	m := make(map[Permission]bool, len(perms))
	for _, perm := range perms {
		m[perm] = true
	}
	p.roles[role] = m
}

// ParseRole normalizes a role name. Unknown or empty names resolve to the
// policy's default role.
func (p *Policy) ParseRole(name string) Role {
	r := Role(strings.ToLower(strings.TrimSpace(name)))
	if _, ok := p.roles[r]; ok {
		return r
	}
	return p.DefaultRole
}

// HasRole reports whether role is defined.
func (p *Policy) HasRole(role Role) bool {
	_, ok := p.roles[role]
	return ok
}

// Can reports whether role holds perm.
func (p *Policy) Can(role Role, perm Permission) bool {
	return p.roles[role][perm]
}

// Permissions returns the permissions of role in a stable order.
func (p *Policy) Permissions(role Role) []Permission {
	out := make([]Permission, 0, len(p.roles[role]))
	for perm, ok := range p.roles[role] {
		if ok {
			out = append(out, perm)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Roles returns the configured role names in sorted order.
func (p *Policy) Roles() []Role {
	out := make([]Role, 0, len(p.roles))
	for r := range p.roles {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// fileConfig is the YAML shape of a roles file:
//
//	default_role: viewer
//	roles:
//	  analyst: [view, export, forecast]
type fileConfig struct {
	DefaultRole string              `yaml:"default_role"`
	Roles       map[string][]string `yaml:"roles"`
}

// LoadPolicy reads a roles file and layers it over DefaultPolicy. Roles in
// the file replace built-in roles of the same name.
func LoadPolicy(path string) (*Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "auth: read roles %s", path)
	}
	return ParsePolicy(data)
}

// ParsePolicy is LoadPolicy for in-memory YAML.
func ParsePolicy(data []byte) (*Policy, error) {
	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, eris.Wrap(err, "auth: parse roles")
	}

	known := make(map[Permission]bool, len(AllPermissions))
	for _, perm := range AllPermissions {
		known[perm] = true
	}

	p := DefaultPolicy()
	for name, perms := range fc.Roles {
		role := Role(strings.ToLower(strings.TrimSpace(name)))
		if role == "" {
			return nil, eris.New("auth: empty role name")
		}
		list := make([]Permission, 0, len(perms))
		for _, s := range perms {
			perm := Permission(strings.ToLower(strings.TrimSpace(s)))
			if !known[perm] {
				return nil, eris.Errorf("auth: role %s: unknown permission %q", role, s)
			}
			list = append(list, perm)
		}
		p.set(role, list)
	}

	if fc.DefaultRole != "" {
		def := Role(strings.ToLower(strings.TrimSpace(fc.DefaultRole)))
		if _, ok := p.roles[def]; !ok {
			return nil, eris.Errorf("auth: default role %q is not defined", fc.DefaultRole)
		}
		p.DefaultRole = def
	}
	return p, nil
}
