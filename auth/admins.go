package auth

import (
	"context"
	"fmt"
)

// AdminDirectory lists every administrator: the configured ids plus every
// account holding the admin role.
type AdminDirectory struct {
	repo   Repository
	static []string
}

func NewAdminDirectory(repo Repository, static []string) *AdminDirectory {
	return &AdminDirectory{repo: repo, static: static}
}

func (d *AdminDirectory) Admins(ctx context.Context) ([]string, error) {
	admins, err := d.repo.ListUsersByRole(ctx, RoleAdmin)
	if err != nil {
		return nil, fmt.Errorf("auth: list admins: %w", err)
	}
	seen := make(map[string]struct{}, len(admins)+len(d.static))
	out := make([]string, 0, len(admins)+len(d.static))
	add := func(id string) {
		if _, dup := seen[id]; dup || id == "" {
			return
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	for _, id := range d.static {
		add(id)
	}
	for _, u := range admins {
		if u.IsActive {
			add(u.ID)
		}
	}
	return out, nil
}
