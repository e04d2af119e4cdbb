package notification

import "context"

// AdminRegistry lists every administrator that should receive operational
// notifications.
type AdminRegistry interface {
	Admins(ctx context.Context) ([]string, error)
}

// StaticAdmins is a fixed administrator list, usually from configuration.
type StaticAdmins []string

func (s StaticAdmins) Admins(context.Context) ([]string, error) {
	out := make([]string, len(s))
	copy(out, s)
	return out, nil
}
