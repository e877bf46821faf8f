// Package inventory resolves the set of hosts a run operates on.
// Hosts come from a static YAML file or from the CONS3RT deployment
// API, and carry the credentials recorded by the external phase that
// created them.
package inventory

import (
	"context"
	"fmt"
)

// Host is a single inventory entry. CreatedUsername and CreatedPassword
// are recorded by the external provisioning phase that created the host;
// either may be empty, in which case the operator's normal SSH identity
// is used instead.
type Host struct {
	Name            string            `yaml:"name" json:"name"`
	Addr            string            `yaml:"addr,omitempty" json:"addr,omitempty"`
	Port            int               `yaml:"port,omitempty" json:"port,omitempty"`
	CreatedUsername string            `yaml:"created_username,omitempty" json:"created_username,omitempty"`
	CreatedPassword string            `yaml:"created_password,omitempty" json:"created_password,omitempty"`
	Vars            map[string]string `yaml:"vars,omitempty" json:"vars,omitempty"`
}

// Target returns the dial string for the host: addr (or name) with an
// optional port suffix. The SSH layer parses this back apart and applies
// ssh_config resolution on the hostname part.
func (h Host) Target() string {
	addr := h.Addr
	if addr == "" {
		addr = h.Name
	}
	if h.Port != 0 {
		return fmt.Sprintf("%s:%d", addr, h.Port)
	}
	return addr
}

// Source produces inventory hosts. Both the file and CONS3RT sources
// implement it.
type Source interface {
	Hosts(ctx context.Context) ([]Host, error)
}
