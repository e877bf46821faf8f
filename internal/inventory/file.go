package inventory

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/enrollkit/enroll/internal/errors"
	"github.com/enrollkit/enroll/internal/util"
)

// fileDocument is the on-disk shape of a static inventory file.
type fileDocument struct {
	Hosts []Host `yaml:"hosts"`
}

// FileSource reads hosts from a static YAML inventory file.
type FileSource struct {
	Path string
}

// NewFileSource creates a file-backed inventory source. A leading ~ in
// the path is expanded.
func NewFileSource(path string) *FileSource {
	return &FileSource{Path: util.ExpandUser(path)}
}

// Hosts loads and validates the inventory file.
func (s *FileSource) Hosts(_ context.Context) ([]Host, error) {
	data, err := os.ReadFile(s.Path)
	if err != nil {
		return nil, errors.WrapWithCode(err, errors.ErrInventory,
			fmt.Sprintf("Cannot read inventory file: %s", s.Path),
			"Check that the file exists and the path in .enroll.yaml is correct")
	}

	var doc fileDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, errors.WrapWithCode(err, errors.ErrInventory,
			fmt.Sprintf("Invalid YAML in inventory file: %s", s.Path),
			"Fix the syntax error shown above")
	}

	if len(doc.Hosts) == 0 {
		return nil, errors.New(errors.ErrInventory,
			fmt.Sprintf("Inventory file has no hosts: %s", s.Path),
			"Add entries under the top-level 'hosts:' list")
	}

	seen := make(map[string]bool, len(doc.Hosts))
	for i, h := range doc.Hosts {
		if h.Name == "" {
			return nil, errors.New(errors.ErrInventory,
				fmt.Sprintf("Inventory host #%d has no name", i+1),
				"Every host entry needs a 'name' field")
		}
		if seen[h.Name] {
			return nil, errors.New(errors.ErrInventory,
				fmt.Sprintf("Duplicate host name in inventory: %s", h.Name),
				"Host names must be unique")
		}
		seen[h.Name] = true
	}

	return doc.Hosts, nil
}
