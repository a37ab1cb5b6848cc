// SPDX-License-Identifier: MIT
package scale

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Load reads a scale definition from a YAML file. If path does not exist
// as given, a ".yaml" suffix is tried before failing.
func Load(path string) (*Scale, error) {
	if _, err := os.Stat(path); err != nil {
		if alt := path + ".yaml"; fileExists(alt) {
			path = alt
		}
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("scale: failed to read %s: %w", path, err)
	}

	var def Definition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, fmt.Errorf("scale: failed to parse %s: %w", path, err)
	}
	s, err := New(def)
	if err != nil {
		return nil, fmt.Errorf("scale: invalid definition in %s: %w", path, err)
	}
	return s, nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
