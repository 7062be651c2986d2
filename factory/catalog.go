/*
catalog.go - YAML zone catalog parsing

PURPOSE:
  City zone catalogs ship as YAML data files: one entry per zone with its
  kind, center coordinate, and active flag. The factory validates and
  converts them into engine.Zone values for seeding the store.

YAML SCHEMA:
  zones:
    - id: city-hall
      name: City Hall
      kind: primary          # primary | secondary | avoid
      lat: 34.0537
      lng: -118.2428
      active: true

SEE ALSO:
  - policy.go: Policy configuration parsing
  - api/scenarios.go: Built-in demo catalogs using this format
*/
package factory

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/murmuration/rotation-engine/engine"
)

// CatalogYAML is the file-level YAML structure.
type CatalogYAML struct {
	Zones []ZoneYAML `yaml:"zones"`
}

// ZoneYAML is one zone entry.
type ZoneYAML struct {
	ID     string  `yaml:"id"`
	Name   string  `yaml:"name"`
	Kind   string  `yaml:"kind"`
	Lat    float64 `yaml:"lat"`
	Lng    float64 `yaml:"lng"`
	Active *bool   `yaml:"active,omitempty"` // Defaults to true
}

// ParseZoneCatalog parses and validates a YAML zone catalog.
func ParseZoneCatalog(data []byte) ([]engine.Zone, error) {
	var cat CatalogYAML
	if err := yaml.Unmarshal(data, &cat); err != nil {
		return nil, fmt.Errorf("invalid catalog YAML: %w", err)
	}
	if len(cat.Zones) == 0 {
		return nil, fmt.Errorf("catalog has no zones")
	}

	seen := make(map[string]bool, len(cat.Zones))
	zones := make([]engine.Zone, 0, len(cat.Zones))
	for i, zy := range cat.Zones {
		if zy.ID == "" {
			return nil, fmt.Errorf("zone %d: missing id", i)
		}
		if seen[zy.ID] {
			return nil, fmt.Errorf("zone %q: duplicate id", zy.ID)
		}
		seen[zy.ID] = true
		if zy.Name == "" {
			return nil, fmt.Errorf("zone %q: missing name", zy.ID)
		}
		kind := engine.ZoneKind(zy.Kind)
		if !kind.Valid() {
			return nil, fmt.Errorf("zone %q: unknown kind %q", zy.ID, zy.Kind)
		}
		if zy.Lat < -90 || zy.Lat > 90 || zy.Lng < -180 || zy.Lng > 180 {
			return nil, fmt.Errorf("zone %q: coordinate out of range", zy.ID)
		}

		active := true
		if zy.Active != nil {
			active = *zy.Active
		}
		zones = append(zones, engine.Zone{
			ID:     engine.ZoneID(zy.ID),
			Name:   zy.Name,
			Kind:   kind,
			Center: engine.Coordinate{Lat: zy.Lat, Lng: zy.Lng},
			Active: active,
		})
	}
	return zones, nil
}
