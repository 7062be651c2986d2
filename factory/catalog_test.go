package factory_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/murmuration/rotation-engine/engine"
	"github.com/murmuration/rotation-engine/factory"
)

const validCatalog = `
zones:
  - id: city-hall
    name: City Hall
    kind: primary
    lat: 34.0537
    lng: -118.2428
  - id: precinct
    name: Precinct Block
    kind: avoid
    lat: 34.0441
    lng: -118.2401
    active: false
`

func TestParseZoneCatalog_Valid(t *testing.T) {
	zones, err := factory.ParseZoneCatalog([]byte(validCatalog))
	require.NoError(t, err)
	require.Len(t, zones, 2)

	require.Equal(t, engine.ZoneID("city-hall"), zones[0].ID)
	require.Equal(t, engine.ZonePrimary, zones[0].Kind)
	require.True(t, zones[0].Active, "active defaults to true")
	require.InDelta(t, 34.0537, zones[0].Center.Lat, 1e-9)

	require.Equal(t, engine.ZoneAvoid, zones[1].Kind)
	require.False(t, zones[1].Active)
}

func TestParseZoneCatalog_Invalid(t *testing.T) {
	cases := []struct {
		name string
		yaml string
	}{
		{"not yaml", `zones: [`},
		{"empty", `zones: []`},
		{"missing id", "zones:\n  - name: X\n    kind: primary\n"},
		{"missing name", "zones:\n  - id: x\n    kind: primary\n"},
		{"bad kind", "zones:\n  - id: x\n    name: X\n    kind: tertiary\n"},
		{"lat out of range", "zones:\n  - id: x\n    name: X\n    kind: primary\n    lat: 91\n"},
		{"duplicate id", "zones:\n  - id: x\n    name: X\n    kind: primary\n  - id: x\n    name: Y\n    kind: secondary\n"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := factory.ParseZoneCatalog([]byte(tc.yaml))
			require.Error(t, err)
		})
	}
}
