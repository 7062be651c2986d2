/*
Package factory provides policy and catalog configuration parsing.

PURPOSE:
  Converts external configuration (environment variables, JSON, YAML zone
  catalogs) into engine types. Operators tune the rotation policy without
  code changes; city zone catalogs ship as data files.

LAYERING:
  DefaultPolicy ← JSON overrides ← environment overrides. The environment
  wins so a deployment can pin a single knob without re-shipping the JSON.

ENVIRONMENT VARIABLES:
  MAX_CREWS                    int
  MAX_CREW_SIZE                int
  SUPPORT_CREW_SIZE_CAP        int
  ANCHOR_SIZE_MIN              int
  ANCHOR_SIZE_TARGET           int
  ROTATION_INTERVAL_MINUTES    int
  ANCHOR_REEVALUATION_MINUTES  int
  LOCATION_REQUIRED            bool ("true"/"1")
  WALKING_RADIUS_KM            float
  STRATEGIC_ZONE_NAMES         comma-separated list

USAGE:
  f := factory.NewPolicyFactory()
  f.LoadEnvFile(".env")          // optional, missing file is fine
  policy, err := f.FromEnv(engine.DefaultPolicy())

SEE ALSO:
  - engine/types.go: Policy definition and defaults
  - catalog.go: YAML zone catalog parsing
*/
package factory

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	"github.com/murmuration/rotation-engine/engine"
)

// =============================================================================
// JSON SCHEMA TYPES
// =============================================================================

// PolicyJSON is the JSON representation of the rotation policy. All fields
// are optional; absent fields keep the base value.
type PolicyJSON struct {
	MaxCrews                  *int     `json:"max_crews,omitempty"`
	MaxCrewSize               *int     `json:"max_crew_size,omitempty"`
	SupportCrewSizeCap        *int     `json:"support_crew_size_cap,omitempty"`
	AnchorSizeMin             *int     `json:"anchor_size_min,omitempty"`
	AnchorSizeTarget          *int     `json:"anchor_size_target,omitempty"`
	AnchorCandidateFloor      *int     `json:"anchor_candidate_floor,omitempty"`
	RotationIntervalMinutes   *int     `json:"rotation_interval_minutes,omitempty"`
	AnchorReevaluationMinutes *int     `json:"anchor_reevaluation_minutes,omitempty"`
	LocationRequired          *bool    `json:"location_required,omitempty"`
	WalkingRadiusKm           *float64 `json:"walking_radius_km,omitempty"`
	LocalRadiusKm             *float64 `json:"local_radius_km,omitempty"`
	AnchorFarKm               *float64 `json:"anchor_far_km,omitempty"`
	AnchorBoostKm             *float64 `json:"anchor_boost_km,omitempty"`
	SizeNoiseThreshold        *int     `json:"size_noise_threshold,omitempty"`
	StrategicZoneNames        []string `json:"strategic_zone_names,omitempty"`
}

// =============================================================================
// POLICY FACTORY
// =============================================================================

type PolicyFactory struct{}

func NewPolicyFactory() *PolicyFactory {
	return &PolicyFactory{}
}

// LoadEnvFile loads a dotenv file into the process environment. A missing
// file is not an error; explicit environment always wins over file values.
func (f *PolicyFactory) LoadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	return godotenv.Load(path)
}

// ParsePolicy applies JSON overrides on top of a base policy.
func (f *PolicyFactory) ParsePolicy(configJSON string, base engine.Policy) (engine.Policy, error) {
	var cfg PolicyJSON
	if err := json.Unmarshal([]byte(configJSON), &cfg); err != nil {
		return engine.Policy{}, fmt.Errorf("invalid policy JSON: %w", err)
	}

	p := base
	setInt(&p.MaxCrews, cfg.MaxCrews)
	setInt(&p.MaxCrewSize, cfg.MaxCrewSize)
	setInt(&p.SupportCrewSizeCap, cfg.SupportCrewSizeCap)
	setInt(&p.AnchorSizeMin, cfg.AnchorSizeMin)
	setInt(&p.AnchorSizeTarget, cfg.AnchorSizeTarget)
	setInt(&p.AnchorCandidateFloor, cfg.AnchorCandidateFloor)
	setInt(&p.RotationIntervalMinutes, cfg.RotationIntervalMinutes)
	setInt(&p.AnchorReevaluationMinutes, cfg.AnchorReevaluationMinutes)
	setInt(&p.SizeNoiseThreshold, cfg.SizeNoiseThreshold)
	if cfg.LocationRequired != nil {
		p.LocationRequired = *cfg.LocationRequired
	}
	setFloat(&p.WalkingRadiusKm, cfg.WalkingRadiusKm)
	setFloat(&p.LocalRadiusKm, cfg.LocalRadiusKm)
	setFloat(&p.AnchorFarKm, cfg.AnchorFarKm)
	setFloat(&p.AnchorBoostKm, cfg.AnchorBoostKm)
	if cfg.StrategicZoneNames != nil {
		p.StrategicZoneNames = cfg.StrategicZoneNames
	}

	return p, f.validate(p)
}

// FromEnv applies environment overrides on top of a base policy.
func (f *PolicyFactory) FromEnv(base engine.Policy) (engine.Policy, error) {
	p := base
	var err error

	intVars := []struct {
		name string
		dst  *int
	}{
		{"MAX_CREWS", &p.MaxCrews},
		{"MAX_CREW_SIZE", &p.MaxCrewSize},
		{"SUPPORT_CREW_SIZE_CAP", &p.SupportCrewSizeCap},
		{"ANCHOR_SIZE_MIN", &p.AnchorSizeMin},
		{"ANCHOR_SIZE_TARGET", &p.AnchorSizeTarget},
		{"ROTATION_INTERVAL_MINUTES", &p.RotationIntervalMinutes},
		{"ANCHOR_REEVALUATION_MINUTES", &p.AnchorReevaluationMinutes},
	}
	for _, v := range intVars {
		if raw, ok := os.LookupEnv(v.name); ok {
			*v.dst, err = strconv.Atoi(raw)
			if err != nil {
				return engine.Policy{}, fmt.Errorf("%s: %w", v.name, err)
			}
		}
	}

	if raw, ok := os.LookupEnv("LOCATION_REQUIRED"); ok {
		p.LocationRequired = raw == "true" || raw == "1"
	}
	if raw, ok := os.LookupEnv("WALKING_RADIUS_KM"); ok {
		p.WalkingRadiusKm, err = strconv.ParseFloat(raw, 64)
		if err != nil {
			return engine.Policy{}, fmt.Errorf("WALKING_RADIUS_KM: %w", err)
		}
	}
	if raw, ok := os.LookupEnv("STRATEGIC_ZONE_NAMES"); ok {
		var names []string
		for _, n := range strings.Split(raw, ",") {
			if n = strings.TrimSpace(n); n != "" {
				names = append(names, n)
			}
		}
		p.StrategicZoneNames = names
	}

	return p, f.validate(p)
}

func (f *PolicyFactory) validate(p engine.Policy) error {
	if p.MaxCrews < 1 {
		return fmt.Errorf("max_crews must be at least 1, got %d", p.MaxCrews)
	}
	if p.MaxCrewSize < 1 {
		return fmt.Errorf("max_crew_size must be at least 1, got %d", p.MaxCrewSize)
	}
	if p.AnchorSizeMin > p.AnchorSizeTarget {
		return fmt.Errorf("anchor_size_min %d exceeds anchor_size_target %d", p.AnchorSizeMin, p.AnchorSizeTarget)
	}
	if p.LocalRadiusKm <= 0 || p.WalkingRadiusKm <= 0 {
		return fmt.Errorf("radii must be positive")
	}
	return nil
}

func setInt(dst *int, src *int) {
	if src != nil {
		*dst = *src
	}
}

func setFloat(dst *float64, src *float64) {
	if src != nil {
		*dst = *src
	}
}
