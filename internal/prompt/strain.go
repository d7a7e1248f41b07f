package prompt

import "fmt"

// Tier is the degradation level computed from requested size vs hard
// budget. Higher tiers shed more optional payload sections.
type Tier int

const (
	TierNormal Tier = iota
	TierI
	TierII
	TierIII
)

func (t Tier) String() string {
	switch t {
	case TierNormal:
		return "normal"
	case TierI:
		return "I"
	case TierII:
		return "II"
	case TierIII:
		return "III"
	}
	return fmt.Sprintf("Tier(%d)", int(t))
}

// ParseTier converts a config string into a Tier.
func ParseTier(s string) (Tier, error) {
	switch s {
	case "", "normal":
		return TierNormal, nil
	case "I", "1":
		return TierI, nil
	case "II", "2":
		return TierII, nil
	case "III", "3":
		return TierIII, nil
	}
	return TierNormal, fmt.Errorf("unknown strain tier %q", s)
}

// StrainThresholds are the usage ratios at which each tier begins.
type StrainThresholds struct {
	Elevated float64 // below this: normal
	High     float64 // below this: tier I
	Critical float64 // below this: tier II, at or above: tier III
}

// DefaultStrainThresholds returns the standard 60/75/90% cut points.
func DefaultStrainThresholds() StrainThresholds {
	return StrainThresholds{Elevated: 0.60, High: 0.75, Critical: 0.90}
}

// Classify computes the strain tier from the pre-trim requested size and
// the hard budget. Pure function, recomputed fresh every pack; no
// hysteresis across turns.
func Classify(requested, hardMax int, th StrainThresholds) Tier {
	if hardMax <= 0 {
		return TierIII
	}
	ratio := float64(requested) / float64(hardMax)
	switch {
	case ratio < th.Elevated:
		return TierNormal
	case ratio < th.High:
		return TierI
	case ratio < th.Critical:
		return TierII
	}
	return TierIII
}
