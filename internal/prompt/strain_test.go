package prompt

import "testing"

func TestClassifyThresholds(t *testing.T) {
	th := DefaultStrainThresholds()
	cases := []struct {
		name      string
		requested int
		hardMax   int
		want      Tier
	}{
		{"empty", 0, 1000, TierNormal},
		{"just under elevated", 599, 1000, TierNormal},
		{"at elevated", 600, 1000, TierI},
		{"just under high", 749, 1000, TierI},
		{"at high", 750, 1000, TierII},
		{"just under critical", 899, 1000, TierII},
		{"at critical", 900, 1000, TierIII},
		{"ninety-two percent", 920, 1000, TierIII},
		{"over capacity", 1500, 1000, TierIII},
		{"zero hard max", 100, 0, TierIII},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Classify(tc.requested, tc.hardMax, th); got != tc.want {
				t.Errorf("Classify(%d, %d) = %s, want %s", tc.requested, tc.hardMax, got, tc.want)
			}
		})
	}
}

func TestClassifyIsStateless(t *testing.T) {
	th := DefaultStrainThresholds()
	// No hysteresis: the same inputs give the same tier no matter what
	// came before.
	if Classify(899, 1000, th) != TierII || Classify(901, 1000, th) != TierIII || Classify(899, 1000, th) != TierII {
		t.Error("classification depends on call history")
	}
}

func TestParseTier(t *testing.T) {
	for s, want := range map[string]Tier{"": TierNormal, "normal": TierNormal, "I": TierI, "II": TierII, "III": TierIII} {
		got, err := ParseTier(s)
		if err != nil || got != want {
			t.Errorf("ParseTier(%q) = %s, %v; want %s", s, got, err, want)
		}
	}
	if _, err := ParseTier("IV"); err == nil {
		t.Error("ParseTier accepted unknown tier")
	}
}
