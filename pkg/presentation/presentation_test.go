package presentation

import (
	"strings"
	"testing"

	"github.com/menta2k/palmscan/pkg/types"
)

func TestFormatLabelKnown(t *testing.T) {
	p := FormatLabel("Bud_Rot")

	if p.Emoji != "🦠" || p.StatusText != "Bud Rot Disease" {
		t.Errorf("Unexpected status %q %q", p.Emoji, p.StatusText)
	}
	if p.SeverityTier != TierCritical || p.SeverityLevel() != "🔴 Critical Risk" {
		t.Errorf("Unexpected severity %q", p.SeverityLevel())
	}
	if !strings.HasPrefix(p.Recommendation, "URGENT") {
		t.Errorf("Unexpected recommendation %q", p.Recommendation)
	}
}

func TestFormatLabelIsCaseAndSeparatorInsensitive(t *testing.T) {
	base := FormatLabel("wclwd_yellowing")

	for _, label := range []string{"WCLWD_Yellowing", "wclwd-yellowing", "WCLWD Yellowing", " wclwdyellowing "} {
		if got := FormatLabel(label); got != base {
			t.Errorf("%q: expected %+v, got %+v", label, base, got)
		}
	}
	if base.SeverityTier != TierHigh {
		t.Errorf("Expected High Risk, got %s", base.SeverityTier)
	}
}

func TestFormatLabelTiers(t *testing.T) {
	tiers := map[string]string{
		"Healthy":                TierLow,
		"Healthy_Leaves":         TierLow,
		"CCI_Caterpillars":       TierMedium,
		"CaterpillarInfestation": TierMedium,
		"CCI_Leaflets":           TierMedium,
		"Leaf_Spot":              TierMedium,
		"WCLWD_DryingofLeaflets": TierHigh,
		"WCLWD_Flaccidity":       TierHigh,
		"WCLWD_Yellowing":        TierHigh,
		"Bud_Rot":                TierCritical,
		"Lethal_Yellowing":       TierCritical,
	}

	for label, tier := range tiers {
		if got := FormatLabel(label).SeverityTier; got != tier {
			t.Errorf("%s: expected %s, got %s", label, tier, got)
		}
	}
}

func TestFormatLabelUnknownIsTotal(t *testing.T) {
	for _, label := range []string{"root_wilt", "", "???", "ÜBER_label"} {
		p := FormatLabel(label)
		if p.Emoji != "🔍" || p.SeverityTier != TierUnknown || p.RecommendationIcon != "📱" {
			t.Errorf("%q: unexpected default presentation %+v", label, p)
		}
	}

	if got := FormatLabel("root_wilt").StatusText; got != "Root wilt" {
		t.Errorf("Expected humanized status 'Root wilt', got %q", got)
	}
}

func TestFriendlyName(t *testing.T) {
	names := map[string]string{
		"CCI_Caterpillars":       "Caterpillar Infestation",
		"CCI_Leaflets":           "Coconut Leaflet Disease",
		"Healthy_Leaves":         "Healthy Coconut",
		"WCLWD_DryingofLeaflets": "Leaf Drying Disease",
		"WCLWD_Flaccidity":       "Leaf Flaccidity",
		"WCLWD_Yellowing":        "Leaf Yellowing Disease",
		"Mystery":                "Mystery",
	}

	for label, want := range names {
		if got := FriendlyName(label); got != want {
			t.Errorf("%s: expected %q, got %q", label, want, got)
		}
	}
}

func TestConfidencePercent(t *testing.T) {
	cases := []struct {
		in   float32
		want int
	}{
		{0, 0},
		{1, 100},
		{0.125, 13},
		{0.375, 38},
		{0.9, 90},
		{0.904, 90},
		{-0.2, 0},
		{1.7, 100},
	}

	for _, c := range cases {
		if got := ConfidencePercent(c.in); got != c.want {
			t.Errorf("ConfidencePercent(%v): expected %d, got %d", c.in, c.want, got)
		}
	}
}

func TestRender(t *testing.T) {
	result := &types.ClassificationResult{
		TopLabel:      "Healthy",
		TopConfidence: 0.9,
		Scores: types.ClassScores{
			{Label: "Healthy", Score: 0.9},
			{Label: "CaterpillarInfestation", Score: 0.05},
			{Label: "Leaf_Spot", Score: 0.04},
			{Label: "Bud_Rot", Score: 0.01},
		},
	}

	out := Render(result, Format(result), 3)

	for _, want := range []string{
		"✅ Healthy Tree",
		"Confidence: 90%",
		"🥇 Healthy: 90%",
		"🥈 CaterpillarInfestation: 5%",
		"🥉 Leaf Spot: 4%",
		"🎉 Your dwarf coconut tree looks healthy!",
		"Severity: 🟢 Low Risk",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("Expected output to contain %q, got:\n%s", want, out)
		}
	}

	if strings.Contains(out, "Bud Rot") {
		t.Error("Render should only list the top 3 predictions")
	}

	if Render(result, Format(result), 3) != out {
		t.Error("Render must be deterministic")
	}
}
