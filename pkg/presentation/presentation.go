// Package presentation maps classifier labels to what a grower sees: a
// status line, a severity tier and a treatment recommendation.
package presentation

import (
	"fmt"
	"math"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/menta2k/palmscan/pkg/decoder"
	"github.com/menta2k/palmscan/pkg/types"
)

// Severity tiers
const (
	TierLow      = "Low Risk"
	TierMedium   = "Medium Risk"
	TierHigh     = "High Risk"
	TierCritical = "Critical Risk"
	TierUnknown  = "Unknown"
)

var tierIcons = map[string]string{
	TierLow:      "🟢",
	TierMedium:   "🟡",
	TierHigh:     "🟠",
	TierCritical: "🔴",
	TierUnknown:  "⚪",
}

type entry struct {
	emoji    string
	status   string
	tier     string
	recIcon  string
	rec      string
	friendly string
}

// Keys are lowercase with separators removed, see key().
var known = map[string]entry{
	"healthy": {
		emoji: "✅", status: "Healthy Tree", tier: TierLow,
		recIcon: "🎉", rec: "Your dwarf coconut tree looks healthy! Continue regular care and monitoring.",
		friendly: "Healthy Coconut",
	},
	"healthyleaves": {
		emoji: "✅", status: "Healthy Tree", tier: TierLow,
		recIcon: "🎉", rec: "Your dwarf coconut tree looks healthy! Continue regular care and monitoring.",
		friendly: "Healthy Coconut",
	},
	"budrot": {
		emoji: "🦠", status: "Bud Rot Disease", tier: TierCritical,
		recIcon: "🚨", rec: "URGENT: Apply fungicide immediately and improve drainage. Remove affected parts.",
		friendly: "Bud Rot",
	},
	"leafspot": {
		emoji: "🍃", status: "Leaf Spot Disease", tier: TierMedium,
		recIcon: "🍃", rec: "Remove affected leaves and apply copper-based fungicide. Monitor closely.",
		friendly: "Leaf Spot",
	},
	"lethalyellowing": {
		emoji: "⚠️", status: "Lethal Yellowing", tier: TierCritical,
		recIcon: "⚠️", rec: "CRITICAL: Contact agricultural extension service immediately. This requires professional treatment.",
		friendly: "Lethal Yellowing",
	},
	"ccicaterpillars": {
		emoji: "🐛", status: "CCI Caterpillars", tier: TierMedium,
		recIcon: "🐛", rec: "Apply appropriate insecticide for caterpillar control. Check for eggs.",
		friendly: "Caterpillar Infestation",
	},
	"caterpillarinfestation": {
		emoji: "🐛", status: "CCI Caterpillars", tier: TierMedium,
		recIcon: "🐛", rec: "Apply appropriate insecticide for caterpillar control. Check for eggs.",
		friendly: "Caterpillar Infestation",
	},
	"ccileaflets": {
		emoji: "🍂", status: "CCI Leaflets", tier: TierMedium,
		recIcon: "🍂", rec: "Monitor leaf health and apply targeted treatment for leaflet issues.",
		friendly: "Coconut Leaflet Disease",
	},
	"wclwddryingofleaflets": {
		emoji: "🥀", status: "WCLWD Drying", tier: TierHigh,
		recIcon: "🥀", rec: "Address water stress and nutrient deficiency. Improve irrigation.",
		friendly: "Leaf Drying Disease",
	},
	"wclwdflaccidity": {
		emoji: "💧", status: "WCLWD Flaccidity", tier: TierHigh,
		recIcon: "💧", rec: "Check soil moisture and drainage. May need improved water management.",
		friendly: "Leaf Flaccidity",
	},
	"wclwdyellowing": {
		emoji: "🟡", status: "WCLWD Yellowing", tier: TierHigh,
		recIcon: "🟡", rec: "Monitor for water and nutrient stress. Consider soil testing.",
		friendly: "Leaf Yellowing Disease",
	},
}

const (
	defaultEmoji   = "🔍"
	defaultRecIcon = "📱"
	defaultRec     = "Consult with agricultural experts for proper diagnosis and treatment."
)

// key folds a label for lookup: case and the separators "_", "-" and " "
// are ignored.
func key(label string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(strings.TrimSpace(label)) {
		switch r {
		case '_', '-', ' ':
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Known reports whether label has a dedicated entry
func Known(label string) bool {
	_, ok := known[key(label)]
	return ok
}

// FormatLabel returns the presentation of a raw label. Unknown labels get a
// generic presentation built from the label itself.
func FormatLabel(label string) types.Presentation {
	e, ok := known[key(label)]
	if !ok {
		return types.Presentation{
			Emoji:              defaultEmoji,
			StatusText:         Humanize(label),
			SeverityTier:       TierUnknown,
			SeverityIcon:       tierIcons[TierUnknown],
			Recommendation:     defaultRec,
			RecommendationIcon: defaultRecIcon,
		}
	}
	return types.Presentation{
		Emoji:              e.emoji,
		StatusText:         e.status,
		SeverityTier:       e.tier,
		SeverityIcon:       tierIcons[e.tier],
		Recommendation:     e.rec,
		RecommendationIcon: e.recIcon,
	}
}

// Format returns the presentation of a classification result
func Format(result *types.ClassificationResult) types.Presentation {
	if result == nil {
		return FormatLabel("")
	}
	return FormatLabel(result.TopLabel)
}

// Humanize replaces underscores with spaces and capitalizes the first letter
func Humanize(label string) string {
	s := strings.ReplaceAll(strings.TrimSpace(label), "_", " ")
	r, n := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + s[n:]
}

// FriendlyName maps a raw model label to the name stored with a scan,
// falling back to the label itself
func FriendlyName(label string) string {
	if e, ok := known[key(label)]; ok {
		return e.friendly
	}
	return label
}

// DisplayName is the status text with its emoji
func DisplayName(label string) string {
	p := FormatLabel(label)
	return p.Emoji + " " + p.StatusText
}

// ConfidencePercent converts a confidence in [0,1] to a whole percentage,
// rounding half up and clamping to [0,100].
func ConfidencePercent(c float32) int {
	v := math.Floor(float64(c)*100 + 0.5)
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return int(v)
}

var medals = []string{"🥇", "🥈", "🥉"}

// Render produces the multi-line result text shown after a classification
func Render(result *types.ClassificationResult, pres types.Presentation, topN int) string {
	var b strings.Builder

	fmt.Fprintf(&b, "%s %s\n", pres.Emoji, pres.StatusText)
	if result == nil {
		return b.String()
	}

	fmt.Fprintf(&b, "Confidence: %d%%\n", ConfidencePercent(result.TopConfidence))

	top := decoder.TopN(result, topN)
	if len(top) > 0 {
		b.WriteString("\nTop predictions:\n")
		for i, p := range top {
			marker := fmt.Sprintf("%d.", i+1)
			if i < len(medals) {
				marker = medals[i]
			}
			fmt.Fprintf(&b, "%s %s: %d%%\n", marker, Humanize(p.Label), ConfidencePercent(p.Confidence))
		}
	}

	fmt.Fprintf(&b, "\n%s %s\n", pres.RecommendationIcon, pres.Recommendation)
	fmt.Fprintf(&b, "Severity: %s\n", pres.SeverityLevel())
	return b.String()
}
