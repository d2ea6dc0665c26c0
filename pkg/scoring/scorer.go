// Package scoring adapts a vision language model into a classifier. The
// model is shown the normalized leaf image and asked for one score per
// label, which makes it interchangeable with a local runtime.
package scoring

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/menta2k/palmscan/pkg/client"
	"github.com/menta2k/palmscan/pkg/processing"
	"github.com/menta2k/palmscan/pkg/tensor"
	"github.com/menta2k/palmscan/pkg/types"
)

// PromptTemplate asks for a JSON score per label. %s is the label list.
const PromptTemplate = `You are a plant pathologist inspecting a photo of a coconut palm leaf.

Score how well the image matches each of these classes:
%s

Return JSON only:
{"scores": {"<class>": 0.0}}

HARD RULES
- Use every class name exactly as written, once.
- Scores are numbers in [0,1] and should sum to 1.
- JSON only. No markdown, no code fences, no comments, no trailing commas.`

// Invoker scores tensors with a vision model
type Invoker struct {
	client client.VisionClient
	model  string
	labels []string
	prompt string
}

// NewInvoker creates a scoring invoker for the given labels
func NewInvoker(c client.VisionClient, model string, labels []string) *Invoker {
	return &Invoker{
		client: c,
		model:  model,
		labels: append([]string(nil), labels...),
		prompt: BuildPrompt(labels),
	}
}

// BuildPrompt renders the prompt for a label list
func BuildPrompt(labels []string) string {
	var b strings.Builder
	for _, l := range labels {
		b.WriteString("- ")
		b.WriteString(l)
		b.WriteString("\n")
	}
	return fmt.Sprintf(PromptTemplate, strings.TrimRight(b.String(), "\n"))
}

// InputEncoding is quantized; the tensor is turned back into a JPEG anyway
func (s *Invoker) InputEncoding() types.Encoding { return types.Quantized }

func (s *Invoker) OutputEncoding() types.Encoding { return types.Float }

// Invoke decodes the tensor into an image, queries the model and returns
// scores aligned with the label list. Labels the model omits score 0.
func (s *Invoker) Invoke(ctx context.Context, in *types.InputTensor) (*types.RawOutput, error) {
	buf, err := tensor.Decode(in)
	if err != nil {
		return nil, err
	}

	imgB64, err := processing.EncodeBase64(processing.ToImage(buf), "jpg", 0, 90)
	if err != nil {
		return nil, fmt.Errorf("failed to encode image: %v", err)
	}

	reply, err := s.client.SimpleQuery(ctx, s.model, s.prompt, imgB64)
	if err != nil {
		return nil, err
	}

	scores, err := ParseScores(reply, s.labels)
	if err != nil {
		return nil, err
	}
	return &types.RawOutput{Floats: scores}, nil
}

type scoreReply struct {
	Scores map[string]json.RawMessage `json:"scores"`
}

// ParseScores extracts per-label scores from a model reply. Label matching
// ignores case and the "_", "-" and " " separators.
func ParseScores(raw string, labels []string) ([]float32, error) {
	raw = sanitizeModelJSON(raw)
	if !strings.HasPrefix(raw, "{") {
		return nil, fmt.Errorf("model returned non-JSON response")
	}

	var reply scoreReply
	if err := json.Unmarshal([]byte(raw), &reply); err != nil {
		return nil, fmt.Errorf("failed to parse model response: %v", err)
	}
	if len(reply.Scores) == 0 {
		return nil, fmt.Errorf("model response has no scores")
	}

	byKey := make(map[string]float32, len(reply.Scores))
	for name, v := range reply.Scores {
		f, err := parseScore(v)
		if err != nil {
			return nil, fmt.Errorf("score for %q: %v", name, err)
		}
		byKey[foldLabel(name)] = clamp01(f)
	}

	out := make([]float32, len(labels))
	for i, l := range labels {
		out[i] = byKey[foldLabel(l)]
	}
	return out, nil
}

// parseScore accepts numbers and numeric strings, with an optional % suffix
func parseScore(v json.RawMessage) (float32, error) {
	var f float64
	if err := json.Unmarshal(v, &f); err == nil {
		return float32(f), nil
	}

	var s string
	if err := json.Unmarshal(v, &s); err != nil {
		return 0, fmt.Errorf("not a number: %s", string(v))
	}
	s = strings.TrimSpace(s)
	percent := strings.HasSuffix(s, "%")
	f, err := strconv.ParseFloat(strings.TrimSuffix(s, "%"), 64)
	if err != nil {
		return 0, fmt.Errorf("not a number: %q", s)
	}
	if percent {
		f /= 100
	}
	return float32(f), nil
}

func foldLabel(s string) string {
	return strings.NewReplacer("_", "", "-", "", " ", "").Replace(strings.ToLower(strings.TrimSpace(s)))
}

func clamp01(v float32) float32 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

var (
	reBlockComment  = regexp.MustCompile(`(?s)/\*.*?\*/`)
	reLineComment   = regexp.MustCompile(`(?m)^\s*//.*$`)
	reTrailingComma = regexp.MustCompile(`,(\s*[}\]])`)
)

// sanitizeModelJSON removes code fences, comments and trailing commas and
// keeps only the outermost object
func sanitizeModelJSON(raw string) string {
	raw = strings.TrimSpace(raw)

	if strings.HasPrefix(raw, "```") {
		if i := strings.Index(raw, "\n"); i >= 0 {
			raw = raw[i+1:]
		}
		if j := strings.LastIndex(raw, "```"); j >= 0 {
			raw = raw[:j]
		}
	}
	raw = strings.Trim(strings.TrimSpace(raw), "`")

	raw = reBlockComment.ReplaceAllString(raw, "")
	raw = reLineComment.ReplaceAllString(raw, "")
	raw = reTrailingComma.ReplaceAllString(raw, "$1")

	if start := strings.Index(raw, "{"); start >= 0 {
		if end := strings.LastIndex(raw, "}"); end > start {
			raw = raw[start : end+1]
		}
	}
	return strings.TrimSpace(raw)
}
