package analyzer

import (
	"encoding/json"
	"strings"

	"remora/internal/core"
)

// parseRecommendation decodes the oracle reply. Providers without a native
// JSON response mode occasionally wrap the object in a markdown fence, so
// fences are stripped before decoding.
func parseRecommendation(content string) (*core.Recommendation, error) {
	payload := stripFences(content)

	var rec core.Recommendation
	if err := json.Unmarshal([]byte(payload), &rec); err != nil {
		return nil, core.Errorf(core.ErrLLMFailed, "parse recommendation: %v", err)
	}

	rec.Action = core.TradeAction(strings.ToUpper(strings.TrimSpace(string(rec.Action))))
	if rec.Action == "" {
		return nil, core.Errorf(core.ErrLLMFailed, "recommendation missing action")
	}
	return &rec, nil
}

func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	if rest, ok := strings.CutPrefix(s, "```json"); ok {
		s = rest
	} else {
		s = strings.TrimPrefix(s, "```")
	}
	if i := strings.LastIndex(s, "```"); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}
