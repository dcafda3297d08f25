package generation

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
)

// Extraction rules, in priority order. The worker has shipped several payload
// shapes over time; the first path that yields a value wins.
var (
	statusPaths = []string{
		"status",
		"result.status",
		"state",
		"result.state",
		"data.status",
	}

	progressPaths = []string{
		"progress",
		"result.progress",
		"percent",
		"result.percent",
		"percentage",
		"data.progress",
	}

	resultURLPaths = []string{
		"result.image_url",
		"result.cloud_url",
		"result.imageUrl",
		"result.url",
		"result.output_url",
		"result.images.0.url",
		"result.images.0",
		"result",
		"image_url",
		"cloud_url",
		"imageUrl",
		"url",
		"output.image_url",
		"data.image_url",
	}

	generationTimePaths = []string{
		"result.generation_time",
		"result.generation_time_seconds",
		"result.meta.generation_time",
		"generation_time",
		"generation_time_seconds",
	}

	errorTextPaths = []string{
		"error.message",
		"error",
		"result.error",
		"error_message",
		"detail",
		"message",
		"result.message",
	}
)

// phaseAliases maps every status string seen in the wild to a phase.
// Keys are lowercased with '-' and ' ' folded to '_'.
var phaseAliases = map[string]Phase{
	"pending":     PhasePending,
	"queued":      PhasePending,
	"in_queue":    PhasePending,
	"waiting":     PhasePending,
	"submitted":   PhasePending,
	"created":     PhasePending,
	"generating":  PhaseGenerating,
	"processing":  PhaseGenerating,
	"running":     PhaseGenerating,
	"in_progress": PhaseGenerating,
	"started":     PhaseGenerating,
	"success":     PhaseSuccess,
	"succeeded":   PhaseSuccess,
	"successful":  PhaseSuccess,
	"completed":   PhaseSuccess,
	"complete":    PhaseSuccess,
	"done":        PhaseSuccess,
	"finished":    PhaseSuccess,
	"failure":     PhaseFailure,
	"failed":      PhaseFailure,
	"fail":        PhaseFailure,
	"error":       PhaseFailure,
	"errored":     PhaseFailure,
	"cancelled":   PhaseFailure,
	"canceled":    PhaseFailure,
}

// NormalizeStatusSnapshot turns a raw status payload into a StatusSnapshot.
// Unknown or missing statuses normalize to PhasePending so the caller keeps polling,
// except that a payload with no status but a usable result URL is treated as a success.
func NormalizeStatusSnapshot(raw []byte) (StatusSnapshot, error) {
	if !gjson.ValidBytes(raw) {
		return StatusSnapshot{}, fmt.Errorf("%w: status payload is not valid json", ErrInvalidPayload)
	}
	doc := gjson.ParseBytes(raw)

	snapshot := StatusSnapshot{
		ResultURL:             firstString(doc, resultURLPaths, IsUsableResultURL),
		RawProgress:           firstNumber(doc, progressPaths),
		GenerationTimeSeconds: firstNumber(doc, generationTimePaths),
	}

	status, found := firstStatus(doc)
	switch {
	case found:
		snapshot.Phase = status
	case snapshot.HasUsableResult():
		snapshot.Phase = PhaseSuccess
	default:
		snapshot.Phase = PhasePending
	}

	if snapshot.Phase == PhaseFailure {
		snapshot.ErrorText = firstString(doc, errorTextPaths, func(s string) bool { return s != "" })
	}

	return snapshot, nil
}

// ParsePhase maps a raw status string to a phase
func ParsePhase(raw string) (Phase, bool) {
	key := strings.ToLower(strings.TrimSpace(raw))
	key = strings.NewReplacer("-", "_", " ", "_").Replace(key)
	phase, ok := phaseAliases[key]
	return phase, ok
}

func firstStatus(doc gjson.Result) (Phase, bool) {
	for _, path := range statusPaths {
		v := doc.Get(path)
		if v.Type != gjson.String {
			continue
		}
		if phase, ok := ParsePhase(v.Str); ok {
			return phase, true
		}
	}
	return "", false
}

func firstString(doc gjson.Result, paths []string, accept func(string) bool) string {
	for _, path := range paths {
		v := doc.Get(path)
		if v.Type != gjson.String {
			continue
		}
		s := strings.TrimSpace(v.Str)
		if accept(s) {
			return s
		}
	}
	return ""
}

func firstNumber(doc gjson.Result, paths []string) *float64 {
	for _, path := range paths {
		v := doc.Get(path)
		var n float64
		switch v.Type {
		case gjson.Number:
			n = v.Num
		case gjson.String:
			parsed, err := strconv.ParseFloat(strings.TrimSuffix(strings.TrimSpace(v.Str), "%"), 64)
			if err != nil {
				continue
			}
			n = parsed
		default:
			continue
		}
		if math.IsNaN(n) || math.IsInf(n, 0) {
			continue
		}
		return &n
	}
	return nil
}
