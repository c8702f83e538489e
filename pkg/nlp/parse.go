package nlp

import (
	"encoding/json"
	"regexp"
	"strings"

	jsonrepair "github.com/kaptinlin/jsonrepair"
	"gopkg.in/yaml.v3"
)

var codeFenceRe = regexp.MustCompile("(?s)```(?:json|yaml)?\\s*(.*?)```")

// stripCodeFences extracts the payload from a fenced code block when the
// backend wraps its answer in one.
func stripCodeFences(raw string) string {
	if match := codeFenceRe.FindStringSubmatch(raw); len(match) == 2 {
		return strings.TrimSpace(match[1])
	}
	return strings.TrimSpace(raw)
}

// DecodeResponse parses a judgment backend response into target. It tries
// strict JSON first, then repaired JSON, then YAML: backends frequently
// emit trailing commas, unquoted keys, or YAML-ish output under load.
// Returns MalformedResponseError when nothing parses.
func DecodeResponse(raw string, target any) error {
	cleaned := stripCodeFences(raw)
	if cleaned == "" {
		return ErrEmptyResponse
	}

	if err := json.Unmarshal([]byte(cleaned), target); err == nil {
		return nil
	}

	if repaired, err := jsonrepair.JSONRepair(cleaned); err == nil {
		if err := json.Unmarshal([]byte(repaired), target); err == nil {
			return nil
		}
	}

	if err := yaml.Unmarshal([]byte(cleaned), target); err == nil {
		return nil
	}

	return &MalformedResponseError{Raw: raw}
}
