package driver

import (
	"encoding/json"
	"time"
)

func stringProp(props map[string]any, key string) string {
	if v, ok := props[key].(string); ok {
		return v
	}
	return ""
}

func timeProp(props map[string]any, key string) time.Time {
	switch v := props[key].(type) {
	case string:
		if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
			return t
		}
	case time.Time:
		return v
	}
	return time.Time{}
}

// attributesToJSON serializes the attribute map as a JSON string property.
// Neo4j properties cannot hold nested maps.
func attributesToJSON(attrs map[string]interface{}) string {
	if len(attrs) == 0 {
		return ""
	}
	data, err := json.Marshal(attrs)
	if err != nil {
		return ""
	}
	return string(data)
}

func attributesFromJSON(raw string) map[string]interface{} {
	if raw == "" {
		return nil
	}
	var attrs map[string]interface{}
	if err := json.Unmarshal([]byte(raw), &attrs); err != nil {
		return nil
	}
	return attrs
}

// embeddingToAny converts a float32 vector to the float64 slice the neo4j
// driver serializes.
func embeddingToAny(embedding []float32) []float64 {
	if len(embedding) == 0 {
		return nil
	}
	out := make([]float64, len(embedding))
	for i, v := range embedding {
		out[i] = float64(v)
	}
	return out
}

func embeddingFromAny(value any) []float32 {
	list, ok := value.([]any)
	if !ok {
		return nil
	}
	out := make([]float32, 0, len(list))
	for _, item := range list {
		if f, ok := item.(float64); ok {
			out = append(out, float32(f))
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
