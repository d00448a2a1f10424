package similarity

import (
	"strconv"
	"strings"
)

// ParseJSONEmbedding parses a JSON array of floats into a []float32.
// Only the flat `[f, f, ...]` form is accepted; a full JSON decoder is
// deliberately avoided on this path.
// Returns false if parsing fails or the array is empty.
func ParseJSONEmbedding(s string) ([]float32, bool) {
	trimmed := strings.TrimSpace(s)
	if !strings.HasPrefix(trimmed, "[") || !strings.HasSuffix(trimmed, "]") {
		return nil, false
	}
	inner := trimmed[1 : len(trimmed)-1]
	return parseFloatList(strings.Split(inner, ","))
}

// ParseTextEmbedding parses a whitespace-separated list of floats.
// Returns false if parsing fails or the input is empty.
func ParseTextEmbedding(s string) ([]float32, bool) {
	return parseFloatList(strings.Fields(s))
}

func parseFloatList(parts []string) ([]float32, bool) {
	v := make([]float32, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			return nil, false
		}
		f, err := strconv.ParseFloat(p, 32)
		if err != nil {
			return nil, false
		}
		v = append(v, float32(f))
	}
	if len(v) == 0 {
		return nil, false
	}
	return v, true
}
