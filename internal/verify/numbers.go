package verify

import (
	"math"
	"regexp"
	"strconv"
	"strings"

	"resume-pipeline/internal/evidence"
)

var quantityRe = regexp.MustCompile(`(?i)([$€£₪])?\s?(\d{1,3}(?:,\d{3})+|\d+(?:\.\d+)?)\s?(%|(?:million|billion|thousand|mm|bn|k|m|b)\b)?`)

type quantity struct {
	raw     string
	value   float64
	percent bool
}

// quantities extracts metric-like numbers: currency amounts, percentages, suffixed amounts and integers >= 10.
func quantities(text string) []quantity {
	var out []quantity
	for _, m := range quantityRe.FindAllStringSubmatch(text, -1) {
		digits := strings.ReplaceAll(m[2], ",", "")
		v, err := strconv.ParseFloat(digits, 64)
		if err != nil {
			continue
		}
		suffix := strings.ToLower(m[3])
		q := quantity{raw: strings.TrimSpace(m[0])}
		switch suffix {
		case "%":
			q.percent = true
		case "k", "thousand":
			v *= 1e3
		case "m", "mm", "million":
			v *= 1e6
		case "b", "bn", "billion":
			v *= 1e9
		}
		if m[1] == "" && suffix == "" && v < 10 {
			continue
		}
		q.value = v
		out = append(out, q)
	}
	return out
}

// UnsupportedFigures returns the draft quantities that no evidence fact states.
func UnsupportedFigures(draft string, facts []evidence.Fact) []string {
	var known []quantity
	for _, f := range facts {
		known = append(known, quantities(f.Text)...)
	}
	var missing []string
	seen := map[string]struct{}{}
	for _, q := range quantities(draft) {
		if matches(q, known) {
			continue
		}
		if _, ok := seen[q.raw]; ok {
			continue
		}
		seen[q.raw] = struct{}{}
		missing = append(missing, q.raw)
	}
	return missing
}

func matches(q quantity, known []quantity) bool {
	for _, k := range known {
		if k.percent != q.percent {
			continue
		}
		if math.Abs(k.value-q.value) <= 1e-9*math.Max(1, math.Abs(k.value)) {
			return true
		}
	}
	return false
}
