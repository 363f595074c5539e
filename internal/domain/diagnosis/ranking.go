package diagnosis

import (
	"math"
	"sort"
)

// RankedEntry is one row of the result bar chart.
type RankedEntry struct {
	Label         string  `json:"label"`
	Probability   float64 `json:"probability"`
	Percent       int     `json:"percent"`
	RelativeScale float64 `json:"relative_scale"`
}

// Ranking is a classification in display order.
type Ranking struct {
	Entries        []RankedEntry `json:"entries"`
	MaxProbability float64       `json:"max_probability"`
}

// Rank orders a classification for display: most probable first, with the
// "Others" entry always last whatever its probability. Percent is each
// probability on its own scale; RelativeScale is relative to the top one.
func Rank(c ClassificationResult) Ranking {
	n := len(c.Labels)
	if len(c.Probabilities) < n {
		n = len(c.Probabilities)
	}

	entries := make([]RankedEntry, 0, n)
	var maxP float64
	for i := 0; i < n; i++ {
		p := c.Probabilities[i]
		if i == 0 || p > maxP {
			maxP = p
		}
		entries = append(entries, RankedEntry{Label: c.Labels[i], Probability: p})
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Probability > entries[j].Probability
	})

	ordered := make([]RankedEntry, 0, n)
	var others []RankedEntry
	for _, e := range entries {
		if e.Label == LabelOthers {
			others = append(others, e)
			continue
		}
		ordered = append(ordered, e)
	}
	ordered = append(ordered, others...)

	for i := range ordered {
		ordered[i].Percent = int(math.Round(ordered[i].Probability * 100))
		if maxP != 0 {
			ordered[i].RelativeScale = ordered[i].Probability / maxP
		}
	}
	return Ranking{Entries: ordered, MaxProbability: maxP}
}
