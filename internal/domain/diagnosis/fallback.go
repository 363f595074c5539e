package diagnosis

import "encoding/json"

// FallbackPolicy is the classification substituted whenever the classifier
// cannot be used.
type FallbackPolicy struct {
	Result ClassificationResult
}

// DefaultFallback is the canned answer the mobile client has always shown
// when the classifier is down.
func DefaultFallback() FallbackPolicy {
	return FallbackPolicy{Result: ClassificationResult{
		Labels: []string{LabelAcanthamoeba, LabelBacterial, LabelOthers, LabelFungal, LabelViral},
		Probabilities: []float64{
			0.3834105432033539,
			0.22888469696044922,
			0.07231508940458298,
			0.2709923982620239,
			0.04439729079604149,
		},
		PredictedLabel: LabelAcanthamoeba,
	}}
}

// RawText is the serialized fallback. It is stored as a record's resultText,
// so it must be stable for a given policy.
func (p FallbackPolicy) RawText() string {
	b, err := json.Marshal(struct {
		Probabilities  []float64 `json:"probabilities"`
		Labels         []string  `json:"labels"`
		PredictedLabel string    `json:"predicted_label"`
	}{p.Result.Probabilities, p.Result.Labels, p.Result.PredictedLabel})
	if err != nil {
		return ""
	}
	return string(b)
}
