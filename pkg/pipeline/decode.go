package pipeline

import (
	"fmt"

	"github.com/mchmarny/riskcascade/pkg/encoder"
)

// riskLabels is the ordinal label convention used when the final artifact carries no working decoder.
var riskLabels = [...]string{
	"Very Low",
	"Low",
	"Low Moderate",
	"Moderate",
	"High Moderate",
	"High",
	"Very High",
}

// FallbackLabel maps a final class index to its ordinal risk label, or Unknown(<index>).
func FallbackLabel(class int) string {
	if class < 0 || class >= len(riskLabels) {
		return fmt.Sprintf("Unknown(%d)", class)
	}
	return riskLabels[class]
}

// Tier names the decoder that produced the final labels.
type Tier string

const (
	TierPreferred Tier = "preferred"
	TierFallback  Tier = "fallback"
)

// Decoded holds final labels and how they were obtained.
type Decoded struct {
	Labels []string
	Tier   Tier
	// Cause is set when the preferred decoder existed but failed.
	Cause error
}

// LabelResolver decodes final class indices with Preferred when set, and the ordinal convention otherwise.
type LabelResolver struct {
	Preferred encoder.Encoder
}

// Resolve never fails: a missing or failing preferred decoder selects the fallback tier.
func (r LabelResolver) Resolve(classes []int) Decoded {
	if r.Preferred != nil {
		labels, err := r.Preferred.InverseTransform(classes)
		if err == nil {
			return Decoded{Labels: labels, Tier: TierPreferred}
		}
		return Decoded{
			Labels: fallbackLabels(classes),
			Tier:   TierFallback,
			Cause:  fmt.Errorf("%w: %w", ErrDecodeFailure, err),
		}
	}
	return Decoded{Labels: fallbackLabels(classes), Tier: TierFallback}
}

func fallbackLabels(classes []int) []string {
	out := make([]string, len(classes))
	for i, c := range classes {
		out[i] = FallbackLabel(c)
	}
	return out
}
