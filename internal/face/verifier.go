package face

import (
	"context"
	"errors"
)

// Verifier matches live camera frames against a reference descriptor.
// It implements the single matching contract shared by the login scan
// and the return-confirmation scan.
type Verifier struct {
	client    *Client
	threshold float64
}

// NewVerifier creates a verifier with the given acceptance threshold.
// A zero threshold selects DefaultThreshold.
func NewVerifier(client *Client, threshold float64) *Verifier {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return &Verifier{client: client, threshold: threshold}
}

// Threshold returns the configured acceptance threshold.
func (v *Verifier) Threshold() float64 {
	return v.threshold
}

// MatchFrame runs detection on a live frame and compares the resulting
// descriptor against ref. A frame with no detectable face yields a
// no-detection result, not an error.
func (v *Verifier) MatchFrame(ctx context.Context, frame []byte, ref Descriptor) (MatchResult, error) {
	live, err := v.client.DetectSingleFace(ctx, frame)
	if err != nil {
		if errors.Is(err, ErrNoFaceDetected) {
			return NoDetection(), nil
		}
		return MatchResult{}, err
	}
	return Match(live, ref, v.threshold), nil
}
