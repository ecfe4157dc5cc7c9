package orchestrator

import (
	"context"
	"encoding/json"
	"slices"

	"kycflow/pkg/domain"
)

// runSideEffects performs the evidence submission tied to leaving step. It
// returns replacement OCR fields when the backend extracted any.
func (o *Orchestrator) runSideEffects(ctx context.Context, step domain.Step, data domain.EvidenceData, session *domain.Session) *domain.OCRFields {
	if o.verifier == nil || session == nil || session.ID == "" {
		return nil
	}
	switch step {
	case domain.StepIDScanBack:
		if o.autoOCR && data.Front != nil && data.Back != nil {
			return o.submitDocument(ctx, data, session)
		}
	case domain.StepSelfie:
		if o.faceVerification && data.Front != nil && data.Selfie != nil {
			o.submitFace(ctx, data, session)
		}
	}
	return nil
}

func (o *Orchestrator) submitDocument(ctx context.Context, data domain.EvidenceData, session *domain.Session) *domain.OCRFields {
	resp, err := o.verifier.SubmitDocument(ctx, session.ID, data.IDType, data.Front, data.Back, session.Token)
	if err != nil {
		o.logger.DebugContext(ctx, "document verification failed", "error", err)
		return nil
	}
	extracted := resp.ExtractedFields()
	if len(extracted) == 0 {
		return nil
	}
	merged, skipped := mergeOCR(data.ExtractedFields, extracted)
	if len(skipped) > 0 {
		o.logger.DebugContext(ctx, "ignoring malformed extracted fields", "fields", skipped)
	}
	return &merged
}

func (o *Orchestrator) submitFace(ctx context.Context, data domain.EvidenceData, session *domain.Session) {
	if _, err := o.verifier.SubmitFace(ctx, session.ID, data.Selfie, data.Front, session.Token); err != nil {
		o.logger.DebugContext(ctx, "face verification failed", "error", err)
	}
}

// mergeOCR overlays the backend's extracted fields onto base key by key.
// Keys that do not name an OCR field are ignored. A key whose value does not
// decode is skipped and reported; the remaining keys still apply.
func mergeOCR(base domain.OCRFields, extracted map[string]json.RawMessage) (domain.OCRFields, []string) {
	keys := make([]string, 0, len(extracted))
	for k := range extracted {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	out := base.Clone()
	var skipped []string
	for _, k := range keys {
		single, err := json.Marshal(map[string]json.RawMessage{k: extracted[k]})
		if err != nil {
			skipped = append(skipped, k)
			continue
		}
		next := out.Clone()
		if k == "documentStatus" {
			// the status object is replaced, not merged
			next.DocumentStatus = nil
		}
		if err := json.Unmarshal(single, &next); err != nil {
			skipped = append(skipped, k)
			continue
		}
		out = next
	}
	return out, skipped
}
