package governance

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/apigov/internal/logging"
)

// ErrParse is wrapped when the detector response is not a JSON object.
var ErrParse = errors.New("failed to parse change detection response")

// parseFailureMessage is recorded on State.Err when the response cannot be parsed.
const parseFailureMessage = "Failed to parse change detection response"

// Detection is the detector's output.
type Detection struct {
	Fragment string
	Summary  string
}

// NoChange is the detection for identical inputs.
func NoChange() Detection {
	return Detection{Fragment: "", Summary: NoChangesSentinel}
}

// Detector extracts the changed API code between two file versions.
type Detector struct {
	gen      TextGenerator
	redactor Redactor
	logger   *logging.Logger
}

// NewDetector creates a Detector. redactor may be nil.
func NewDetector(gen TextGenerator, redactor Redactor, logger *logging.Logger) *Detector {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Detector{gen: gen, redactor: redactor, logger: logger.Named("detector")}
}

// Detect compares oldCode and newCode. Identical inputs short-circuit with
// NoChange and no generator call.
func (d *Detector) Detect(ctx context.Context, oldCode, newCode string) (Detection, error) {
	if oldCode == newCode {
		d.logger.Info(ctx, "no changes detected")
		return NoChange(), nil
	}

	oldCode, newCode = d.redact(ctx, oldCode), d.redact(ctx, newCode)
	prompt, err := detectPrompt(oldCode, newCode)
	if err != nil {
		return Detection{}, fmt.Errorf("rendering prompt: %w", err)
	}

	d.logger.Trace(ctx, "change detection prompt", zap.String("prompt", prompt))
	resp, err := complete(ctx, d.gen, PhaseDetect, detectSystemPrompt, prompt)
	if err != nil {
		return Detection{}, err
	}

	det, err := parseDetection(resp)
	if err != nil {
		d.logger.Debug(ctx, "unparseable change detection response", zap.String("response", resp))
		return Detection{}, err
	}

	d.logger.Info(ctx, "change detected", zap.String("summary", det.Summary))
	d.logger.Debug(ctx, "changed snippet", zap.String("snippet", det.Fragment))
	return det, nil
}

// Run is the Detect stage.
func (d *Detector) Run(ctx context.Context, s State) State {
	det, err := d.Detect(ctx, s.OldCode, s.NewCode)
	switch {
	case err == nil:
		return s.WithDetection(det)
	case errors.Is(err, ErrParse):
		return s.WithError(newStageError(PhaseDetect, KindParse, parseFailureMessage, err))
	default:
		return s.WithError(failedf(PhaseDetect, KindGeneration, "Change detection", err))
	}
}

func (d *Detector) redact(ctx context.Context, code string) string {
	if d.redactor == nil {
		return code
	}
	out, n := d.redactor.Redact(code)
	if n > 0 {
		d.logger.Warn(ctx, "redacted secrets from code before analysis", zap.Int("secrets", n))
	}
	return out
}

// detectionPayload mirrors the JSON object requested from the generator.
type detectionPayload struct {
	Snippet *string `json:"changed_code_snippet"`
	Summary *string `json:"change_summary"`
}

// parseDetection strips markdown fences and decodes the detector response.
func parseDetection(resp string) (Detection, error) {
	cleaned := strings.TrimSpace(resp)
	cleaned = strings.ReplaceAll(cleaned, "```json", "")
	cleaned = strings.ReplaceAll(cleaned, "```", "")
	cleaned = strings.TrimSpace(cleaned)

	// null decodes into a nil map without error; only an object is accepted.
	var obj map[string]json.RawMessage
	if err := json.Unmarshal([]byte(cleaned), &obj); err != nil {
		return Detection{}, fmt.Errorf("%w: %v", ErrParse, err)
	}
	if obj == nil {
		return Detection{}, fmt.Errorf("%w: response is not a JSON object", ErrParse)
	}

	var p detectionPayload
	if err := json.Unmarshal([]byte(cleaned), &p); err != nil {
		return Detection{}, fmt.Errorf("%w: %v", ErrParse, err)
	}

	det := Detection{Summary: DefaultSummary}
	if p.Snippet != nil {
		det.Fragment = *p.Snippet
	}
	if p.Summary != nil {
		det.Summary = *p.Summary
	}
	return det, nil
}
