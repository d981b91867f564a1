package detector

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/verifyai/verifyai/internal/media"
)

// ModelName identifies the external model-scoring detector.
const ModelName = "model"

// Oracle is the narrow capability contract for an external inference
// service: score raw media bytes within a deadline. It is injected into the
// detector rather than looked up from ambient state.
type Oracle interface {
	Score(ctx context.Context, mediaBytes []byte, mime string) (float64, error)
}

// OracleConfig configures the HTTP scoring oracle. An empty Endpoint means
// the model detector is never registered, not an error.
type OracleConfig struct {
	Endpoint string
	APIKey   string
	Timeout  time.Duration
}

// HTTPOracle talks to a network inference endpoint with a JSON contract.
type HTTPOracle struct {
	endpoint   string
	apiKey     string
	httpClient *http.Client
}

func NewHTTPOracle(cfg OracleConfig) *HTTPOracle {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &HTTPOracle{
		endpoint: cfg.Endpoint,
		apiKey:   cfg.APIKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

type oracleRequest struct {
	Media string `json:"media"`
	MIME  string `json:"mime"`
}

type oracleResponse struct {
	Score *float64 `json:"score"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

func (o *HTTPOracle) Score(ctx context.Context, mediaBytes []byte, mime string) (float64, error) {
	reqBody := oracleRequest{
		Media: base64.StdEncoding.EncodeToString(mediaBytes),
		MIME:  mime,
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return 0, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.endpoint, bytes.NewBuffer(jsonData))
	if err != nil {
		return 0, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", o.apiKey))
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("call scoring oracle: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, fmt.Errorf("read response: %w", err)
	}

	var oracleResp oracleResponse
	if err := json.Unmarshal(body, &oracleResp); err != nil {
		return 0, fmt.Errorf("unmarshal response: %w", err)
	}
	if oracleResp.Error != nil {
		return 0, fmt.Errorf("oracle error: %s", oracleResp.Error.Message)
	}
	if oracleResp.Score == nil {
		return 0, fmt.Errorf("oracle returned no score (status %d)", resp.StatusCode)
	}

	score := *oracleResp.Score
	if score < 0 || score > 1 {
		return 0, fmt.Errorf("oracle score %f outside [0,1]", score)
	}
	return score, nil
}

type modelEvidence struct {
	Score        float64 `json:"score"`
	FrameSampled bool    `json:"frame_sampled,omitempty"`
}

// ModelDetector delegates manipulation scoring to an external oracle. An
// unreachable or slow oracle yields status=failed, never a fabricated score.
type ModelDetector struct {
	oracle Oracle
	log    zerolog.Logger
}

func NewModelDetector(oracle Oracle, logger zerolog.Logger) *ModelDetector {
	return &ModelDetector{
		oracle: oracle,
		log:    logger.With().Str("detector", ModelName).Logger(),
	}
}

func (d *ModelDetector) Name() string { return ModelName }

func (d *ModelDetector) Analyze(ctx context.Context, in Input) Result {
	mediaBytes := in.Bytes
	mime := "application/octet-stream"
	frameSampled := false

	if info, err := media.Sniff(in.Bytes); err == nil {
		mime = info.MIME
	}
	if in.Kind == media.KindVideo && in.Frame != nil {
		mediaBytes = in.Frame
		mime = "image/jpeg"
		frameSampled = true
	}

	score, err := d.oracle.Score(ctx, mediaBytes, mime)
	if err != nil {
		d.log.Warn().Err(err).Str("digest", in.Digest).Msg("oracle scoring failed")
		return failed(ModelName, err.Error())
	}

	return succeeded(ModelName, score, modelEvidence{Score: score, FrameSampled: frameSampled})
}
