package clients

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/wormhole-demo/attestor/internal/vaa"
)

type VerificationRequest struct {
	VAABytes string `json:"vaaBytes"`
}

type VerificationResponse struct {
	Success          bool   `json:"success"`
	MessageID        string `json:"messageId,omitempty"`
	Digest           string `json:"digest,omitempty"`
	GuardianSetIndex uint32 `json:"guardianSetIndex,omitempty"`
	Error            string `json:"error,omitempty"`
	Code             uint32 `json:"code,omitempty"`
	Codespace        string `json:"codespace,omitempty"`
}

type SubmitResponse struct {
	MessageID  string `json:"messageId"`
	Digest     string `json:"digest"`
	Replayed   bool   `json:"replayed"`
	Governance *struct {
		Module     string            `json:"module"`
		Action     string            `json:"action"`
		Attributes map[string]string `json:"attributes,omitempty"`
	} `json:"governance,omitempty"`
}

type CommittedResponse struct {
	MessageID        string `json:"messageId"`
	Digest           string `json:"digest"`
	GuardianSetIndex uint32 `json:"guardianSetIndex"`
	CommittedAt      uint32 `json:"committedAt"`
	Timestamp        uint32 `json:"timestamp"`
	Nonce            uint32 `json:"nonce"`
	ConsistencyLevel uint8  `json:"consistencyLevel"`
	Payload          string `json:"payload"`
}

// APIError is a non-2xx answer of the attestor API.
type APIError struct {
	StatusCode int
	Code       uint32 `json:"code"`
	Codespace  string `json:"codespace"`
	Message    string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("attestor API %d (%s/%d): %s", e.StatusCode, e.Codespace, e.Code, e.Message)
}

// VerificationServiceClient talks to a remote attestor's HTTP API.
type VerificationServiceClient struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

func NewVerificationServiceClient(logger *zap.Logger, baseURL string) *VerificationServiceClient {
	return &VerificationServiceClient{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
		logger: logger.With(zap.String("component", "VerificationServiceClient")),
	}
}

// VerifyVAA checks vaaBytes against the remote guardian sets. A VAA that
// fails verification is reported in the response, not as an error.
func (c *VerificationServiceClient) VerifyVAA(ctx context.Context, vaaBytes []byte) (*VerificationResponse, error) {
	c.logger.Debug("Sending VAA to verification service", zap.Int("vaaLength", len(vaaBytes)))

	var resp VerificationResponse
	status, err := c.do(ctx, http.MethodPost, "/verify", VerificationRequest{VAABytes: "0x" + hex.EncodeToString(vaaBytes)}, &resp)
	if err != nil {
		return nil, err
	}
	if !resp.Success && resp.Error == "" {
		return nil, fmt.Errorf("verification service answered %d without a result", status)
	}
	return &resp, nil
}

// SubmitVAA commits vaaBytes on the remote attestor.
func (c *VerificationServiceClient) SubmitVAA(ctx context.Context, vaaBytes []byte) (*SubmitResponse, error) {
	var resp SubmitResponse
	if _, err := c.do(ctx, http.MethodPost, "/vaas", VerificationRequest{VAABytes: "0x" + hex.EncodeToString(vaaBytes)}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Committed returns the committed record of id; found is false on 404.
func (c *VerificationServiceClient) Committed(ctx context.Context, id vaa.MessageID) (*CommittedResponse, bool, error) {
	var resp CommittedResponse
	if _, err := c.do(ctx, http.MethodGet, "/committed/"+id.String(), nil, &resp); err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound {
			return nil, false, nil
		}
		return nil, false, err
	}
	return &resp, true, nil
}

func (c *VerificationServiceClient) CheckHealth(ctx context.Context) error {
	var resp struct {
		Status string `json:"status"`
	}
	if _, err := c.do(ctx, http.MethodGet, "/health", nil, &resp); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	if resp.Status != "ok" {
		return fmt.Errorf("verification service unhealthy: %q", resp.Status)
	}
	return nil
}

// do sends a JSON request and decodes the answer into out. Error answers are
// returned as *APIError, except on /verify whose failure body is a result.
func (c *VerificationServiceClient) do(ctx context.Context, method, path string, in, out any) (int, error) {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return 0, fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return 0, fmt.Errorf("failed to create HTTP request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, fmt.Errorf("failed to read response: %w", err)
	}
	c.logger.Debug("Received response", zap.String("path", path), zap.Int("statusCode", resp.StatusCode))

	if resp.StatusCode >= 300 && path != "/verify" {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		if err := json.Unmarshal(raw, apiErr); err != nil {
			apiErr.Message = strings.TrimSpace(string(raw))
		}
		return resp.StatusCode, apiErr
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return resp.StatusCode, fmt.Errorf("failed to unmarshal response: %w", err)
	}
	return resp.StatusCode, nil
}
