package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// ID document types the authenticity check understands.
const (
	IDTypePassport       = "Passport"
	IDTypeDrivingLicense = "Driving License"
	IDTypeAadhar         = "Aadhar"
)

// ValidIDType reports whether t is a supported document type.
func ValidIDType(t string) bool {
	switch t {
	case IDTypePassport, IDTypeDrivingLicense, IDTypeAadhar:
		return true
	}
	return false
}

// Assessment is the advisory summary of one ID document. It informs the
// manager's decision but never decides anything itself.
type Assessment struct {
	Summary         string `json:"summary"`
	PotentialIssues string `json:"potential_issues"`
}

// AuthenticityResult is the model's judgment on whether a document looks
// genuine, with its reasoning and any fields it could read off the image.
type AuthenticityResult struct {
	IsAuthentic     bool              `json:"is_authentic"`
	ConfidenceScore float64           `json:"confidence_score"`
	Reasoning       string            `json:"reasoning"`
	ExtractedData   map[string]string `json:"extracted_data,omitempty"`
}

// Client talks to the document-analysis API.
type Client struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewClient creates a client for the given endpoint. An empty apiKey leaves
// the client unconfigured; callers should check Configured before use.
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: 60 * time.Second},
	}
}

// Configured reports whether the analysis API is set up.
func (c *Client) Configured() bool {
	return c.baseURL != "" && c.apiKey != ""
}

// Summarize asks the model to describe the document and flag anything a
// reviewer should look at.
func (c *Client) Summarize(ctx context.Context, documentURL string) (*Assessment, error) {
	var out Assessment
	err := c.post(ctx, "/v1/documents/summarize", map[string]string{
		"document_url": documentURL,
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// VerifyAuthenticity asks the model whether the document looks genuine for
// the claimed ID type.
func (c *Client) VerifyAuthenticity(ctx context.Context, documentURL, idType string) (*AuthenticityResult, error) {
	if !ValidIDType(idType) {
		return nil, fmt.Errorf("unsupported id type %q", idType)
	}
	var out AuthenticityResult
	err := c.post(ctx, "/v1/documents/verify", map[string]string{
		"document_url": documentURL,
		"id_type":      idType,
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) post(ctx context.Context, path string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("analysis API request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("analysis API returned status %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode analysis response: %w", err)
	}
	return nil
}
