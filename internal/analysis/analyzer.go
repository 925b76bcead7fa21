// Package analysis produces DeFi protocol risk reports by calling an
// OpenAI-compatible chat completions API.
package analysis

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// RiskVector is one dimension of a protocol risk assessment.
type RiskVector struct {
	Type     string `json:"type"`
	Detail   string `json:"detail"`
	Severity string `json:"severity,omitempty"`
}

// RiskAnalysis is the structured result of analyzing a protocol description.
// OverallRiskScore runs 0-100, higher is riskier.
type RiskAnalysis struct {
	ProtocolName     string       `json:"protocolName"`
	OverallRiskScore int          `json:"overallRiskScore"`
	RiskLevel        string       `json:"riskLevel"`
	AnalysisSummary  string       `json:"analysisSummary"`
	RiskVectors      []RiskVector `json:"riskVectors"`
}

// Config holds the LLM endpoint settings.
type Config struct {
	BaseURL string // e.g. https://api.openai.com/v1
	APIKey  string
	Model   string
}

// Analyzer calls a chat completions endpoint to assess protocol risk.
type Analyzer struct {
	cfg    Config
	client *http.Client
}

// NewAnalyzer creates an Analyzer. A nil httpClient gets a default with a
// 120s timeout; analysis completions are slow.
func NewAnalyzer(cfg Config, httpClient *http.Client) (*Analyzer, error) {
	if cfg.BaseURL == "" || cfg.Model == "" {
		return nil, errors.New("analysis: base URL and model are required")
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 120 * time.Second}
	}
	return &Analyzer{cfg: cfg, client: httpClient}, nil
}

// chat completions wire types, reduced to the fields we use.
type chatRequest struct {
	Model          string        `json:"model"`
	Messages       []chatMessage `json:"messages"`
	Temperature    float64       `json:"temperature,omitempty"`
	MaxTokens      int           `json:"max_tokens,omitempty"`
	ResponseFormat *respFormat   `json:"response_format,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type respFormat struct {
	Type string `json:"type"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// AnalyzeProtocol runs a risk assessment of the given protocol description.
// A response that cannot be parsed yields a fallback report flagging the
// failure rather than an error: the service still owes the client a report.
func (a *Analyzer) AnalyzeProtocol(ctx context.Context, description string) (*RiskAnalysis, error) {
	text, err := a.complete(ctx, chatRequest{
		Model: a.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: "You are a world-class DeFi risk analyst and smart contract auditor. Provide comprehensive risk assessments in JSON format."},
			{Role: "user", Content: buildPrompt(description)},
		},
		Temperature:    0.3,
		ResponseFormat: &respFormat{Type: "json_object"},
	})
	if err != nil {
		return nil, fmt.Errorf("analyze protocol: %w", err)
	}
	return parseAnalysis(text), nil
}

// TestConnection sends a trivial completion to verify the endpoint and key.
func (a *Analyzer) TestConnection(ctx context.Context) error {
	_, err := a.complete(ctx, chatRequest{
		Model:     a.cfg.Model,
		Messages:  []chatMessage{{Role: "user", Content: "Respond with: OK"}},
		MaxTokens: 10,
	})
	return err
}

// complete posts one chat completion and returns the first choice's content.
func (a *Analyzer) complete(ctx context.Context, reqBody chatRequest) (string, error) {
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	url := strings.TrimSuffix(a.cfg.BaseURL, "/") + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if a.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+a.cfg.APIKey)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("llm request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("read llm response: %w", err)
	}

	var parsed chatResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("decode llm response (status %d): %w", resp.StatusCode, err)
	}
	if parsed.Error != nil {
		return "", fmt.Errorf("llm api error (status %d): %s", resp.StatusCode, parsed.Error.Message)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("llm api status %d", resp.StatusCode)
	}
	if len(parsed.Choices) == 0 {
		return "", errors.New("llm response has no choices")
	}
	return parsed.Choices[0].Message.Content, nil
}

// buildPrompt renders the risk-assessment prompt for a protocol description.
func buildPrompt(description string) string {
	var b strings.Builder
	b.WriteString(`You are a world-class DeFi risk analyst and smart contract auditor with expertise in:
- Economic security and game theory
- Smart contract vulnerabilities (reentrancy, oracle manipulation, etc.)
- DeFi protocol design patterns
- Liquidity risks and composability risks
- Centralization and governance risks

Your task is to analyze the following DeFi protocol description and provide a comprehensive risk assessment.

Protocol Description:
"""
`)
	b.WriteString(description)
	b.WriteString(`
"""

Please provide your analysis in the following JSON format (respond with ONLY valid JSON):

{
  "protocolName": "Extract or infer the protocol name",
  "overallRiskScore": <number between 0-100, where 100 is highest risk>,
  "riskLevel": "<one of: Low / Medium / High / Critical>",
  "analysisSummary": "<2-3 sentence summary of the overall risk profile>",
  "riskVectors": [
    {
      "type": "Economic Risk",
      "detail": "<Detailed explanation of economic risks: liquidation, oracle manipulation, etc.>",
      "severity": "<Low/Medium/High/Critical>"
    },
    {
      "type": "Smart Contract Risk",
      "detail": "<Detailed explanation of technical/contract risks>",
      "severity": "<Low/Medium/High/Critical>"
    },
    {
      "type": "Centralization Risk",
      "detail": "<Detailed explanation of centralization concerns>",
      "severity": "<Low/Medium/High/Critical>"
    },
    {
      "type": "Composition Risk",
      "detail": "<Detailed explanation of how this protocol depends on others>",
      "severity": "<Low/Medium/High/Critical>"
    }
  ]
}

Risk Score Guidelines:
- 0-25: Low Risk - Well-established protocols with minimal attack surface
- 26-50: Medium Risk - Some concerns but generally safe with proper precautions
- 51-75: High Risk - Multiple significant concerns, use with caution
- 76-100: Critical Risk - Severe issues, strongly advise against usage

Be thorough, specific, and honest. If the description is vague, state what additional information is needed.`)
	return b.String()
}

// parseAnalysis extracts the JSON object from the model output. Some models
// wrap JSON in markdown fences, so it scans from the first '{' to the last
// '}'. On any failure it returns a fallback report marking the analysis as
// failed.
func parseAnalysis(text string) *RiskAnalysis {
	start := strings.IndexByte(text, '{')
	end := strings.LastIndexByte(text, '}')
	if start < 0 || end <= start {
		return fallbackAnalysis("no JSON object found in model output")
	}

	var out RiskAnalysis
	if err := json.Unmarshal([]byte(text[start:end+1]), &out); err != nil {
		return fallbackAnalysis(fmt.Sprintf("invalid JSON in model output: %v", err))
	}
	if out.ProtocolName == "" || out.OverallRiskScore < 0 || out.OverallRiskScore > 100 {
		return fallbackAnalysis("model output missing required fields")
	}
	return &out
}

func fallbackAnalysis(detail string) *RiskAnalysis {
	return &RiskAnalysis{
		ProtocolName:     "Unknown Protocol",
		OverallRiskScore: 50,
		RiskLevel:        "Unknown - Analysis Failed",
		AnalysisSummary:  "Failed to parse the model response. Please review the protocol manually.",
		RiskVectors: []RiskVector{
			{Type: "Analysis Error", Detail: detail, Severity: "High"},
		},
	}
}
