package secondme

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"papertrade/internal/trading"
)

const decisionInstructions = `You are making virtual cryptocurrency trades with play money. Based on your personality and the market data, decide your next moves. Respond with ONLY a JSON array (no markdown, no prose) of at most 3 decision objects, each shaped like:
{"action":"BUY"|"SELL"|"HOLD","symbol":"BTCUSDT","percentage":25,"leverage":3,"reason":"short public reason","monologue":"inner thoughts"}
For BUY, percentage is the share of available cash to spend (1-100) and leverage is an integer from 1 to 10. For SELL, percentage is the share of the held position to close. Use HOLD when you would rather wait.`

// GetDecisions asks the user's SecondMe agent for trade decisions. The act
// endpoint streams its answer as SSE chunks, so the reply text is reassembled
// before decoding. Any payload that fails to decode into well-formed decisions
// degrades to a single HOLD rather than an error: a rambling agent should
// sit out the round, not crash it.
func (c *Client) GetDecisions(ctx context.Context, accessToken, marketSummary string, persona trading.Persona) ([]trading.Decision, error) {
	reqBody := map[string]string{
		"message":       marketSummary,
		"actionControl": buildActionControl(persona),
	}
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.apiBase+"/api/secondme/act/stream", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &APIError{Status: resp.StatusCode, Body: string(body)}
	}

	text, err := readEventStream(resp.Body)
	if err != nil {
		return nil, err
	}
	return ParseDecisions(text), nil
}

// buildActionControl folds the persona context into the standing instructions.
func buildActionControl(persona trading.Persona) string {
	var b strings.Builder
	if p := strings.TrimSpace(persona.StylePersona); p != "" {
		b.WriteString("Your trading persona: ")
		b.WriteString(p)
		b.WriteString("\n")
	}
	if len(persona.Shades) > 0 {
		b.WriteString("Your interests: ")
		b.WriteString(strings.Join(persona.Shades, ", "))
		b.WriteString("\n")
	}
	if len(persona.Memories) > 0 {
		b.WriteString("Things you remember: ")
		b.WriteString(strings.Join(persona.Memories, "; "))
		b.WriteString("\n")
	}
	if bio := strings.TrimSpace(persona.Bio); bio != "" {
		b.WriteString("About you: ")
		b.WriteString(bio)
		b.WriteString("\n")
	}
	b.WriteString(decisionInstructions)
	return b.String()
}

// streamChunk is one SSE data frame from the act endpoint, OpenAI-style.
type streamChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
}

// readEventStream concatenates the delta contents of every "data:" line until
// the [DONE] sentinel or EOF.
func readEventStream(r io.Reader) (string, error) {
	var text strings.Builder
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "" || data == "[DONE]" {
			if data == "[DONE]" {
				break
			}
			continue
		}
		var chunk streamChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			continue
		}
		if len(chunk.Choices) > 0 {
			text.WriteString(chunk.Choices[0].Delta.Content)
		}
	}
	if err := scanner.Err(); err != nil {
		return "", fmt.Errorf("failed to read stream: %w", err)
	}
	return text.String(), nil
}

// wireDecision tolerates the leverage field arriving as a number, a numeric
// string, or garbage (agents improvise); anything unusable becomes 1x.
type wireDecision struct {
	Action     string   `json:"action"`
	Symbol     string   `json:"symbol"`
	Percentage float64  `json:"percentage"`
	Leverage   looseInt `json:"leverage"`
	Reason     string   `json:"reason"`
	Monologue  string   `json:"monologue"`
}

type looseInt int

func (l *looseInt) UnmarshalJSON(data []byte) error {
	var n float64
	if err := json.Unmarshal(data, &n); err == nil {
		*l = looseInt(n)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		if n, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil {
			*l = looseInt(n)
			return nil
		}
	}
	*l = 1
	return nil
}

var holdFallback = []trading.Decision{{
	Action: trading.ActionHold,
	Reason: "Market unclear, staying on the sidelines this round.",
}}

// ParseDecisions extracts the JSON decision array from the agent's reply text.
// The reply may wrap the array in markdown fences or prose; the outermost
// bracketed region is tried. An undecodable reply yields the HOLD fallback.
func ParseDecisions(text string) []trading.Decision {
	start := strings.Index(text, "[")
	end := strings.LastIndex(text, "]")
	if start < 0 || end <= start {
		return holdFallback
	}

	var wire []wireDecision
	if err := json.Unmarshal([]byte(text[start:end+1]), &wire); err != nil {
		return holdFallback
	}

	decisions := make([]trading.Decision, 0, len(wire))
	for _, w := range wire {
		action := strings.ToUpper(strings.TrimSpace(w.Action))
		switch action {
		case trading.ActionBuy, trading.ActionSell, trading.ActionHold:
		default:
			continue
		}
		lev := int(w.Leverage)
		if lev < 1 {
			lev = 1
		}
		pct := w.Percentage
		if pct < 0 {
			pct = 0
		} else if pct > 100 {
			pct = 100
		}
		decisions = append(decisions, trading.Decision{
			Action:     action,
			Symbol:     strings.ToUpper(strings.TrimSpace(w.Symbol)),
			Percentage: pct,
			Leverage:   lev,
			Reason:     w.Reason,
			Monologue:  w.Monologue,
		})
	}
	if len(decisions) == 0 {
		return holdFallback
	}
	return decisions
}
