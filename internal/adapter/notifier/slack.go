package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/hive-corporation/rf-ctis-bridge/internal/adapter/httpx"
)

const (
	colorError = "#fc0303"
	colorInfo  = "#0FFF50"

	// maxErrorLength bounds the error block so the message stays under
	// Slack's section text limit.
	maxErrorLength = 1000
)

// SlackNotifier posts to a Slack incoming webhook.
type SlackNotifier struct {
	webhookURL string
	httpClient httpx.Doer
}

func NewSlackNotifier(webhookURL string, doer httpx.Doer) *SlackNotifier {
	if doer == nil {
		doer = &http.Client{Timeout: 10 * time.Second}
	}
	return &SlackNotifier{
		webhookURL: webhookURL,
		httpClient: doer,
	}
}

// NotifyError sends an error with the context it happened in
func (s *SlackNotifier) NotifyError(ctx context.Context, errContext, detail string, fatal bool) error {
	return s.sendMessage(ctx, SlackMessage{
		Text:        fmt.Sprintf("⚠️ %s: %s", errorTitle(fatal), errContext),
		Attachments: []SlackAttachment{{Color: colorError, Blocks: buildErrorBlocks(errContext, detail, fatal)}},
	})
}

// NotifyInfo sends a free-text informational message
func (s *SlackNotifier) NotifyInfo(ctx context.Context, info string) error {
	return s.sendMessage(ctx, SlackMessage{
		Text:        info,
		Attachments: []SlackAttachment{{Color: colorInfo, Blocks: buildInfoBlocks(info)}},
	})
}

func errorTitle(fatal bool) string {
	if fatal {
		return "Fatal Error"
	}
	return "Error"
}

func buildErrorBlocks(errContext, detail string, fatal bool) []SlackBlock {
	if detail == "" {
		detail = " "
	}
	if len(detail) > maxErrorLength {
		detail = detail[:maxErrorLength] + "..."
	}

	return []SlackBlock{
		{
			Type: "header",
			Text: &SlackText{Type: "plain_text", Text: errorTitle(fatal)},
		},
		{
			Type: "section",
			Text: &SlackText{Type: "mrkdwn", Text: fmt.Sprintf("*An error occurred:* %s", errContext)},
		},
		{
			Type: "section",
			Text: &SlackText{Type: "mrkdwn", Text: fmt.Sprintf("```%s```\nFor more details, please check the bridge logs", detail)},
		},
		{
			Type:     "context",
			Elements: []SlackText{{Type: "mrkdwn", Text: "rf-ctis-bridge"}},
		},
	}
}

func buildInfoBlocks(info string) []SlackBlock {
	return []SlackBlock{
		{
			Type: "header",
			Text: &SlackText{Type: "plain_text", Text: "Info"},
		},
		{
			Type: "section",
			Text: &SlackText{Type: "mrkdwn", Text: info},
		},
	}
}

// Send message to the webhook
func (s *SlackNotifier) sendMessage(ctx context.Context, msg SlackMessage) error {
	jsonData, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal Slack message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.webhookURL, bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("slack webhook returned status %d: %s", resp.StatusCode, body)
	}

	return nil
}

// Slack API structures

type SlackMessage struct {
	Text        string            `json:"text,omitempty"` // Fallback text
	Attachments []SlackAttachment `json:"attachments"`
}

type SlackAttachment struct {
	Color  string       `json:"color"`
	Blocks []SlackBlock `json:"blocks"`
}

type SlackBlock struct {
	Type     string      `json:"type"`
	Text     *SlackText  `json:"text,omitempty"`
	Fields   []SlackText `json:"fields,omitempty"`
	Elements []SlackText `json:"elements,omitempty"`
}

type SlackText struct {
	Type string `json:"type"`
	Text string `json:"text"`
}
