package notifier

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"hanna-engine/internal/models"
)

const (
	linePushPath  = "/v2/bot/message/push"
	lineReplyPath = "/v2/bot/message/reply"

	// LINE template buttons hold at most four actions.
	lineMaxButtons = 4
)

type lineAction struct {
	Type        string `json:"type"`
	Label       string `json:"label"`
	Data        string `json:"data"`
	DisplayText string `json:"displayText,omitempty"`
}

type lineTemplate struct {
	Type    string       `json:"type"`
	Text    string       `json:"text"`
	Actions []lineAction `json:"actions"`
}

type lineMessage struct {
	Type     string        `json:"type"`
	Text     string        `json:"text,omitempty"`
	AltText  string        `json:"altText,omitempty"`
	Template *lineTemplate `json:"template,omitempty"`
}

type linePushRequest struct {
	To       string        `json:"to"`
	Messages []lineMessage `json:"messages"`
}

type lineReplyRequest struct {
	ReplyToken string        `json:"replyToken"`
	Messages   []lineMessage `json:"messages"`
}

type lineErrorResponse struct {
	Message string `json:"message"`
}

// LineClient LINE Messaging API client.
type LineClient struct {
	httpClient *resty.Client
	logger     *zap.Logger
}

// NewLineClient builds a client with a per-request timeout and no retries.
func NewLineClient(baseURL, channelToken string, timeout time.Duration, logger *zap.Logger) *LineClient {
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetRetryCount(0).
		SetAuthToken(channelToken).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")

	return &LineClient{httpClient: client, logger: logger}
}

var _ Sender = (*LineClient)(nil)

// toLineMessage maps the engine payload onto a LINE text or buttons template.
func toLineMessage(msg *models.Message) lineMessage {
	if msg.Type != models.MessageTypeButtons || len(msg.Buttons) == 0 {
		return lineMessage{Type: "text", Text: msg.Text}
	}
	buttons := msg.Buttons
	if len(buttons) > lineMaxButtons {
		buttons = buttons[:lineMaxButtons]
	}
	actions := make([]lineAction, 0, len(buttons))
	for _, b := range buttons {
		actions = append(actions, lineAction{
			Type:        "postback",
			Label:       b.Label,
			Data:        b.Data,
			DisplayText: b.Label,
		})
	}
	return lineMessage{
		Type:    "template",
		AltText: msg.Text,
		Template: &lineTemplate{
			Type:    "buttons",
			Text:    msg.Text,
			Actions: actions,
		},
	}
}

// Send pushes msg to a user or group id.
func (c *LineClient) Send(ctx context.Context, userID string, msg *models.Message) error {
	return c.post(ctx, linePushPath, linePushRequest{
		To:       userID,
		Messages: []lineMessage{toLineMessage(msg)},
	})
}

// Reply answers an inbound event by its reply token.
func (c *LineClient) Reply(ctx context.Context, replyToken string, msg *models.Message) error {
	return c.post(ctx, lineReplyPath, lineReplyRequest{
		ReplyToken: replyToken,
		Messages:   []lineMessage{toLineMessage(msg)},
	})
}

func (c *LineClient) post(ctx context.Context, path string, body interface{}) error {
	var apiErr lineErrorResponse
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetBody(body).
		SetError(&apiErr).
		Post(path)
	if err != nil {
		return fmt.Errorf("failed to call LINE API %s: %w", path, err)
	}
	if resp.IsError() {
		c.logger.Warn("LINE API returned error",
			zap.String("path", path),
			zap.Int("status_code", resp.StatusCode()),
			zap.String("msg", apiErr.Message),
		)
		return fmt.Errorf("LINE API error: %s (status: %d)", apiErr.Message, resp.StatusCode())
	}
	return nil
}

// LineGroupAlerter posts supervisor alerts into a LINE group.
type LineGroupAlerter struct {
	client  *LineClient
	groupID string
}

func NewLineGroupAlerter(client *LineClient, groupID string) *LineGroupAlerter {
	return &LineGroupAlerter{client: client, groupID: groupID}
}

func (a *LineGroupAlerter) SendAlert(ctx context.Context, text string) error {
	return a.client.Send(ctx, a.groupID, models.TextMessage(text))
}
