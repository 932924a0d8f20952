package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
)

type Slack struct {
	Webhook string
	Client  *resty.Client
}

func NewSlack(webhook string) *Slack {
	if webhook == "" {
		return nil
	}
	return &Slack{
		Webhook: webhook,
		Client:  resty.New().SetTimeout(10 * time.Second),
	}
}

type slackPayload struct {
	Text string `json:"text"`
}

func (s *Slack) Send(ctx context.Context, title, text string) error {
	if s == nil || s.Webhook == "" {
		return errors.New("slack disabled")
	}
	resp, err := s.Client.R().
		SetContext(ctx).
		SetBody(slackPayload{Text: "*" + title + "*\n" + text}).
		Post(s.Webhook)
	if err != nil {
		return err
	}
	if resp.IsError() {
		return fmt.Errorf("slack non-2xx: %s", resp.Status())
	}
	return nil
}
