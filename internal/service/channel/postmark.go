package channel

import (
	"context"
	"errors"
	"fmt"

	"github.com/mrz1836/postmark"
)

var ErrPostmarkConfig = errors.New("postmark server token is required")

type PostmarkConfig struct {
	ServerToken  string `yaml:"server_token" env:"POSTMARK_SERVER_TOKEN"`
	AccountToken string `yaml:"account_token" env:"POSTMARK_ACCOUNT_TOKEN"`
}

// PostmarkTransport sends mail through the Postmark transactional API.
type PostmarkTransport struct {
	client *postmark.Client
}

func NewPostmarkTransport(cfg PostmarkConfig) (*PostmarkTransport, error) {
	if cfg.ServerToken == "" {
		return nil, ErrPostmarkConfig
	}
	return &PostmarkTransport{
		client: postmark.NewClient(cfg.ServerToken, cfg.AccountToken),
	}, nil
}

func (t *PostmarkTransport) Send(ctx context.Context, msg Message) error {
	email := postmark.Email{
		From:    msg.From,
		To:      msg.To,
		Subject: msg.Subject,
		Tag:     "notification",
	}
	if msg.HTML {
		email.HTMLBody = msg.Body
	} else {
		email.TextBody = msg.Body
	}

	resp, err := t.client.SendEmail(ctx, email)
	if err != nil {
		return fmt.Errorf("postmark send: %w", err)
	}
	if resp.ErrorCode > 0 {
		return fmt.Errorf("postmark error: %d - %s", resp.ErrorCode, resp.Message)
	}
	return nil
}
