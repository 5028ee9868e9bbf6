package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/hashicorp/go-cleanhttp"
	"github.com/rs/zerolog/log"
	"github.com/tidwall/gjson"
)

// Message 一封待发送的邮件
type Message struct {
	To      []string
	Subject string
	HTML    string
	ReplyTo string
}

// Mailer 邮件发送接口
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

const defaultResendURL = "https://api.resend.com/emails"

// ResendMailer 通过 Resend HTTP API 发信，瞬时错误指数退避重试
type ResendMailer struct {
	apiKey     string
	from       string
	url        string
	client     *http.Client
	maxRetries uint64
	newBackOff func() backoff.BackOff
}

// NewResendMailer url 为空时使用官方地址
func NewResendMailer(apiKey, from, url string) *ResendMailer {
	if url == "" {
		url = defaultResendURL
	}
	client := cleanhttp.DefaultPooledClient()
	client.Timeout = 15 * time.Second
	return &ResendMailer{
		apiKey:     apiKey,
		from:       from,
		url:        url,
		client:     client,
		maxRetries: 3,
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 500 * time.Millisecond
			b.MaxElapsedTime = 20 * time.Second
			return b
		},
	}
}

type resendPayload struct {
	From    string   `json:"from"`
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	HTML    string   `json:"html"`
	ReplyTo string   `json:"reply_to,omitempty"`
}

// Send 发送邮件；4xx（429 除外）不重试
func (m *ResendMailer) Send(ctx context.Context, msg Message) error {
	if len(msg.To) == 0 {
		return fmt.Errorf("email %q has no recipients", msg.Subject)
	}
	body, err := json.Marshal(resendPayload{
		From:    m.from,
		To:      msg.To,
		Subject: msg.Subject,
		HTML:    msg.HTML,
		ReplyTo: msg.ReplyTo,
	})
	if err != nil {
		return err
	}

	var messageID string
	operation := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.url, bytes.NewReader(body))
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Authorization", "Bearer "+m.apiKey)
		req.Header.Set("Content-Type", "application/json")

		resp, err := m.client.Do(req)
		if err != nil {
			return fmt.Errorf("email request: %w", err)
		}
		defer resp.Body.Close()
		respBody, _ := io.ReadAll(resp.Body)

		switch {
		case resp.StatusCode < 300:
			messageID = gjson.GetBytes(respBody, "id").String()
			return nil
		case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
			return fmt.Errorf("email API returned %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
		default:
			return backoff.Permanent(fmt.Errorf("email API rejected message (%d): %s",
				resp.StatusCode, gjson.GetBytes(respBody, "message").String()))
		}
	}

	b := backoff.WithContext(backoff.WithMaxRetries(m.newBackOff(), m.maxRetries), ctx)
	if err := backoff.Retry(operation, b); err != nil {
		return err
	}

	log.Info().
		Strs("to", msg.To).
		Str("subject", msg.Subject).
		Str("message_id", messageID).
		Msg("📧 Email sent")
	return nil
}

// LogMailer 开发环境使用，只记录日志不发信
type LogMailer struct{}

func (LogMailer) Send(_ context.Context, msg Message) error {
	log.Info().
		Strs("to", msg.To).
		Str("subject", msg.Subject).
		Int("html_bytes", len(msg.HTML)).
		Msg("📨 Email (log only)")
	return nil
}
