package notify

import (
	"context"
	"fmt"

	"coworking-alliance-backend/pkg/models"

	"github.com/rs/zerolog/log"
)

// Notifier 组合收件人路由、模板和发信
type Notifier struct {
	resolver *Resolver
	mailer   Mailer
}

func NewNotifier(resolver *Resolver, mailer Mailer) *Notifier {
	return &Notifier{resolver: resolver, mailer: mailer}
}

// Resolver exposes the routing used for admin notifications.
func (n *Notifier) Resolver() *Resolver { return n.resolver }

// NotifyAdmins 向 kind 路由到的管理员发送模板邮件
func (n *Notifier) NotifyAdmins(ctx context.Context, kind models.NotificationKind, subject, tmpl string, data interface{}) error {
	to, err := n.resolver.Recipients(ctx, kind)
	if err != nil {
		log.Warn().Err(err).Str("kind", string(kind)).Msg("⚠️  Failed to resolve admin recipients")
		return err
	}
	return n.send(ctx, to, subject, tmpl, data)
}

// SendTo 向单个地址发送模板邮件
func (n *Notifier) SendTo(ctx context.Context, to, subject, tmpl string, data interface{}) error {
	addr, ok := NormalizeAddress(to)
	if !ok {
		err := fmt.Errorf("invalid recipient %q", to)
		log.Warn().Err(err).Str("template", tmpl).Msg("⚠️  Email skipped")
		return err
	}
	return n.send(ctx, []string{addr}, subject, tmpl, data)
}

func (n *Notifier) send(ctx context.Context, to []string, subject, tmpl string, data interface{}) error {
	html, err := Render(tmpl, data)
	if err != nil {
		log.Error().Err(err).Str("template", tmpl).Msg("❌ Failed to render email")
		return err
	}
	if err := n.mailer.Send(ctx, Message{To: to, Subject: subject, HTML: html}); err != nil {
		log.Warn().Err(err).Strs("to", to).Str("subject", subject).Msg("⚠️  Failed to send email")
		return err
	}
	return nil
}
