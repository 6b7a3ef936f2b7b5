package service

import (
	"fmt"
	"html"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"gopkg.in/gomail.v2"

	"github.com/pageza/cookbook/backend/config"
	"github.com/pageza/cookbook/backend/internal/models"
)

type EmailService struct {
	dialer     *gomail.Dialer
	fromEmail  string
	adminEmail string
	log        *zap.Logger
}

// NewEmailService returns a mailer. Without an SMTP host, emails are logged instead of sent.
func NewEmailService(cfg *config.Config, log *zap.Logger) *EmailService {
	s := &EmailService{
		fromEmail:  cfg.EmailFrom,
		adminEmail: cfg.AdminEmail,
		log:        log,
	}
	if cfg.SMTPHost != "" {
		s.dialer = gomail.NewDialer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPassword)
	}
	log.Info("Email service initialized",
		zap.Bool("smtp_configured", s.dialer != nil),
		zap.String("admin_email", s.adminEmail))
	return s
}

func (s *EmailService) SendEmail(to, subject, body string) error {
	// If SMTP is not configured, log the email instead
	if s.dialer == nil {
		s.log.Info("SMTP not configured, logging email",
			zap.String("to", to),
			zap.String("subject", subject),
			zap.String("body", body))
		return nil
	}

	msg := gomail.NewMessage()
	msg.SetHeader("From", s.fromEmail)
	msg.SetHeader("To", to)
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/html", body)

	if err := s.dialer.DialAndSend(msg); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}
	return nil
}

// SendContactNotification forwards a contact message to the admin address.
func (s *EmailService) SendContactNotification(m *models.ContactMessage) error {
	to := s.adminEmail
	if to == "" {
		to = s.fromEmail
	}
	return s.SendEmail(to, ContactSubject(m.Subject), contactBody(m))
}

// ContactSubject builds the title-cased notification subject.
func ContactSubject(subject string) string {
	subject = strings.TrimSpace(subject)
	if subject == "" {
		subject = "contact message"
	}
	caser := cases.Title(language.English)
	return fmt.Sprintf("[Cookbook] %s", caser.String(subject))
}

func contactBody(m *models.ContactMessage) string {
	var b strings.Builder
	b.WriteString("<h2>New contact message</h2>")
	fmt.Fprintf(&b, "<p><strong>From:</strong> %s &lt;%s&gt;</p>", html.EscapeString(m.Name), html.EscapeString(m.Email))
	if m.UserID != nil {
		fmt.Fprintf(&b, "<p><strong>User ID:</strong> %s</p>", m.UserID)
	}
	fmt.Fprintf(&b, "<p><strong>Received:</strong> %s</p>", m.CreatedAt.Format("2006-01-02 15:04 MST"))
	fmt.Fprintf(&b, "<p>%s</p>", strings.ReplaceAll(html.EscapeString(m.Message), "\n", "<br>"))
	return b.String()
}
