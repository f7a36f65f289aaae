// backend/src/services/email_service.go
package services

import (
	"context"
	"fmt"
	"log/slog"
	"net/smtp"
	"strings"
	"time"

	"github.com/mailgun/mailgun-go/v4"
	"github.com/username/finloader/backend/src/config"
	"github.com/username/finloader/backend/src/logger"
)

// EmailService notifies analysts about statements that need attention.
type EmailService interface {
	SendFlaggedReviewEmail(toEmail, company, period string, flaggedFields, failedChecks []string) error
	SendRuleReviewEmail(toEmail, company, ruleText string) error
}

func NewEmailService() EmailService {
	if config.Cfg == nil {
		slog.Error("Configuration (config.Cfg) is nil. Email service will default to mock.")
		return &MockEmailService{}
	}

	provider := strings.ToLower(config.Cfg.EmailServiceProvider)
	logger.L.Info("Initializing email service", "provider", provider)

	switch provider {
	case "mailgun":
		if config.Cfg.MailgunDomain == "" || config.Cfg.MailgunPrivateAPIKey == "" || config.Cfg.SenderEmail == "" {
			logger.L.Warn("Mailgun configuration incomplete (Domain, API Key, or SenderEmail missing). Falling back to MockEmailService.")
			return &MockEmailService{}
		}
		mg := mailgun.NewMailgun(config.Cfg.MailgunDomain, config.Cfg.MailgunPrivateAPIKey)
		logger.L.Info("Mailgun client initialized", "domain", config.Cfg.MailgunDomain)
		return &MailgunEmailService{
			mg:          mg,
			senderEmail: config.Cfg.SenderEmail,
			senderName:  config.Cfg.SenderName,
		}
	case "smtp":
		if config.Cfg.SMTPServer == "" || config.Cfg.SMTPUser == "" || config.Cfg.SMTPPassword == "" || config.Cfg.SenderEmail == "" {
			logger.L.Warn("SMTP configuration incomplete. Falling back to MockEmailService.")
			return &MockEmailService{}
		}
		return &SMTPEmailService{
			SMTPServer:   config.Cfg.SMTPServer,
			SMTPPort:     config.Cfg.SMTPPort,
			SMTPUser:     config.Cfg.SMTPUser,
			SMTPPassword: config.Cfg.SMTPPassword,
			SenderEmail:  config.Cfg.SenderEmail,
		}
	default:
		logger.L.Info("Defaulting to MockEmailService.")
		return &MockEmailService{}
	}
}

func flaggedReviewBody(company, period string, flaggedFields, failedChecks []string) (subject, body string) {
	subject = fmt.Sprintf("Review needed: %s %s has flagged fields", company, period)
	var b strings.Builder
	fmt.Fprintf(&b, "The %s statement for %s finished processing with open flags.\n\n", period, company)
	if len(flaggedFields) > 0 {
		b.WriteString("Flagged fields:\n")
		for _, f := range flaggedFields {
			fmt.Fprintf(&b, "  - %s\n", f)
		}
	}
	if len(failedChecks) > 0 {
		b.WriteString("\nFailed validation checks:\n")
		for _, c := range failedChecks {
			fmt.Fprintf(&b, "  - %s\n", c)
		}
	}
	b.WriteString("\nPlease review and correct the statement before finalizing.\n")
	return subject, b.String()
}

func ruleReviewBody(company, ruleText string) (subject, body string) {
	subject = fmt.Sprintf("Rule merge needs human review for %s", company)
	body = fmt.Sprintf(
		"An automated merge into the classification context for %s could not be resolved cleanly.\n\nThe following rule was appended and marked for review:\n\n  %s\n\nPlease edit the company's context document to settle it.\n",
		company, ruleText)
	return subject, body
}

type SMTPEmailService struct {
	SMTPServer   string
	SMTPPort     int
	SMTPUser     string
	SMTPPassword string
	SenderEmail  string
}

func (s *SMTPEmailService) send(toEmail, subject, body string) error {
	from := s.SenderEmail
	to := []string{toEmail}

	header := make(map[string]string)
	header["From"] = from
	header["To"] = toEmail
	header["Subject"] = subject
	header["MIME-version"] = "1.0"
	header["Content-Type"] = "text/plain; charset=\"UTF-8\""
	message := ""
	for k, v := range header {
		message += fmt.Sprintf("%s: %s\r\n", k, v)
	}
	message += "\r\n" + body
	auth := smtp.PlainAuth("", s.SMTPUser, s.SMTPPassword, s.SMTPServer)
	addr := fmt.Sprintf("%s:%d", s.SMTPServer, s.SMTPPort)
	if err := smtp.SendMail(addr, auth, from, to, []byte(message)); err != nil {
		logger.L.Error("Failed to send email via SMTP", "error", err, "to", toEmail, "subject", subject)
		return fmt.Errorf("failed to send email via SMTP: %w", err)
	}
	logger.L.Info("Email sent successfully via SMTP", "to", toEmail, "subject", subject)
	return nil
}

func (s *SMTPEmailService) SendFlaggedReviewEmail(toEmail, company, period string, flaggedFields, failedChecks []string) error {
	subject, body := flaggedReviewBody(company, period, flaggedFields, failedChecks)
	return s.send(toEmail, subject, body)
}

func (s *SMTPEmailService) SendRuleReviewEmail(toEmail, company, ruleText string) error {
	subject, body := ruleReviewBody(company, ruleText)
	return s.send(toEmail, subject, body)
}

type MailgunEmailService struct {
	mg          mailgun.Mailgun
	senderEmail string
	senderName  string
}

func (s *MailgunEmailService) send(toEmail, subject, body, tag string) error {
	from := fmt.Sprintf("%s <%s>", s.senderName, s.senderEmail)

	message := s.mg.NewMessage(from, subject, body, toEmail)
	if tag != "" {
		message.AddTag(tag)
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second*20)
	defer cancel()
	resp, id, err := s.mg.Send(ctx, message)
	if err != nil {
		logger.L.Error("Failed to send email via Mailgun", "error", err, "to", toEmail, "mailgunResp", resp, "mailgunId", id)
		return fmt.Errorf("mailgun send failed: %w. Response: %s", err, resp)
	}
	logger.L.Info("Email sent successfully via Mailgun", "to", toEmail, "id", id, "subject", subject)
	return nil
}

func (s *MailgunEmailService) SendFlaggedReviewEmail(toEmail, company, period string, flaggedFields, failedChecks []string) error {
	subject, body := flaggedReviewBody(company, period, flaggedFields, failedChecks)
	return s.send(toEmail, subject, body, "flagged-review")
}

func (s *MailgunEmailService) SendRuleReviewEmail(toEmail, company, ruleText string) error {
	subject, body := ruleReviewBody(company, ruleText)
	return s.send(toEmail, subject, body, "rule-review")
}

type MockEmailService struct{}

func (m *MockEmailService) SendFlaggedReviewEmail(toEmail, company, period string, flaggedFields, failedChecks []string) error {
	logger.L.Info("MockEmailService: Would send flagged review email.",
		"to", toEmail, "company", company, "period", period,
		"flaggedFields", flaggedFields, "failedChecks", failedChecks)
	return nil
}

func (m *MockEmailService) SendRuleReviewEmail(toEmail, company, ruleText string) error {
	logger.L.Info("MockEmailService: Would send rule review email.",
		"to", toEmail, "company", company, "ruleText", ruleText)
	return nil
}
