package utils

import (
	"fmt"
	"net/smtp"
	"strings"

	"github.com/AntonyShaga/booking-notes-chat/internals/config"
)

// EmailKind selects the message template. Rendering beyond plain text is an
// external concern; the core only supplies the raw token or code.
type EmailKind string

const (
	// EmailVerify carries an email-verification link token.
	EmailVerify EmailKind = "verify"
	// EmailTwoFactor carries a login/setup one-time code.
	EmailTwoFactor EmailKind = "two-factor-page"
)

// Mailer is the outbound-mail collaborator. Components accept the interface
// so tests can capture sends without an SMTP server.
type Mailer interface {
	Send(to string, kind EmailKind, token string) error
}

// EmailManager delivers transactional mail over SMTP.
type EmailManager struct {
	Config  config.SMTPConfig
	AppName string
	AppURL  string
}

// NewEmailManager initializes and returns a new EmailManager instance.
func NewEmailManager(cfg config.SMTPConfig, appName, appURL string) *EmailManager {
	return &EmailManager{Config: cfg, AppName: appName, AppURL: appURL}
}

// Send dispatches the message for the given template kind.
func (em *EmailManager) Send(to string, kind EmailKind, token string) error {
	switch kind {
	case EmailTwoFactor:
		subject := fmt.Sprintf("%s - Your 2FA verification code", em.AppName)
		body := fmt.Sprintf(
			"Hello,\n\n"+
				"Your verification code for %s:\n\n"+
				"Code: %s\n\n"+
				"This code will expire in 5 minutes. If you did not request it, we recommend reviewing your security settings.\n\n"+
				"Best regards,\nThe %s Team",
			em.AppName, token, em.AppName)
		return em.send(to, subject, body)
	case EmailVerify:
		subject := fmt.Sprintf("%s - Verify your email address", em.AppName)
		body := fmt.Sprintf(
			"Hello,\n\n"+
				"Thank you for signing up for %s! To confirm your email address, open the link below:\n\n"+
				"%s/verify-email?token=%s\n\n"+
				"The link is valid for 24 hours. If you did not create this account, please ignore this email.\n\n"+
				"Best regards,\nThe %s Team",
			em.AppName, em.AppURL, token, em.AppName)
		return em.send(to, subject, body)
	default:
		return fmt.Errorf("unknown email kind %q", kind)
	}
}

// send handles the actual SMTP handshake and delivery.
func (em *EmailManager) send(toEmail string, subject string, body string) error {
	smtpAddr := fmt.Sprintf("%s:%d", em.Config.Host, em.Config.Port)

	// Headers per RFC 822; note the \r\n separators and the blank line
	// between headers and body.
	headers := []string{
		fmt.Sprintf("From: %s", em.Config.User),
		fmt.Sprintf("To: %s", toEmail),
		fmt.Sprintf("Subject: %s", subject),
		"MIME-Version: 1.0",
		"Content-Type: text/plain; charset=\"UTF-8\"",
		"",
		body,
	}

	message := strings.Join(headers, "\r\n")

	auth := smtp.PlainAuth("", em.Config.User, em.Config.Password, em.Config.Host)

	return smtp.SendMail(smtpAddr, auth, em.Config.User, []string{toEmail}, []byte(message))
}
