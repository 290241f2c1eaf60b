// internal/services/notification_service.go
package services

import (
	"bytes"
	"fmt"
	"html/template"
	"net"
	"net/smtp"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/javajoker/wavhaven-backend/internal/config"
)

// Mailer delivers one rendered HTML message.
type Mailer interface {
	Send(to, subject, htmlBody string) error
}

// Notifier is what the order and moderation flows need from notifications.
// Enqueue methods never block on delivery.
type Notifier interface {
	EnqueueOrderConfirmation(msg OrderConfirmation)
	EnqueueTrackReviewed(msg TrackReviewNotice)
}

type DownloadLinkEntry struct {
	Category string
	FileName string
	URL      string
}

type ConfirmationItem struct {
	TrackTitle  string
	LicenseName string
	Price       decimal.Decimal
	Links       []DownloadLinkEntry
}

type OrderConfirmation struct {
	To           string
	CustomerName string
	OrderID      uuid.UUID
	Total        decimal.Decimal
	Currency     string
	Items        []ConfirmationItem
	LinksExpire  time.Time
}

type TrackReviewNotice struct {
	To           string
	ProducerName string
	TrackTitle   string
	TrackSlug    string
	Approved     bool
	Reason       string
}

type emailTemplate struct {
	Subject string
	Body    string
}

type NotificationService struct {
	mailer      Mailer
	frontendURL string
	wg          sync.WaitGroup
}

func NewNotificationService(mailer Mailer, frontend config.FrontendConfig) *NotificationService {
	return &NotificationService{
		mailer:      mailer,
		frontendURL: frontend.BaseURL,
	}
}

func (s *NotificationService) EnqueueOrderConfirmation(msg OrderConfirmation) {
	if msg.To == "" {
		logrus.WithField("order_id", msg.OrderID).Warn("Order confirmation skipped, customer has no email")
		return
	}

	data := map[string]interface{}{
		"CustomerName": msg.CustomerName,
		"OrderID":      msg.OrderID.String(),
		"Total":        msg.Total.StringFixed(2),
		"Currency":     strings.ToUpper(msg.Currency),
		"Items":        msg.Items,
		"ExpiresAt":    msg.LinksExpire.UTC().Format(time.RFC1123),
		"LibraryURL":   s.frontendURL + "/account/downloads",
	}

	s.enqueue("order_confirmation", msg.To, data, logrus.Fields{"order_id": msg.OrderID})
}

func (s *NotificationService) EnqueueTrackReviewed(msg TrackReviewNotice) {
	if msg.To == "" {
		return
	}

	templateType := "track_rejected"
	if msg.Approved {
		templateType = "track_approved"
	}

	data := map[string]interface{}{
		"ProducerName": msg.ProducerName,
		"TrackTitle":   msg.TrackTitle,
		"TrackURL":     fmt.Sprintf("%s/beats/%s", s.frontendURL, msg.TrackSlug),
		"Reason":       msg.Reason,
	}

	s.enqueue(templateType, msg.To, data, logrus.Fields{"track_slug": msg.TrackSlug})
}

// Wait blocks until queued deliveries finish. Called on shutdown.
func (s *NotificationService) Wait() {
	s.wg.Wait()
}

func (s *NotificationService) enqueue(templateType, to string, data interface{}, fields logrus.Fields) {
	tmpl := getEmailTemplate(templateType)
	body, err := renderTemplate(tmpl.Body, data)
	if err != nil {
		logrus.WithFields(fields).WithError(err).Error("Failed to render email template")
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.mailer.Send(to, tmpl.Subject, body); err != nil {
			logrus.WithFields(fields).WithError(err).WithField("template", templateType).Error("Failed to send email")
		}
	}()
}

// SMTPMailer sends mail through the configured relay.
type SMTPMailer struct {
	config      config.EmailConfig
	dialTimeout time.Duration
	sendTimeout time.Duration
}

func NewSMTPMailer(cfg config.EmailConfig) *SMTPMailer {
	return &SMTPMailer{
		config:      cfg,
		dialTimeout: 10 * time.Second,
		sendTimeout: 30 * time.Second,
	}
}

func (m *SMTPMailer) Send(to, subject, body string) error {
	if m.config.SMTPHost == "" {
		// Email not configured, just log
		logrus.WithFields(logrus.Fields{"to": to, "subject": subject}).Info("Email would be sent")
		return nil
	}

	addr := net.JoinHostPort(m.config.SMTPHost, m.config.SMTPPort)
	conn, err := net.DialTimeout("tcp", addr, m.dialTimeout)
	if err != nil {
		return fmt.Errorf("failed to connect to SMTP server: %w", err)
	}
	conn.SetDeadline(time.Now().Add(m.sendTimeout))

	client, err := smtp.NewClient(conn, m.config.SMTPHost)
	if err != nil {
		conn.Close()
		return fmt.Errorf("failed to start SMTP session: %w", err)
	}
	defer client.Close()

	if ok, _ := client.Extension("STARTTLS"); ok {
		if err := client.StartTLS(nil); err != nil {
			return fmt.Errorf("failed to start TLS: %w", err)
		}
	}

	if m.config.SMTPUsername != "" {
		auth := smtp.PlainAuth("", m.config.SMTPUsername, m.config.SMTPPassword, m.config.SMTPHost)
		if err := client.Auth(auth); err != nil {
			return fmt.Errorf("SMTP authentication failed: %w", err)
		}
	}

	if err := client.Mail(m.config.FromEmail); err != nil {
		return err
	}
	if err := client.Rcpt(to); err != nil {
		return err
	}

	w, err := client.Data()
	if err != nil {
		return err
	}
	if _, err := w.Write(composeMessage(m.config.FromName, m.config.FromEmail, to, subject, body)); err != nil {
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}

	return client.Quit()
}

func composeMessage(fromName, fromEmail, to, subject, body string) []byte {
	from := fromEmail
	if fromName != "" {
		from = fmt.Sprintf("%s <%s>", fromName, fromEmail)
	}

	return []byte(fmt.Sprintf(
		"From: %s\r\nTo: %s\r\nSubject: %s\r\nMIME-Version: 1.0\r\nContent-Type: text/html; charset=\"UTF-8\"\r\n\r\n%s",
		from, to, subject, body,
	))
}

func renderTemplate(templateStr string, data interface{}) (string, error) {
	tmpl, err := template.New("email").Parse(templateStr)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", err
	}

	return buf.String(), nil
}

func getEmailTemplate(templateType string) emailTemplate {
	templates := map[string]emailTemplate{
		"order_confirmation": {
			Subject: "Your Wavhaven order is ready",
			Body: `
<!DOCTYPE html>
<html>
<body>
	<h2>Thanks for your purchase{{if .CustomerName}}, {{.CustomerName}}{{end}}!</h2>
	<p>Order {{.OrderID}} &middot; {{.Total}} {{.Currency}}</p>
	{{range .Items}}
	<h3>{{.TrackTitle}} ({{.LicenseName}} License)</h3>
	<ul>
		{{range .Links}}<li><a href="{{.URL}}">{{.Category}}: {{.FileName}}</a></li>{{end}}
	</ul>
	{{end}}
	<p>These links expire on {{.ExpiresAt}}. You can always get fresh links from <a href="{{.LibraryURL}}">your library</a>.</p>
	<p>Best regards,<br>Wavhaven Team</p>
</body>
</html>`,
		},
		"track_approved": {
			Subject: "Your track is live",
			Body: `
<!DOCTYPE html>
<html>
<body>
	<h2>Hello {{.ProducerName}},</h2>
	<p>"{{.TrackTitle}}" passed review and is now published.</p>
	<a href="{{.TrackURL}}">View your track</a>
	<p>Best regards,<br>Wavhaven Team</p>
</body>
</html>`,
		},
		"track_rejected": {
			Subject: "Your track needs changes",
			Body: `
<!DOCTYPE html>
<html>
<body>
	<h2>Hello {{.ProducerName}},</h2>
	<p>"{{.TrackTitle}}" was not approved.</p>
	<p>Reason: {{.Reason}}</p>
	<p>Update the track and submit it again when ready.</p>
	<p>Best regards,<br>Wavhaven Team</p>
</body>
</html>`,
		},
	}

	if template, exists := templates[templateType]; exists {
		return template
	}

	return emailTemplate{
		Subject: "Notification",
		Body:    "<p>{{.Message}}</p>",
	}
}
