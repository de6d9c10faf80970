package delivery

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/textproto"
	"strings"
	"time"

	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"
)

type EmailConfig struct {
	Addr     string
	Username string
	Password string
	From     string
}

// EmailSender mails the rendered file as an attachment.
type EmailSender struct {
	cfg  EmailConfig
	send func(addr string, auth sasl.Client, from string, to []string, r io.Reader) error
}

func NewEmailSender(cfg EmailConfig) *EmailSender {
	return &EmailSender{cfg: cfg, send: smtp.SendMail}
}

func (s *EmailSender) Send(ctx context.Context, delivery Delivery) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(delivery.Config.Recipients) == 0 {
		return fmt.Errorf("email delivery has no recipients")
	}
	message, err := buildMessage(s.cfg.From, delivery)
	if err != nil {
		return err
	}

	var auth sasl.Client
	if s.cfg.Username != "" {
		auth = sasl.NewPlainClient("", s.cfg.Username, s.cfg.Password)
	}
	if err := s.send(s.cfg.Addr, auth, s.cfg.From, delivery.Config.Recipients, bytes.NewReader(message)); err != nil {
		return fmt.Errorf("send mail: %w", err)
	}
	return nil
}

func buildMessage(from string, delivery Delivery) ([]byte, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	subject := fmt.Sprintf("%s: %s", delivery.ScheduleName, delivery.ReportTitle)
	headers := []string{
		"From: " + from,
		"To: " + strings.Join(delivery.Config.Recipients, ", "),
		"Subject: " + mime.QEncoding.Encode("utf-8", subject),
		"Date: " + delivery.GeneratedAt.Format(time.RFC1123Z),
		"MIME-Version: 1.0",
		"Content-Type: multipart/mixed; boundary=" + writer.Boundary(),
	}
	var out bytes.Buffer
	out.WriteString(strings.Join(headers, "\r\n"))
	out.WriteString("\r\n\r\n")

	text, err := writer.CreatePart(textproto.MIMEHeader{
		"Content-Type": {"text/plain; charset=utf-8"},
	})
	if err != nil {
		return nil, fmt.Errorf("create text part: %w", err)
	}
	body := fmt.Sprintf("The scheduled report %q is attached.\r\n", delivery.ReportTitle)
	if delivery.DownloadURL != "" {
		body += "It can also be downloaded from " + delivery.DownloadURL + "\r\n"
	}
	if _, err := io.WriteString(text, body); err != nil {
		return nil, fmt.Errorf("write text part: %w", err)
	}

	attachment, err := writer.CreatePart(textproto.MIMEHeader{
		"Content-Type":              {delivery.ContentType},
		"Content-Transfer-Encoding": {"base64"},
		"Content-Disposition":       {mime.FormatMediaType("attachment", map[string]string{"filename": delivery.FileName})},
	})
	if err != nil {
		return nil, fmt.Errorf("create attachment: %w", err)
	}
	if err := writeBase64(attachment, delivery.Data); err != nil {
		return nil, fmt.Errorf("write attachment: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("close message: %w", err)
	}

	out.Write(buf.Bytes())
	return out.Bytes(), nil
}

// writeBase64 wraps lines at 76 characters.
func writeBase64(w io.Writer, data []byte) error {
	encoded := base64.StdEncoding.EncodeToString(data)
	for len(encoded) > 76 {
		if _, err := io.WriteString(w, encoded[:76]+"\r\n"); err != nil {
			return err
		}
		encoded = encoded[76:]
	}
	_, err := io.WriteString(w, encoded+"\r\n")
	return err
}
