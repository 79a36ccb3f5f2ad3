package mailer

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/smtp"
	"time"

	"go.uber.org/zap"

	"github.com/nhle/mail-scheduler/internal/model"
)

// SMTPTransport delivers messages with net/smtp.
type SMTPTransport struct {
	// DialTimeout bounds connection setup when ctx carries no deadline.
	DialTimeout time.Duration

	// TLSConfig, when set, is cloned for SSL and STARTTLS connections.
	TLSConfig *tls.Config

	// Now stamps the Date header; defaults to time.Now.
	Now func() time.Time

	// Archive, when set, receives a copy of every delivered message. It
	// runs in the background and its failures are only logged.
	Archive Archiver
	Log     *zap.Logger
}

// NewSMTPTransport returns a transport with a 30s dial timeout.
func NewSMTPTransport() *SMTPTransport {
	return &SMTPTransport{DialTimeout: 30 * time.Second}
}

// Send composes msg and delivers it. The connection is closed as soon as
// ctx is done, which aborts any blocked SMTP exchange.
func (t *SMTPTransport) Send(ctx context.Context, profile model.SMTPProfile, msg Message) error {
	if len(msg.To) == 0 {
		return errors.New("message has no recipients")
	}

	now := time.Now
	if t.Now != nil {
		now = t.Now
	}
	date := now()
	var buf bytes.Buffer
	if err := Compose(&buf, msg, date); err != nil {
		return fmt.Errorf("composing message: %w", err)
	}

	conn, err := t.dial(ctx, profile)
	if err != nil {
		return err
	}
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	client, err := smtp.NewClient(conn, profile.Server)
	if err != nil {
		conn.Close()
		return ctxErr(ctx, fmt.Errorf("creating SMTP client: %w", err))
	}
	defer client.Close()

	if profile.Encryption == model.EncryptionSTARTTLS {
		if ok, _ := client.Extension("STARTTLS"); !ok {
			return fmt.Errorf("server %s does not support STARTTLS", profile.Addr())
		}
		if err := client.StartTLS(t.tlsConfig(profile.Server)); err != nil {
			return ctxErr(ctx, fmt.Errorf("SMTP STARTTLS: %w", err))
		}
	}

	if profile.Secret != "" {
		if err := client.Auth(plainAuth(profile.Address, profile.Secret)); err != nil {
			return ctxErr(ctx, fmt.Errorf("SMTP auth: %w", err))
		}
	}

	if err := sendViaClient(client, msg.From, msg.To, buf.Bytes()); err != nil {
		return ctxErr(ctx, err)
	}

	if t.Archive != nil {
		go t.archive(profile, buf.Bytes(), date, msg.Subject)
	}
	return nil
}

func (t *SMTPTransport) archive(profile model.SMTPProfile, raw []byte, date time.Time, subject string) {
	if err := t.Archive.Archive(profile, raw, date); err != nil && t.Log != nil {
		t.Log.Warn("saving sent copy", zap.String("subject", subject), zap.Error(err))
	}
}

func (t *SMTPTransport) dial(ctx context.Context, profile model.SMTPProfile) (net.Conn, error) {
	if _, ok := ctx.Deadline(); !ok && t.DialTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.DialTimeout)
		defer cancel()
	}

	addr := profile.Addr()
	dialer := &net.Dialer{}

	if profile.Encryption == model.EncryptionSSL {
		tlsDialer := &tls.Dialer{NetDialer: dialer, Config: t.tlsConfig(profile.Server)}
		conn, err := tlsDialer.DialContext(ctx, "tcp", addr)
		if err != nil {
			return nil, fmt.Errorf("TLS dial to %s: %w", addr, err)
		}
		return conn, nil
	}

	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial to %s: %w", addr, err)
	}
	return conn, nil
}

func (t *SMTPTransport) tlsConfig(host string) *tls.Config {
	if t.TLSConfig != nil {
		cfg := t.TLSConfig.Clone()
		if cfg.ServerName == "" {
			cfg.ServerName = host
		}
		return cfg
	}
	return &tls.Config{ServerName: host}
}

// sendViaClient runs the MAIL/RCPT/DATA exchange on an authenticated
// client.
func sendViaClient(client *smtp.Client, from string, to []string, body []byte) error {
	if err := client.Mail(from); err != nil {
		return fmt.Errorf("SMTP MAIL FROM: %w", err)
	}

	for _, rcpt := range to {
		if err := client.Rcpt(rcpt); err != nil {
			return fmt.Errorf("SMTP RCPT TO %s: %w", rcpt, err)
		}
	}

	writer, err := client.Data()
	if err != nil {
		return fmt.Errorf("SMTP DATA: %w", err)
	}

	if _, err := writer.Write(body); err != nil {
		return fmt.Errorf("writing email body: %w", err)
	}

	if err := writer.Close(); err != nil {
		return fmt.Errorf("closing email body: %w", err)
	}

	return client.Quit()
}

// ctxErr prefers the context's error when ctx ended the exchange, so a
// timeout is reported as such rather than as "use of closed connection".
func ctxErr(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	if cerr := ctx.Err(); cerr != nil {
		return fmt.Errorf("%w (%v)", cerr, err)
	}
	return err
}
