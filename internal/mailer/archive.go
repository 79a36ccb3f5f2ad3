package mailer

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
	"github.com/sethvargo/go-retry"

	"github.com/nhle/mail-scheduler/internal/model"
)

// DefaultSentMailbox is the folder copies are appended to.
const DefaultSentMailbox = "Sent"

// Archiver stores a copy of a delivered message.
type Archiver interface {
	Archive(profile model.SMTPProfile, raw []byte, date time.Time) error
}

// IMAPArchive appends delivered messages to a mailbox on an IMAP server,
// logging in with the SMTP profile's address and secret.
type IMAPArchive struct {
	Host    string
	Port    int
	TLS     bool
	Mailbox string

	// Timeout bounds the whole session.
	Timeout time.Duration
}

// connectAttempts bounds how often connecting and logging in is retried.
const connectAttempts = 3

// Archive implements Archiver.
func (a *IMAPArchive) Archive(profile model.SMTPProfile, raw []byte, date time.Time) error {
	ctx := context.Background()
	if a.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.Timeout)
		defer cancel()
	}

	client, err := a.connect(ctx, profile)
	if err != nil {
		return err
	}
	defer client.Close()
	stop := context.AfterFunc(ctx, func() { _ = client.Close() })
	defer stop()
	defer func() { _ = client.Logout().Wait() }()

	mailbox := a.Mailbox
	if mailbox == "" {
		mailbox = DefaultSentMailbox
	}
	cmd := client.Append(mailbox, int64(len(raw)), &imap.AppendOptions{
		Flags: []imap.Flag{imap.FlagSeen},
		Time:  date,
	})
	if _, err := cmd.Write(raw); err != nil {
		return fmt.Errorf("IMAP append to %s: %w", mailbox, err)
	}
	if err := cmd.Close(); err != nil {
		return fmt.Errorf("IMAP append to %s: %w", mailbox, err)
	}
	if _, err := cmd.Wait(); err != nil {
		return fmt.Errorf("IMAP append to %s: %w", mailbox, err)
	}
	return nil
}

// connect dials and logs in, retrying transient failures with backoff.
// Only the connection is retried; the append itself runs once.
func (a *IMAPArchive) connect(ctx context.Context, profile model.SMTPProfile) (*imapclient.Client, error) {
	addr := net.JoinHostPort(a.Host, strconv.Itoa(a.Port))

	b := retry.NewFibonacci(500 * time.Millisecond)
	b = retry.WithCappedDuration(5*time.Second, b)
	b = retry.WithMaxRetries(connectAttempts-1, b)

	var client *imapclient.Client
	err := retry.Do(ctx, b, func(context.Context) error {
		var err error
		if a.TLS {
			client, err = imapclient.DialTLS(addr, nil)
		} else {
			client, err = imapclient.DialStartTLS(addr, nil)
		}
		if err != nil {
			return retry.RetryableError(fmt.Errorf("connecting to IMAP %s: %w", addr, err))
		}
		if err := client.Login(profile.Address, profile.Secret).Wait(); err != nil {
			_ = client.Close()
			// Login failures are final.
			return fmt.Errorf("IMAP login as %s: %w", profile.Address, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return client, nil
}
