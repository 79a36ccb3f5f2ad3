package mailer

import (
	"bufio"
	"bytes"
	"context"
	"encoding/base64"
	"io"
	"net"
	"net/textproto"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/emersion/go-message/mail"

	"github.com/nhle/mail-scheduler/internal/model"
)

func TestComposePlain(t *testing.T) {
	var buf bytes.Buffer
	msg := Message{
		Subject: "Daily check-in",
		From:    "bot@example.com",
		To:      []string{"a@example.com", "b@example.com"},
		Body:    "All systems nominal.",
	}
	if err := Compose(&buf, msg, time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)); err != nil {
		t.Fatalf("Compose: %v", err)
	}

	mr, err := mail.CreateReader(&buf)
	if err != nil {
		t.Fatalf("CreateReader: %v", err)
	}
	defer mr.Close()

	subject, _ := mr.Header.Subject()
	if subject != "Daily check-in" {
		t.Fatalf("Subject = %q", subject)
	}
	to, err := mr.Header.AddressList("To")
	if err != nil || len(to) != 2 || to[1].Address != "b@example.com" {
		t.Fatalf("To = %v, %v", to, err)
	}

	part, err := mr.NextPart()
	if err != nil {
		t.Fatalf("NextPart: %v", err)
	}
	body, _ := io.ReadAll(part.Body)
	if string(body) != "All systems nominal." {
		t.Fatalf("body = %q", body)
	}
}

func TestComposeWithAttachment(t *testing.T) {
	var buf bytes.Buffer
	msg := Message{
		Subject: "Report",
		From:    "bot@example.com",
		To:      []string{"a@example.com"},
		Body:    "Attached.",
		Attachment: &Attachment{
			Data:     []byte("%PDF-1.4 fake"),
			Filename: "report.pdf",
			MIMEType: "application/pdf",
		},
	}
	if err := Compose(&buf, msg, time.Now()); err != nil {
		t.Fatalf("Compose: %v", err)
	}

	mr, err := mail.CreateReader(&buf)
	if err != nil {
		t.Fatalf("CreateReader: %v", err)
	}
	defer mr.Close()

	var sawBody, sawAttachment bool
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("NextPart: %v", err)
		}
		data, _ := io.ReadAll(part.Body)
		switch h := part.Header.(type) {
		case *mail.InlineHeader:
			sawBody = string(data) == "Attached."
		case *mail.AttachmentHeader:
			name, _ := h.Filename()
			ct, _, _ := h.ContentType()
			sawAttachment = name == "report.pdf" && ct == "application/pdf" && string(data) == "%PDF-1.4 fake"
		}
	}
	if !sawBody || !sawAttachment {
		t.Fatalf("body=%v attachment=%v", sawBody, sawAttachment)
	}
}

func TestSASLAuthPlain(t *testing.T) {
	a := plainAuth("me@example.com", "pw")
	mech, ir, err := a.Start(nil)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if mech != "PLAIN" || string(ir) != "\x00me@example.com\x00pw" {
		t.Fatalf("Start = %q, %q", mech, ir)
	}
	if resp, err := a.Next(nil, false); err != nil || resp != nil {
		t.Fatalf("Next(done) = %q, %v", resp, err)
	}
}

// fakeSMTP is a minimal plaintext SMTP server that records one session.
type fakeSMTP struct {
	ln net.Listener

	mu       sync.Mutex
	authLine string
	from     string
	rcpts    []string
	data     string
	silent   bool
}

func startFakeSMTP(t *testing.T, silent bool) *fakeSMTP {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	s := &fakeSMTP{ln: ln, silent: silent}
	t.Cleanup(func() { ln.Close() })
	go s.serve()
	return s
}

func (s *fakeSMTP) profile() model.SMTPProfile {
	host, portStr, _ := net.SplitHostPort(s.ln.Addr().String())
	port, _ := strconv.Atoi(portStr)
	return model.SMTPProfile{
		Server:     host,
		Port:       port,
		Address:    "bot@example.com",
		Secret:     "pw",
		Encryption: model.EncryptionNone,
	}
}

func (s *fakeSMTP) serve() {
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			return
		}
		go s.handle(conn)
	}
}

func (s *fakeSMTP) handle(conn net.Conn) {
	defer conn.Close()
	if s.silent {
		_, _ = io.Copy(io.Discard, conn)
		return
	}
	tp := textproto.NewConn(conn)
	_ = tp.PrintfLine("220 fake ESMTP")
	for {
		line, err := tp.ReadLine()
		if err != nil {
			return
		}
		verb := strings.ToUpper(strings.SplitN(line, " ", 2)[0])
		switch verb {
		case "EHLO":
			_ = tp.PrintfLine("250-fake")
			_ = tp.PrintfLine("250 AUTH PLAIN")
		case "AUTH":
			s.mu.Lock()
			s.authLine = line
			s.mu.Unlock()
			_ = tp.PrintfLine("235 ok")
		case "MAIL":
			s.mu.Lock()
			s.from = line
			s.mu.Unlock()
			_ = tp.PrintfLine("250 ok")
		case "RCPT":
			s.mu.Lock()
			s.rcpts = append(s.rcpts, line)
			s.mu.Unlock()
			_ = tp.PrintfLine("250 ok")
		case "DATA":
			_ = tp.PrintfLine("354 go ahead")
			data, err := tp.ReadDotBytes()
			if err != nil {
				return
			}
			s.mu.Lock()
			s.data = string(data)
			s.mu.Unlock()
			_ = tp.PrintfLine("250 queued")
		case "QUIT":
			_ = tp.PrintfLine("221 bye")
			return
		default:
			_ = tp.PrintfLine("502 unknown")
		}
	}
}

func TestSMTPTransportSend(t *testing.T) {
	srv := startFakeSMTP(t, false)
	tr := NewSMTPTransport()

	msg := Message{
		Subject: "Ping",
		From:    "bot@example.com",
		To:      []string{"a@example.com", "b@example.com"},
		Body:    "pong",
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := tr.Send(ctx, srv.profile(), msg); err != nil {
		t.Fatalf("Send: %v", err)
	}

	srv.mu.Lock()
	defer srv.mu.Unlock()
	wantAuth := "AUTH PLAIN " + base64.StdEncoding.EncodeToString([]byte("\x00bot@example.com\x00pw"))
	if srv.authLine != wantAuth {
		t.Fatalf("auth line = %q, want %q", srv.authLine, wantAuth)
	}
	if !strings.Contains(srv.from, "<bot@example.com>") {
		t.Fatalf("MAIL = %q", srv.from)
	}
	if len(srv.rcpts) != 2 {
		t.Fatalf("RCPT = %v", srv.rcpts)
	}

	mr, err := mail.CreateReader(bufio.NewReader(strings.NewReader(srv.data)))
	if err != nil {
		t.Fatalf("parsing delivered message: %v", err)
	}
	if subject, _ := mr.Header.Subject(); subject != "Ping" {
		t.Fatalf("delivered subject = %q", subject)
	}
}

type recordingArchive struct {
	got chan []byte
}

func (r *recordingArchive) Archive(_ model.SMTPProfile, raw []byte, _ time.Time) error {
	r.got <- raw
	return nil
}

func TestSMTPTransportArchivesDeliveredMessage(t *testing.T) {
	srv := startFakeSMTP(t, false)
	archive := &recordingArchive{got: make(chan []byte, 1)}
	tr := NewSMTPTransport()
	tr.Archive = archive

	msg := Message{Subject: "Filed", From: "bot@example.com", To: []string{"a@example.com"}, Body: "copy me"}
	if err := tr.Send(context.Background(), srv.profile(), msg); err != nil {
		t.Fatalf("Send: %v", err)
	}

	select {
	case raw := <-archive.got:
		if !strings.Contains(string(raw), "Subject: Filed") {
			t.Fatalf("archived message:\n%s", raw)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("delivered message was not archived")
	}
}

func TestIMAPArchiveUnreachable(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().(*net.TCPAddr)
	ln.Close()

	a := &IMAPArchive{Host: "127.0.0.1", Port: addr.Port, TLS: true, Timeout: 5 * time.Second}
	err = a.Archive(model.SMTPProfile{Address: "bot@example.com"}, []byte("Subject: x\r\n\r\nbody"), time.Now())
	if err == nil || !strings.Contains(err.Error(), "connecting to IMAP") {
		t.Fatalf("Archive = %v", err)
	}
}

func TestSMTPTransportHonoursContext(t *testing.T) {
	srv := startFakeSMTP(t, true)
	tr := NewSMTPTransport()

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := tr.Send(ctx, srv.profile(), Message{From: "bot@example.com", To: []string{"a@example.com"}})
	if err == nil {
		t.Fatal("expected error from silent server")
	}
	if elapsed := time.Since(start); elapsed > 3*time.Second {
		t.Fatalf("Send blocked for %v", elapsed)
	}
}

func TestSMTPTransportRequiresRecipients(t *testing.T) {
	tr := NewSMTPTransport()
	if err := tr.Send(context.Background(), model.SMTPProfile{}, Message{}); err == nil {
		t.Fatal("expected error without recipients")
	}
}
