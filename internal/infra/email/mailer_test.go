package email

import (
	"bufio"
	"context"
	"net"
	"strings"
	"testing"
	"time"
)

func TestBuildMessageUsesCRLF(t *testing.T) {
	msg := string(buildMessage("billing@example.com", "client@example.com", "Payment received", "line one\nline two"))

	if !strings.HasPrefix(msg, "From: billing@example.com\r\nTo: client@example.com\r\nSubject: Payment received\r\n") {
		t.Fatalf("unexpected headers: %q", msg)
	}
	if !strings.HasSuffix(msg, "\r\n\r\nline one\r\nline two") {
		t.Fatalf("unexpected body: %q", msg)
	}
}

func TestSendHonoursCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	m := NewSMTPMailer("127.0.0.1", 1, "", "", "billing@example.com", time.Second)
	if err := m.Send(ctx, "client@example.com", "s", "b"); err != context.Canceled {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

// silentServer accepts connections and never writes a greeting.
func silentServer(t *testing.T) (host string, port int) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	done := make(chan struct{})
	t.Cleanup(func() {
		close(done)
		ln.Close()
	})
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func() {
				<-done
				conn.Close()
			}()
		}
	}()
	addr := ln.Addr().(*net.TCPAddr)
	return addr.IP.String(), addr.Port
}

func TestSendGivesUpOnSilentServer(t *testing.T) {
	tests := []struct {
		name    string
		timeout time.Duration
		ctx     func() (context.Context, context.CancelFunc)
	}{
		{
			name:    "mailer timeout",
			timeout: 200 * time.Millisecond,
			ctx: func() (context.Context, context.CancelFunc) {
				return context.WithCancel(context.Background())
			},
		},
		{
			name:    "context deadline is earlier",
			timeout: time.Minute,
			ctx: func() (context.Context, context.CancelFunc) {
				return context.WithTimeout(context.Background(), 200*time.Millisecond)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			host, port := silentServer(t)
			m := NewSMTPMailer(host, port, "", "", "billing@example.com", tt.timeout)
			ctx, cancel := tt.ctx()
			defer cancel()

			errCh := make(chan error, 1)
			go func() { errCh <- m.Send(ctx, "client@example.com", "s", "b") }()

			select {
			case err := <-errCh:
				if err == nil {
					t.Fatal("expected an error from a server that never greets")
				}
			case <-time.After(5 * time.Second):
				t.Fatal("Send did not return after its deadline")
			}
		})
	}
}

// fakeSMTPServer speaks just enough SMTP for one unauthenticated message and
// hands the received DATA to the returned channel.
func fakeSMTPServer(t *testing.T) (host string, port int, data <-chan string) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { ln.Close() })

	out := make(chan string, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		r := bufio.NewReader(conn)
		write := func(s string) { conn.Write([]byte(s + "\r\n")) }

		write("220 localhost ESMTP")
		for {
			line, err := r.ReadString('\n')
			if err != nil {
				return
			}
			cmd := strings.ToUpper(strings.TrimSpace(line))
			switch {
			case strings.HasPrefix(cmd, "EHLO"), strings.HasPrefix(cmd, "HELO"):
				write("250-localhost")
				write("250 8BITMIME")
			case strings.HasPrefix(cmd, "MAIL"), strings.HasPrefix(cmd, "RCPT"):
				write("250 OK")
			case cmd == "DATA":
				write("354 go ahead")
				var b strings.Builder
				for {
					l, err := r.ReadString('\n')
					if err != nil {
						return
					}
					if l == ".\r\n" {
						break
					}
					b.WriteString(l)
				}
				out <- b.String()
				write("250 queued")
			case cmd == "QUIT":
				write("221 bye")
				return
			default:
				write("250 OK")
			}
		}
	}()

	addr := ln.Addr().(*net.TCPAddr)
	return addr.IP.String(), addr.Port, out
}

func TestSendDeliversMessage(t *testing.T) {
	host, port, data := fakeSMTPServer(t)
	m := NewSMTPMailer(host, port, "", "", "billing@example.com", 2*time.Second)

	if err := m.Send(context.Background(), "client@example.com", "Payment received", "Thanks"); err != nil {
		t.Fatalf("Send returned error: %v", err)
	}

	select {
	case got := <-data:
		if !strings.Contains(got, "Subject: Payment received\r\n") || !strings.Contains(got, "Thanks") {
			t.Fatalf("unexpected message: %q", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("server did not receive the message")
	}
}
