// Package util holds small network helpers shared by node executors.
package util

import (
	"context"
	"net"
	"net/mail"
	"net/textproto"
	"strings"
	"time"
)

// VerifyEmailExists checks whether a recipient is plausibly deliverable by
// connecting to the domain's MX and issuing RCPT TO, without sending
// anything. Best effort: greylisting servers and refused probes come back
// as not verified with a reason. The context bounds the whole probe.
func VerifyEmailExists(ctx context.Context, address string) (bool, string) {
	parsed, err := mail.ParseAddress(address)
	if err != nil {
		return false, "invalid address format"
	}
	addr := parsed.Address
	at := strings.LastIndex(addr, "@")
	if at < 0 || at == len(addr)-1 {
		return false, "invalid domain"
	}
	domain := addr[at+1:]
	mxRecords, err := net.LookupMX(domain)
	if err != nil || len(mxRecords) == 0 {
		return false, "no MX records"
	}

	dialer := &net.Dialer{}
	for _, mx := range mxRecords {
		select {
		case <-ctx.Done():
			return false, ctx.Err().Error()
		default:
		}
		host := strings.TrimSuffix(mx.Host, ".") + ":25"
		conn, err := dialer.DialContext(ctx, "tcp", host)
		if err != nil {
			continue
		}
		accepted := false
		func() {
			defer conn.Close()
			_ = conn.SetDeadline(time.Now().Add(3 * time.Second))
			tp := textproto.NewConn(conn)
			defer tp.Close()
			if code, _, err := tp.ReadResponse(220); err != nil || code != 220 {
				return
			}
			if err := tp.PrintfLine("HELO verdandi.local"); err != nil {
				return
			}
			if _, _, err := tp.ReadResponse(250); err != nil {
				return
			}
			if err := tp.PrintfLine("MAIL FROM:<probe@verdandi.local>"); err != nil {
				return
			}
			if _, _, err := tp.ReadResponse(250); err != nil {
				return
			}
			if err := tp.PrintfLine("RCPT TO:<%s>", addr); err != nil {
				return
			}
			code, _, err := tp.ReadResponse(250)
			if err == nil && (code == 250 || code == 251 || code == 252) {
				accepted = true
			}
			_ = tp.PrintfLine("QUIT")
		}()
		if accepted {
			return true, ""
		}
	}
	return false, "no accepting MX or verification refused"
}
