package notify

import (
	"context"
	"net"
	"time"
)

// DialProbe reports connectivity by opening a TCP connection to addr.
type DialProbe struct {
	Addr    string
	Timeout time.Duration
}

// Online reports whether addr accepted a connection within the timeout.
func (p DialProbe) Online(ctx context.Context) bool {
	timeout := p.Timeout
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	d := net.Dialer{Timeout: timeout}
	conn, err := d.DialContext(ctx, "tcp", p.Addr)
	if err != nil {
		return false
	}
	_ = conn.Close()
	return true
}
