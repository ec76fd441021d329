package connectivity

import (
	"context"
	"net"
	"time"
)

// NetworkCheck checks that the network layer is up by dialing a TCP address.
type NetworkCheck struct {
	addr    string
	timeout time.Duration
	dialer  net.Dialer
}

// NewNetworkCheck constructs a check. An empty addr yields nil.
func NewNetworkCheck(addr string, timeout time.Duration) *NetworkCheck {
	if addr == "" {
		return nil
	}
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &NetworkCheck{addr: addr, timeout: timeout}
}

// Up reports whether addr accepted a connection within the timeout.
// A nil check is always up.
func (c *NetworkCheck) Up(ctx context.Context) bool {
	if c == nil {
		return true
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	conn, err := c.dialer.DialContext(ctx, "tcp", c.addr)
	if err != nil {
		return false
	}
	_ = conn.Close()
	return true
}
