package imagefetch

import (
	"net"
	"time"
)

// Reachability reports whether the network can be used for a download.
type Reachability func() bool

// AlwaysReachable is used when no probe address is configured.
func AlwaysReachable() bool { return true }

// DialProbe returns a Reachability that opens a TCP connection to addr.
func DialProbe(addr string, timeout time.Duration) Reachability {
	if addr == "" {
		return AlwaysReachable
	}
	return func() bool {
		conn, err := net.DialTimeout("tcp", addr, timeout)
		if err != nil {
			return false
		}
		_ = conn.Close()
		return true
	}
}
