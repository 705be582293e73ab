// Package certcheck reports on the TLS certificate of the public site, for
// the admin status report.
package certcheck

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"
)

// CertInfo describes the leaf certificate a host presents.
type CertInfo struct {
	Host      string    `json:"host"`
	ExpiresAt time.Time `json:"expires_at"`
	DaysLeft  int       `json:"days_left"`
	Issuer    string    `json:"issuer"`
	IsValid   bool      `json:"is_valid"`
	Error     string    `json:"error,omitempty"`
}

const dialTimeout = 5 * time.Second

// Check dials hostOrURL over TLS and reports its certificate. hostOrURL is
// a URL such as https://pages.example.com or a bare host with an optional
// port; port 443 is assumed. Local hosts are reported valid without a dial.
func Check(ctx context.Context, hostOrURL string) CertInfo {
	host, port := splitTarget(hostOrURL)
	if host == "" {
		return CertInfo{Host: hostOrURL, Error: "invalid host"}
	}
	if isLocal(host) {
		return CertInfo{Host: host, IsValid: true, Error: "localhost - no TLS"}
	}

	info := CertInfo{Host: host}
	d := &tls.Dialer{
		NetDialer: &net.Dialer{Timeout: dialTimeout},
		Config:    &tls.Config{ServerName: host},
	}
	conn, err := d.DialContext(ctx, "tcp", net.JoinHostPort(host, port))
	if err != nil {
		info.Error = fmt.Sprintf("connection failed: %v", err)
		return info
	}
	defer conn.Close()

	certs := conn.(*tls.Conn).ConnectionState().PeerCertificates
	if len(certs) == 0 {
		info.Error = "no certificates found"
		return info
	}
	describe(&info, certs[0].NotBefore, certs[0].NotAfter, certs[0].Issuer.CommonName, time.Now())
	return info
}

func describe(info *CertInfo, notBefore, notAfter time.Time, issuer string, now time.Time) {
	info.ExpiresAt = notAfter
	info.DaysLeft = int(notAfter.Sub(now).Hours() / 24)
	info.Issuer = issuer
	info.IsValid = now.After(notBefore) && now.Before(notAfter)
}

// splitTarget returns the host and port to dial.
func splitTarget(hostOrURL string) (host, port string) {
	s := strings.TrimSpace(hostOrURL)
	if strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://") {
		u, err := url.Parse(s)
		if err != nil {
			return "", ""
		}
		host, port = u.Hostname(), u.Port()
	} else if h, p, err := net.SplitHostPort(s); err == nil {
		host, port = h, p
	} else {
		host = s
	}
	if port == "" {
		port = "443"
	}
	return host, port
}

func isLocal(host string) bool {
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
