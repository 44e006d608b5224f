package netutil

import (
	"net"
	"net/url"
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/net/idna"
)

const maxHostNameLength = 253

// ValidateHttpUrl validates an RPC endpoint URL. A missing scheme is treated
// as http, so "127.0.0.1:8899" is accepted.
func ValidateHttpUrl(value string, requireSecureConnection bool) error {
	if !strings.Contains(value, "://") {
		value = "http://" + value
	}

	parsed, err := url.Parse(value)
	if err != nil {
		return err
	}

	switch parsed.Scheme {
	case "https":
	case "http":
		if requireSecureConnection {
			return errors.New("url scheme must be https")
		}
	default:
		return errors.Errorf("unsupported url scheme %q", parsed.Scheme)
	}

	return errors.Wrap(ValidateHost(parsed.Hostname()), "invalid url host")
}

// ValidateHost accepts an IP address or a registrable domain name.
func ValidateHost(host string) error {
	switch {
	case len(host) == 0:
		return errors.New("host is empty")
	case len(host) > maxHostNameLength:
		return errors.New("host length exceeds limit")
	case net.ParseIP(host) != nil:
		return nil
	}

	_, err := idna.Registration.ToASCII(host)
	return err
}
