// Package ipgeo resolves client addresses to country codes using MaxMind
// MMDB files. It enriches access logs; lookups never fail a request.
package ipgeo

import (
	"net/netip"

	"github.com/oschwald/maxminddb-golang/v2"
)

// Checker resolves IP addresses to ISO 3166-1 alpha-2 country codes.
// A nil Checker is valid: it still classifies local and CGNAT addresses
// but resolves public ones to "".
type Checker struct {
	reader *maxminddb.Reader
}

// Open opens an MMDB file for country lookups.
func Open(dbPath string) (*Checker, error) {
	r, err := maxminddb.Open(dbPath)
	if err != nil {
		return nil, err
	}
	return &Checker{reader: r}, nil
}

// Close releases the MMDB reader resources.
func (c *Checker) Close() error {
	if c == nil {
		return nil
	}
	return c.reader.Close()
}

// countryRecord is the minimal struct for MMDB country lookups.
type countryRecord struct {
	Country struct {
		ISOCode string `maxminddb:"iso_code"`
	} `maxminddb:"country"`
}

// cgnatPrefix is the carrier-grade NAT range 100.64.0.0/10, used by
// Tailscale and most mesh VPNs.
var cgnatPrefix = netip.MustParsePrefix("100.64.0.0/10")

// CountryCode returns the ISO 3166-1 alpha-2 country code for remoteAddr,
// which may be a bare IP or the host:port form of http.Request.RemoteAddr.
// Returns "local" for loopback, private, link-local, and unspecified
// addresses, "cgnat" for 100.64.0.0/10, and "" when the address cannot be
// resolved.
func (c *Checker) CountryCode(remoteAddr string) string {
	addr, err := netip.ParseAddr(remoteAddr)
	if err != nil {
		ap, err2 := netip.ParseAddrPort(remoteAddr)
		if err2 != nil {
			return ""
		}
		addr = ap.Addr()
	}
	if addr.IsLoopback() || addr.IsPrivate() || addr.IsUnspecified() || addr.IsLinkLocalUnicast() {
		return "local"
	}
	if cgnatPrefix.Contains(addr) {
		return "cgnat"
	}
	if c == nil {
		return ""
	}
	var rec countryRecord
	if err := c.reader.Lookup(addr).Decode(&rec); err != nil {
		return ""
	}
	return rec.Country.ISOCode
}
