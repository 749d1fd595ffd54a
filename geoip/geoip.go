// Package geoip resolves client IPs to a country code and network operator
// using MaxMind databases. Lookups are strictly best-effort: a missing
// database or a failed lookup yields empty fields, never an error visible
// to the caller of the identity endpoint.
package geoip

import (
	"net"

	"github.com/oschwald/maxminddb-golang"

	"github.com/Cyberes/cf-speedtest-custom/logging"
)

type countryRecord struct {
	Country struct {
		ISOCode string `maxminddb:"iso_code"`
	} `maxminddb:"country"`
}

type asnRecord struct {
	Org string `maxminddb:"autonomous_system_organization"`
}

// Resolver answers country and operator lookups. The zero value resolves
// everything to empty strings.
type Resolver struct {
	country *maxminddb.Reader
	asn     *maxminddb.Reader
}

// NewResolver opens the given database files. Either path may be empty to
// disable that lookup. Files that fail to open are logged and skipped.
func NewResolver(countryDB, asnDB string) *Resolver {
	r := &Resolver{}
	if countryDB != "" {
		reader, err := maxminddb.Open(countryDB)
		if err != nil {
			logging.Logger.WithError(err).Warn("geoip: cannot open country database")
		} else {
			r.country = reader
		}
	}
	if asnDB != "" {
		reader, err := maxminddb.Open(asnDB)
		if err != nil {
			logging.Logger.WithError(err).Warn("geoip: cannot open ASN database")
		} else {
			r.asn = reader
		}
	}
	return r
}

// Country returns the ISO country code for ip, or "".
func (r *Resolver) Country(ip net.IP) string {
	if r == nil || r.country == nil || ip == nil {
		return ""
	}
	var rec countryRecord
	if err := r.country.Lookup(ip, &rec); err != nil {
		return ""
	}
	return rec.Country.ISOCode
}

// Org returns the network operator name for ip, or "".
func (r *Resolver) Org(ip net.IP) string {
	if r == nil || r.asn == nil || ip == nil {
		return ""
	}
	var rec asnRecord
	if err := r.asn.Lookup(ip, &rec); err != nil {
		return ""
	}
	return rec.Org
}

// Close releases the underlying databases.
func (r *Resolver) Close() {
	if r.country != nil {
		r.country.Close()
	}
	if r.asn != nil {
		r.asn.Close()
	}
}
