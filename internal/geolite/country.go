// Package geolite answers country lookups from a local GeoLite2 database.
// The database is optional; without one every lookup returns "".
package geolite

import (
	"net"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/oschwald/geoip2-golang"
)

type CountryDB struct {
	path string

	once   sync.Once
	reader *geoip2.Reader
}

// OpenCountryDB prepares a lazy reader over the mmdb at path. An empty
// path disables lookups entirely.
func OpenCountryDB(path string) *CountryDB {
	return &CountryDB{path: path}
}

// CountryCode returns the ISO country code for an IP, or "" when the
// database is absent, unreadable, or has no record for the address.
func (db *CountryDB) CountryCode(ip string) string {
	if db == nil || db.path == "" {
		return ""
	}

	db.once.Do(func() {
		reader, err := geoip2.Open(db.path)
		if err != nil {
			log.Warn("GeoLite country database unavailable", "path", db.path, "error", err)
			return
		}
		db.reader = reader
	})
	if db.reader == nil {
		return ""
	}

	parsed := net.ParseIP(ip)
	if parsed == nil {
		return ""
	}

	record, err := db.reader.Country(parsed)
	if err != nil || record == nil {
		return ""
	}
	return record.Country.IsoCode
}

// Close releases the underlying reader if one was opened.
func (db *CountryDB) Close() error {
	if db == nil || db.reader == nil {
		return nil
	}
	return db.reader.Close()
}
