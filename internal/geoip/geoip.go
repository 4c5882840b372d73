// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

// Package geoip resolves visitor IP addresses to country and city using a
// MaxMind GeoLite2 City or Country database.
package geoip

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/oschwald/maxminddb-golang"
	"golang.org/x/text/language"
	"golang.org/x/text/language/display"
)

// LocalCountry is reported for loopback and private network addresses.
const LocalCountry = "LOCAL"

// Location is the geographic position resolved for an IP address.
// Fields are empty when unknown.
type Location struct {
	Country string // ISO 3166-1 alpha-2 code, or LocalCountry
	City    string // English city name
}

// Lookup resolves IPs against a MaxMind database that can be swapped at runtime.
type Lookup struct {
	mu        sync.RWMutex
	db        *maxminddb.Reader
	dbPath    string
	dbModTime time.Time
}

// geoRecord matches the subset of GeoLite2-City used here. Country databases
// simply leave City empty.
type geoRecord struct {
	Country struct {
		ISOCode string `maxminddb:"iso_code"`
	} `maxminddb:"country"`
	City struct {
		Names map[string]string `maxminddb:"names"`
	} `maxminddb:"city"`
}

// NewLookup creates a lookup. Call Init to load a database.
func NewLookup() *Lookup {
	return &Lookup{}
}

// Init loads the database at dbPath. An empty path disables lookups without error.
func (g *Lookup) Init(dbPath string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.dbPath = dbPath
	if dbPath == "" {
		return nil
	}
	return g.load()
}

// Reload reopens the database if the file changed since it was loaded.
// Safe to call periodically.
func (g *Lookup) Reload() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.dbPath == "" {
		return nil
	}
	return g.load()
}

// load opens the database file. Caller must hold the write lock.
func (g *Lookup) load() error {
	info, err := os.Stat(g.dbPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("GeoIP database not found: %s", g.dbPath)
		}
		return fmt.Errorf("GeoIP database stat error: %w", err)
	}

	if g.db != nil && info.ModTime().Equal(g.dbModTime) {
		return nil
	}

	db, err := maxminddb.Open(g.dbPath)
	if err != nil {
		return fmt.Errorf("opening GeoIP database: %w", err)
	}

	if g.db != nil {
		_ = g.db.Close()
	}
	g.db = db
	g.dbModTime = info.ModTime()
	return nil
}

// LookupLocation resolves an IP address. Private and loopback addresses
// resolve to LocalCountry even without a database.
func (g *Lookup) LookupLocation(ip string) Location {
	parsed := net.ParseIP(strings.TrimSpace(ip))
	if parsed == nil {
		return Location{}
	}
	if parsed.IsLoopback() || parsed.IsPrivate() || parsed.IsLinkLocalUnicast() {
		return Location{Country: LocalCountry}
	}

	g.mu.RLock()
	defer g.mu.RUnlock()

	if g.db == nil {
		return Location{}
	}

	var record geoRecord
	if err := g.db.Lookup(parsed, &record); err != nil {
		return Location{}
	}

	return Location{
		Country: record.Country.ISOCode,
		City:    record.City.Names["en"],
	}
}

// IsEnabled returns whether a database is loaded.
func (g *Lookup) IsEnabled() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.db != nil
}

// Close closes the database. Lookups afterwards only classify local addresses.
func (g *Lookup) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.db == nil {
		return nil
	}
	err := g.db.Close()
	g.db = nil
	return err
}

var regionNames = display.English.Regions()

// CountryName returns the English name for a 2-letter country code.
func CountryName(code string) string {
	switch code {
	case "":
		return "Unknown"
	case LocalCountry:
		return "Local Network"
	}

	region, err := language.ParseRegion(code)
	if err != nil {
		return code
	}
	if name := regionNames.Name(region); name != "" {
		return name
	}
	return code
}
