// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package geoip

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLookupLocation_WithoutDatabase(t *testing.T) {
	g := NewLookup()
	if err := g.Init(""); err != nil {
		t.Fatalf("Init(\"\") error: %v", err)
	}
	if g.IsEnabled() {
		t.Error("IsEnabled() = true without a database")
	}

	tests := []struct {
		ip   string
		want string
	}{
		{"127.0.0.1", LocalCountry},
		{"10.1.2.3", LocalCountry},
		{"192.168.0.10", LocalCountry},
		{"172.20.0.1", LocalCountry},
		{"::1", LocalCountry},
		{"fd00::1", LocalCountry},
		{"8.8.8.8", ""},
		{"not-an-ip", ""},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.ip, func(t *testing.T) {
			if got := g.LookupLocation(tt.ip); got.Country != tt.want {
				t.Errorf("LookupLocation(%q).Country = %q, want %q", tt.ip, got.Country, tt.want)
			}
		})
	}
}

func TestInit_Errors(t *testing.T) {
	g := NewLookup()
	if err := g.Init(filepath.Join(t.TempDir(), "missing.mmdb")); err == nil {
		t.Error("Init with missing file should fail")
	}

	bogus := filepath.Join(t.TempDir(), "bogus.mmdb")
	if err := os.WriteFile(bogus, []byte("not a maxmind database"), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := g.Init(bogus); err == nil {
		t.Error("Init with corrupt file should fail")
	}
	if g.IsEnabled() {
		t.Error("corrupt database must not enable lookups")
	}
}

func TestReload_NoPath(t *testing.T) {
	g := NewLookup()
	if err := g.Reload(); err != nil {
		t.Errorf("Reload() without path = %v, want nil", err)
	}
	if err := g.Close(); err != nil {
		t.Errorf("Close() = %v", err)
	}
}

func TestCountryName(t *testing.T) {
	tests := []struct {
		code string
		want string
	}{
		{"ID", "Indonesia"},
		{"US", "United States"},
		{"DE", "Germany"},
		{LocalCountry, "Local Network"},
		{"", "Unknown"},
		{"??", "??"},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			if got := CountryName(tt.code); got != tt.want {
				t.Errorf("CountryName(%q) = %q, want %q", tt.code, got, tt.want)
			}
		})
	}
}
