// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package analytics

import (
	"strings"

	"github.com/mileusna/useragent"
)

// Device classes.
const (
	DeviceDesktop = "desktop"
	DeviceMobile  = "mobile"
	DeviceTablet  = "tablet"
	DeviceUnknown = "unknown"
)

// Unknown is used for browser and OS names that match no rule.
const Unknown = "unknown"

// Classification is everything derived from a user-agent string at write time.
type Classification struct {
	DeviceType     string
	Browser        string
	BrowserVersion string
	OS             string
	OSVersion      string
	IsBot          bool
}

type namedMarkers struct {
	name    string
	markers []string
	// except vetoes the rule so a later, more specific rule can match.
	except []string
}

// Tablet markers are checked before mobile ones because many tablet
// user agents also contain "mobile" or "android".
var (
	tabletMarkers = []string{"ipad", "tablet", "kindle", "silk", "playbook"}
	mobileMarkers = []string{"mobile", "iphone", "ipod", "android", "blackberry", "opera mini", "iemobile", "windows phone"}

	browserRules = []namedMarkers{
		{name: "Chrome", markers: []string{"chrome", "crios"}},
		{name: "Firefox", markers: []string{"firefox", "fxios"}},
		{name: "Safari", markers: []string{"safari"}},
		{name: "Edge", markers: []string{"edg"}},
		{name: "Opera", markers: []string{"opera", "opr/"}},
	}

	// Apple mobile user agents say "like Mac OS X" and Android ones say
	// "Linux", so those two rules step aside for the rules that follow.
	osRules = []namedMarkers{
		{name: "Windows", markers: []string{"windows"}},
		{name: "macOS", markers: []string{"mac os", "macintosh"}, except: []string{"iphone", "ipad", "ipod"}},
		{name: "Linux", markers: []string{"linux"}, except: []string{"android"}},
		{name: "Android", markers: []string{"android"}},
		{name: "iOS", markers: []string{"iphone", "ipad", "ipod", "ios"}},
	}

	botKeywords = []string{"bot", "crawler", "spider", "scraper", "search", "google", "bing", "yahoo"}
)

// Classify derives device class, browser, OS and bot flag from a user agent
// using ordered case-insensitive substring rules; the first match wins.
// Versions come from a full parser and are informational only.
func Classify(uaString string) Classification {
	ua := strings.ToLower(strings.TrimSpace(uaString))
	if ua == "" {
		return Classification{DeviceType: DeviceUnknown, Browser: Unknown, OS: Unknown}
	}

	c := Classification{
		DeviceType: classifyDevice(ua),
		Browser:    firstMatch(ua, browserRules),
		OS:         firstMatch(ua, osRules),
		IsBot:      containsAny(ua, botKeywords),
	}

	parsed := useragent.Parse(uaString)
	c.BrowserVersion = parsed.Version
	c.OSVersion = parsed.OSVersion

	return c
}

func classifyDevice(ua string) string {
	switch {
	case containsAny(ua, tabletMarkers):
		return DeviceTablet
	case containsAny(ua, mobileMarkers):
		return DeviceMobile
	default:
		return DeviceDesktop
	}
}

func firstMatch(ua string, rules []namedMarkers) string {
	for _, r := range rules {
		if containsAny(ua, r.markers) && !containsAny(ua, r.except) {
			return r.name
		}
	}
	return Unknown
}

func containsAny(s string, markers []string) bool {
	for _, m := range markers {
		if strings.Contains(s, m) {
			return true
		}
	}
	return false
}
