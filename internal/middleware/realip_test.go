// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/olegiv/desa-go/internal/testutil"
)

func TestParseTrustedProxies(t *testing.T) {
	tp, err := ParseTrustedProxies([]string{"10.0.0.0/8", " 192.0.2.1 ", "", "2001:db8::/32"})
	require.NoError(t, err)
	assert.Equal(t, 3, tp.Len())

	assert.True(t, tp.Contains("10.1.2.3"))
	assert.True(t, tp.Contains("192.0.2.1"))
	assert.True(t, tp.Contains("::ffff:192.0.2.1"))
	assert.True(t, tp.Contains("2001:db8::5"))
	assert.False(t, tp.Contains("192.0.2.2"))
	assert.False(t, tp.Contains("not-an-ip"))

	var none *TrustedProxies
	assert.False(t, none.Contains("10.1.2.3"))
	assert.Equal(t, 0, none.Len())

	for _, bad := range []string{"10.0.0.0/33", "proxy.local", "300.1.1.1"} {
		_, err := ParseTrustedProxies([]string{bad})
		assert.Error(t, err, bad)
	}
}

func TestRealIP(t *testing.T) {
	trusted, err := ParseTrustedProxies([]string{"10.0.0.0/8"})
	require.NoError(t, err)

	tests := []struct {
		name    string
		trusted *TrustedProxies
		remote  string
		headers map[string]string
		want    string
	}{
		{"no proxies configured", nil, "203.0.113.5:1", map[string]string{"X-Forwarded-For": "198.51.100.7"}, "203.0.113.5"},
		{"untrusted peer", trusted, "203.0.113.5:1", map[string]string{"X-Real-IP": "198.51.100.7"}, "203.0.113.5"},
		{"trusted peer x-real-ip", trusted, "10.0.0.1:1", map[string]string{"X-Real-IP": "198.51.100.7"}, "198.51.100.7"},
		{"trusted peer forwarded", trusted, "10.0.0.1:1", map[string]string{"X-Forwarded-For": "198.51.100.7"}, "198.51.100.7"},
		{"client-prepended entry ignored", trusted, "10.0.0.1:1", map[string]string{"X-Forwarded-For": "1.2.3.4, 198.51.100.7, 10.0.0.2"}, "198.51.100.7"},
		{"forwarded wins over x-real-ip", trusted, "10.0.0.1:1", map[string]string{"X-Forwarded-For": "198.51.100.7", "X-Real-IP": "198.51.100.8"}, "198.51.100.7"},
		{"malformed hop keeps peer", trusted, "10.0.0.1:1", map[string]string{"X-Forwarded-For": "1.2.3.4, junk"}, "10.0.0.1"},
		{"only proxies keeps peer", trusted, "10.0.0.1:1", map[string]string{"X-Forwarded-For": "10.0.0.3"}, "10.0.0.1"},
		{"malformed x-real-ip keeps peer", trusted, "10.0.0.1:1", map[string]string{"X-Real-IP": "junk"}, "10.0.0.1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got string
			h := RealIP(tt.trusted)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				got = ClientIP(r)
			}))

			r := httptest.NewRequest(http.MethodGet, "/", nil)
			r.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				r.Header.Set(k, v)
			}
			h.ServeHTTP(httptest.NewRecorder(), r)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRealIP_SpoofedHeadersShareRateLimit(t *testing.T) {
	rl := NewRateLimiter(0.001, 1, testutil.TestLoggerSilent())
	h := RealIP(nil)(rl.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})))

	send := func(spoofed string) int {
		r := httptest.NewRequest(http.MethodPost, "/api/analytics/pageview", nil)
		r.RemoteAddr = "203.0.113.5:4000"
		r.Header.Set("X-Forwarded-For", spoofed)
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, r)
		return rr.Code
	}

	assert.Equal(t, http.StatusNoContent, send("198.51.100.1"))
	assert.Equal(t, http.StatusTooManyRequests, send("198.51.100.2"))
}
