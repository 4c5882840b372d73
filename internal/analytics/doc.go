// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

// Package analytics implements visitor analytics: recording sessions and
// page views, rolling them up into one row per calendar day, and composing
// statistics reports from rollups and raw rows.
//
// All services are stateless apart from their injected dependencies and are
// safe for concurrent use. Calendar days are interpreted in the reference
// timezone given to NewAggregator; timestamps are stored in UTC.
package analytics

import "time"

// timeNow is replaced in tests.
var timeNow = time.Now
