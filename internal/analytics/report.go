// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package analytics

import (
	"time"

	"github.com/olegiv/desa-go/internal/geoip"
	"github.com/olegiv/desa-go/internal/store"
)

// Report is the statistics dashboard payload for a date range.
type Report struct {
	DateFrom    string         `json:"dateFrom"`
	DateTo      string         `json:"dateTo"`
	Overview    OverviewBlock  `json:"overview"`
	Device      DeviceBlock    `json:"device"`
	Geography   GeographyBlock `json:"geography"`
	Content     ContentBlock   `json:"content"`
	Temporal    TemporalBlock  `json:"temporal"`
	Realtime    RealtimeBlock  `json:"realtime"`
	GeneratedAt time.Time      `json:"generatedAt"`
}

// OverviewBlock sums the daily statistics of the range. BounceRate and
// AvgSessionDuration are averages of the daily values weighted by visitors.
type OverviewBlock struct {
	TotalVisitors      int64        `json:"totalVisitors"`
	UniqueVisitors     int64        `json:"uniqueVisitors"`
	TotalPageViews     int64        `json:"totalPageViews"`
	NewUsers           int64        `json:"newUsers"`
	ReturningUsers     int64        `json:"returningUsers"`
	DesktopUsers       int64        `json:"desktopUsers"`
	MobileUsers        int64        `json:"mobileUsers"`
	TabletUsers        int64        `json:"tabletUsers"`
	BounceRate         float64      `json:"bounceRate"`
	AvgSessionDuration float64      `json:"avgSessionDuration"`
	PagesPerVisit      float64      `json:"pagesPerVisit"`
	Days               int          `json:"days"`
	RolledUpDays       int          `json:"rolledUpDays"`
	ComputedDays       []string     `json:"computedDays"`
	Trend              []TrendPoint `json:"trend"`
}

// TrendPoint is one day of the overview trend.
type TrendPoint struct {
	Date           string `json:"date"`
	Visitors       int64  `json:"visitors"`
	UniqueVisitors int64  `json:"uniqueVisitors"`
	PageViews      int64  `json:"pageViews"`
}

// Share is a labelled count and its percentage of the block total.
type Share struct {
	Label   string  `json:"label"`
	Count   int64   `json:"count"`
	Percent float64 `json:"percent"`
}

// DeviceBlock breaks sessions down by device class, browser and OS.
type DeviceBlock struct {
	Devices          []Share `json:"devices"`
	Browsers         []Share `json:"browsers"`
	OperatingSystems []Share `json:"operatingSystems"`
}

// CountryShare is a country breakdown row.
type CountryShare struct {
	Code    string  `json:"code"`
	Name    string  `json:"name"`
	Count   int64   `json:"count"`
	Percent float64 `json:"percent"`
}

// CityShare is a city breakdown row.
type CityShare struct {
	Country string `json:"country"`
	City    string `json:"city"`
	Count   int64  `json:"count"`
}

// GeographyBlock breaks sessions down by location and language.
type GeographyBlock struct {
	Countries []CountryShare `json:"countries"`
	Cities    []CityShare    `json:"cities"`
	Languages []Share        `json:"languages"`
}

// PageRow is one entry of the top pages list.
type PageRow struct {
	Page           string  `json:"page"`
	Title          string  `json:"title"`
	Views          int64   `json:"views"`
	UniqueSessions int64   `json:"uniqueSessions"`
	AvgTimeOnPage  float64 `json:"avgTimeOnPage"`
}

// ContentBlock lists the most viewed pages and referring sites.
type ContentBlock struct {
	TopPages  []PageRow `json:"topPages"`
	Referrers []Share   `json:"referrers"`
}

// TemporalBlock counts sessions by local hour (0-23) and weekday (0=Sunday).
type TemporalBlock struct {
	ByHour    [24]int64    `json:"byHour"`
	ByWeekday [7]int64     `json:"byWeekday"`
	Heatmap   [7][24]int64 `json:"heatmap"`
}

// ActivePage is a page viewed within the realtime window.
type ActivePage struct {
	Page  string `json:"page"`
	Views int64  `json:"views"`
}

// RealtimeBlock describes current activity.
type RealtimeBlock struct {
	ActiveSessions int64        `json:"activeSessions"`
	WindowSeconds  int64        `json:"windowSeconds"`
	ActivePages    []ActivePage `json:"activePages"`
	AsOf           time.Time    `json:"asOf"`
}

// emptyReport returns a report with every list non-nil, so it encodes
// as empty arrays.
func emptyReport(rng DateRange) *Report {
	return &Report{
		DateFrom: FormatDay(rng.From),
		DateTo:   FormatDay(rng.To),
		Overview: OverviewBlock{
			ComputedDays: []string{},
			Trend:        []TrendPoint{},
		},
		Device: DeviceBlock{
			Devices:          []Share{},
			Browsers:         []Share{},
			OperatingSystems: []Share{},
		},
		Geography: GeographyBlock{
			Countries: []CountryShare{},
			Cities:    []CityShare{},
			Languages: []Share{},
		},
		Content: ContentBlock{
			TopPages:  []PageRow{},
			Referrers: []Share{},
		},
		Realtime: RealtimeBlock{ActivePages: []ActivePage{}},
	}
}

// shares converts grouped counts into shares of their sum. Empty labels
// are reported as emptyLabel.
func shares(rows []store.GroupCount, emptyLabel string) []Share {
	var total int64
	for _, r := range rows {
		total += r.Count
	}

	out := make([]Share, 0, len(rows))
	for _, r := range rows {
		label := r.Label
		if label == "" {
			label = emptyLabel
		}
		out = append(out, Share{Label: label, Count: r.Count, Percent: percent(r.Count, total)})
	}
	return out
}

func countryShares(rows []store.GroupCount) []CountryShare {
	var total int64
	for _, r := range rows {
		total += r.Count
	}

	out := make([]CountryShare, 0, len(rows))
	for _, r := range rows {
		out = append(out, CountryShare{
			Code:    r.Label,
			Name:    geoip.CountryName(r.Label),
			Count:   r.Count,
			Percent: percent(r.Count, total),
		})
	}
	return out
}

func pageRows(rows []store.PageStat) []PageRow {
	out := make([]PageRow, 0, len(rows))
	for _, r := range rows {
		out = append(out, PageRow{
			Page:           r.Page,
			Title:          r.Title.String,
			Views:          r.Views,
			UniqueSessions: r.UniqueSessions,
			AvgTimeOnPage:  round2(r.AvgTimeOnPage.Float64),
		})
	}
	return out
}

func percent(n, total int64) float64 {
	if total == 0 {
		return 0
	}
	return round2(float64(n) / float64(total) * 100)
}
