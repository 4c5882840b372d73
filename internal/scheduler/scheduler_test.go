// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/olegiv/desa-go/internal/analytics"
	"github.com/olegiv/desa-go/internal/store"
	"github.com/olegiv/desa-go/internal/testutil"
)

func TestNew(t *testing.T) {
	logger := testutil.TestLoggerSilent()

	s := New(nil, logger)
	require.NotNil(t, s)
	assert.NotNil(t, s.cron)
	assert.Equal(t, time.UTC, s.cron.Location())
	assert.Same(t, logger, s.logger)
}

func TestScheduler_StartStop(t *testing.T) {
	s := New(time.UTC, testutil.TestLoggerSilent())
	require.NoError(t, s.Add(Job{Name: "noop", Schedule: "* * * * *", Run: func(context.Context) error { return nil }}))

	s.Start()
	s.Stop()
}

func TestScheduler_Add(t *testing.T) {
	s := New(time.UTC, testutil.TestLoggerSilent())
	noop := func(context.Context) error { return nil }

	require.NoError(t, s.Add(Job{Name: "a", Schedule: "@daily", Run: noop}))

	tests := []struct {
		name string
		job  Job
	}{
		{"duplicate name", Job{Name: "a", Schedule: "@daily", Run: noop}},
		{"invalid schedule", Job{Name: "b", Schedule: "every day", Run: noop}},
		{"missing name", Job{Schedule: "@daily", Run: noop}},
		{"missing func", Job{Name: "c", Schedule: "@daily"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, s.Add(tt.job))
		})
	}
	assert.Len(t, s.List(), 1)
}

func TestScheduler_ListUsesLocation(t *testing.T) {
	jakarta, err := time.LoadLocation("Asia/Jakarta")
	require.NoError(t, err)

	s := New(jakarta, testutil.TestLoggerSilent())
	noop := func(context.Context) error { return nil }
	require.NoError(t, s.Add(Job{Name: "b-job", Schedule: "10 0 * * *", Run: noop}))
	require.NoError(t, s.Add(Job{Name: "a-job", Schedule: "@hourly", Run: noop}))

	s.Start()
	defer s.Stop()

	jobs := s.List()
	require.Len(t, jobs, 2)
	assert.Equal(t, "a-job", jobs[0].Name)
	assert.Equal(t, "b-job", jobs[1].Name)

	next := jobs[1].NextRun.In(jakarta)
	assert.Equal(t, 0, next.Hour())
	assert.Equal(t, 10, next.Minute())
}

func TestScheduler_TriggerNow(t *testing.T) {
	s := New(time.UTC, testutil.TestLoggerSilent())

	var calls atomic.Int32
	var sawDeadline atomic.Bool
	require.NoError(t, s.Add(Job{
		Name:     "count",
		Schedule: "@yearly",
		Timeout:  time.Minute,
		Run: func(ctx context.Context) error {
			_, ok := ctx.Deadline()
			sawDeadline.Store(ok)
			calls.Add(1)
			return nil
		},
	}))
	require.NoError(t, s.Add(Job{
		Name:     "broken",
		Schedule: "@yearly",
		Run:      func(context.Context) error { return errors.New("disk full") },
	}))

	require.NoError(t, s.TriggerNow(context.Background(), "count"))
	assert.Equal(t, int32(1), calls.Load())
	assert.True(t, sawDeadline.Load())

	err := s.TriggerNow(context.Background(), "broken")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")

	for _, j := range s.List() {
		if j.Name == "broken" {
			assert.Equal(t, "disk full", j.LastError)
		} else {
			assert.Empty(t, j.LastError)
		}
	}

	assert.Error(t, s.TriggerNow(context.Background(), "missing"))
}

type fakeRollups struct {
	yesterday  atomic.Int32
	recentDays atomic.Int32
	failed     int
	err        error
}

func (f *fakeRollups) GenerateYesterday(context.Context) (store.DailyStat, error) {
	f.yesterday.Add(1)
	return store.DailyStat{StatDate: "2025-01-01"}, f.err
}

func (f *fakeRollups) GenerateRecent(_ context.Context, days int) (analytics.RangeResult, error) {
	f.recentDays.Store(int32(days))
	return analytics.RangeResult{Results: make([]analytics.DateResult, days), Failed: f.failed}, f.err
}

type fakeReloader struct{ calls atomic.Int32 }

func (f *fakeReloader) Reload() error {
	f.calls.Add(1)
	return nil
}

func TestRegisterJobs(t *testing.T) {
	s := New(time.UTC, testutil.TestLoggerSilent())
	rollups := &fakeRollups{}
	geo := &fakeReloader{}

	require.NoError(t, RegisterJobs(s, rollups, geo, JobConfig{
		RollupSchedule:    "10 0 * * *",
		RecomputeSchedule: "0 * * * *",
		RecomputeDays:     3,
		GeoIPSchedule:     "30 3 * * 3",
	}))

	names := []string{}
	for _, j := range s.List() {
		names = append(names, j.Name)
	}
	assert.Equal(t, []string{JobDailyRollup, JobGeoIPReload, JobRecompute}, names)

	ctx := context.Background()
	require.NoError(t, s.TriggerNow(ctx, JobDailyRollup))
	require.NoError(t, s.TriggerNow(ctx, JobRecompute))
	require.NoError(t, s.TriggerNow(ctx, JobGeoIPReload))

	assert.Equal(t, int32(1), rollups.yesterday.Load())
	assert.Equal(t, int32(3), rollups.recentDays.Load())
	assert.Equal(t, int32(1), geo.calls.Load())
}

func TestRegisterJobs_Optional(t *testing.T) {
	s := New(time.UTC, testutil.TestLoggerSilent())

	require.NoError(t, RegisterJobs(s, &fakeRollups{}, nil, JobConfig{
		RollupSchedule: "10 0 * * *",
		GeoIPSchedule:  "30 3 * * 3",
	}))

	jobs := s.List()
	require.Len(t, jobs, 1)
	assert.Equal(t, JobDailyRollup, jobs[0].Name)
}

func TestRegisterJobs_InvalidSchedule(t *testing.T) {
	s := New(time.UTC, testutil.TestLoggerSilent())

	err := RegisterJobs(s, &fakeRollups{}, nil, JobConfig{RollupSchedule: "nightly"})
	assert.Error(t, err)
}

func TestRegisterJobs_Failures(t *testing.T) {
	s := New(time.UTC, testutil.TestLoggerSilent())
	rollups := &fakeRollups{failed: 1}

	require.NoError(t, RegisterJobs(s, rollups, nil, JobConfig{
		RollupSchedule:    "10 0 * * *",
		RecomputeSchedule: "0 * * * *",
		RecomputeDays:     2,
	}))

	err := s.TriggerNow(context.Background(), JobRecompute)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 of 2 dates failed")

	rollups.err = errors.New("database is locked")
	err = s.TriggerNow(context.Background(), JobDailyRollup)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "daily rollup")
}
