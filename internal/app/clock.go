package app

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Clock abstracts the regional wall clock so tests can pin time.
type Clock interface {
	Now() time.Time
	DeadlineFrom(date, endLabel string) (time.Time, error)
}

// RegionClock resolves instants in the fixed regional offset the exam
// platform declares its schedules in, independent of the device timezone.
type RegionClock struct {
	loc *time.Location
}

// NewRegionClock builds a clock from an offset string such as "+05:30".
func NewRegionClock(offset string) (*RegionClock, error) {
	seconds, err := parseOffset(offset)
	if err != nil {
		return nil, err
	}
	return &RegionClock{loc: time.FixedZone("UTC"+offset, seconds)}, nil
}

func (c *RegionClock) Now() time.Time {
	return time.Now().In(c.loc)
}

// DeadlineFrom converts a schedule's calendar date and 12-hour end-time
// label into the absolute deadline instant.
func (c *RegionClock) DeadlineFrom(date, endLabel string) (time.Time, error) {
	year, month, day, err := parseCalendarDate(date)
	if err != nil {
		return time.Time{}, err
	}
	hour, minute, err := parseClockLabel(endLabel)
	if err != nil {
		return time.Time{}, err
	}
	return time.Date(year, time.Month(month), day, hour, minute, 0, 0, c.loc), nil
}

// Remaining reports the duration until deadline, clamped at zero.
func Remaining(now, deadline time.Time) time.Duration {
	if d := deadline.Sub(now); d > 0 {
		return d
	}
	return 0
}

func parseOffset(offset string) (int, error) {
	raw := strings.TrimSpace(offset)
	if len(raw) < 2 || (raw[0] != '+' && raw[0] != '-') {
		return 0, fmt.Errorf("invalid region offset %q", offset)
	}
	sign := 1
	if raw[0] == '-' {
		sign = -1
	}
	parts := strings.SplitN(raw[1:], ":", 2)
	hours, err := strconv.Atoi(parts[0])
	if err != nil || hours > 14 {
		return 0, fmt.Errorf("invalid region offset %q", offset)
	}
	minutes := 0
	if len(parts) == 2 {
		minutes, err = strconv.Atoi(parts[1])
		if err != nil || minutes > 59 {
			return 0, fmt.Errorf("invalid region offset %q", offset)
		}
	}
	return sign * (hours*3600 + minutes*60), nil
}

// parseCalendarDate accepts "-" and "/" separated dates; the side carrying
// four digits decides between year-first and day-first ordering.
func parseCalendarDate(date string) (year, month, day int, err error) {
	normalized := strings.ReplaceAll(strings.TrimSpace(date), "/", "-")
	parts := strings.Split(normalized, "-")
	if len(parts) != 3 {
		return 0, 0, 0, fmt.Errorf("invalid exam date %q", date)
	}
	nums := make([]int, 3)
	for i, p := range parts {
		nums[i], err = strconv.Atoi(p)
		if err != nil {
			return 0, 0, 0, fmt.Errorf("invalid exam date %q", date)
		}
	}
	if len(parts[0]) == 4 {
		year, month, day = nums[0], nums[1], nums[2]
	} else {
		day, month, year = nums[0], nums[1], nums[2]
	}
	if month < 1 || month > 12 || day < 1 || day > 31 {
		return 0, 0, 0, fmt.Errorf("invalid exam date %q", date)
	}
	return year, month, day, nil
}

// parseClockLabel parses labels like "02:45 PM" or "9 AM". Hour 12 maps to 0
// for AM and stays 12 for PM; a missing minutes field defaults to 00.
func parseClockLabel(label string) (hour, minute int, err error) {
	fields := strings.Fields(strings.ToUpper(strings.TrimSpace(label)))
	if len(fields) != 2 || (fields[1] != "AM" && fields[1] != "PM") {
		return 0, 0, fmt.Errorf("invalid end time label %q", label)
	}
	clock := strings.SplitN(fields[0], ":", 2)
	hour, err = strconv.Atoi(clock[0])
	if err != nil || hour < 1 || hour > 12 {
		return 0, 0, fmt.Errorf("invalid end time label %q", label)
	}
	if len(clock) == 2 && clock[1] != "" {
		minute, err = strconv.Atoi(clock[1])
		if err != nil || minute < 0 || minute > 59 {
			return 0, 0, fmt.Errorf("invalid end time label %q", label)
		}
	}
	hour = hour % 12
	if fields[1] == "PM" {
		hour += 12
	}
	return hour, minute, nil
}
