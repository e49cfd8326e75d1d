// Package property provides per-property configuration for the concierge.
package property

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// DefaultTimezone is used when a property has no timezone configured.
const DefaultTimezone = "Asia/Kuala_Lumpur"

// DefaultADR is the average daily rate assumed when none is configured.
const DefaultADR = 230.0

// ErrPropertyNotFound is returned when a property has no configuration.
var ErrPropertyNotFound = errors.New("property: not found")

// OperatingHours is the staffed window of a property, in its local time.
type OperatingHours struct {
	Start    string `json:"start" yaml:"start"` // "09:00"
	End      string `json:"end" yaml:"end"`     // "18:00"
	Timezone string `json:"timezone,omitempty" yaml:"timezone,omitempty"`
}

// Config holds everything the orchestrator needs to know about a property.
type Config struct {
	ID                string          `json:"id" yaml:"id"`
	Name              string          `json:"name" yaml:"name"`
	OperatingHours    *OperatingHours `json:"operating_hours,omitempty" yaml:"operating_hours,omitempty"`
	ADR               float64         `json:"adr" yaml:"adr"`
	BrandVoice        string          `json:"brand_voice,omitempty" yaml:"brand_voice,omitempty"`
	RequiredQuestions []string        `json:"required_questions,omitempty" yaml:"required_questions,omitempty"`
	WhatsAppNumberID  string          `json:"whatsapp_number_id,omitempty" yaml:"whatsapp_number_id,omitempty"`
	NotificationEmail string          `json:"notification_email,omitempty" yaml:"notification_email,omitempty"`
}

// normalize fills defaults for fields a stored config may omit.
func (c *Config) normalize() {
	if c.ADR <= 0 {
		c.ADR = DefaultADR
	}
	if c.OperatingHours != nil && strings.TrimSpace(c.OperatingHours.Timezone) == "" {
		c.OperatingHours.Timezone = DefaultTimezone
	}
}

// IsAfterHours reports whether t falls outside the operating window. A
// window whose start is later than its end runs past midnight. Properties without configured hours are never after hours, and so are
// properties whose hours cannot be parsed.
func (c *Config) IsAfterHours(t time.Time) bool {
	if c == nil || c.OperatingHours == nil {
		return false
	}
	hours := c.OperatingHours

	tz := hours.Timezone
	if tz == "" {
		tz = DefaultTimezone
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return false
	}

	start, err := parseHour(hours.Start, 9)
	if err != nil {
		return false
	}
	end, err := parseHour(hours.End, 18)
	if err != nil {
		return false
	}

	hour := t.In(loc).Hour()
	if start > end {
		// Overnight window, e.g. 22:00 - 06:00.
		return hour >= end && hour < start
	}
	return hour < start || hour >= end
}

// HoursLabel renders the operating window for prompts, e.g. "09:00 - 18:00".
func (c *Config) HoursLabel() string {
	if c == nil || c.OperatingHours == nil {
		return "9am - 6pm"
	}
	start := c.OperatingHours.Start
	if start == "" {
		start = "09:00"
	}
	end := c.OperatingHours.End
	if end == "" {
		end = "18:00"
	}
	return start + " - " + end
}

// parseHour reads the hour component of "HH:MM"; empty input yields def.
func parseHour(value string, def int) (int, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return def, nil
	}
	hourPart, _, _ := strings.Cut(value, ":")
	hour, err := strconv.Atoi(hourPart)
	if err != nil || hour < 0 || hour > 24 {
		return 0, fmt.Errorf("property: invalid hour %q", value)
	}
	return hour, nil
}
