package trip

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// TravelStyle is the package tier a traveller picks.
type TravelStyle string

const (
	StyleBudget   TravelStyle = "budget"
	StyleBalanced TravelStyle = "balanced"
	StyleLuxury   TravelStyle = "luxury"
)

// Styles lists the travel style tiers from cheapest to most expensive.
var Styles = []TravelStyle{StyleBudget, StyleBalanced, StyleLuxury}

// ParseTravelStyle resolves a style name, case-insensitively.
func ParseTravelStyle(s string) (TravelStyle, error) {
	style := TravelStyle(strings.ToLower(strings.TrimSpace(s)))
	if style.Valid() {
		return style, nil
	}
	return "", fmt.Errorf("unknown travel style %q", s)
}

// Valid reports whether s is one of the known tiers.
func (s TravelStyle) Valid() bool {
	for _, known := range Styles {
		if s == known {
			return true
		}
	}
	return false
}

// Room is one booked room.
type Room struct {
	Adults   int `json:"adults"`
	Children int `json:"children"`
}

// Parameters are the trip details collected by the wizard.
type Parameters struct {
	Destination   string      `json:"destination"`
	DurationLabel string      `json:"duration_label"`
	StartDate     time.Time   `json:"start_date"`
	Rooms         []Room      `json:"rooms"`
	FromCity      string      `json:"from_city"`
	Style         TravelStyle `json:"style"`
}

// Validation errors.
var (
	ErrMissingDestination = errors.New("destination is required")
	ErrMissingStartDate   = errors.New("start date is required")
	ErrStartDateInPast    = errors.New("start date is in the past")
	ErrNoTravelers        = errors.New("at least one room with an adult is required")
	ErrNegativeTravelers  = errors.New("traveller counts must not be negative")
	ErrUnknownStyle       = errors.New("unknown travel style")
)

// Adults returns the number of adults across all rooms.
func (p Parameters) Adults() int {
	n := 0
	for _, r := range p.Rooms {
		n += r.Adults
	}
	return n
}

// Children returns the number of children across all rooms.
func (p Parameters) Children() int {
	n := 0
	for _, r := range p.Rooms {
		n += r.Children
	}
	return n
}

// Travelers returns the total head count.
func (p Parameters) Travelers() int {
	return p.Adults() + p.Children()
}

// Days resolves the duration label to a day count.
func (p Parameters) Days() int {
	return ResolveDayCount(p.DurationLabel)
}

// EndDate is the last calendar day of the trip.
func (p Parameters) EndDate() time.Time {
	if p.StartDate.IsZero() {
		return time.Time{}
	}
	return p.StartDate.AddDate(0, 0, p.Days()-1)
}

// StyleOrDefault returns the chosen style, falling back to balanced.
func (p Parameters) StyleOrDefault() TravelStyle {
	if p.Style == "" {
		return StyleBalanced
	}
	return p.Style
}

// CheckRequired verifies the fields every generation needs. It does not look
// at the clock, so a trip accepted yesterday can still be generated today.
func (p Parameters) CheckRequired() error {
	if strings.TrimSpace(p.Destination) == "" {
		return ErrMissingDestination
	}
	if p.StartDate.IsZero() {
		return ErrMissingStartDate
	}
	if err := CheckRooms(p.Rooms); err != nil {
		return err
	}
	if p.Style != "" && !p.Style.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownStyle, p.Style)
	}
	return nil
}

// Validate runs CheckRequired and rejects start dates before now's calendar day.
func (p Parameters) Validate(now time.Time) error {
	if err := p.CheckRequired(); err != nil {
		return err
	}
	return CheckStartDate(p.StartDate, now)
}

// CheckStartDate rejects dates earlier than today. Only calendar days are compared.
func CheckStartDate(start, now time.Time) error {
	if start.IsZero() {
		return ErrMissingStartDate
	}
	if dateOnly(start).Before(dateOnly(now.In(start.Location()))) {
		return ErrStartDateInPast
	}
	return nil
}

// CheckRooms requires at least one room with an adult and no negative counts.
func CheckRooms(rooms []Room) error {
	withAdult := false
	for _, r := range rooms {
		if r.Adults < 0 || r.Children < 0 {
			return ErrNegativeTravelers
		}
		if r.Adults >= 1 {
			withAdult = true
		}
	}
	if !withAdult {
		return ErrNoTravelers
	}
	return nil
}

func dateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// DefaultDayCount is used when a duration label cannot be resolved.
const DefaultDayCount = 6

// MaxCustomDays bounds the free-form "N Days" label.
const MaxCustomDays = 30

// DurationLabels are the preset durations offered by the wizard.
var DurationLabels = []string{"1-3 Days", "4-6 Days", "7-9 Days", "10-12 Days", "13-15 Days"}

var presetDays = map[string]int{
	"1-3 Days":   3,
	"4-6 Days":   6,
	"7-9 Days":   9,
	"10-12 Days": 12,
	"13-15 Days": 15,
}

var customDuration = regexp.MustCompile(`^(?i)(\d{1,3})\s*days?$`)

// ResolveDayCount maps a duration label to a number of days.
func ResolveDayCount(label string) int {
	if n, ok := lookupDayCount(label); ok {
		return n
	}
	return DefaultDayCount
}

// KnownDuration reports whether label resolves without the fallback.
func KnownDuration(label string) bool {
	_, ok := lookupDayCount(label)
	return ok
}

func lookupDayCount(label string) (int, bool) {
	label = strings.TrimSpace(label)
	if n, ok := presetDays[label]; ok {
		return n, true
	}
	for preset, n := range presetDays {
		if strings.EqualFold(preset, label) {
			return n, true
		}
	}
	if m := customDuration.FindStringSubmatch(label); m != nil {
		n, err := strconv.Atoi(m[1])
		if err == nil && n >= 1 && n <= MaxCustomDays {
			return n, true
		}
	}
	return 0, false
}
