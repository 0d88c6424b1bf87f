// Package slotdate parses and formats the compact D_M_Y slot date used as the
// calendar key of an appointment (for example "14_2_2025").
package slotdate

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

const Separator = "_"

// DefaultMonthNames maps 1-based month numbers (index+1) to display names.
var DefaultMonthNames = [12]string{
	"Jan", "Feb", "Mar", "Apr", "May", "Jun",
	"Jul", "Aug", "Sep", "Oct", "Nov", "Dec",
}

// FormatError reports a malformed slot date.
type FormatError struct {
	Input  string
	Reason string
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("invalid slot date %q: %s", e.Input, e.Reason)
}

// Date is a parsed slot date. Month is 1-based as written on the wire.
type Date struct {
	Day   int
	Month int
	Year  int
}

// Parse splits a slot date into its day, month and year components. Each
// component must be a run of ASCII digits; leading zeros are accepted.
func Parse(slotDate string) (Date, error) {
	parts := strings.Split(slotDate, Separator)
	if len(parts) != 3 {
		return Date{}, &FormatError{Input: slotDate, Reason: "expected day_month_year"}
	}

	var nums [3]int
	for i, part := range parts {
		if !digits(part) {
			return Date{}, &FormatError{Input: slotDate, Reason: fmt.Sprintf("component %d is not numeric", i+1)}
		}
		n, err := strconv.Atoi(part)
		if err != nil {
			return Date{}, &FormatError{Input: slotDate, Reason: fmt.Sprintf("component %d out of range", i+1)}
		}
		nums[i] = n
	}

	return Date{Day: nums[0], Month: nums[1], Year: nums[2]}, nil
}

// ToCalendarDate returns midnight of the slot date in loc.
//
// The wire month is 1-based and is turned into a zero-based month index before
// the calendar date is built. Out of range days and months roll over into the
// following month or year.
func ToCalendarDate(slotDate string, loc *time.Location) (time.Time, error) {
	d, err := Parse(slotDate)
	if err != nil {
		return time.Time{}, err
	}
	if loc == nil {
		loc = time.Local
	}
	monthIndex := d.Month - 1
	return time.Date(d.Year, time.January+time.Month(monthIndex), d.Day, 0, 0, 0, 0, loc), nil
}

// Format renders a slot date as "D Mon Y".
func Format(slotDate string, monthNames [12]string) (string, error) {
	d, err := Parse(slotDate)
	if err != nil {
		return "", err
	}
	if d.Month < 1 || d.Month > 12 {
		return "", &FormatError{Input: slotDate, Reason: fmt.Sprintf("month %d out of range", d.Month)}
	}
	return fmt.Sprintf("%d %s %d", d.Day, monthNames[d.Month-1], d.Year), nil
}

// FromTime builds the slot date for the calendar day of t.
func FromTime(t time.Time) string {
	monthIndex := int(t.Month() - time.January)
	return fmt.Sprintf("%d%s%d%s%d", t.Day(), Separator, monthIndex+1, Separator, t.Year())
}

// Normalize returns the canonical spelling of slotDate, the one FromTime
// produces. It rejects dates that name no real calendar day, so "30_2_2025"
// fails instead of rolling over. Every spelling of one day normalises to the
// same string: "14_02_2025" becomes "14_2_2025".
func Normalize(slotDate string) (string, error) {
	d, err := Parse(slotDate)
	if err != nil {
		return "", err
	}
	if d.Month < 1 || d.Month > 12 {
		return "", &FormatError{Input: slotDate, Reason: fmt.Sprintf("month %d out of range", d.Month)}
	}
	if d.Year < 1 || d.Year > 9999 {
		return "", &FormatError{Input: slotDate, Reason: fmt.Sprintf("year %d out of range", d.Year)}
	}

	t, err := ToCalendarDate(slotDate, time.UTC)
	if err != nil {
		return "", err
	}
	if t.Day() != d.Day || int(t.Month()) != d.Month {
		return "", &FormatError{Input: slotDate, Reason: fmt.Sprintf("day %d does not exist in month %d", d.Day, d.Month)}
	}
	return FromTime(t), nil
}

// Valid reports whether slotDate names a real calendar day.
func Valid(slotDate string) error {
	_, err := Normalize(slotDate)
	return err
}

func digits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
