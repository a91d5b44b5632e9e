package analysis

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ExpirationFilter selects which expirations feed an exposure snapshot
type ExpirationFilter string

const (
	FilterToday      ExpirationFilter = "today"
	FilterNextFriday ExpirationFilter = "next-friday"
	FilterTwoFridays ExpirationFilter = "two-fridays"
	FilterAll        ExpirationFilter = "all"
)

// ErrUnknownFilter is returned for an expiration filter label we don't support
var ErrUnknownFilter = errors.New("unknown expiration filter")

// ParseExpirationFilter parses today, next-friday, two-fridays or all
func ParseExpirationFilter(s string) (ExpirationFilter, error) {
	f := ExpirationFilter(strings.ToLower(strings.TrimSpace(s)))
	switch f {
	case FilterToday, FilterNextFriday, FilterTwoFridays, FilterAll:
		return f, nil
	case "":
		return FilterNextFriday, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownFilter, s)
}

// NextFriday returns midnight of the next Friday after now, in now's location.
// When now is a Friday the result is seven days out, never today.
func NextFriday(now time.Time) time.Time {
	today := midnight(now)
	days := (int(time.Friday) - int(today.Weekday()) + 7) % 7
	if days == 0 {
		days = 7
	}
	return today.AddDate(0, 0, days)
}

// TwoFridaysOut returns the Friday one week after NextFriday
func TwoFridaysOut(now time.Time) time.Time {
	return NextFriday(now).AddDate(0, 0, 7)
}

// FilterByExpiration keeps the contracts whose expiration date matches the filter.
// An expiration's calendar date is the one the vendor wrote, read in the
// expiration's own location; it is compared against now's date in now's location.
func FilterByExpiration(contracts []Contract, filter ExpirationFilter, now time.Time) []Contract {
	var keep func(expiry time.Time) bool

	switch filter {
	case FilterToday:
		today := midnight(now)
		keep = func(expiry time.Time) bool { return expiry.Equal(today) }
	case FilterNextFriday:
		cutoff := NextFriday(now)
		keep = func(expiry time.Time) bool { return !expiry.After(cutoff) }
	case FilterTwoFridays:
		cutoff := TwoFridaysOut(now)
		keep = func(expiry time.Time) bool { return !expiry.After(cutoff) }
	default:
		return contracts
	}

	filtered := make([]Contract, 0, len(contracts))
	for _, c := range contracts {
		if keep(expiryDate(c.Expiration, now.Location())) {
			filtered = append(filtered, c)
		}
	}
	return filtered
}

// Cutoff returns the last expiration date a filter admits, or the zero time
// when it admits every expiration
func Cutoff(filter ExpirationFilter, now time.Time) time.Time {
	switch filter {
	case FilterToday:
		return midnight(now)
	case FilterNextFriday:
		return NextFriday(now)
	case FilterTwoFridays:
		return TwoFridaysOut(now)
	}
	return time.Time{}
}

// DaysToExpiry returns the fractional number of days from now until expiry,
// never negative
func DaysToExpiry(expiry, now time.Time) float64 {
	days := expiry.Sub(now).Hours() / 24
	if days < 0 {
		return 0
	}
	return days
}

// expiryDate is midnight in loc of the calendar date written in t
func expiryDate(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}

func midnight(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
