package scheduler

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

var standardParser = cron.NewParser(
	cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow,
)

// ValidateExpr checks a 5-field cron expression in the standard dialect.
func ValidateExpr(expr string) error {
	_, err := standardParser.Parse(expr)
	return err
}

// NextFiring returns the first firing of expr strictly after the given
// time, in that time's location.
func NextFiring(expr string, after time.Time) (time.Time, error) {
	schedule, err := standardParser.Parse(expr)
	if err != nil {
		return time.Time{}, err
	}
	return schedule.Next(after), nil
}

// prefetchExpression derives the cron expression that fires five minutes
// before every firing of expr. The minute field must be a numeric value or
// a comma list of them; minutes below five borrow an hour, which only works
// for a single minute when the hour field is a wildcard or a single value
// with unrestricted day fields. Schedules whose expression cannot be
// shifted run without pre-fetch.
func prefetchExpression(expr string) (string, error) {
	fields := strings.Fields(strings.TrimSpace(expr))
	if len(fields) != 5 {
		return "", fmt.Errorf("expected 5 cron fields, got %d", len(fields))
	}
	minute, hour, dom, month, dow := fields[0], fields[1], fields[2], fields[3], fields[4]

	if strings.Contains(minute, ",") {
		// A list shifts element-wise within the same hour. One member
		// below five would borrow an hour for that member alone, which a
		// single expression cannot express.
		parts := strings.Split(minute, ",")
		shifted := make([]string, len(parts))
		for i, part := range parts {
			m, err := strconv.Atoi(part)
			if err != nil || m < 0 || m > 59 {
				return "", fmt.Errorf("minute field %q is not a numeric list", minute)
			}
			if m < 5 {
				return "", fmt.Errorf("cannot shift minute list %q: member %d would cross the hour", minute, m)
			}
			shifted[i] = strconv.Itoa(m - 5)
		}
		return join(strings.Join(shifted, ","), hour, dom, month, dow), nil
	}

	m, err := strconv.Atoi(minute)
	if err != nil || m < 0 || m > 59 {
		return "", fmt.Errorf("minute field %q is not a single numeric value", minute)
	}

	if m >= 5 {
		return join(strconv.Itoa(m-5), hour, dom, month, dow), nil
	}

	// Borrow an hour.
	shifted := strconv.Itoa(m + 55)
	if hour == "*" {
		return join(shifted, hour, dom, month, dow), nil
	}

	h, err := strconv.Atoi(hour)
	if err != nil || h < 0 || h > 23 {
		return "", fmt.Errorf("cannot borrow an hour from hour field %q", hour)
	}
	if h > 0 {
		return join(shifted, strconv.Itoa(h-1), dom, month, dow), nil
	}

	// Midnight wraps to 23:xx of the previous day, which would need the
	// day fields shifted too.
	if dom != "*" || dow != "*" || month != "*" {
		return "", fmt.Errorf("cannot shift %q across midnight with restricted day fields", expr)
	}
	return join(shifted, "23", dom, month, dow), nil
}

func join(fields ...string) string {
	return strings.Join(fields, " ")
}
