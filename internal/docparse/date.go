package docparse

import (
	"fmt"
	"regexp"
	"strconv"
)

var dateSepRe = regexp.MustCompile(`[/\-.]`)

// parseDate turns a three-part numeric date into YYYY-MM-DD.
//
// With a four-digit last part the first two parts are day and month: the one
// above 12 must be the day, and day comes first when neither is. If both
// exceed 12 there is no reading and the token is rejected. A last part of 31
// or less means the token is year/month/day.
func (p *parser) parseDate(s string) (string, bool) {
	parts := dateSepRe.Split(s, -1)
	if len(parts) != 3 {
		return "", false
	}

	nums := make([]int, 3)
	for i, part := range parts {
		n, err := strconv.Atoi(part)
		if err != nil {
			return "", false
		}
		nums[i] = n
	}

	var year, month, day int
	if nums[2] > 31 {
		year = nums[2]
		switch {
		case nums[0] > 12 && nums[1] > 12:
			return "", false
		case nums[1] > 12:
			day, month = nums[1], nums[0]
		default:
			day, month = nums[0], nums[1]
		}
	} else {
		year, month, day = nums[0], nums[1], nums[2]
	}

	if year < 1900 || year > p.maxYear || month < 1 || month > 12 || day < 1 || day > 31 {
		return "", false
	}

	return fmt.Sprintf("%04d-%02d-%02d", year, month, day), true
}
