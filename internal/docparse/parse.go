// Package docparse extracts identity fields from text recognized on an
// identity-document image.
//
// Recognized text is noisy, so every field is found by an ordered list of
// strategies. Each strategy looks at the normalized text on its own and the
// first one to produce an acceptable value wins. A field no strategy can
// fill stays empty; Parse never fails.
package docparse

import (
	"regexp"
	"strings"
	"time"
)

// Identity holds the fields pulled from one document.
type Identity struct {
	Name        string `json:"name"`
	DateOfBirth string `json:"dob"`
	IDNumber    string `json:"aadhar"`
}

// Empty reports whether nothing at all was extracted.
func (i Identity) Empty() bool {
	return i.Name == "" && i.DateOfBirth == "" && i.IDNumber == ""
}

// strategy returns a candidate value for a field, or false if it has none.
type strategy func(text string) (string, bool)

// Parse extracts name, date of birth and ID number from raw recognized text.
func Parse(rawText string) Identity {
	return newParser(time.Now().Year()).parse(rawText)
}

type parser struct {
	maxYear int

	idNumber    []strategy
	dateOfBirth []strategy
	name        []strategy
}

func newParser(maxYear int) *parser {
	p := &parser{maxYear: maxYear}

	p.idNumber = []strategy{
		idFromPattern(groupedIDRe),
		idFromPattern(plainIDRe),
	}

	p.dateOfBirth = []strategy{
		p.dateAfterLabel(dobLabelRe),
		p.dateAfterLabel(dateOfBirthLabelRe),
		p.dateAfterLabel(birthLabelRe),
		p.anyDate,
	}

	p.name = []strategy{
		nameFromPattern(labelledNameRe),
		nameFromPattern(leadingNameRe),
		nameFromPattern(nameBeforeKeywordRe),
		fallbackName,
	}

	return p
}

func (p *parser) parse(rawText string) Identity {
	text := normalize(rawText)

	return Identity{
		IDNumber:    firstMatch(p.idNumber, dateTokenRe.ReplaceAllString(text, " ")),
		DateOfBirth: firstMatch(p.dateOfBirth, text),
		Name:        firstMatch(p.name, text),
	}
}

func firstMatch(strategies []strategy, text string) string {
	for _, s := range strategies {
		if v, ok := s(text); ok {
			return v
		}
	}
	return ""
}

func normalize(raw string) string {
	return strings.Join(strings.Fields(raw), " ")
}

// ID number

var (
	groupedIDRe = regexp.MustCompile(`\b(\d{4}[\s-]?\d{4}[\s-]?\d{4})\b`)
	plainIDRe   = regexp.MustCompile(`\b(\d{12})\b`)
	idSepRe     = regexp.MustCompile(`[\s-]`)
)

// dateTokenRe matches D[D]<sep>M[M]<sep>YYYY. Dates are blanked out before
// the ID scan so "15-03-1992 1234 5678" never yields 1992-1234-5678.
var dateTokenRe = regexp.MustCompile(`\b\d{1,2}[/\-.]\d{1,2}[/\-.]\d{4}\b`)

func idFromPattern(re *regexp.Regexp) strategy {
	return func(text string) (string, bool) {
		m := re.FindStringSubmatch(text)
		if m == nil {
			return "", false
		}
		return formatIDNumber(m[1])
	}
}

func formatIDNumber(s string) (string, bool) {
	digits := idSepRe.ReplaceAllString(s, "")
	if len(digits) != 12 || strings.Trim(digits, "0123456789") != "" {
		return "", false
	}
	return digits[0:4] + "-" + digits[4:8] + "-" + digits[8:12], true
}

// Date of birth

const datePattern = `(\d{1,2}[/\-.]\d{1,2}[/\-.]\d{4})`

var (
	dobLabelRe         = regexp.MustCompile(`(?i)DOB[:\s]*` + datePattern)
	dateOfBirthLabelRe = regexp.MustCompile(`(?i)Date of Birth[:\s]*` + datePattern)
	birthLabelRe       = regexp.MustCompile(`(?i)Birth[:\s]*` + datePattern)
	bareDateRe         = regexp.MustCompile(datePattern)
)

func (p *parser) dateAfterLabel(re *regexp.Regexp) strategy {
	return func(text string) (string, bool) {
		m := re.FindStringSubmatch(text)
		if m == nil {
			return "", false
		}
		return p.parseDate(m[1])
	}
}

// anyDate tries every unlabelled date token left to right.
func (p *parser) anyDate(text string) (string, bool) {
	for _, tok := range bareDateRe.FindAllString(text, -1) {
		if d, ok := p.parseDate(tok); ok {
			return d, true
		}
	}
	return "", false
}

// Name

const stopKeywords = `DOB|Date|Birth|Male|Female`

var (
	labelledNameRe      = regexp.MustCompile(`(?i)Name[:\s]+([A-Z][A-Za-z\s]+?)(?:\s+(?:` + stopKeywords + `|\d))`)
	leadingNameRe       = regexp.MustCompile(`(?i)^([A-Z][A-Za-z\s]+?)(?:\s+(?:` + stopKeywords + `|\d))`)
	nameBeforeKeywordRe = regexp.MustCompile(`(?i)([A-Z][A-Za-z\s]{2,30})(?:\s+(?:Male|Female|DOB|Date|Birth))`)
	nonNameCharRe       = regexp.MustCompile(`[^A-Za-z\s]`)
	alphaWordRe         = regexp.MustCompile(`^[A-Za-z]+$`)
)

// boilerplate words printed on the card that are never part of a name
var boilerplate = map[string]bool{
	"dob":            true,
	"date":           true,
	"birth":          true,
	"male":           true,
	"female":         true,
	"government":     true,
	"india":          true,
	"aadhaar":        true,
	"aadhar":         true,
	"unique":         true,
	"identification": true,
	"authority":      true,
	"year":           true,
	"name":           true,
}

func nameFromPattern(re *regexp.Regexp) strategy {
	return func(text string) (string, bool) {
		m := re.FindStringSubmatch(text)
		if m == nil {
			return "", false
		}
		return cleanName(m[1])
	}
}

func cleanName(s string) (string, bool) {
	name := strings.Join(strings.Fields(nonNameCharRe.ReplaceAllString(s, "")), " ")
	if len(name) <= 2 || len(name) >= 50 {
		return "", false
	}
	return name, true
}

// fallbackName joins the first three plausible words when no pattern hit.
func fallbackName(text string) (string, bool) {
	var words []string
	for _, w := range strings.Split(text, " ") {
		if len(w) > 2 && alphaWordRe.MatchString(w) && !boilerplate[strings.ToLower(w)] {
			words = append(words, w)
		}
	}

	if len(words) < 2 {
		return "", false
	}
	if len(words) > 3 {
		words = words[:3]
	}
	return strings.Join(words, " "), true
}
