// Package phone parses and formats business phone numbers.
package phone

import (
	"errors"
	"fmt"
	"strings"

	"github.com/nyaruka/phonenumbers"
)

// DefaultRegion is assumed for numbers written without a country code
const DefaultRegion = "US"

// ErrEmpty is returned for blank input
var ErrEmpty = errors.New("phone number cannot be empty")

// Format is a phone number layout
type Format int

const (
	// FormatInternational is the layout the places provider returns (+1 617-555-0100)
	FormatInternational Format = iota
	// FormatE164 is +16175550100
	FormatE164
	// FormatNational is (617) 555-0100
	FormatNational
)

// Result describes a parsed number
type Result struct {
	Valid         bool   `json:"is_valid"`
	E164          string `json:"e164_format"`
	International string `json:"international_format"`
	Region        string `json:"country_code"`
}

func parse(raw, region string) (*phonenumbers.PhoneNumber, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, ErrEmpty
	}
	if region == "" {
		region = DefaultRegion
	}

	parsed, err := phonenumbers.Parse(raw, region)
	if err != nil {
		return nil, fmt.Errorf("failed to parse phone number: %w", err)
	}
	return parsed, nil
}

// Validate parses raw and reports its formats. An unparsable number is an
// error; a parsable but impossible one has Valid false.
func Validate(raw, region string) (*Result, error) {
	parsed, err := parse(raw, region)
	if err != nil {
		return nil, err
	}

	return &Result{
		Valid:         phonenumbers.IsValidNumber(parsed),
		E164:          phonenumbers.Format(parsed, phonenumbers.E164),
		International: phonenumbers.Format(parsed, phonenumbers.INTERNATIONAL),
		Region:        phonenumbers.GetRegionCodeForNumber(parsed),
	}, nil
}

// FormatAs renders raw in the requested layout
func FormatAs(raw, region string, format Format) (string, error) {
	parsed, err := parse(raw, region)
	if err != nil {
		return "", err
	}

	switch format {
	case FormatE164:
		return phonenumbers.Format(parsed, phonenumbers.E164), nil
	case FormatNational:
		return phonenumbers.Format(parsed, phonenumbers.NATIONAL), nil
	default:
		return phonenumbers.Format(parsed, phonenumbers.INTERNATIONAL), nil
	}
}

// Normalize returns raw in international format so manually entered numbers
// compare equal to provider numbers. Invalid numbers are rejected.
func Normalize(raw, region string) (string, error) {
	parsed, err := parse(raw, region)
	if err != nil {
		return "", err
	}
	if !phonenumbers.IsValidNumber(parsed) {
		return "", fmt.Errorf("invalid phone number %q", raw)
	}
	return phonenumbers.Format(parsed, phonenumbers.INTERNATIONAL), nil
}
