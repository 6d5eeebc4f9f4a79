// Package phone validates contact phone numbers against a country code.
package phone

import (
	"fmt"
	"strings"

	"github.com/nyaruka/phonenumbers"
)

// Valid reports whether number is a valid phone number for the given
// country. Country may be an ISO 3166-1 region code ("US", "de") or a
// dialing prefix ("+1", "+49").
func Valid(number, country string) bool {
	_, err := parse(number, country)
	return err == nil
}

// E164 returns the number formatted in E.164, or an error when the number
// is not valid for the country.
func E164(number, country string) (string, error) {
	n, err := parse(number, country)
	if err != nil {
		return "", err
	}
	return phonenumbers.Format(n, phonenumbers.E164), nil
}

func parse(number, country string) (*phonenumbers.PhoneNumber, error) {
	number = strings.TrimSpace(number)
	country = strings.TrimSpace(country)
	if number == "" {
		return nil, fmt.Errorf("empty phone number")
	}

	var (
		n   *phonenumbers.PhoneNumber
		err error
	)
	if strings.HasPrefix(country, "+") {
		// Dialing prefix: join it with the national number and let the
		// library infer the region.
		if !strings.HasPrefix(number, "+") {
			number = country + number
		}
		n, err = phonenumbers.Parse(number, "")
	} else {
		n, err = phonenumbers.Parse(number, strings.ToUpper(country))
	}
	if err != nil {
		return nil, fmt.Errorf("parse phone number: %w", err)
	}
	if !phonenumbers.IsValidNumber(n) {
		return nil, fmt.Errorf("number %q is not valid for %q", number, country)
	}
	return n, nil
}
