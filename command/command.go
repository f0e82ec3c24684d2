// Package command validates machine commands against static allowlists
// before they are forwarded to a device.
package command

import (
	"errors"
	"strings"
)

// ErrInvalidCommand is returned for commands that are not in any allowlist.
var ErrInvalidCommand = errors.New("invalid command")

// Mnemonic returns the leading whitespace-delimited token of raw.
func Mnemonic(raw string) string {
	fields := strings.Fields(raw)

	if len(fields) == 0 {
		return ""
	}

	return fields[0]
}

// Canonical normalizes a mnemonic so zero-padded variants compare equal:
// G01 becomes G1 and M020 becomes M20. Selector words lose their argument,
// so T0 becomes T. Anything else is returned as is. Letters keep their case.
func Canonical(mnemonic string) string {
	if len(mnemonic) < 2 {
		return mnemonic
	}

	letter, number := mnemonic[:1], mnemonic[1:]

	if _, ok := selectors[letter]; ok && isNumber(number) {
		return letter
	}

	if !isDigits(number) {
		return mnemonic
	}

	number = strings.TrimLeft(number, "0")

	if number == "" {
		number = "0"
	}

	return letter + number
}

// Validate returns raw unchanged when its mnemonic is in at least one
// allowlist. Parameters are not inspected.
func Validate(raw string) (string, error) {
	if len(Classify(raw)) == 0 {
		return "", ErrInvalidCommand
	}

	return raw, nil
}

// Classify returns every category the mnemonic of raw belongs to.
func Classify(raw string) []Category {
	mnemonic := Mnemonic(raw)

	if mnemonic == "" {
		return nil
	}

	canonical := Canonical(mnemonic)
	categories := []Category{}

	for _, category := range Categories {
		if _, ok := tables[category][canonical]; ok {
			categories = append(categories, category)
		}
	}

	return categories
}

// Allowed reports whether the mnemonic of raw is in the given category.
func Allowed(category Category, raw string) bool {
	table, ok := tables[category]

	if !ok {
		return false
	}

	_, ok = table[Canonical(Mnemonic(raw))]

	return ok
}

func isDigits(s string) bool {
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

// isNumber accepts an unsigned decimal like 1000 or 7.5.
func isNumber(s string) bool {
	whole, fraction, found := strings.Cut(s, ".")

	if !found {
		return isDigits(whole)
	}

	return (whole == "" || isDigits(whole)) && isDigits(fraction)
}
