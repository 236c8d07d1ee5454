package utils

import (
	"regexp"
	"strings"
	"time"
)

var nonDigit = regexp.MustCompile(`\D`)

// CleanCPF removes all non-numeric characters from a CPF
func CleanCPF(cpf string) string {
	return nonDigit.ReplaceAllString(cpf, "")
}

// Digits keeps only the digits of s
func Digits(s string) string {
	return nonDigit.ReplaceAllString(s, "")
}

// FormatCPF formats a CPF as XXX.XXX.XXX-XX
func FormatCPF(cpf string) string {
	cleaned := CleanCPF(cpf)
	if len(cleaned) != 11 {
		return cpf
	}
	return cleaned[:3] + "." + cleaned[3:6] + "." + cleaned[6:9] + "-" + cleaned[9:]
}

// IsValidCPF performs the structural check the portal accepts: 11 digits, not all equal.
func IsValidCPF(cpf string) bool {
	cleaned := CleanCPF(cpf)
	if len(cleaned) != 11 {
		return false
	}
	return !isAllSameDigit(cleaned)
}

// HasValidCheckDigits runs the official modulo-11 verification over both check digits
func HasValidCheckDigits(cpf string) bool {
	cleaned := CleanCPF(cpf)
	if !IsValidCPF(cleaned) {
		return false
	}

	digits := make([]int, 11)
	for i, r := range cleaned {
		digits[i] = int(r - '0')
	}

	return checkDigit(digits[:9], 10) == digits[9] && checkDigit(digits[:10], 11) == digits[10]
}

func checkDigit(digits []int, startWeight int) int {
	sum := 0
	for i, d := range digits {
		sum += d * (startWeight - i)
	}
	remainder := (sum * 10) % 11
	if remainder == 10 {
		return 0
	}
	return remainder
}

// isAllSameDigit checks if all digits in the string are the same
func isAllSameDigit(s string) bool {
	if len(s) == 0 {
		return false
	}

	first := s[0]
	for i := 1; i < len(s); i++ {
		if s[i] != first {
			return false
		}
	}
	return true
}

// ParseBRDate parses DD/MM/YYYY
func ParseBRDate(s string) (time.Time, error) {
	return time.Parse("02/01/2006", strings.TrimSpace(s))
}

// IsValidBRDate reports whether s is a calendar date in DD/MM/YYYY
func IsValidBRDate(s string) bool {
	_, err := ParseBRDate(s)
	return err == nil
}

// Initials returns the first letters of the first and last name, "??" when empty
func Initials(name string) string {
	parts := strings.Fields(name)
	switch {
	case len(parts) >= 2:
		return strings.ToUpper(firstRune(parts[0]) + firstRune(parts[len(parts)-1]))
	case len(parts) == 1:
		r := []rune(parts[0])
		if len(r) > 2 {
			r = r[:2]
		}
		return strings.ToUpper(string(r))
	}
	return "??"
}

func firstRune(s string) string {
	for _, r := range s {
		return string(r)
	}
	return ""
}
