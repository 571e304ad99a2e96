package detect

import (
	"math/big"
	"net"
	"regexp"
	"strconv"
	"strings"
	"unicode"
)

// Finding types reported by PatternDetector.
const (
	TypeEmail      = "email"
	TypePhone      = "phone"
	TypeIBAN       = "iban"
	TypeCreditCard = "credit_card"
	TypeBSN        = "bsn"
	TypeSSN        = "ssn"
	TypeIPAddress  = "ip_address"
)

// maxValueLen bounds the text inspected per cell.
const maxValueLen = 4096

// hintBoost is added to confidence when the column name suggests the type.
const hintBoost = 0.2

var (
	emailRe = regexp.MustCompile(`[A-Za-z0-9._%+\-]+@[A-Za-z0-9\-]+(?:\.[A-Za-z0-9\-]+)*\.[A-Za-z]{2,}`)
	ssnRe   = regexp.MustCompile(`^(\d{3})-(\d{2})-(\d{4})$`)
	ibanRe  = regexp.MustCompile(`^[A-Z]{2}[0-9]{2}[A-Z0-9]{11,30}$`)
	phoneRe = regexp.MustCompile(`^\+?[0-9][0-9 ()\-]{7,22}[0-9]$`)
	digits  = regexp.MustCompile(`^[0-9]+$`)
)

// PatternDetector recognises common PII formats with regular expressions and
// checksums: e-mail, phone numbers, IBAN (mod 97), payment cards (Luhn),
// Dutch BSN (11-check), US SSN and IPv4 addresses.
type PatternDetector struct {
	hints map[string][]string
}

// NewPatternDetector returns a PatternDetector with default column hints.
func NewPatternDetector() *PatternDetector {
	return &PatternDetector{
		hints: map[string][]string{
			TypeEmail:      {"email", "mail"},
			TypePhone:      {"phone", "mobile", "tel", "fax"},
			TypeIBAN:       {"iban", "bank", "account"},
			TypeCreditCard: {"card", "pan", "cc"},
			TypeBSN:        {"bsn", "burgerservice", "citizen"},
			TypeSSN:        {"ssn", "social"},
			TypeIPAddress:  {"ip", "ipaddr", "host"},
		},
	}
}

// Classify returns every detection for value. It never fails.
func (d *PatternDetector) Classify(value, column string) ([]Detection, error) {
	v := strings.TrimSpace(value)
	if v == "" {
		return nil, nil
	}
	if len(v) > maxValueLen {
		v = v[:maxValueLen]
	}
	col := columnTokens(column)

	var out []Detection
	add := func(typ string, sev Severity, base float64) {
		out = append(out, Detection{Type: typ, Severity: sev, Confidence: d.confidence(typ, col, base)})
	}

	if emailRe.MatchString(v) {
		add(TypeEmail, SeverityMedium, 0.8)
	}

	compact := stripSeparators(v)
	structured := false

	switch {
	case isIBAN(strings.ToUpper(compact)):
		add(TypeIBAN, SeverityHigh, 0.9)
		structured = true
	case isCardNumber(compact):
		add(TypeCreditCard, SeverityCritical, 0.75)
		structured = true
	case isSSN(v):
		add(TypeSSN, SeverityCritical, 0.85)
		structured = true
	case ssnRe.MatchString(v):
		// SSN-shaped but in a never-issued range; not a phone number either.
		structured = true
	case isBSN(compact) && digits.MatchString(v):
		// Any nine digits pass the 11-check one time in eleven, so a bare
		// number needs the column hint to be credible.
		if d.hinted(TypeBSN, col) {
			add(TypeBSN, SeverityCritical, 0.5)
		}
		structured = true
	}

	if !structured && isPhone(v) {
		add(TypePhone, SeverityMedium, 0.6)
	}

	if ip := net.ParseIP(v); ip != nil && ip.To4() != nil && strings.Count(v, ".") == 3 {
		add(TypeIPAddress, SeverityLow, 0.7)
	}

	return out, nil
}

// confidence boosts base when a column token equals a hint, or contains a
// hint of four or more letters ("email" in "emailaddress", but "ip" only as
// a whole token so "zip" does not count).
func (d *PatternDetector) confidence(typ string, tokens []string, base float64) float64 {
	if d.hinted(typ, tokens) {
		return min(base+hintBoost, 1.0)
	}
	return base
}

func (d *PatternDetector) hinted(typ string, tokens []string) bool {
	for _, h := range d.hints[typ] {
		for _, tok := range tokens {
			if tok == h || (len(h) >= 4 && strings.Contains(tok, h)) {
				return true
			}
		}
	}
	return false
}

func columnTokens(column string) []string {
	return strings.FieldsFunc(strings.ToLower(column), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func stripSeparators(s string) string {
	return strings.NewReplacer(" ", "", "-", "", ".", "").Replace(s)
}

// isIBAN validates structure and the ISO 13616 mod-97 checksum.
func isIBAN(s string) bool {
	if !ibanRe.MatchString(s) {
		return false
	}
	rearranged := s[4:] + s[:4]
	var numeric strings.Builder
	for _, r := range rearranged {
		if r >= 'A' && r <= 'Z' {
			numeric.WriteString(strconv.Itoa(int(r-'A') + 10))
		} else {
			numeric.WriteRune(r)
		}
	}
	n, ok := new(big.Int).SetString(numeric.String(), 10)
	if !ok {
		return false
	}
	return new(big.Int).Mod(n, big.NewInt(97)).Int64() == 1
}

// isCardNumber checks length, issuer prefix and the Luhn checksum.
func isCardNumber(s string) bool {
	if len(s) < 13 || len(s) > 19 || !digits.MatchString(s) {
		return false
	}
	if !strings.ContainsRune("3456", rune(s[0])) {
		return false
	}
	sum := 0
	double := false
	for i := len(s) - 1; i >= 0; i-- {
		n := int(s[i] - '0')
		if double {
			n *= 2
			if n > 9 {
				n -= 9
			}
		}
		sum += n
		double = !double
	}
	return sum%10 == 0
}

// isBSN applies the Dutch "elfproef": 9*d1 + 8*d2 + ... + 2*d8 - d9 must be
// divisible by 11.
func isBSN(s string) bool {
	if len(s) != 9 || !digits.MatchString(s) || s == "000000000" {
		return false
	}
	sum := 0
	for i := 0; i < 8; i++ {
		sum += int(s[i]-'0') * (9 - i)
	}
	sum -= int(s[8] - '0')
	return sum%11 == 0
}

// isSSN matches AAA-GG-SSSS with the SSA's never-issued ranges excluded.
func isSSN(s string) bool {
	m := ssnRe.FindStringSubmatch(s)
	if m == nil {
		return false
	}
	area, group, serial := m[1], m[2], m[3]
	if area == "000" || area == "666" || area[0] == '9' {
		return false
	}
	return group != "00" && serial != "0000"
}

func isPhone(s string) bool {
	if !phoneRe.MatchString(s) {
		return false
	}
	n := 0
	for _, r := range s {
		if r >= '0' && r <= '9' {
			n++
		}
	}
	if n < 10 || n > 15 {
		return false
	}
	// A bare digit run is more likely an id than a phone number.
	return strings.HasPrefix(s, "+") || strings.HasPrefix(s, "0") || strings.ContainsAny(s, " ()-")
}
