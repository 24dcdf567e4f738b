// Package vouchercode implements the wire format for voucher codes:
//
//	<type>-<amount>-<uuid>
//
// The type part is either the literal "pass" or a content-unit identifier.
// The amount part is either a bare positive integer (a use count) or a
// calendar unit followed by a positive count, e.g. "days7" or "month1",
// which encodes an unlimited-use grant valid for that long after redemption.
// The uuid part is opaque and preserved verbatim; it may itself contain
// hyphens, so decoding splits on the first two separators only.
//
// The codec is pure: it never touches storage and has no side effects.
package vouchercode

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// ErrInvalidFormat is returned for any code that does not match the grammar.
var ErrInvalidFormat = errors.New("voucher code format is invalid")

// Calendar units in milliseconds. A month is fixed at 30 days.
const (
	dayMS   = 86_400_000
	weekMS  = 7 * dayMS
	monthMS = 30 * dayMS
)

var unitMS = map[string]int64{
	"day": dayMS, "days": dayMS,
	"week": weekMS, "weeks": weekMS,
	"month": monthMS, "months": monthMS,
}

var (
	// The grammar admits bare digits only; strconv would also take a sign.
	usesPattern   = regexp.MustCompile(`^[0-9]+$`)
	amountPattern = regexp.MustCompile(`^([a-z]+)([1-9][0-9]*)$`)
)

// Grant is the decoded payload of a voucher code.
//
// Exactly one of Uses/Duration is set: a use-count code has Uses > 0 and zero
// Duration; a time-boxed code has Uses = -1 and Duration > 0.
type Grant struct {
	// Kind is "pass" for consumable credits, otherwise a content-unit id.
	Kind string
	// Uses is the use count, or -1 for unlimited within Duration.
	Uses int
	// Duration is the validity window stamped at redemption time.
	Duration time.Duration
	// ID is the opaque trailing identifier, preserved verbatim.
	ID string
}

// Encode renders a Grant as a voucher code. The Grant must carry either a
// positive use count or a positive duration, never both; the duration must be
// expressible as a whole number of days.
func Encode(g Grant) (string, error) {
	if g.Kind == "" || strings.Contains(g.Kind, "-") {
		return "", fmt.Errorf("%w: bad type part %q", ErrInvalidFormat, g.Kind)
	}
	if g.ID == "" {
		return "", fmt.Errorf("%w: missing id part", ErrInvalidFormat)
	}

	var amount string
	switch {
	case g.Uses > 0 && g.Duration == 0:
		amount = strconv.Itoa(g.Uses)
	case g.Uses == -1 && g.Duration > 0:
		tok, err := durationToken(g.Duration)
		if err != nil {
			return "", err
		}
		amount = tok
	default:
		return "", fmt.Errorf("%w: grant needs a use count or a duration, not both", ErrInvalidFormat)
	}

	return g.Kind + "-" + amount + "-" + g.ID, nil
}

// durationToken picks the largest calendar unit that divides the duration
// exactly, preferring months over weeks over days.
func durationToken(d time.Duration) (string, error) {
	ms := d.Milliseconds()
	if ms <= 0 || ms%dayMS != 0 {
		return "", fmt.Errorf("%w: duration must be whole days", ErrInvalidFormat)
	}
	switch {
	case ms%monthMS == 0:
		return fmt.Sprintf("months%d", ms/monthMS), nil
	case ms%weekMS == 0:
		return fmt.Sprintf("weeks%d", ms/weekMS), nil
	default:
		return fmt.Sprintf("days%d", ms/dayMS), nil
	}
}

// Decode parses a voucher code into its Grant. Any deviation from the
// grammar yields ErrInvalidFormat; callers must not attempt storage lookups
// for codes that fail to decode.
func Decode(code string) (Grant, error) {
	parts := strings.SplitN(code, "-", 3)
	if len(parts) != 3 {
		return Grant{}, fmt.Errorf("%w: expected <type>-<amount>-<uuid>", ErrInvalidFormat)
	}
	kind, amount, id := parts[0], parts[1], parts[2]
	if kind == "" || amount == "" || id == "" {
		return Grant{}, fmt.Errorf("%w: empty segment", ErrInvalidFormat)
	}

	g := Grant{Kind: kind, ID: id}

	if usesPattern.MatchString(amount) {
		n, err := strconv.Atoi(amount)
		if err != nil || n <= 0 {
			return Grant{}, fmt.Errorf("%w: use count must be positive", ErrInvalidFormat)
		}
		g.Uses = n
		return g, nil
	}

	m := amountPattern.FindStringSubmatch(amount)
	if m == nil {
		return Grant{}, fmt.Errorf("%w: unrecognized amount %q", ErrInvalidFormat, amount)
	}
	ms, ok := unitMS[m[1]]
	if !ok {
		return Grant{}, fmt.Errorf("%w: unknown calendar unit %q", ErrInvalidFormat, m[1])
	}
	count, err := strconv.ParseInt(m[2], 10, 64)
	if err != nil {
		return Grant{}, fmt.Errorf("%w: bad unit count %q", ErrInvalidFormat, m[2])
	}

	g.Uses = -1
	g.Duration = time.Duration(count*ms) * time.Millisecond
	return g, nil
}

// Valid reports whether a code would decode without error. It is the cheap
// pre-flight used before any storage lookup.
func Valid(code string) bool {
	_, err := Decode(code)
	return err == nil
}
