// Package protocol holds the wire marker of wallet transaction messages and a
// structural parser for their fields. Signatures are carried, never checked.
package protocol

import (
	"errors"
	"fmt"
	"math"
	"net/url"
	"regexp"
	"strconv"
	"strings"
)

// Marker prefixes every wallet transaction message body.
const Marker = "WLT1|TX|"

const (
	version     = "WLT1"
	messageType = "TX"
	separator   = "|"
)

var (
	ErrMissingMarker = errors.New("payload does not start with the wallet marker")
	ErrMalformed     = errors.New("malformed wallet payload")

	e164Pattern = regexp.MustCompile(`^\+[1-9]\d{1,14}$`)
	hexPattern  = regexp.MustCompile(`^[0-9a-fA-F]+$`)
	digits      = regexp.MustCompile(`^[0-9]+$`)
)

// HasMarker is the exact, case-sensitive prefix test used for inbound routing.
func HasMarker(body string) bool {
	return strings.HasPrefix(body, Marker)
}

// IsValidE164 reports whether phone is +<country><subscriber>, at most 15 digits.
func IsValidE164(phone string) bool {
	return e164Pattern.MatchString(phone)
}

// TransactionPayload is the structured content of a wallet message.
type TransactionPayload struct {
	TxID        string
	From        string
	To          string
	AmountCents int64
	Timestamp   int64
	Nonce       string
	Memo        string
	Signature   string
	Raw         string
}

// SigningPayload renders every field that precedes the signature.
func (p TransactionPayload) SigningPayload() string {
	parts := []string{
		version,
		messageType,
		p.TxID,
		"from:" + p.From,
		"to:" + p.To,
		"amt:" + formatAmount(p.AmountCents),
		"ts:" + strconv.FormatInt(p.Timestamp, 10),
		"n:" + p.Nonce,
	}
	if memo := strings.TrimSpace(p.Memo); memo != "" {
		parts = append(parts, "m:"+url.PathEscape(memo))
	}
	return strings.Join(parts, separator)
}

// Format renders the full message text including the signature field.
func (p TransactionPayload) Format() string {
	return p.SigningPayload() + separator + "sig:" + p.Signature
}

// ParseTransaction splits a wallet message into its fields and checks their shape.
func ParseTransaction(raw string) (*TransactionPayload, error) {
	if !HasMarker(raw) {
		return nil, ErrMissingMarker
	}
	parts := strings.Split(raw, separator)
	if len(parts) < 8 {
		return nil, fmt.Errorf("%w: %d fields", ErrMalformed, len(parts))
	}

	fields := make(map[string]string)
	for _, part := range parts[3:] {
		if strings.HasPrefix(part, "sig:") {
			fields["sig"] = strings.TrimPrefix(part, "sig:")
			break
		}
		if key, value, ok := strings.Cut(part, ":"); ok && key != "" {
			fields[key] = value
		}
	}
	for _, required := range []string{"from", "to", "amt", "ts", "n", "sig"} {
		if fields[required] == "" {
			return nil, fmt.Errorf("%w: missing %s", ErrMalformed, required)
		}
	}

	p := &TransactionPayload{
		TxID:      parts[2],
		From:      fields["from"],
		To:        fields["to"],
		Nonce:     fields["n"],
		Signature: fields["sig"],
		Raw:       raw,
	}
	if p.TxID == "" {
		return nil, fmt.Errorf("%w: empty transaction id", ErrMalformed)
	}
	if !IsValidE164(p.From) || !IsValidE164(p.To) {
		return nil, fmt.Errorf("%w: invalid phone number", ErrMalformed)
	}

	amount, err := parseAmount(fields["amt"])
	if err != nil || amount <= 0 {
		return nil, fmt.Errorf("%w: invalid amount %q", ErrMalformed, fields["amt"])
	}
	p.AmountCents = amount

	ts, err := strconv.ParseInt(fields["ts"], 10, 64)
	if err != nil || ts <= 0 {
		return nil, fmt.Errorf("%w: invalid timestamp %q", ErrMalformed, fields["ts"])
	}
	p.Timestamp = ts

	if !hexPattern.MatchString(p.Nonce) {
		return nil, fmt.Errorf("%w: invalid nonce", ErrMalformed)
	}
	if memo, ok := fields["m"]; ok {
		decoded, err := url.PathUnescape(memo)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid memo encoding", ErrMalformed)
		}
		p.Memo = decoded
	}
	return p, nil
}

func formatAmount(cents int64) string {
	return fmt.Sprintf("%d.%02d", cents/100, cents%100)
}

// parseAmount accepts "15", "15.5" and "15.00" and returns cents. Signs,
// exponents and amounts beyond int64 cents are rejected.
func parseAmount(s string) (int64, error) {
	whole, frac, _ := strings.Cut(s, ".")
	if !digits.MatchString(whole) || (frac != "" && !digits.MatchString(frac)) {
		return 0, fmt.Errorf("amount %q is not an unsigned decimal", s)
	}
	if len(frac) > 2 {
		return 0, fmt.Errorf("too many decimals in %q", s)
	}
	for len(frac) < 2 {
		frac += "0"
	}
	units, err := strconv.ParseInt(whole, 10, 64)
	if err != nil {
		return 0, err
	}
	if units > (math.MaxInt64-99)/100 {
		return 0, fmt.Errorf("amount %q out of range", s)
	}
	cents, err := strconv.ParseInt(frac, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("bad fraction in %q", s)
	}
	return units*100 + cents, nil
}
