package dialect

import (
	"strings"

	"fluxmcp/internal/errors"
)

// Codec escapes identifiers and literal values for one dialect. Both query
// languages are textual and non-parameterized, so every identifier or literal
// interpolated into query text must pass through here. Inputs that cannot be
// represented safely (control characters) are rejected, never stripped.
type Codec interface {
	QuoteIdent(name string) (string, error)
	QuoteString(value string) (string, error)
}

// InfluxQLCodec implements InfluxQL quoting: double-quoted identifiers and
// single-quoted string literals.
var InfluxQLCodec Codec = influxqlCodec{}

// FluxCodec implements Flux quoting. Flux addresses columns as r["name"], so
// identifiers and literals share the double-quoted string syntax.
var FluxCodec Codec = fluxCodec{}

func checkQuotable(s string) error {
	if s == "" {
		return errors.New(errors.InvalidQueryInput, "empty identifier or value")
	}
	for _, r := range s {
		if r < 0x20 || r == 0x7f {
			return errors.Newf(errors.InvalidQueryInput, "control character %q is not allowed", r)
		}
	}
	return nil
}

type influxqlCodec struct{}

func (influxqlCodec) QuoteIdent(name string) (string, error) {
	if err := checkQuotable(name); err != nil {
		return "", err
	}
	var b strings.Builder
	b.WriteByte('"')
	for _, r := range name {
		switch r {
		case '\\':
			b.WriteString(`\\`)
		case '"':
			b.WriteString(`\"`)
		default:
			b.WriteRune(r)
		}
	}
	b.WriteByte('"')
	return b.String(), nil
}

func (influxqlCodec) QuoteString(value string) (string, error) {
	if err := checkQuotable(value); err != nil {
		return "", err
	}
	var b strings.Builder
	b.WriteByte('\'')
	for _, r := range value {
		switch r {
		case '\\':
			b.WriteString(`\\`)
		case '\'':
			b.WriteString(`\'`)
		default:
			b.WriteRune(r)
		}
	}
	b.WriteByte('\'')
	return b.String(), nil
}

type fluxCodec struct{}

func (c fluxCodec) QuoteIdent(name string) (string, error) {
	return c.QuoteString(name)
}

func (fluxCodec) QuoteString(value string) (string, error) {
	if err := checkQuotable(value); err != nil {
		return "", err
	}
	var b strings.Builder
	b.WriteByte('"')
	for _, r := range value {
		switch r {
		case '\\':
			b.WriteString(`\\`)
		case '"':
			b.WriteString(`\"`)
		case '$':
			// ${...} would open string interpolation inside a Flux literal.
			b.WriteString(`\$`)
		default:
			b.WriteRune(r)
		}
	}
	b.WriteByte('"')
	return b.String(), nil
}
