// Package coder converts scalar values between their SDMX-ML textual
// representation and typed in-memory values.
package coder

import (
	"fmt"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sosodev/duration"
)

// Type identifies a scalar value type carried by an XML attribute or text node.
type Type int

const (
	// TypeString is the identity coding; unknown types fall back to it.
	TypeString Type = iota
	// TypeBool codes the literal lowercase "true"/"false".
	TypeBool
	// TypeDate codes YYYY-MM-DD.
	TypeDate
	// TypeDateTime codes YYYY-MM-DDTHH:MM:SS without a zone designator.
	TypeDateTime
	// TypeDecimal codes arbitrary-precision decimals.
	TypeDecimal
	// TypeDuration codes ISO-8601 durations (P1DT2H...).
	TypeDuration
	// TypeInt codes base-10 integers.
	TypeInt
)

const (
	dateLayout     = "2006-01-02"
	dateTimeLayout = "2006-01-02T15:04:05"
)

// String returns the string representation of the type
func (t Type) String() string {
	switch t {
	case TypeBool:
		return "bool"
	case TypeDate:
		return "date"
	case TypeDateTime:
		return "datetime"
	case TypeDecimal:
		return "decimal"
	case TypeDuration:
		return "duration"
	case TypeInt:
		return "int"
	default:
		return "string"
	}
}

// Decode converts the textual representation of a value into its typed form.
// An empty string decodes to nil for every type: absent fields stay absent.
func Decode(text string, typ Type) (interface{}, error) {
	if text == "" {
		return nil, nil
	}

	switch typ {
	case TypeBool:
		switch text {
		case "true":
			return true, nil
		case "false":
			return false, nil
		default:
			return nil, fmt.Errorf("invalid boolean text %q", text)
		}
	case TypeDate:
		v, err := time.Parse(dateLayout, text)
		if err != nil {
			return nil, fmt.Errorf("invalid date %q: %w", text, err)
		}
		return v, nil
	case TypeDateTime:
		v, err := time.Parse(dateTimeLayout, text)
		if err != nil {
			return nil, fmt.Errorf("invalid datetime %q: %w", text, err)
		}
		return v, nil
	case TypeDecimal:
		v, err := decimal.NewFromString(text)
		if err != nil {
			return nil, fmt.Errorf("invalid decimal %q: %w", text, err)
		}
		return v, nil
	case TypeDuration:
		d, err := duration.Parse(text)
		if err != nil {
			return nil, fmt.Errorf("invalid duration %q: %w", text, err)
		}
		return d.ToTimeDuration(), nil
	case TypeInt:
		v, err := strconv.Atoi(text)
		if err != nil {
			return nil, fmt.Errorf("invalid integer %q: %w", text, err)
		}
		return v, nil
	default:
		return text, nil
	}
}

// Encode converts a typed value into its textual representation.
// A nil value encodes to the empty string: absent fields are omitted by the
// caller, never rendered as empty elements or attributes.
func Encode(value interface{}, typ Type) (string, error) {
	if value == nil {
		return "", nil
	}

	switch typ {
	case TypeBool:
		v, ok := value.(bool)
		if !ok {
			return "", fmt.Errorf("expected bool, got %T", value)
		}
		return strconv.FormatBool(v), nil
	case TypeDate:
		v, ok := value.(time.Time)
		if !ok {
			return "", fmt.Errorf("expected time.Time, got %T", value)
		}
		return v.Format(dateLayout), nil
	case TypeDateTime:
		v, ok := value.(time.Time)
		if !ok {
			return "", fmt.Errorf("expected time.Time, got %T", value)
		}
		return v.Format(dateTimeLayout), nil
	case TypeDecimal:
		v, ok := value.(decimal.Decimal)
		if !ok {
			return "", fmt.Errorf("expected decimal.Decimal, got %T", value)
		}
		return v.String(), nil
	case TypeDuration:
		v, ok := value.(time.Duration)
		if !ok {
			return "", fmt.Errorf("expected time.Duration, got %T", value)
		}
		return duration.FromTimeDuration(v).String(), nil
	case TypeInt:
		v, ok := value.(int)
		if !ok {
			return "", fmt.Errorf("expected int, got %T", value)
		}
		return strconv.Itoa(v), nil
	default:
		if s, ok := value.(string); ok {
			return s, nil
		}
		return fmt.Sprintf("%v", value), nil
	}
}
