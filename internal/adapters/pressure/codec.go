package pressure

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Encoding is the payload format of a gauge parameter.
type Encoding string

const (
	ExpoNew  Encoding = "u_expo_new"  // 4-digit mantissa, 2-digit exponent offset by 20
	ShortInt Encoding = "u_short_int" // integer
	Real     Encoding = "u_real"      // fixed point, two implied decimals
	Text     Encoding = "string"
)

const (
	actionRead  = "0"
	actionWrite = "1"
	queryData   = "=?"

	// address(3) action(1) parameter(3) length(2)
	prefixLen   = 9
	checksumLen = 3
)

var errorKeywords = []string{"NO_DEF", "NO DEF", "RANGE", "LOGIC"}

// Parameter describes one gauge parameter from the configuration table.
type Parameter struct {
	Number   string            `yaml:"number"`
	Encoding Encoding          `yaml:"response_type"`
	ValueMap map[string]string `yaml:"value_map,omitempty"`
}

// Value is a decoded payload. Number is set for numeric encodings, Raw always
// holds the payload text.
type Value struct {
	Number float64
	Raw    string
}

// ErrMalformed marks responses that cannot be decoded.
var ErrMalformed = errors.New("malformed telegram")

// Checksum is the sum of the body bytes modulo 256, as three decimal digits.
func Checksum(body string) string {
	var sum int
	for i := 0; i < len(body); i++ {
		sum += int(body[i])
	}
	return fmt.Sprintf("%03d", sum%256)
}

// ReadRequest builds the data-query telegram for a parameter.
func ReadRequest(addr, param string) string {
	return frame(addr, actionRead, param, queryData)
}

// WriteRequest builds a control telegram that sets a parameter.
func WriteRequest(addr, param, data string) string {
	return frame(addr, actionWrite, param, data)
}

func frame(addr, action, param, data string) string {
	body := fmt.Sprintf("%s%s%s%02d%s", addr, action, param, len(data), data)
	return body + Checksum(body) + "\r"
}

// DecodeResponse validates a response telegram (terminator already stripped)
// and decodes its payload for p.
func DecodeResponse(resp string, p Parameter) (Value, error) {
	resp = strings.TrimSpace(resp)
	for _, kw := range errorKeywords {
		if strings.Contains(resp, kw) {
			return Value{}, fmt.Errorf("%w: gauge reported %s", ErrMalformed, kw)
		}
	}
	if len(resp) < prefixLen+checksumLen {
		return Value{}, fmt.Errorf("%w: short response %q", ErrMalformed, resp)
	}

	body, sum := resp[:len(resp)-checksumLen], resp[len(resp)-checksumLen:]
	if want := Checksum(body); sum != want {
		return Value{}, fmt.Errorf("%w: checksum %s, want %s", ErrMalformed, sum, want)
	}
	if got := body[4:7]; got != p.Number {
		return Value{}, fmt.Errorf("%w: parameter %s, want %s", ErrMalformed, got, p.Number)
	}
	n, err := strconv.Atoi(body[7:9])
	if err != nil {
		return Value{}, fmt.Errorf("%w: length field %q", ErrMalformed, body[7:9])
	}
	payload := body[prefixLen:]
	if len(payload) != n {
		return Value{}, fmt.Errorf("%w: payload length %d, header says %d", ErrMalformed, len(payload), n)
	}
	return decodePayload(payload, p.Encoding)
}

func decodePayload(payload string, enc Encoding) (Value, error) {
	v := Value{Raw: payload}
	switch enc {
	case ExpoNew:
		if len(payload) != 6 {
			return Value{}, fmt.Errorf("%w: expo payload %q", ErrMalformed, payload)
		}
		mantissa, err1 := strconv.Atoi(payload[:4])
		exponent, err2 := strconv.Atoi(payload[4:])
		if err1 != nil || err2 != nil {
			return Value{}, fmt.Errorf("%w: expo payload %q", ErrMalformed, payload)
		}
		if mantissa == 9999 {
			v.Number = math.NaN()
			return v, nil
		}
		v.Number = float64(mantissa) / 1000 * math.Pow10(exponent-20)
	case ShortInt:
		i, err := strconv.Atoi(payload)
		if err != nil {
			return Value{}, fmt.Errorf("%w: integer payload %q", ErrMalformed, payload)
		}
		v.Number = float64(i)
	case Real:
		i, err := strconv.Atoi(payload)
		if err != nil {
			return Value{}, fmt.Errorf("%w: real payload %q", ErrMalformed, payload)
		}
		v.Number = float64(i) / 100
	case Text, "":
	default:
		return Value{}, fmt.Errorf("unknown encoding %q", enc)
	}
	return v, nil
}
