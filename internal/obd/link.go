package obd

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/banshee-data/cardash/internal/serialport"
)

// Reply errors. ErrLink wraps a read or write failure on the port and always
// ends the session; the others describe a reply that could not be decoded.
var (
	ErrLink         = errors.New("obd: serial link failure")
	ErrTimeout      = errors.New("obd: reply timed out")
	ErrNotOK        = errors.New("obd: command not acknowledged")
	ErrReplyPrefix  = errors.New("obd: reply without mode 41 prefix")
	ErrReplyLength  = errors.New("obd: reply has unexpected length")
	ErrReplyFormat  = errors.New("obd: reply is not a number")
	ErrReplyRange   = errors.New("obd: reply value out of range")
	ErrReplyTooLong = errors.New("obd: reply exceeds buffer")
)

const (
	prompt       = '>'
	searching    = "SEARCHING..."
	maxReplySize = 2048
	readChunk    = 256
)

// link speaks the ELM327 command/reply protocol over a serial port.
type link struct {
	port serialport.Port
	buf  []byte
}

func newLink(port serialport.Port) *link {
	return &link{port: port, buf: make([]byte, readChunk)}
}

// command writes cmd and reads the reply up to the prompt. Control characters,
// spaces and anything outside printable ASCII are dropped, so a multi-line
// reply comes back as one string.
func (l *link) command(cmd string) (string, error) {
	if _, err := io.WriteString(l.port, cmd); err != nil {
		return "", fmt.Errorf("%w: write %q: %w", ErrLink, strings.TrimSpace(cmd), err)
	}
	return l.reply()
}

// reply reads up to the prompt. An oversized reply is still consumed up to
// its prompt, so the next command starts on a clean line.
func (l *link) reply() (string, error) {
	var (
		sb       strings.Builder
		overflow bool
	)
	for {
		n, err := l.port.Read(l.buf)
		if err != nil {
			return "", fmt.Errorf("%w: read: %w", ErrLink, err)
		}
		if n == 0 {
			return "", ErrTimeout
		}
		for _, b := range l.buf[:n] {
			if b == prompt {
				if overflow {
					return "", ErrReplyTooLong
				}
				return strings.TrimPrefix(sb.String(), searching), nil
			}
			if overflow || b <= ' ' || b >= 0x7f {
				continue
			}
			if sb.Len() >= maxReplySize {
				overflow = true
				continue
			}
			sb.WriteByte(b)
		}
	}
}

// expectOK sends an AT command that must be acknowledged with "OK". An echo
// of the command itself is tolerated, since echo is only disabled by the
// first command of the sequence.
func (l *link) expectOK(cmd string) error {
	r, err := l.command(cmd)
	if err != nil {
		return err
	}
	echo := strings.ReplaceAll(strings.TrimSpace(cmd), " ", "")
	if len(r) >= len(echo) && strings.EqualFold(r[:len(echo)], echo) {
		r = r[len(echo):]
	}
	if r != "OK" {
		return fmt.Errorf("%w: %s replied %q", ErrNotOK, strings.TrimSpace(cmd), r)
	}
	return nil
}

// multi sends a request answered by several frames, each starting with a mode
// 49 header, and concatenates the 8 payload digits found at offset 6 of every
// 14-character frame. A short trailing frame contributes what it has.
func (l *link) multi(cmd string) (string, error) {
	r, err := l.command(cmd)
	if err != nil {
		return "", err
	}
	return joinFrames(r), nil
}

func joinFrames(r string) string {
	var sb strings.Builder
	for len(r) >= 7 && r[0] == '4' {
		if len(r) > 14 {
			sb.WriteString(r[6:14])
			r = r[14:]
			continue
		}
		sb.WriteString(r[6:])
		break
	}
	return sb.String()
}

// decodeASCII turns a hex payload into text, keeping printable characters
// only. Padding bytes and a malformed tail are dropped.
func decodeASCII(hex string) string {
	var sb strings.Builder
	for i := 0; i+2 <= len(hex); i += 2 {
		v, err := strconv.ParseUint(hex[i:i+2], 16, 8)
		if err != nil {
			break
		}
		if v > ' ' && v < 0x7f {
			sb.WriteByte(byte(v))
		}
	}
	return sb.String()
}

// pid requests one mode 01 parameter and decodes an n-byte hex reply.
func (l *link) pid(p PID, n int) (uint32, error) {
	r, err := l.command(fmt.Sprintf("%04x\n", uint16(p)))
	if err != nil {
		return 0, err
	}
	return decodePID(r, n)
}

// decodePID checks and converts a PID reply such as "410C1AF8". The first four
// characters echo the mode and parameter; the rest must be exactly n bytes of
// hex.
func decodePID(r string, n int) (uint32, error) {
	if !strings.HasPrefix(r, "4") || len(r) < 4 {
		return 0, fmt.Errorf("%w: %q", ErrReplyPrefix, r)
	}
	digits := r[4:]
	if len(digits) != n*2 {
		return 0, fmt.Errorf("%w: %d of %d digits in %q", ErrReplyLength, len(digits), n*2, r)
	}
	v, err := strconv.ParseUint(digits, 16, 32)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrReplyFormat, digits)
	}
	if n < 4 && v >= 1<<(8*uint(n)) {
		return 0, fmt.Errorf("%w: %#x for %d bytes", ErrReplyRange, v, n)
	}
	return uint32(v), nil
}

// numeric sends an AT command answered with a plain decimal number, such as
// "atrv" replying "12.6V".
func (l *link) numeric(cmd string) (float64, error) {
	r, err := l.command(cmd)
	if err != nil {
		return 0, err
	}
	return parseNumeric(r)
}

func parseNumeric(r string) (float64, error) {
	s := strings.Map(func(c rune) rune {
		if (c >= '0' && c <= '9') || c == '.' {
			return c
		}
		return -1
	}, r)
	if s == "" {
		return 0, fmt.Errorf("%w: %q", ErrReplyFormat, r)
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrReplyFormat, r)
	}
	return v, nil
}

// troubleCodes decodes the reply to a mode 03 request. The reply carries up to
// three 4-digit codes after a 2-character header; an unreadable code becomes
// 9999. Zero codes are padding and are not returned. A reply too short to
// hold three codes yields none.
func troubleCodes(r string) []int32 {
	if len(r) < 14 {
		return nil
	}
	var codes []int32
	for i := 2; i < 14; i += 4 {
		v, err := strconv.ParseUint(r[i:i+4], 10, 32)
		if err != nil {
			v = 9999
		}
		if v > 0 {
			codes = append(codes, int32(v))
		}
	}
	return codes
}
