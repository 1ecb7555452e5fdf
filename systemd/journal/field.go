package journal

import (
	"bytes"
	"encoding/hex"
	"strconv"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// Well-known fields written by this package. See systemd.journal-fields(7).
const (
	FieldMessage   = "MESSAGE"
	FieldMessageID = "MESSAGE_ID"
	FieldPriority  = "PRIORITY"
	FieldCodeFile  = "CODE_FILE"
	FieldCodeLine  = "CODE_LINE"
	FieldCodeFunc  = "CODE_FUNC"
	FieldErrno     = "ERRNO"
	FieldSyslogID  = "SYSLOG_IDENTIFIER"
)

// maxFieldName is the longest field name journald accepts.
const maxFieldName = 64

// ErrInvalidField is returned for fields that journald would drop or reject.
var ErrInvalidField = errors.New("invalid journal field")

// Field is a single KEY=VALUE datum of a journal entry.
type Field struct {
	Key   string
	Value string
}

// F is a shorthand for creating a Field.
func F(key, value string) Field {
	return Field{key, value}
}

// IntField creates a field with a decimal integer value.
func IntField(key string, value int) Field {
	return Field{key, strconv.Itoa(value)}
}

// Bytes returns the KEY=VALUE serialization of the field.
func (f Field) Bytes() []byte {
	b := make([]byte, 0, len(f.Key)+1+len(f.Value))
	b = append(b, f.Key...)
	b = append(b, '=')
	return append(b, f.Value...)
}

// String returns the KEY=VALUE serialization of the field.
func (f Field) String() string {
	return f.Key + "=" + f.Value
}

// Validate checks that the field name is one applications may write.
func (f Field) Validate() error {
	if !ValidFieldName(f.Key) {
		return errors.Wrapf(ErrInvalidField, "bad name %q", f.Key)
	}
	return nil
}

// ParseField parses a KEY=VALUE serialization. The key ends at the first '=',
// so values may contain '='.
func ParseField(b []byte) (Field, error) {
	eq := bytes.IndexByte(b, '=')
	if eq <= 0 {
		return Field{}, errors.Wrap(ErrInvalidField, "missing key")
	}

	return Field{string(b[:eq]), string(b[eq+1:])}, nil
}

// ValidFieldName reports whether name is a field name applications may write:
// 1 to 64 characters of A-Z, 0-9 and '_', not starting with '_' or a digit.
// Names starting with '_' are reserved for fields journald adds itself.
func ValidFieldName(name string) bool {
	if name == "" || len(name) > maxFieldName {
		return false
	}

	if name[0] == '_' || isDigit(name[0]) {
		return false
	}

	return validNameChars(name)
}

// validMatchName is ValidFieldName without the restriction on trusted fields,
// since those can be matched against when reading.
func validMatchName(name string) bool {
	return name != "" && len(name) <= maxFieldName && validNameChars(name)
}

func validNameChars(name string) bool {
	for i := 0; i < len(name); i++ {
		c := name[i]
		if !(c >= 'A' && c <= 'Z') && !isDigit(c) && c != '_' {
			return false
		}
	}
	return true
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

// NormalizeFieldName maps a free-form key, such as a structured logging key,
// to a valid field name. Letters are uppercased and any other invalid
// character becomes '_'. Leading underscores and digits are dropped. It
// returns an empty string if nothing valid is left.
func NormalizeFieldName(key string) string {
	b := make([]byte, 0, len(key))

	for i := 0; i < len(key); i++ {
		c := key[i]

		switch {
		case c >= 'a' && c <= 'z':
			c -= 'a' - 'A'
		case c >= 'A' && c <= 'Z', isDigit(c):
		default:
			c = '_'
		}

		if len(b) == 0 && (c == '_' || isDigit(c)) {
			continue
		}

		b = append(b, c)
	}

	if len(b) > maxFieldName {
		b = b[:maxFieldName]
	}

	return string(b)
}

// NewMessageID returns a random 128-bit ID in the 32 hex digit format used for
// MESSAGE_ID, the same format `journalctl --new-id128` prints.
func NewMessageID() string {
	id := uuid.New()
	return hex.EncodeToString(id[:])
}
