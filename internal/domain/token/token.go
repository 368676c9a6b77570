// Пакет token — токены приглашений администраторов и сроки их действия.
// Чистые функции без I/O.
package token

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"regexp"
	"time"
)

const (
	// DefaultByteLength — длина токена в байтах (64 hex-символа).
	DefaultByteLength = 32
	// DefaultTTL — срок действия приглашения по умолчанию (7 дней).
	DefaultTTL = 168 * time.Hour
)

// hexPattern — hex-строка без учёта регистра.
var hexPattern = regexp.MustCompile(`^[0-9a-fA-F]+$`)

// Ошибки пакета.
var (
	// ErrInvalidTTL — неположительный срок действия.
	ErrInvalidTTL = errors.New("срок действия приглашения должен быть положительным")
	// ErrInvalidDate — нулевая дата.
	ErrInvalidDate = errors.New("некорректная дата")
)

// randRead — источник случайных байт (подменяется в тестах).
var randRead = rand.Read

// Generate возвращает криптостойкий токен длиной 2*byteLength hex-символов.
// byteLength <= 0 означает DefaultByteLength.
func Generate(byteLength int) (string, error) {
	if byteLength <= 0 {
		byteLength = DefaultByteLength
	}

	buf := make([]byte, byteLength)
	if _, err := randRead(buf); err != nil {
		return "", fmt.Errorf("генерация токена приглашения: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// ValidateOptions — параметры проверки формы токена.
// Нулевые значения означают значения по умолчанию.
type ValidateOptions struct {
	// MinLength — минимальная длина (по умолчанию 2*DefaultByteLength).
	MinLength int
	// MaxLength — максимальная длина (по умолчанию 2*DefaultByteLength).
	MaxLength int
	// Pattern — допустимый алфавит (по умолчанию hex без учёта регистра).
	Pattern *regexp.Regexp
}

// Validate проверяет форму токена: длину и алфавит.
// Не обращается к хранилищу и никогда не паникует.
func Validate(tok string, opts ValidateOptions) bool {
	minLen := opts.MinLength
	if minLen <= 0 {
		minLen = 2 * DefaultByteLength
	}
	maxLen := opts.MaxLength
	if maxLen <= 0 {
		maxLen = 2 * DefaultByteLength
	}
	pattern := opts.Pattern
	if pattern == nil {
		pattern = hexPattern
	}

	if tok == "" || len(tok) < minLen || len(tok) > maxLen {
		return false
	}
	return pattern.MatchString(tok)
}

// ExpiryOptions — параметры вычисления срока действия приглашения.
type ExpiryOptions struct {
	// TTL — срок действия; 0 означает DefaultTTL.
	TTL time.Duration
	// From — момент отсчёта; нулевое значение означает «сейчас».
	From time.Time
}

// ExpiryDate возвращает From + TTL.
func ExpiryDate(opts ExpiryOptions) (time.Time, error) {
	ttl := opts.TTL
	if ttl == 0 {
		ttl = DefaultTTL
	}
	if ttl < 0 {
		return time.Time{}, ErrInvalidTTL
	}

	from := opts.From
	if from.IsZero() {
		from = time.Now()
	}
	return from.Add(ttl), nil
}

// IsExpired — true, если expiresAt <= reference (граница включительно).
// Нулевой reference означает «сейчас».
func IsExpired(expiresAt, reference time.Time) (bool, error) {
	if expiresAt.IsZero() {
		return false, fmt.Errorf("expires_at: %w", ErrInvalidDate)
	}
	if reference.IsZero() {
		reference = time.Now()
	}
	return !expiresAt.After(reference), nil
}
