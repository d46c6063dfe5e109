package domain

import (
	"fmt"
	"strings"
)

// Pattern es el patrón de entrada ya parseado: la secuencia de resultados
// esperados (del más antiguo al más reciente) y el lado a apostar.
type Pattern struct {
	Expect []Side
	Bet    Side
}

// ParsePattern acepta las formas "BB then P", "BBTHENP" y "PB BET P".
// El prefijo antes de THEN/BET lista los resultados esperados; el primer
// B/P/T después del separador es el lado a apostar.
func ParsePattern(raw string) (Pattern, error) {
	upper := strings.ToUpper(raw)

	sep := ""
	for _, s := range []string{"THEN", "BET"} {
		if strings.Contains(upper, s) {
			sep = s
			break
		}
	}
	if sep == "" {
		return Pattern{}, fmt.Errorf("%w: %q has no THEN/BET separator", ErrInvalidPattern, raw)
	}

	prefix, suffix, _ := strings.Cut(upper, sep)

	var p Pattern
	for _, ch := range prefix {
		switch {
		case Side(ch).Valid():
			p.Expect = append(p.Expect, Side(ch))
		case isSeparator(ch):
		default:
			return Pattern{}, fmt.Errorf("%w: %q references undefined side %q", ErrInvalidPattern, raw, ch)
		}
	}
	if len(p.Expect) == 0 {
		return Pattern{}, fmt.Errorf("%w: %q has no expected outcomes", ErrInvalidPattern, raw)
	}

	for _, ch := range suffix {
		if Side(ch).Valid() {
			p.Bet = Side(ch)
			break
		}
		if !isSeparator(ch) {
			return Pattern{}, fmt.Errorf("%w: %q references undefined side %q", ErrInvalidPattern, raw, ch)
		}
	}
	if p.Bet == WinnerNone {
		return Pattern{}, fmt.Errorf("%w: %q has no bet side", ErrInvalidPattern, raw)
	}
	return p, nil
}

func isSeparator(ch rune) bool {
	switch ch {
	case ' ', '\t', '-', '_', ',', '>', '|':
		return true
	}
	return false
}

// Len devuelve cuántos resultados necesita el patrón.
func (p Pattern) Len() int { return len(p.Expect) }

// Matches compara los últimos Len() resultados con el patrón.
// recent debe tener exactamente Len() elementos, del más antiguo al más reciente.
func (p Pattern) Matches(recent []Side) bool {
	if len(p.Expect) == 0 || len(recent) != len(p.Expect) {
		return false
	}
	for i, s := range p.Expect {
		if recent[i] != s {
			return false
		}
	}
	return true
}

func (p Pattern) String() string {
	var sb strings.Builder
	for _, s := range p.Expect {
		sb.WriteString(string(s))
	}
	sb.WriteString(" then ")
	sb.WriteString(string(p.Bet))
	return sb.String()
}
