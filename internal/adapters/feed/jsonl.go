// Package feed lee eventos de mesa en formato JSON lines.
//
// Una línea por evento:
//
//	{"type":"PHASE","table_id":"t1","round_id":"42","phase":"bettable","ts":1741089600000}
//	{"type":"RESULT","table_id":"t1","round_id":"42","winner":"B","ts":1741089630000}
//
// ts son milisegundos Unix; si falta se usa la hora local de lectura.
// Las líneas vacías y las que empiezan por '#' se ignoran.
package feed

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/alejandrodnm/autobet/internal/domain"
)

const maxLineSize = 64 * 1024

type rawEvent struct {
	Type    string `json:"type"`
	TableID string `json:"table_id"`
	RoundID string `json:"round_id"`
	Phase   string `json:"phase"`
	Winner  string `json:"winner"`
	TS      int64  `json:"ts"`
}

// Reader implementa ports.EventSource sobre un io.Reader.
type Reader struct {
	sc      *bufio.Scanner
	closer  io.Closer
	line    int
	skipped int
	now     func() time.Time
}

// NewReader lee eventos de r.
func NewReader(r io.Reader) *Reader {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 4096), maxLineSize)
	return &Reader{sc: sc, now: time.Now}
}

// Open abre un fichero de eventos; "-" lee de stdin.
func Open(path string) (*Reader, error) {
	if path == "-" {
		return NewReader(os.Stdin), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("feed.Open: %w", err)
	}
	r := NewReader(f)
	r.closer = f
	return r, nil
}

// WithClock fija el reloj para eventos sin ts.
func (r *Reader) WithClock(now func() time.Time) *Reader {
	r.now = now
	return r
}

// Next devuelve el siguiente evento válido. Las líneas mal formadas se
// loguean y se saltan. La lectura en sí no es interrumpible: el contexto
// se comprueba entre líneas.
func (r *Reader) Next(ctx context.Context) (domain.TableEvent, error) {
	for {
		if err := ctx.Err(); err != nil {
			return domain.TableEvent{}, err
		}
		if !r.sc.Scan() {
			if err := r.sc.Err(); err != nil {
				return domain.TableEvent{}, fmt.Errorf("feed.Next: line %d: %w", r.line+1, err)
			}
			return domain.TableEvent{}, io.EOF
		}
		r.line++

		text := strings.TrimSpace(r.sc.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}

		ev, err := r.parse([]byte(text))
		if err != nil {
			r.skipped++
			slog.Warn("feed: skipping malformed event", "line", r.line, "err", err)
			continue
		}
		return ev, nil
	}
}

// Skipped devuelve cuántas líneas se descartaron por mal formadas.
func (r *Reader) Skipped() int { return r.skipped }

// Close cierra el fichero subyacente, si lo hay.
func (r *Reader) Close() error {
	if r.closer == nil {
		return nil
	}
	return r.closer.Close()
}

func (r *Reader) parse(b []byte) (domain.TableEvent, error) {
	var raw rawEvent
	if err := json.Unmarshal(b, &raw); err != nil {
		return domain.TableEvent{}, fmt.Errorf("decode: %w", err)
	}
	if raw.TableID == "" {
		return domain.TableEvent{}, fmt.Errorf("missing table_id")
	}

	ev := domain.TableEvent{
		TableID: raw.TableID,
		RoundID: raw.RoundID,
		At:      r.now(),
	}
	if raw.TS > 0 {
		ev.At = time.UnixMilli(raw.TS)
	}

	switch strings.ToUpper(raw.Type) {
	case "PHASE":
		phase, err := domain.ParseTablePhase(raw.Phase)
		if err != nil {
			return domain.TableEvent{}, err
		}
		ev.Kind = domain.EventPhase
		ev.Phase = phase
	case "RESULT":
		if raw.RoundID == "" {
			return domain.TableEvent{}, fmt.Errorf("result without round_id")
		}
		winner, err := domain.ParseWinner(raw.Winner)
		if err != nil {
			return domain.TableEvent{}, err
		}
		ev.Kind = domain.EventResult
		ev.Winner = winner
	default:
		return domain.TableEvent{}, fmt.Errorf("unknown event type %q", raw.Type)
	}
	return ev, nil
}
