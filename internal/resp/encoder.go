package resp

import (
	"bufio"
	"fmt"
	"io"
)

// Encoder writes RESP frames. Replication only ever sends command
// arrays to the primary, but the full encode surface is kept so tests
// and the raw-byte listener can round-trip arbitrary values (spec.md
// §8: "RESP encoder ∘ RESP decoder is identity on well-formed values").
type Encoder struct {
	w *bufio.Writer
}

func NewEncoder(w io.Writer) *Encoder {
	bw, ok := w.(*bufio.Writer)
	if !ok {
		bw = bufio.NewWriter(w)
	}
	return &Encoder{w: bw}
}

// EncodeCommand writes a command as a RESP array of bulk strings —
// the only frame shape a replica ever sends upstream.
func (e *Encoder) EncodeCommand(args ...string) error {
	if _, err := fmt.Fprintf(e.w, "*%d\r\n", len(args)); err != nil {
		return err
	}
	for _, a := range args {
		if _, err := fmt.Fprintf(e.w, "$%d\r\n%s\r\n", len(a), a); err != nil {
			return err
		}
	}
	return nil
}

func (e *Encoder) Encode(v Value) error {
	switch t := v.(type) {
	case SimpleString:
		_, err := fmt.Fprintf(e.w, "+%s\r\n", string(t))
		return err
	case Error:
		_, err := fmt.Fprintf(e.w, "-%s\r\n", string(t))
		return err
	case Integer:
		_, err := fmt.Fprintf(e.w, ":%d\r\n", int64(t))
		return err
	case Bulk:
		if t.IsNull {
			_, err := e.w.WriteString("$-1\r\n")
			return err
		}
		if _, err := fmt.Fprintf(e.w, "$%d\r\n", len(t.Data)); err != nil {
			return err
		}
		if _, err := e.w.Write(t.Data); err != nil {
			return err
		}
		_, err := e.w.WriteString("\r\n")
		return err
	case Array:
		if t.IsNull {
			_, err := e.w.WriteString("*-1\r\n")
			return err
		}
		if _, err := fmt.Fprintf(e.w, "*%d\r\n", len(t.Items)); err != nil {
			return err
		}
		for _, item := range t.Items {
			if err := e.Encode(item); err != nil {
				return err
			}
		}
		return nil
	case Null:
		_, err := e.w.WriteString("$-1\r\n")
		return err
	default:
		return fmt.Errorf("resp: cannot encode %T", v)
	}
}

func (e *Encoder) Flush() error {
	return e.w.Flush()
}
