package stream

import (
	"reflect"
	"strings"
	"testing"
)

func TestLineAssembler_Feed(t *testing.T) {
	tests := []struct {
		name   string
		chunks []string
		want   []string
		// residual expected after all chunks
		residual string
	}{
		{
			name:   "single complete line",
			chunks: []string{"hello\n"},
			want:   []string{"hello"},
		},
		{
			name:   "two lines in one chunk",
			chunks: []string{"one\ntwo\n"},
			want:   []string{"one", "two"},
		},
		{
			name:     "partial line retained",
			chunks:   []string{"one\ntw"},
			want:     []string{"one"},
			residual: "tw",
		},
		{
			name:   "line split across chunks",
			chunks: []string{"hel", "lo\n"},
			want:   []string{"hello"},
		},
		{
			name:   "terminator exactly on chunk boundary",
			chunks: []string{"hello", "\nworld\n"},
			want:   []string{"hello", "world"},
		},
		{
			name:   "crlf split across chunks",
			chunks: []string{"hello\r", "\nworld\n"},
			want:   []string{"hello", "world"},
		},
		{
			name:   "crlf terminators stripped",
			chunks: []string{"one\r\ntwo\r\n"},
			want:   []string{"one", "two"},
		},
		{
			name:   "empty line preserved",
			chunks: []string{"one\n\ntwo\n"},
			want:   []string{"one", "", "two"},
		},
		{
			name:     "byte at a time",
			chunks:   []string{"a", "b", "\n", "c"},
			want:     []string{"ab"},
			residual: "c",
		},
		{
			name:   "empty chunk is a no-op",
			chunks: []string{"one\n", "", "two\n"},
			want:   []string{"one", "two"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := NewLineAssembler()
			var got []string
			for _, chunk := range tt.chunks {
				got = append(got, a.Feed(Stdout, []byte(chunk))...)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("lines = %q, want %q", got, tt.want)
			}
			if rem := a.Pending(Stdout); rem != len(tt.residual) {
				t.Errorf("Pending = %d, want %d", rem, len(tt.residual))
			}
			if tt.residual != "" {
				line, ok := a.Flush(Stdout)
				if !ok || line != tt.residual {
					t.Errorf("Flush = %q, %v, want %q, true", line, ok, tt.residual)
				}
			}
		})
	}
}

func TestLineAssembler_NoLossAcrossChunkings(t *testing.T) {
	text := "alpha\nbravo charlie\n\ndelta\r\necho"
	wantLines := []string{"alpha", "bravo charlie", "", "delta"}
	wantResidual := "echo"

	// Every split position of the text into two chunks must produce the
	// same lines and residual.
	for cut := 0; cut <= len(text); cut++ {
		a := NewLineAssembler()
		var got []string
		got = append(got, a.Feed(Stdout, []byte(text[:cut]))...)
		got = append(got, a.Feed(Stdout, []byte(text[cut:]))...)

		if !reflect.DeepEqual(got, wantLines) {
			t.Fatalf("cut %d: lines = %q, want %q", cut, got, wantLines)
		}
		line, ok := a.Flush(Stdout)
		if !ok || line != wantResidual {
			t.Fatalf("cut %d: Flush = %q, %v, want %q, true", cut, line, ok, wantResidual)
		}
	}
}

func TestLineAssembler_StreamsIndependent(t *testing.T) {
	a := NewLineAssembler()

	out := a.Feed(Stdout, []byte("out-partial"))
	if len(out) != 0 {
		t.Fatalf("stdout lines = %q, want none", out)
	}
	errLines := a.Feed(Stderr, []byte("err-line\n"))
	if !reflect.DeepEqual(errLines, []string{"err-line"}) {
		t.Errorf("stderr lines = %q, want [err-line]", errLines)
	}

	// The stderr line must not have consumed the stdout fragment.
	line, ok := a.Flush(Stdout)
	if !ok || line != "out-partial" {
		t.Errorf("stdout Flush = %q, %v, want %q, true", line, ok, "out-partial")
	}
	if _, ok := a.Flush(Stderr); ok {
		t.Error("stderr Flush returned a residual after a complete line")
	}
}

func TestLineAssembler_FlushEmpty(t *testing.T) {
	a := NewLineAssembler()
	if line, ok := a.Flush(Stdout); ok {
		t.Errorf("Flush on empty buffer = %q, true, want ok=false", line)
	}

	a.Feed(Stdout, []byte("done\n"))
	if line, ok := a.Flush(Stdout); ok {
		t.Errorf("Flush after fully terminated input = %q, true, want ok=false", line)
	}
}

func TestTailBuffer_KeepsTrailingBytes(t *testing.T) {
	tb := NewTailBuffer(16)

	tb.WriteString("0123456789")
	tb.WriteString("abcdefghij")

	got := tb.String()
	if got != "456789abcdefghij" {
		t.Errorf("tail = %q, want %q", got, "456789abcdefghij")
	}
	if tb.Len() != 16 {
		t.Errorf("Len = %d, want 16", tb.Len())
	}
}

func TestTailBuffer_OversizedWrite(t *testing.T) {
	tb := NewTailBuffer(8)

	tb.WriteString(strings.Repeat("x", 100) + "tail-end")

	got := tb.String()
	if got != "tail-end" {
		t.Errorf("tail = %q, want %q", got, "tail-end")
	}
}

func TestTailBuffer_WriteLine(t *testing.T) {
	tb := NewTailBuffer(64)

	tb.WriteLine("first")
	tb.WriteLine("second")

	if got := tb.String(); got != "first\nsecond\n" {
		t.Errorf("tail = %q, want %q", got, "first\nsecond\n")
	}
}

func TestTailBuffer_DefaultLimit(t *testing.T) {
	tb := NewTailBuffer(0)

	tb.WriteString(strings.Repeat("a", DefaultTailLimit+500))

	if tb.Len() != DefaultTailLimit {
		t.Errorf("Len = %d, want %d", tb.Len(), DefaultTailLimit)
	}
}
