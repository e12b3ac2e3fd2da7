package monitoring

import (
	"bytes"
	"fmt"
	"strings"
	"testing"
)

func TestSetLogger(t *testing.T) {
	t.Cleanup(func() { SetLogger(nil) })

	var got []string
	SetLogger(func(format string, v ...interface{}) {
		got = append(got, fmt.Sprintf(format, v...))
	})
	Logf("run %s", "a")
	if len(got) != 1 || got[0] != "run a" {
		t.Fatalf("custom logger saw %q", got)
	}

	SetLogger(nil)
	Logf("muted")
	if len(got) != 1 {
		t.Errorf("nil logger should mute output, saw %q", got)
	}
}

func TestPrefixed(t *testing.T) {
	t.Cleanup(func() { SetLogger(nil) })

	var got string
	SetLogger(func(format string, v ...interface{}) {
		got = fmt.Sprintf(format, v...)
	})
	Prefixed("migrate")("version %d", 2)
	if got != "[migrate] version 2" {
		t.Errorf("Prefixed wrote %q", got)
	}
}

func TestSetOutput(t *testing.T) {
	t.Cleanup(func() { SetLogger(nil) })

	var buf bytes.Buffer
	SetOutput(&buf)
	Logf("wrote %d plots", 3)
	if !strings.HasSuffix(buf.String(), "wrote 3 plots\n") {
		t.Errorf("SetOutput wrote %q", buf.String())
	}

	buf.Reset()
	SetOutput(nil)
	Logf("muted")
	if buf.Len() != 0 {
		t.Errorf("nil writer should mute output, saw %q", buf.String())
	}
}
