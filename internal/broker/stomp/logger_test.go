package stomp

import (
	"bytes"
	"strings"
	"testing"

	gostomp "github.com/go-stomp/stomp/v3"

	"github.com/vovakirdan/stompdebug/internal/log"
)

var _ gostomp.Logger = (*logAdapter)(nil)

func TestLogAdapterWritesThroughZerolog(t *testing.T) {
	var buf bytes.Buffer
	a := newLogAdapter(log.NewWithWriter("info", &buf))

	a.Info("Subscription 1: /topic/status: ERROR message:connection closed")
	a.Infof("ignored MESSAGE for subscription: %s", "7")
	if buf.Len() != 0 {
		t.Fatalf("library info lines should be debug level, got:\n%s", buf.String())
	}

	a.Warningf("heart-beat %s", "late")
	a.Error("read failed")
	out := buf.String()
	for _, want := range []string{"heart-beat late", "read failed", "component=stomp"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in:\n%s", want, out)
		}
	}
}

func TestLogAdapterWithoutLogger(t *testing.T) {
	a := newLogAdapter(nil)
	a.Errorf("dropped %d", 1)
}
