package logflags

import (
	"testing"

	"github.com/sirupsen/logrus"
)

func reset() {
	console, gdbWire, symbols, guest = false, false, false, false
	logOut = nil
}

func TestMakeLogger_withFlagFalse(t *testing.T) {
	defer reset()
	l := makeLogger(false, logrus.Fields{"layer": "foo"})
	if l.Logger.Level != logrus.PanicLevel {
		t.Fatalf("expected level to be <%v>; but was <%v>", logrus.PanicLevel, l.Logger.Level)
	}
	if len(l.Data) != 1 || l.Data["layer"] != "foo" {
		t.Fatalf("expected fields to be {'layer':'foo'}; but was <%v>", l.Data)
	}
}

func TestMakeLogger_withFlagTrue(t *testing.T) {
	defer reset()
	l := makeLogger(true, logrus.Fields{"layer": "foo"})
	if l.Logger.Level != logrus.DebugLevel {
		t.Fatalf("expected level to be <%v>; but was <%v>", logrus.DebugLevel, l.Logger.Level)
	}
}

func TestSetup(t *testing.T) {
	defer reset()
	if err := Setup(false, "gdbwire", ""); err != errLogstrWithoutLog {
		t.Fatalf("expected errLogstrWithoutLog, got %v", err)
	}
	if err := Setup(true, "gdbwire,guest", ""); err != nil {
		t.Fatal(err)
	}
	if !GdbWire() || !Guest() || Console() || Symbols() {
		t.Fatalf("wrong layers enabled: console=%v gdbwire=%v symbols=%v guest=%v", Console(), GdbWire(), Symbols(), Guest())
	}
	if err := Setup(true, "bogus", ""); err == nil {
		t.Fatal("expected error for unknown layer")
	}
}

func TestSetupDefaultLayer(t *testing.T) {
	defer reset()
	if err := Setup(true, "", ""); err != nil {
		t.Fatal(err)
	}
	if !Console() {
		t.Fatal("console layer should be enabled by default")
	}
}
