package logflags

import (
	"errors"
	"fmt"
	"io"
	"io/ioutil"
	"log"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

var console = false
var gdbWire = false
var symbols = false
var guest = false

var logOut io.Writer

func makeLogger(flag bool, fields logrus.Fields) *logrus.Entry {
	logger := logrus.New().WithFields(fields)
	logger.Logger.Level = logrus.DebugLevel
	if logOut != nil {
		logger.Logger.Out = logOut
	}
	if !flag {
		logger.Logger.Level = logrus.PanicLevel
	}
	return logger
}

// Console returns true if the command console should log.
func Console() bool {
	return console
}

// ConsoleLogger returns a logger for the console package.
func ConsoleLogger() *logrus.Entry {
	return makeLogger(console, logrus.Fields{"layer": "console"})
}

// GdbWire returns true if the gdbstub package should log all the packets
// exchanged with the stub.
func GdbWire() bool {
	return gdbWire
}

// GdbWireLogger returns a configured logger for the gdb remote protocol.
func GdbWireLogger() *logrus.Entry {
	return makeLogger(gdbWire, logrus.Fields{"layer": "gdbconn"})
}

func Symbols() bool {
	return symbols
}

func SymbolsLogger() *logrus.Entry {
	return makeLogger(symbols, logrus.Fields{"layer": "symbols"})
}

// Guest returns true if the guest structure walkers should log.
func Guest() bool {
	return guest
}

func GuestLogger() *logrus.Entry {
	return makeLogger(guest, logrus.Fields{"layer": "guest"})
}

var errLogstrWithoutLog = errors.New("--log-output specified without --log")

// Setup sets the logging flags based on the contents of logstr. Log lines go
// to dest, or to stderr when dest is empty.
func Setup(logFlag bool, logstr string, dest string) error {
	log.SetFlags(log.Ldate | log.Ltime | log.Lshortfile)
	if !logFlag {
		log.SetOutput(ioutil.Discard)
		if logstr != "" {
			return errLogstrWithoutLog
		}
		return nil
	}
	if dest != "" {
		f, err := os.OpenFile(dest, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
		if err != nil {
			return fmt.Errorf("could not open log destination: %w", err)
		}
		logOut = f
		log.SetOutput(f)
	}
	if logstr == "" {
		logstr = "console"
	}
	v := strings.Split(logstr, ",")
	for _, logcmd := range v {
		switch logcmd {
		case "console":
			console = true
		case "gdbwire":
			gdbWire = true
		case "symbols":
			symbols = true
		case "guest":
			guest = true
		default:
			return fmt.Errorf("unknown log layer %q", logcmd)
		}
	}
	return nil
}
