package testutil

import (
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// Tests run with trace logging so every log statement formats its fields, but
// the output is only kept for verbose runs.
func init() {
	logrus.SetLevel(logrus.TraceLevel)
	if !isVerboseRun(os.Args[1:]) {
		logrus.SetOutput(io.Discard)
	}
}

func isVerboseRun(args []string) bool {
	for _, arg := range args {
		arg = strings.TrimLeft(arg, "-")
		if arg == "test.v" {
			return true
		}
		if value, ok := strings.CutPrefix(arg, "test.v="); ok {
			return value != "false"
		}
	}
	return false
}
