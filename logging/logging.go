// Package logging holds the process-wide structured logger and the access
// log wrapper shared by the server handlers.
package logging

import (
	golog "log"
	"net/http"
	"os"

	"github.com/apex/log"
	"github.com/apex/log/handlers/json"
	"github.com/gorilla/handlers"
)

// Logger emits structured JSON on the standard error, which is where logs
// belong in a containerised deployment.
var Logger = log.Logger{
	Handler: json.New(os.Stderr),
	Level:   log.InfoLevel,
}

// MakeAccessLogHandler wraps handler with per-request access logging on the
// standard output. Access logs keep the common Apache format rather than
// JSON because that format is what existing tooling expects.
func MakeAccessLogHandler(handler http.Handler) http.Handler {
	return handlers.LoggingHandler(golog.Writer(), handler)
}
