package logging

import (
	"bytes"
	"log"
	"net/http"
	"testing"

	"github.com/m-lab/go/httpx"
	"github.com/m-lab/go/rtx"
)

type okHandler struct{}

func (okHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func TestMakeAccessLogHandler(t *testing.T) {
	buff := &bytes.Buffer{}
	old := log.Writer()
	defer log.SetOutput(old)
	// The wrapper binds the writer at construction time.
	log.SetOutput(buff)
	wrapped := MakeAccessLogHandler(okHandler{})
	log.SetOutput(old)

	srv := http.Server{
		Addr:    ":0",
		Handler: wrapped,
	}
	rtx.Must(httpx.ListenAndServeAsync(&srv), "Could not start server")
	defer srv.Close()

	resp, err := http.Get("http://" + srv.Addr + "/")
	rtx.Must(err, "Could not get")
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("got status %d", resp.StatusCode)
	}
	if line, _ := buff.ReadString('\n'); line == "" {
		t.Error("expected an access log line")
	}
}
