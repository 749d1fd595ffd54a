package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/m-lab/go/flagx"
	"github.com/m-lab/go/httpx"
	"github.com/m-lab/go/prometheusx"
	"github.com/m-lab/go/rtx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/Cyberes/cf-speedtest-custom/access"
	"github.com/Cyberes/cf-speedtest-custom/geoip"
	"github.com/Cyberes/cf-speedtest-custom/handler"
	"github.com/Cyberes/cf-speedtest-custom/logging"
)

// Flags that can be passed in on the command line
var (
	listenAddr = flag.String("addr", ":8080", "The address and port on which to serve measurement requests")
	certFile   = flag.String("cert", "", "The file with server certificates in PEM format.")
	keyFile    = flag.String("key", "", "The file with server key in PEM format.")
	password   = flag.String("password", "", "When set, require this basic-auth password on every request")
	maxClients = flag.Int64("max_clients", 0, "Maximum concurrent requests to serve (0 means unlimited)")
	colo       = flag.String("colo", "", "Location code reported by the identity endpoint")
	countryDB  = flag.String("geoip.country-db", "", "MaxMind country database used by the identity endpoint")
	asnDB      = flag.String("geoip.asn-db", "", "MaxMind ASN database used by the identity endpoint")

	// A metric to use to signal that the server is in lame duck mode.
	lameDuck = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "lame_duck_experiment",
		Help: "Indicates when the server is in lame duck",
	})

	// Context for the whole program.
	ctx, cancel = context.WithCancel(context.Background())
)

func catchSigterm() {
	// Disable lame duck status.
	lameDuck.Set(0)

	// Register channel to receive SIGTERM events.
	c := make(chan os.Signal, 1)
	defer close(c)
	signal.Notify(c, syscall.SIGTERM)

	// Wait until we receive a SIGTERM or the context is canceled.
	select {
	case <-c:
		fmt.Println("Received SIGTERM")
	case <-ctx.Done():
		fmt.Println("Canceled")
	}
	// Set lame duck status. This will remain set until exit.
	lameDuck.Set(1)
	// When we receive a second SIGTERM, cancel the context and shut everything
	// down. This should cause main() to exit cleanly.
	select {
	case <-c:
		fmt.Println("Received SIGTERM")
		cancel()
	case <-ctx.Done():
		fmt.Println("Canceled")
	}
}

// httpServer creates a new *http.Server with explicit Read and Write timeouts.
func httpServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:    addr,
		Handler: handler,
		// NOTE: set absolute read and write timeouts for server connections.
		// This prevents clients, or middleboxes, from opening a connection and
		// holding it open indefinitely. The limits are generous because a
		// single large transfer on a slow link can legitimately take minutes.
		ReadTimeout:  10 * time.Minute,
		WriteTimeout: 10 * time.Minute,
	}
}

func main() {
	flag.Parse()
	rtx.Must(flagx.ArgsFromEnv(flag.CommandLine), "Could not get args from environment variables")

	promSrv := prometheusx.MustServeMetrics()
	defer promSrv.Close()

	go catchSigterm()

	geo := geoip.NewResolver(*countryDB, *asnDB)
	defer geo.Close()

	mux := http.NewServeMux()
	h := &handler.Handler{Colo: *colo, Geo: geo}
	h.Register(mux)

	var root http.Handler = mux
	if *maxClients > 0 {
		limiter := &access.Limiter{Max: *maxClients}
		root = limiter.Limit(root)
	}
	if *password != "" {
		root = access.NewPasswordGate(*password).Protect(root)
	}
	root = logging.MakeAccessLogHandler(root)

	srv := httpServer(*listenAddr, root)
	defer srv.Close()
	if *certFile != "" && *keyFile != "" {
		logging.Logger.WithField("addr", *listenAddr).Info("Serving measurement endpoints over TLS")
		rtx.Must(httpx.ListenAndServeTLSAsync(srv, *certFile, *keyFile), "Could not start TLS server")
	} else {
		logging.Logger.WithField("addr", *listenAddr).Info("Serving measurement endpoints")
		rtx.Must(httpx.ListenAndServeAsync(srv), "Could not start server")
	}

	<-ctx.Done()
}
