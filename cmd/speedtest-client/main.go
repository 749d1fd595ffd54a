// The speedtest-client command runs a full measurement against a speedtest
// server and prints the results.
package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Cyberes/cf-speedtest-custom/client"
	"github.com/Cyberes/cf-speedtest-custom/history"
	"github.com/Cyberes/cf-speedtest-custom/logging"
)

const dialTimeout = 10 * time.Second

type cmdOpts struct {
	password    string
	forceIP4    bool
	forceIP6    bool
	historyPath string
	quiet       bool
}

// transportFor returns an HTTP client pinned to the given transport
// protocol ("tcp", "tcp4" or "tcp6").
func transportFor(protocol string) *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			DialContext: func(ctx context.Context, _, addr string) (net.Conn, error) {
				return (&net.Dialer{
					Timeout:   dialTimeout,
					KeepAlive: 30 * time.Second,
				}).DialContext(ctx, protocol, addr)
			},
			ForceAttemptHTTP2:     true,
			MaxIdleConns:          100,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   10 * time.Second,
			ExpectContinueTimeout: 1 * time.Second,
		},
	}
}

func protocolFor(opts *cmdOpts) string {
	switch {
	case opts.forceIP4:
		return "tcp4"
	case opts.forceIP6:
		return "tcp6"
	default:
		return "tcp"
	}
}

func printProgress(p client.Progress) {
	switch p.Kind {
	case client.KindLatency:
		fmt.Printf("\rlatency: %.2f ms (jitter %.2f ms)            ", p.PingMS, p.JitterMS)
	case client.KindDownload:
		fmt.Printf("\rdownload: %.2f Mbps                          ", p.DownloadBPS/1e6)
	case client.KindUpload:
		fmt.Printf("\rupload: %.2f Mbps                            ", p.UploadBPS/1e6)
	}
}

func runMeasurement(cmd *cobra.Command, serverURL string, opts *cmdOpts) error {
	transport := &client.Transport{
		BaseURL:    serverURL,
		Password:   opts.password,
		HTTPClient: transportFor(protocolFor(opts)),
	}

	seq := client.NewSequencer(transport)
	if !opts.quiet {
		seq.OnProgress = printProgress
	}

	// A first interrupt aborts the run cleanly. A second one kills us.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigs)
	go func() {
		<-sigs
		fmt.Fprintln(os.Stderr, "\nAborting measurement")
		seq.Abort()
	}()

	result, err := seq.Run(cmd.Context())
	if err != nil {
		return err
	}

	fmt.Printf("\r                                              \r")
	fmt.Printf("At: %s\n", result.StartTime.Format(time.RFC1123Z))
	if result.Identity.IP != "" {
		fmt.Printf("Your IP: %s", result.Identity.IP)
		if result.Identity.Country != "" {
			fmt.Printf(" (%s)", result.Identity.Country)
		}
		fmt.Println()
	}
	if result.Identity.Org != "" {
		fmt.Printf("Provider: %s\n", result.Identity.Org)
	}
	if result.Identity.Colo != "" {
		fmt.Printf("Server location: %s\n", result.Identity.Colo)
	}
	fmt.Printf("Ping: %.2f ms\n", result.PingMS)
	fmt.Printf("Jitter: %.2f ms\n", result.JitterMS)
	fmt.Printf("Download: %.2f Mbps\n", result.DownloadSpeed/1e6)
	fmt.Printf("Upload: %.2f Mbps\n", result.UploadSpeed/1e6)

	if opts.historyPath != "" {
		store, err := history.Open(opts.historyPath)
		if err != nil {
			return err
		}
		defer store.Close()
		if err := store.Save(result); err != nil {
			return err
		}
		logging.Logger.WithField("path", opts.historyPath).Info("Result saved")
	}
	return nil
}

func main() {
	opts := &cmdOpts{}

	rootCmd := &cobra.Command{
		Use:   "speedtest-client SERVER_URL",
		Short: "Measure bandwidth and latency against a speedtest server",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMeasurement(cmd, args[0], opts)
		},
		SilenceUsage: true,
	}

	rootCmd.Flags().StringVar(&opts.password, "password", "", "Basic-auth password for protected servers")
	rootCmd.Flags().BoolVarP(&opts.forceIP4, "ip4", "4", false, "Ensure measurements over IPv4")
	rootCmd.Flags().BoolVarP(&opts.forceIP6, "ip6", "6", false, "Ensure measurements over IPv6")
	rootCmd.Flags().StringVar(&opts.historyPath, "save", "", "Append the result to the sqlite history database at this path")
	rootCmd.Flags().BoolVarP(&opts.quiet, "quiet", "q", false, "Suppress progress output")
	rootCmd.MarkFlagsMutuallyExclusive("ip4", "ip6")

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
