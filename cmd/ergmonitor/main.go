// Command ergmonitor turns flywheel impulses from a rowing machine into live
// rowing metrics, records sessions and serves them over HTTP.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/banshee-data/erg.report/internal/api"
	"github.com/banshee-data/erg.report/internal/config"
	"github.com/banshee-data/erg.report/internal/db"
	"github.com/banshee-data/erg.report/internal/httputil"
	"github.com/banshee-data/erg.report/internal/monitoring"
	"github.com/banshee-data/erg.report/internal/publish"
	"github.com/banshee-data/erg.report/internal/recorder"
	"github.com/banshee-data/erg.report/internal/session"
	"github.com/banshee-data/erg.report/internal/version"
	"github.com/banshee-data/erg.report/internal/workout"
)

var (
	configFile = flag.String("config", "", "Path to a JSON configuration file (built-in defaults when empty)")
	listen     = flag.String("listen", ":8080", "HTTP listen address")
	source     = flag.String("source", "serial", "Impulse source: serial, gpio, replay or simulate")
	port       = flag.String("port", "/dev/ttyUSB0", "Serial port of the impulse sensor")
	pin        = flag.String("pin", "GPIO17", "GPIO pin of the impulse sensor")
	replayFile = flag.String("replay", "", "Raw recording to replay with -source replay")
	dbPath     = flag.String("db", "erg_data.db", "SQLite database path, empty disables session history")
	debug      = flag.Bool("debug", false, "Enable debug logging")
)

const (
	impulseBuffer   = 256
	shutdownTimeout = time.Second
)

func usage() {
	out := flag.CommandLine.Output()
	fmt.Fprintf(out, "ergmonitor %s\n\n", version.Get())
	fmt.Fprintln(out, "Usage:")
	fmt.Fprintln(out, "  ergmonitor [flags]                    run the monitor")
	fmt.Fprintln(out, "  ergmonitor [flags] migrate <action>   manage the database schema")
	fmt.Fprintln(out, "  ergmonitor [flags] send <command> [plan.json]")
	fmt.Fprintln(out, "                                        send a command to a running monitor")
	fmt.Fprintln(out, "\nFlags override the configuration file.")
	flag.PrintDefaults()
}

func main() {
	flag.Usage = usage
	flag.Parse()

	if err := monitoring.Init(*debug); err != nil {
		log.Fatalf("failed to initialize logging: %v", err)
	}
	defer monitoring.Sync()

	cfg, err := loadConfig(*configFile)
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}
	set := map[string]bool{}
	flag.Visit(func(f *flag.Flag) { set[f.Name] = true })
	applyFlags(cfg, set)
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch flag.Arg(0) {
	case "":
		err = run(ctx, cfg)
	case "migrate":
		err = db.RunMigrateCommand(flag.Args()[1:], cfg.GetDatabase(), os.Stdout)
	case "send":
		client := api.NewClient(baseURL(cfg.GetHTTPListen()), httputil.NewStandardClient(&http.Client{Timeout: 5 * time.Second}))
		err = runSend(ctx, client, flag.Args()[1:], os.Stdout)
	default:
		usage()
		err = fmt.Errorf("unknown subcommand %q", flag.Arg(0))
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		monitoring.Sync()
		log.Fatal(err)
	}
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.EmptyConfig(), nil
	}
	return config.LoadConfig(path)
}

// applyFlags copies the flags named in set into cfg.
func applyFlags(cfg *config.Config, set map[string]bool) {
	str := func(v string) *string { return &v }
	if cfg.Input == nil {
		cfg.Input = &config.InputConfig{}
	}
	if cfg.Recording == nil {
		cfg.Recording = &config.RecordingConfig{}
	}
	if cfg.HTTP == nil {
		cfg.HTTP = &config.HTTPConfig{}
	}
	if set["listen"] {
		cfg.HTTP.Listen = str(*listen)
	}
	if set["source"] {
		cfg.Input.Source = str(*source)
	}
	if set["port"] {
		cfg.Input.SerialPort = str(*port)
	}
	if set["pin"] {
		cfg.Input.GPIOPin = str(*pin)
	}
	if set["replay"] {
		cfg.Input.ReplayFile = str(*replayFile)
	}
	if set["db"] {
		cfg.Recording.Database = str(*dbPath)
	}
}

// baseURL turns a listen address into the URL of the local monitor.
func baseURL(listen string) string {
	host, port, err := net.SplitHostPort(listen)
	if err != nil {
		return "http://" + listen
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "localhost"
	}
	return "http://" + net.JoinHostPort(host, port)
}

// runSend posts one command to a running monitor. updateIntervalSettings
// takes the plan from a JSON file.
func runSend(ctx context.Context, client *api.Client, args []string, out io.Writer) error {
	if len(args) < 1 {
		return errors.New("usage: ergmonitor send <command> [plan.json]")
	}
	cmd := session.Command{Name: session.CommandName(args[0])}
	if cmd.Name == session.CmdUpdateIntervalSettings {
		if len(args) < 2 {
			return errors.New("usage: ergmonitor send updateIntervalSettings <plan.json>")
		}
		f, err := os.Open(args[1])
		if err != nil {
			return err
		}
		defer f.Close()
		if cmd.Intervals, err = workout.DecodePlan(f); err != nil {
			return fmt.Errorf("%s: %w", args[1], err)
		}
	}
	if err := client.SendCommand(ctx, cmd); err != nil {
		return err
	}
	fmt.Fprintf(out, "%s accepted\n", cmd.Name)
	return nil
}

// run wires the impulse source, the session and its subscribers, and the
// HTTP server, and blocks until ctx is done or a shutdown command arrives.
func run(ctx context.Context, cfg *config.Config) error {
	settings, err := cfg.RowerSettings()
	if err != nil {
		return err
	}
	src, serial, err := newSource(sourceOptions{
		Name:       cfg.GetInputSource(),
		SerialPort: cfg.GetSerialPort(),
		BaudRate:   cfg.GetBaudRate(),
		GPIOPin:    cfg.GetGPIOPin(),
		ReplayFile: cfg.GetReplayFile(),
		Settings:   settings,
	})
	if err != nil {
		return fmt.Errorf("failed to open impulse source: %w", err)
	}
	defer serial.Close()

	var database *db.DB
	if path := cfg.GetDatabase(); path != "" {
		if database, err = db.NewDB(path); err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		defer database.Close()
	}

	ln, err := net.Listen("tcp", cfg.GetHTTPListen())
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", cfg.GetHTTPListen(), err)
	}

	var publisher *publish.Publisher
	if cfg.GetMQTTEnabled() {
		publisher, err = publish.Connect(publish.Options{
			Broker:      cfg.GetMQTTBroker(),
			ClientID:    cfg.GetMQTTClientID(),
			TopicPrefix: cfg.GetMQTTTopicPrefix(),
		})
		if err != nil {
			ln.Close()
			return err
		}
	}

	manager := session.NewManager(settings, session.Options{
		Averaging:           cfg.GetNumOfPhasesForAveragingScreenData(),
		RebroadcastInterval: cfg.GetRebroadcastInterval(),
	})
	commands := make(chan session.Command, 8)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	routine := func(name string, f func() error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := f(); err != nil && !errors.Is(err, context.Canceled) {
				monitoring.Errorf("%s: %v", name, err)
			}
			monitoring.Infof("%s routine terminated", name)
		}()
	}

	impulses := make(chan float64, impulseBuffer)
	toSession := make(chan float64, impulseBuffer)
	toRecorder := make(chan float64, impulseBuffer)

	routine("source", func() error {
		defer close(impulses)
		return src(ctx, impulses)
	})
	routine("tee", func() error {
		tee(ctx, impulses, toSession, toRecorder)
		return nil
	})

	// subscribe before the session loop starts so no record is missed
	recorders := recorder.NewManager(recorder.Options{
		Directory: cfg.GetRecordingDirectory(),
		Raw:       cfg.GetCreateRawDataFiles(),
		Gzip:      cfg.GetGzipRawDataFiles(),
		Fit:       cfg.GetCreateFitFiles(),
		Log:       cfg.GetCreateLogFiles(),
	})
	_, recordings := manager.Subscribe()
	routine("recorder", func() error { return recorders.Run(ctx, toRecorder, recordings) })

	if database != nil {
		store := db.NewStore(database)
		_, records := manager.Subscribe()
		routine("db", func() error { return store.Run(ctx, records) })
	}
	if publisher != nil {
		_, records := manager.Subscribe()
		routine("mqtt", func() error { return publisher.Run(ctx, records) })
	}

	routine("session", func() error {
		// a shutdown command ends the whole monitor
		defer cancel()
		return manager.Run(ctx, toSession, commands)
	})

	srv := api.NewServer(api.Options{
		Source:       manager,
		Commands:     commands,
		DB:           database,
		RecordingDir: cfg.GetRecordingDirectory(),
	})
	mux := srv.ServeMux()
	serial.AttachAdminRoutes(mux)
	if database != nil {
		if err := database.AttachAdminRoutes(mux); err != nil {
			ln.Close()
			cancel()
			wg.Wait()
			return err
		}
	}

	routine("http", func() error {
		server := &http.Server{Handler: api.LoggingMiddleware(mux)}
		errc := make(chan error, 1)
		go func() {
			monitoring.Infof("serving on http://%s", ln.Addr())
			errc <- server.Serve(ln)
		}()

		select {
		case err := <-errc:
			cancel()
			return err
		case <-ctx.Done():
		}
		monitoring.Infof("shutting down HTTP server...")

		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancelShutdown()
		if err := server.Shutdown(shutdownCtx); err != nil {
			monitoring.Warnf("HTTP server shutdown error: %v", err)
			if err := server.Close(); err != nil {
				monitoring.Warnf("HTTP server force close error: %v", err)
			}
		}
		if err := <-errc; err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	wg.Wait()
	monitoring.Infof("Graceful shutdown complete (%s)", version.Get())
	return nil
}
