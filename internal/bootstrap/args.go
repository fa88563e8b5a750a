// Package bootstrap holds what every heist process does before and after
// its real work: flags, signals, the http host and registry bookkeeping.
package bootstrap

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"museumheist.ai/internal/fault"
	"museumheist.ai/internal/sim/tuning"
)

// Args are the startup arguments shared by every process.
type Args struct {
	Host         string
	Port         int
	RegistryHost string
	RegistryPort int
	Tuning       string
	Data         string
}

// DefaultRegistryPort is where cmd/registry listens unless told otherwise.
const DefaultRegistryPort = 22300

// Flags registers the shared flags on fs. port is this process's default
// listen port; 0 means the process does not listen.
func Flags(fs *flag.FlagSet, port int) *Args {
	a := &Args{}
	fs.StringVar(&a.Host, "host", "127.0.0.1", "host this process listens on and registers")
	fs.IntVar(&a.Port, "port", port, "listen port")
	fs.StringVar(&a.RegistryHost, "registry_host", "127.0.0.1", "registry host")
	fs.IntVar(&a.RegistryPort, "registry_port", DefaultRegistryPort, "registry port")
	fs.StringVar(&a.Tuning, "tuning", "", "path to heist.yaml (default: built-in defaults)")
	fs.StringVar(&a.Data, "data", "./data", "runtime data directory")
	return a
}

// Validate checks the arguments. listens says whether -port is used.
func (a Args) Validate(listens bool) error {
	if listens {
		if strings.TrimSpace(a.Host) == "" {
			return fault.Configf("host", "must not be empty")
		}
		if err := validPort("port", a.Port); err != nil {
			return err
		}
	}
	if strings.TrimSpace(a.RegistryHost) == "" {
		return fault.Configf("registry_host", "must not be empty")
	}
	if err := validPort("registry_port", a.RegistryPort); err != nil {
		return err
	}
	if strings.TrimSpace(a.Data) == "" {
		return fault.Configf("data", "must not be empty")
	}
	return nil
}

func validPort(field string, p int) error {
	if p < 1 || p > 65535 {
		return fault.Configf(field, "must be in 1..65535 (got %d)", p)
	}
	return nil
}

// Setup parses the shared flags, validates them and loads the tuning.
// Bad arguments end the process with status 2, before anything is
// registered.
func Setup(name string, port int) (*Args, tuning.Tuning, *log.Logger) {
	args := Flags(flag.CommandLine, port)
	flag.Parse()
	logger := Logger(name)

	if err := args.Validate(port != 0); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", name, err)
		os.Exit(2)
	}
	cfg, err := tuning.Load(args.Tuning)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: load tuning: %v\n", name, err)
		os.Exit(2)
	}
	return args, cfg, logger
}

func Logger(name string) *log.Logger {
	return log.New(os.Stdout, "["+name+"] ", log.LstdFlags|log.Lmicroseconds)
}

// SignalContext is cancelled on SIGINT or SIGTERM.
func SignalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case <-ch:
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(ch)
	}()
	return ctx, cancel
}
