// Command fgpcall sends one request to a local daemon and prints the raw result.
//
//	fgpcall [flags] <method> [params-json]
//	fgpcall fly.status '{"app":"web"}'
//
// Exit status is 0 on success, 1 when the daemon or transport reports an error, and 2 when no
// daemon is listening.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"fgp-rpc/client"
	"fgp-rpc/config"
	"fgp-rpc/middleware"
	"fgp-rpc/registry"
	"fgp-rpc/rpcerr"
)

var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	showVersion := flag.Bool("version", false, "print version and exit")
	configPath := flag.String("config", "", "path to config.yaml (default <home>/.fgp/config.yaml)")
	service := flag.String("service", "", "daemon service name (default fly)")
	socket := flag.String("socket", "", "explicit socket path, overrides the conventional one")
	readTimeout := flag.Duration("timeout", 0, "how long to wait for the reply, 0 waits indefinitely")
	retries := flag.Int("retries", 0, "retry transport failures this many times")
	etcd := flag.String("etcd", "", "comma-separated etcd endpoints to discover the socket from")
	verbose := flag.Bool("v", false, "log each call to stderr")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: %s [flags] <method> [params-json]\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	if *showVersion {
		fmt.Printf("fgpcall version=%s\n", version)
		return 0
	}
	if flag.NArg() < 1 || flag.NArg() > 2 {
		flag.Usage()
		return 1
	}
	method := flag.Arg(0)
	params, err := parseParams(flag.Arg(1))
	if err != nil {
		fmt.Fprintf(os.Stderr, "fgpcall: %v\n", err)
		return 1
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "fgpcall: %v\n", err)
		return 1
	}
	if *service != "" {
		cfg.Service = *service
	}
	if *socket != "" {
		cfg.Socket = *socket
	}
	if *readTimeout > 0 {
		cfg.ReadTimeout = *readTimeout
	}

	var opts []client.Option
	if *verbose {
		opts = append(opts, client.WithLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))))
	}
	if *retries > 0 {
		opts = append(opts, client.WithMiddleware(middleware.Retry(*retries, 100*time.Millisecond)))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cli := client.New(cfg, opts...)
	if *etcd != "" {
		reg, err := registry.NewEtcdRegistry(strings.Split(*etcd, ","))
		if err != nil {
			fmt.Fprintf(os.Stderr, "fgpcall: %v\n", err)
			return 1
		}
		defer reg.Close()
		cli, err = client.Discover(ctx, reg, cfg.Service, cfg, opts...)
		if err != nil {
			fmt.Fprintf(os.Stderr, "fgpcall: %v\n", err)
			return 1
		}
	}

	result, err := cli.Invoke(ctx, method, params)
	if err != nil {
		return report(err)
	}
	if len(result) == 0 {
		result = json.RawMessage("null")
	}
	fmt.Println(string(result))
	return 0
}

func parseParams(raw string) (map[string]any, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	dec := json.NewDecoder(bytes.NewReader([]byte(raw)))
	dec.UseNumber()
	var params map[string]any
	if err := dec.Decode(&params); err != nil {
		return nil, fmt.Errorf("params must be a JSON object: %w", err)
	}
	return params, nil
}

func report(err error) int {
	var unavailable *rpcerr.UnavailableError
	if errors.As(err, &unavailable) {
		fmt.Fprintf(os.Stderr, "fgpcall: %v\n%s\n", err, unavailable.Hint())
		return 2
	}
	fmt.Fprintf(os.Stderr, "fgpcall: %s: %v\n", rpcerr.KindOf(err), err)
	return 1
}
