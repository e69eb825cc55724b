// ccsjob runs an in-process job of PEs reachable over TCP, and calls the
// handlers of such a job.
package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/stratumn/ccs"
	"github.com/stratumn/ccs/client"
	"github.com/stratumn/ccs/example/echo"
	"github.com/stratumn/ccs/server"
	"github.com/urfave/cli"
	"golang.org/x/sync/errgroup"
)

func main() {
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

	app := cli.NewApp()
	app.Name = "ccsjob"
	app.Usage = "Run a job of PEs answering client requests, or call one"
	app.Commands = []cli.Command{
		{
			Name:  "serve",
			Usage: "Run a job with a client-facing server port",
			Flags: []cli.Flag{
				cli.IntFlag{
					Name:   "pes",
					Value:  4,
					Usage:  "number of PEs",
					EnvVar: "CCS_PES",
				},
				cli.IntFlag{
					Name:  "workers",
					Value: 1,
					Usage: "execution contexts per PE",
				},
				cli.IntFlag{
					Name:   "server-port",
					Value:  0,
					Usage:  "listen on this TCP port number, 0 picks one",
					EnvVar: "CCS_SERVER_PORT",
				},
				cli.StringFlag{
					Name:  "metrics",
					Value: "",
					Usage: "serve prometheus metrics on this address eg: 127.0.0.1:9100",
				},
				cli.BoolFlag{
					Name:  "debug",
					Usage: "trace every request and reply",
				},
			},
			Action: func(c *cli.Context) error {
				return serve(c, logger)
			},
		},
		{
			Name:  "call",
			Usage: "Send one request and print the reply",
			Flags: []cli.Flag{
				cli.StringFlag{
					Name:   "host",
					Value:  "127.0.0.1",
					Usage:  "the job host",
					EnvVar: "CCS_HOST",
				},
				cli.IntFlag{
					Name:   "port",
					Usage:  "the job server port",
					EnvVar: "CCS_SERVER_PORT",
				},
				cli.StringFlag{
					Name:  "handler",
					Usage: "handler name",
				},
				cli.IntFlag{
					Name:  "pe",
					Value: 0,
					Usage: "target PE, -1 broadcasts",
				},
				cli.StringFlag{
					Name:  "pes",
					Usage: "comma separated PE list to multicast to",
				},
				cli.StringFlag{
					Name:  "data",
					Usage: "request payload",
				},
				cli.DurationFlag{
					Name:  "timeout",
					Value: 10 * time.Second,
					Usage: "give up waiting for the reply after this long",
				},
			},
			Action: call,
		},
	}

	if err := app.Run(os.Args); err != nil {
		logger.Fatal().Err(err).Msg("ccsjob")
	}
}

func serve(c *cli.Context, logger zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv, err := server.Listen(net.JoinHostPort("", strconv.Itoa(c.Int("server-port"))), logger)
	if err != nil {
		return err
	}
	logger.Info().Str("addr", srv.Addr().String()).Int("pes", c.Int("pes")).Msg("ccs server listening")

	g, ctx := errgroup.WithContext(ctx)

	var metrics *ccs.Metrics
	if addr := c.String("metrics"); addr != "" {
		reg := prometheus.NewRegistry()
		if metrics, err = ccs.NewMetrics(reg); err != nil {
			return err
		}
		hs := &http.Server{Addr: addr, Handler: promhttp.HandlerFor(reg, promhttp.HandlerOpts{})}
		g.Go(func() error {
			if err := hs.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return hs.Shutdown(shutdownCtx)
		})
	}

	g.Go(func() error {
		return echo.Serve(ctx, srv, ccs.Config{
			Scale:   c.Int("pes"),
			Workers: c.Int("workers"),
			Logger:  logger,
			Metrics: metrics,
			Debug:   c.Bool("debug"),
		})
	})

	return g.Wait()
}

func call(c *cli.Context) error {
	name := c.String("handler")
	if name == "" {
		cli.ShowCommandHelp(c, "call")
		return errors.New("handler name is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.Duration("timeout"))
	defer cancel()

	cl := client.New(net.JoinHostPort(c.String("host"), strconv.Itoa(c.Int("port"))))
	data := []byte(c.String("data"))

	var reply []byte
	var err error
	if list := c.String("pes"); list != "" {
		var pes []int
		for _, s := range strings.Split(list, ",") {
			pe, perr := strconv.Atoi(strings.TrimSpace(s))
			if perr != nil {
				return fmt.Errorf("invalid PE %q: %w", s, perr)
			}
			pes = append(pes, pe)
		}
		reply, err = cl.Multicast(ctx, name, pes, data)
	} else {
		reply, err = cl.Call(ctx, name, c.Int("pe"), data)
	}
	if err != nil {
		return err
	}

	fmt.Printf("%q\n", reply)
	return nil
}
