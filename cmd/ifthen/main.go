package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/brutella/hc/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/urfave/cli/v2"

	"github.com/cloudkucooland/ifthen"
	"github.com/cloudkucooland/ifthen/config"
	"github.com/cloudkucooland/ifthen/metrics"
	"github.com/cloudkucooland/ifthen/tfhttp"
)

func main() {
	var dir, file string
	var debug bool

	app := cli.App{
		Name:  "ifthen",
		Usage: "run device rules: when a device reports a level, set others",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "dir",
				Value:       "config",
				Usage:       "configuration directory",
				Destination: &dir,
			},
			&cli.StringFlag{
				Name:        "config",
				Value:       "server.json",
				Usage:       "configuration file",
				Destination: &file,
			},
			&cli.BoolFlag{
				Name:        "debug",
				Usage:       "verbose logging",
				Destination: &debug,
			},
		},
		Action: func(c *cli.Context) error {
			conf, err := config.Load(dir, file)
			if err != nil {
				return err
			}
			if debug || conf.Debug {
				log.Debug.Enable()
			}

			promreg := prometheus.NewRegistry()
			m := metrics.New(promreg)
			d := ifthen.New(conf, m)

			// spin up platforms to listen to devices
			d.BootstrapPlatforms()

			accs, err := conf.LoadAccessories()
			if err != nil {
				return err
			}
			if err := d.AddAccessories(accs); err != nil {
				log.Info.Print("not every accessory was added")
			}

			// rules go in once every device exists
			rules, err := conf.LoadRules()
			if err != nil {
				return err
			}
			d.InstallRules(rules)

			srv := tfhttp.New(conf.HTTPAddress, d.Registry, d, promreg)
			// each platform registers its own routes
			if d.Shelly != nil {
				srv.HandleFunc("/shelly/{cmd}", d.Shelly.Handler)
			}
			if d.Konnected != nil {
				srv.HandleFunc("/konnected/{device}", d.Konnected.Handler)
			}
			if debug {
				srv.Debug()
			}
			srv.Start()

			// HC can only be started once all accessories are known
			if conf.HomeKit {
				if err := d.StartHomeKit(); err != nil {
					log.Info.Print(err)
				}
			}

			// run all the background processes
			ctx, cancel := context.WithCancel(context.Background())
			d.Platforms.BackgroundAll(ctx)

			// wait for signal to shut down
			sigch := make(chan os.Signal, 3)
			signal.Notify(sigch, syscall.SIGINT, syscall.SIGQUIT, syscall.SIGTERM, syscall.SIGHUP, os.Interrupt)

			// loop until signal sent
			sig := <-sigch

			log.Info.Printf("shutdown requested by signal: %s", sig)
			cancel()
			srv.Shutdown()
			d.Shutdown()
			return nil
		},
	}

	err := app.Run(os.Args)
	if err != nil {
		log.Info.Panic(err)
	}
}
