package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/mongodb/mongocheck"
	"gopkg.in/yaml.v3"
)

const help = `
Usage: mongocheck config-file

config-file  YAML file with the instances to check, for example:

    instances:
      - server: mongodb://localhost:27017
        additional_metrics:
          - top
        tags:
          - env:dev
`

type configFile struct {
	Instances []mongocheck.Options `yaml:"instances"`
}

func main() {
	if len(os.Args) < 2 {
		fmt.Print(help)
		return
	}

	data, err := os.ReadFile(os.Args[1])
	if err != nil {
		log.Fatalf("failed to read config '%s': %s", os.Args[1], err)
	}

	conf := configFile{}
	if err := yaml.Unmarshal(data, &conf); err != nil {
		log.Fatalf("failed to parse config '%s': %s", os.Args[1], err)
	}
	if len(conf.Instances) == 0 {
		log.Fatal("config names no instances")
	}

	ctx := context.Background()
	state := mongocheck.NewState()
	failed := false

	for _, opts := range conf.Instances {
		// Validation also applies the timeout default, which the
		// connector needs before it dials.
		if err := opts.Validate(); err != nil {
			log.Printf("invalid instance config: %s", err)
			failed = true
			continue
		}

		sink := mongocheck.NewRecordingSink()

		conn, err := mongocheck.NewConnector(opts.URI, opts.Timeout.Duration())
		if err != nil {
			log.Printf("failed to connect: %s", err)
			failed = true
			continue
		}

		check, err := mongocheck.NewCheck(opts, conn, sink, state)
		if err != nil {
			log.Printf("invalid instance config: %s", err)
			failed = true
			_ = conn.Close(ctx)
			continue
		}

		if err := check.Run(ctx); err != nil {
			log.Printf("check cycle failed: %s", err)
			failed = true
		}

		printSubmissions(sink)

		if err := conn.Close(ctx); err != nil {
			log.Printf("failed to close connection: %s", err)
		}
	}

	if failed {
		os.Exit(1)
	}
}

func printSubmissions(sink *mongocheck.RecordingSink) {
	for _, sc := range sink.ServiceChecks {
		fmt.Printf("service_check %s %s %v %s\n", sc.Name, sc.Status, sc.Tags, sc.Message)
	}
	for _, version := range sink.Versions {
		fmt.Printf("version %s\n", version)
	}
	for _, m := range sink.Metrics {
		fmt.Printf("metric %s=%v kind=%s tags=%v\n", m.Name, m.Value, m.Kind, m.Tags)
	}
	for _, e := range sink.Events {
		fmt.Printf("event %s host=%s tags=%v\n", e.Title, e.Host, e.Tags)
	}
}
