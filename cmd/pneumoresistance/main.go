package main

import (
	"flag"
	"log"
	"time"

	pneumoresistance "github.com/cobeylab/pneumo-resistance"
)

func main() {
	loggerType := flag.String("logger", "sqlite", "output sink type (sqlite|csv)")
	dryRun := flag.Bool("dry-run", false, "validate the configuration and exit without running")
	flag.Parse()

	configPath := flag.Arg(0)
	if configPath == "" {
		log.Fatal("usage: pneumoresistance [flags] <config.json>")
	}

	params, err := pneumoresistance.LoadParameters(configPath)
	if err != nil {
		log.Fatal(err)
	}
	if err := params.Validate(); err != nil {
		log.Fatal(err)
	}

	var sink pneumoresistance.OutputSink
	switch *loggerType {
	case "sqlite":
		sink, err = pneumoresistance.NewSQLiteSink(params.DBFilename, params.OverwriteDB, params.JobInfo, params)
	case "csv":
		sink = pneumoresistance.NewCSVSink(params.DBFilename)
	default:
		log.Fatalf("%s is not a valid logger type (sqlite|csv)", *loggerType)
	}
	if err != nil {
		log.Fatal(err)
	}
	defer sink.Close()

	checkpoint := pneumoresistance.NewSQLiteCheckpointStore(params.CheckpointSavePrefix)

	k, err := pneumoresistance.NewKernel(params, sink, checkpoint)
	if err != nil {
		log.Fatal(err)
	}

	if *dryRun {
		if err := k.DryRun(); err != nil {
			log.Fatal(err)
		}
		log.Println("dry run complete: database initialized, no events executed")
		return
	}

	start := time.Now()
	log.Printf("starting run with seed %d\n", *params.RandomSeed)
	if err := k.Run(); err != nil {
		log.Fatal(err)
	}
	log.Printf("finished in %s", time.Since(start))
}
