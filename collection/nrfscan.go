package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/golang/glog"
	"github.com/google/uuid"
	"go.bug.st/serial"

	"github.com/hb9tf/nrfscan/analysis"
	"github.com/hb9tf/nrfscan/export"
	"github.com/hb9tf/nrfscan/filter"
	"github.com/hb9tf/nrfscan/scanner"
	"github.com/hb9tf/nrfscan/scanner/nrf24"
	"github.com/hb9tf/nrfscan/scanner/sim"
	"github.com/hb9tf/nrfscan/session"
	"github.com/hb9tf/nrfscan/store"

	// Blind import support for sqlite3 used by export/sqlite.go.
	_ "github.com/mattn/go-sqlite3"
)

// Flags
var (
	identifier  = flag.String("id", "", "unique identifier of the capture run (defaults to a random UUID)")
	scannerType = flag.String("scanner", nrf24.SourceName, "scanner to use (one of: nrf24, sim)")
	port        = flag.String("port", "/dev/ttyUSB0", "serial port the scanner is attached to")
	baudRate    = flag.Int("baud", 115200, "serial baud rate")
	readTimeout = flag.Duration("readTimeout", time.Second, "serial read timeout, bounds how quickly a stop takes effect")
	streamCmd   = flag.String("streamCmd", "", "command byte(s) toggling the device's CSV streaming mode (empty disables the handshake)")
	listPorts   = flag.Bool("listPorts", false, "list available serial ports and exit")
	duration    = flag.Duration("duration", 0, "capture duration (0 captures until SIGINT)")
	output      = flag.String("output", "", "live export mechanism used alongside the session file (one of: csv, sqlite, collect, mqtt)")

	minActivity = flag.Int("minActivity", 0, "drop records whose busiest channel stays below this activity level")
	fromMillis  = flag.Int64("from", 0, "drop records with device timestamps before this")
	toMillis    = flag.Int64("to", 0, "drop records with device timestamps at or after this")

	saveDir  = flag.String("saveDir", "saved_data", "directory the session file is written to")
	device   = flag.String("device", "", "device label recorded in the session file name")
	gzipFile = flag.Bool("gzip", false, "gzip the session file")

	// Simulator
	simChannels = flag.Int("simChannels", 0, "number of channels the simulated scanner reports")
	simInterval = flag.Duration("simInterval", 0, "interval between simulated sweeps")
	simSeed     = flag.Int64("simSeed", 0, "simulator random seed (0 seeds from the clock)")

	// SQLite
	sqliteFile = flag.String("sqliteFile", "/tmp/nrfscan.sqlite", "File path of the sqlite DB file to use.")

	// Collect server
	collectServer     = flag.String("server", "https://localhost:8443", "URL scheme, address and port of the nrfscan server.")
	collectSendAmount = flag.Int("sendAmount", 0, "Defines how many records should be sent to the server at once.")

	// MQTT
	mqttBroker = flag.String("mqttBroker", "tcp://localhost:1883", "MQTT broker URL.")
	mqttTopic  = flag.String("mqttTopic", "", "MQTT topic to publish records to.")
)

func main() {
	ctx := context.Background()
	// Set defaults for glog flags. Can be overridden via cmdline.
	flag.Set("logtostderr", "false")
	flag.Set("stderrthreshold", "WARNING")
	flag.Set("v", "1")
	// Parse flags globally.
	flag.Parse()

	if *listPorts {
		ports, err := serial.GetPortsList()
		if err != nil {
			glog.Exitf("unable to list serial ports: %s", err)
		}
		if len(ports) == 0 {
			fmt.Println("No serial ports found.")
		}
		for _, p := range ports {
			fmt.Println(p)
		}
		glog.Flush()
		return
	}

	if *identifier == "" {
		*identifier = uuid.NewString()
	}

	// Scanner setup
	var source scanner.Source
	switch strings.ToLower(*scannerType) {
	case nrf24.SourceName:
		source = &nrf24.SDR{
			Identifier: *identifier,
		}
	case sim.SourceName:
		source = &sim.SDR{
			Identifier: *identifier,
		}
	default:
		glog.Exitf("%q is not a supported scanner type, pick one of: nrf24, sim", *scannerType)
	}
	opts := &scanner.Options{
		Port:          *port,
		BaudRate:      *baudRate,
		ReadTimeout:   *readTimeout,
		StreamCommand: *streamCmd,
		Interval:      *simInterval,
		NumChannels:   *simChannels,
		Seed:          *simSeed,
	}

	// Exporter setup (optional live export alongside the session buffer).
	var exporter export.Exporter
	switch strings.ToLower(*output) {
	case "":
		// Session file only.
	case "csv":
		exporter = &export.CSV{}
	case "sqlite":
		exporter = &export.SQLite{
			DBFile: *sqliteFile,
		}
	case "collect":
		exporter = &export.CollectServer{
			Server:     *collectServer,
			SendAmount: *collectSendAmount,
		}
	case "mqtt":
		exporter = &export.MQTT{
			Broker: *mqttBroker,
			Topic:  *mqttTopic,
		}
	default:
		glog.Exitf("%q is not a supported export method, pick one of: csv, sqlite, collect, mqtt", *output)
	}

	// Filter setup
	var filters []filter.Filterer
	if *minActivity > 0 {
		filters = append(filters, &filter.MinActivity{Min: *minActivity})
	}
	if *fromMillis > 0 || *toMillis > 0 {
		filters = append(filters, &filter.TimeRange{FromMillis: *fromMillis, ToMillis: *toMillis})
	}

	// Run
	records := make(chan scanner.Record, 100)
	if err := source.Start(opts, records); err != nil {
		glog.Exitf("unable to start %s capture: %s", source.Name(), err)
	}
	fmt.Printf("Capturing from %s scanner (id %s), stop with Ctrl-C.\n", source.Name(), *identifier)

	// Stop on SIGINT/SIGTERM, or once -duration elapsed.
	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
		var timeout <-chan time.Time
		if *duration > 0 {
			timeout = time.After(*duration)
		}
		select {
		case s := <-sig:
			glog.Infof("received %s, stopping capture", s)
		case <-timeout:
			glog.Infof("capture duration %s elapsed, stopping capture", *duration)
		}
		source.Stop()
	}()

	stream := (<-chan scanner.Record)(records)
	if len(filters) > 0 {
		filtered := make(chan scanner.Record, 100)
		go filter.Filter(records, filtered, filters)
		stream = filtered
	}

	var exportCh chan scanner.Record
	exportDone := make(chan error, 1)
	if exporter != nil {
		exportCh = make(chan scanner.Record, 100)
		go func() {
			exportDone <- exporter.Write(ctx, exportCh)
		}()
	}

	// Drain the capture into the session buffer.
	buffer := session.NewBuffer()
	exportCh = drain(stream, buffer, exportCh, exportDone)
	fmt.Println()

	err := source.Stop()
	if err != nil {
		glog.Errorf("capture ended abnormally: %s", err)
	} else {
		glog.Infof("capture stopped after %d records", buffer.Len())
	}

	if exportCh != nil {
		close(exportCh)
		if err := <-exportDone; err != nil {
			glog.Warningf("live export ended with error: %s\n", err)
		}
	}

	// Persist the session. The buffer stays untouched unless a save
	// succeeded, so a failed write can fall back to the temp dir.
	table := buffer.Snapshot()
	if table.Empty() {
		fmt.Println("No records captured, not writing a session file.")
	} else {
		path, serr := store.Save(*saveDir, *device, time.Now(), table, *gzipFile)
		if serr != nil {
			glog.Errorf("unable to save session: %s", serr)
			path, serr = store.Save(os.TempDir(), *device, time.Now(), table, *gzipFile)
		}
		if serr != nil {
			glog.Errorf("unable to save session to fallback location: %s", serr)
		} else {
			buffer.Clear()
			fmt.Printf("Saved %d records to %s\n", table.NumRecords(), path)
		}
		printSummary(table)
	}

	glog.Flush()
	if err != nil {
		os.Exit(1)
	}
}

// drain consumes the capture stream into the session buffer, teeing each
// record to the live export channel. An exporter that quits mid-capture
// only costs its own output: the tee is dropped and the capture carries
// on. Returns the export channel, or nil once the exporter is gone so
// the caller knows not to close or join it again.
func drain(stream <-chan scanner.Record, buffer *session.Buffer, exportCh chan scanner.Record, exportDone <-chan error) chan scanner.Record {
	start := time.Now()
	for r := range stream {
		buffer.Append(r)
		if exportCh != nil {
			select {
			case exportCh <- r:
			case err := <-exportDone:
				glog.Warningf("live export ended early, capture continues without it: %v\n", err)
				exportCh = nil
			}
		}
		if n := buffer.Len(); n%10 == 0 {
			fmt.Printf("\rCollected %d records (%s elapsed)", n, time.Since(start).Round(time.Second))
		}
	}
	return exportCh
}

func printSummary(table *session.Table) {
	s := analysis.Summarize(table)
	fmt.Printf("Mean activity %.1f (stddev %.1f, max %d) over %d channels\n", s.Mean, s.StdDev, s.Max, s.Channels)
	fmt.Printf("Peak channel Ch%d (%d MHz) at mean %.1f\n", s.Peak.Channel, s.Peak.FrequencyMHz, s.Peak.Mean)
	fmt.Printf("Active channels (mean > %.0f): %d\n", analysis.ActiveThreshold, len(s.Active))
	for _, b := range s.Bands {
		fmt.Printf("  %-8s (Ch%d-Ch%d): mean %.1f\n", b.Band.Name, b.Band.Low, b.Band.High, b.Mean)
	}
}
