package main

import (
	"context"
	"database/sql"
	"flag"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-sql-driver/mysql"
	"github.com/golang/glog"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hb9tf/nrfscan/export"
	"github.com/hb9tf/nrfscan/filter"
	"github.com/hb9tf/nrfscan/scanner"

	// Blind import support for sqlite3 used by export/sqlite.go.
	_ "github.com/mattn/go-sqlite3"
)

var (
	listen     = flag.String("listen", ":8443", "")
	certFile   = flag.String("certFile", "", "Path of the file containing the certificate (including the chained intermediates and root) for the TLS connection.")
	keyFile    = flag.String("keyFile", "", "Path of the file containing the key for the TLS connection.")
	output     = flag.String("output", "", "Export mechanism to use (one of: csv, sqlite, mysql)")
	allowedIDs = flag.String("allowedIds", "", "Comma separated list of capture identifiers to accept (empty accepts all).")

	// SQLite
	sqliteFile = flag.String("sqliteFile", "/tmp/nrfscan.sqlite", "File path of the sqlite DB file to use.")

	// MySQL
	mysqlServer       = flag.String("mysqlServer", "127.0.0.1:3306", "MySQL TCP server endpoint to connect to (IP/DNS and port).")
	mysqlUser         = flag.String("mysqlUser", "", "MySQL DB user.")
	mysqlPasswordFile = flag.String("mysqlPasswordFile", "", "Path to the file containing the password for the MySQL user.")
	mysqlDBName       = flag.String("mysqlDBName", "nrfscan", "Name of the DB to use.")
)

const (
	collectEndpoint = "/nrfscan/v1/collect"
	liveEndpoint    = "/nrfscan/v1/live"
)

var (
	recordsReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "nrfscan_records_received_total",
		Help: "Number of records accepted for export.",
	}, []string{"source"})
	collectRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "nrfscan_collect_requests_total",
		Help: "Number of collect requests by outcome.",
	}, []string{"status"})
	liveClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "nrfscan_live_clients",
		Help: "Number of connected live feed clients.",
	})
)

type collectServer struct {
	intake chan scanner.Record
	hub    *liveHub
}

type collectResponse struct {
	Status      string `json:"status"`
	RecordCount int    `json:"recordCount"`
}

func (s *collectServer) collectHandler(c *gin.Context) {
	records := []scanner.Record{}
	if err := c.ShouldBindJSON(&records); err != nil {
		collectRequests.WithLabelValues("invalid").Inc()
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "error": err.Error()})
		return
	}
	for _, r := range records {
		s.intake <- r
	}
	collectRequests.WithLabelValues("ok").Inc()
	c.JSON(http.StatusOK, collectResponse{
		Status:      "ok",
		RecordCount: len(records),
	})
}

func main() {
	ctx := context.Background()
	// Set defaults for glog flags. Can be overridden via cmdline.
	flag.Set("logtostderr", "false")
	flag.Set("stderrthreshold", "WARNING")
	flag.Set("v", "1")
	// Parse flags globally.
	flag.Parse()

	// Exporter setup
	var exporter export.Exporter
	switch strings.ToLower(*output) {
	case "csv":
		exporter = &export.CSV{}
	case "sqlite":
		exporter = &export.SQLite{
			DBFile: *sqliteFile,
		}
	case "mysql":
		pass, err := os.ReadFile(*mysqlPasswordFile)
		if err != nil {
			glog.Exitf("unable to read MySQL password file %q: %s\n", *mysqlPasswordFile, err)
		}
		cfg := mysql.Config{
			User:   *mysqlUser,
			Passwd: strings.TrimSpace(string(pass)),
			Net:    "tcp",
			Addr:   *mysqlServer,
			DBName: *mysqlDBName,
		}
		db, err := sql.Open("mysql", cfg.FormatDSN())
		if err != nil {
			glog.Exitf("unable to open MySQL DB %q: %s", *mysqlServer, err)
		}
		db.SetConnMaxLifetime(3 * time.Minute)
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(10)
		exporter = &export.MySQL{
			DB: db,
		}
	default:
		glog.Exitf("%q is not a supported export method, pick one of: csv, sqlite, mysql", *output)
	}

	// Optional identifier allowlist between intake and export.
	var filters []filter.Filterer
	if ids := strings.TrimSpace(*allowedIDs); ids != "" {
		allow := strings.Split(ids, ",")
		for i := range allow {
			allow[i] = strings.TrimSpace(allow[i])
		}
		filters = append(filters, &filter.Devices{Allow: allow})
	}

	intake := make(chan scanner.Record, 1000)
	stream := (<-chan scanner.Record)(intake)
	if len(filters) > 0 {
		filtered := make(chan scanner.Record, 1000)
		go filter.Filter(intake, filtered, filters)
		stream = filtered
	}

	// Export records.
	exportCh := make(chan scanner.Record, 1000)
	go func() {
		if err := exporter.Write(ctx, exportCh); err != nil {
			glog.Fatal(err)
		}
	}()

	hub := newLiveHub()
	go func() {
		for r := range stream {
			recordsReceived.WithLabelValues(r.Source).Inc()
			hub.broadcast(r)
			exportCh <- r
		}
	}()

	// Configure and run webserver.
	s := &collectServer{
		intake: intake,
		hub:    hub,
	}
	router := gin.Default()
	router.POST(collectEndpoint, s.collectHandler)
	router.GET(liveEndpoint, s.liveHandler)
	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	if *certFile != "" || *keyFile != "" {
		glog.Fatal(router.RunTLS(*listen, *certFile, *keyFile))
	} else {
		glog.Infoln("Resorting to serving HTTP because there was no certificate and key defined.")
		glog.Fatal(router.Run(*listen))
	}

	glog.Flush()
}
