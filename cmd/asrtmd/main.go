package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/casperlundberg/asrtm/internal/api"
	"github.com/casperlundberg/asrtm/internal/audit"
	"github.com/casperlundberg/asrtm/internal/config"
	"github.com/casperlundberg/asrtm/pkg/asrtm"
)

func main() {
	var (
		descriptorPath = flag.String("config", "./config/asrtm.yaml", "Path to the deployment descriptor")
		port           = flag.String("port", "", "HTTP port (overrides the descriptor's api.port)")
	)
	flag.Parse()

	printBanner()

	d, err := config.Load(*descriptorPath)
	if err != nil {
		log.Fatalf("Failed to load descriptor: %v", err)
	}
	log.Printf("Loaded descriptor for application %q", d.Application.Name)
	log.Printf("  config fields: %d, metric fields: %d", d.NumConfigFields(), d.NumMetricFields())

	constraints, adaptorFields, err := d.BuildConstraints()
	if err != nil {
		log.Fatalf("Failed to build constraints: %v", err)
	}

	dataAware, err := d.BuildDataAware()
	if err != nil {
		log.Fatalf("Failed to build data-aware layer: %v", err)
	}

	var engine *asrtm.ASRTM
	if dataAware == nil {
		engine = asrtm.New(d.NumConfigFields(), d.NumMetricFields())
		engine.CreateState("default", d.BuildRank())
	} else {
		dataAware.CreateState("default", d.BuildRank)
		log.Printf("  data-aware layer with %d feature cluster(s)", len(d.DataAware.Clusters))
	}
	for priority, c := range constraints {
		field := adaptorFields[priority]
		if dataAware == nil {
			engine.AddConstraint(priority, c, field)
		} else {
			dataAware.AddConstraint(priority, c, field)
		}
		if field != nil {
			log.Printf("  constraint %d bound to adaptor field %+v", priority, *field)
		}
	}
	log.Printf("Engine ready with %d constraint(s)", len(constraints))

	auditLog, err := audit.Open(d.Audit.DatabasePath)
	if err != nil {
		log.Fatalf("Failed to open audit log: %v", err)
	}
	defer auditLog.Close()

	httpPort := d.API.Port
	if *port != "" {
		httpPort = *port
	}
	var server *api.Server
	if dataAware == nil {
		server = api.NewServer(engine, auditLog, httpPort)
	} else {
		server = api.NewDataAwareServer(dataAware, auditLog, httpPort)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	done := make(chan error, 1)
	go func() {
		log.Printf("Listening on :%s", httpPort)
		done <- server.Start()
	}()

	select {
	case err := <-done:
		if err != nil {
			log.Fatalf("Server failed: %v", err)
		}
	case sig := <-sigChan:
		log.Printf("Received signal: %v, shutting down", sig)
	}
}

func printBanner() {
	fmt.Println()
	fmt.Println("========================================================")
	fmt.Println("       Application-Specific Runtime Manager daemon      ")
	fmt.Println("========================================================")
	fmt.Println()
}
