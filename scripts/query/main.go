package main

import (
	"context"
	"flag"
	"log"
	"os"
	"time"

	"TSNSpectra/internal/engine/tas"
	"TSNSpectra/internal/report"
	"TSNSpectra/internal/rpc"
)

func main() {
	serverAddr := flag.String("addr", "localhost:9090", "The gRPC server address")
	mode := flag.String("mode", "report", "Query mode: 'health', 'report' or 'gcl'")
	session := flag.String("session", "", "Session ID (defaults to the latest report)")
	format := flag.String("format", report.FormatTable, "Report format: table, json or yaml")
	flag.Parse()

	client, conn, err := rpc.Dial(*serverAddr)
	if err != nil {
		log.Fatalf("did not connect: %v", err)
	}
	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	switch *mode {
	case "health":
		status, err := client.HealthCheck(ctx)
		if err != nil {
			log.Fatalf("health check failed: %v", err)
		}
		log.Printf("Server status: %s", status)
	case "report":
		r, err := client.GetReport(ctx, *session)
		if err != nil {
			log.Fatalf("could not fetch report: %v", err)
		}
		if err := report.Render(os.Stdout, r, *format); err != nil {
			log.Fatalf("could not render report: %v", err)
		}
	case "gcl":
		doc, err := client.GetGCL(ctx, *session)
		if err != nil {
			log.Fatalf("could not fetch gate control list: %v", err)
		}
		if err := tas.Encode(os.Stdout, doc); err != nil {
			log.Fatalf("could not encode gate control list: %v", err)
		}
	default:
		log.Fatalf("Unknown mode: %s. Use 'health', 'report' or 'gcl'", *mode)
	}
}
