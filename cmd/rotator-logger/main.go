// rotator-logger records rotator status into InfluxDB.
//
// It subscribes to rotatord's status websocket and writes one point per
// status update, reconnecting if either side goes away.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/gorilla/websocket"
	influxdb2 "github.com/influxdata/influxdb-client-go"
	"github.com/influxdata/influxdb-client-go/api"
)

var (
	statusURL = flag.String("status_url", "ws://localhost:8502/api/ws", "rotatord status websocket")
	org       = flag.String("org", "groundstation", "InfluxDB organization")
	bucket    = flag.String("bucket", "rotator.raw", "InfluxDB bucket")
)

func main() {
	flag.Parse()
	server := os.Getenv("INFLUX_SERVER")
	if server == "" {
		server = "http://localhost:9999"
	}
	client := influxdb2.NewClient(server, os.Getenv("INFLUX_TOKEN"))
	defer client.Close()
	// Non-blocking write client
	writeApi := client.WriteApi(*org, *bucket)
	defer writeApi.Close()
	go func() {
		for err := range writeApi.Errors() {
			log.Printf("write error: %v", err)
		}
	}()
	for {
		if err := logStatus(writeApi); err != nil {
			log.Print(err)
		}
		time.Sleep(1 * time.Second)
	}
}

// flatten turns nested JSON into dotted field names, the shape Influx
// wants for a flat field set.
func flatten(fields map[string]interface{}, status interface{}, prefix string) {
	switch status := status.(type) {
	case map[string]interface{}:
		for k, v := range status {
			flatten(fields, v, prefix+"."+k)
		}
	case []interface{}:
		for k, v := range status {
			flatten(fields, v, fmt.Sprintf("%s.%d", prefix, k))
		}
	default:
		fields[prefix[1:]] = status
	}
}

func logStatus(writeApi api.WriteApi) error {
	defer writeApi.Flush()
	var dialer websocket.Dialer
	conn, _, err := dialer.Dial(*statusURL, nil)
	if err != nil {
		return err
	}
	defer conn.Close()
	for {
		var status interface{}
		if err := conn.ReadJSON(&status); err != nil {
			return err
		}
		fields := make(map[string]interface{})
		flatten(fields, status, "")
		writeApi.WritePoint(influxdb2.NewPoint("rotator.status", nil, fields, time.Now()))
	}
}
