// v0
// cmd/mm44sim/main.go
package main

import (
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// mm44sim publishes synthetic MM44 transmitter frames over MQTT for bench
// runs without lab hardware. Each simulated transmitter carries a pH and a
// DO channel that drift as a slow random walk.
func main() {
	broker := flag.String("broker", "tcp://localhost:1883", "MQTT broker address")
	prefix := flag.String("prefix", "phreg", "topic prefix")
	transmitters := flag.Int("transmitters", 2, "number of simulated MM44 units")
	interval := flag.Duration("interval", time.Second, "publish interval")
	flag.Parse()

	opts := mqtt.NewClientOptions().
		AddBroker(*broker).
		SetClientID("mm44sim").
		SetAutoReconnect(true)
	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		log.Fatalf("mqtt connect: %v", token.Error())
	}
	defer client.Disconnect(250)
	log.Printf("mm44sim publishing to %s/mm44/<idx> every %s", *prefix, *interval)

	ph := make([]float64, *transmitters*3)
	do := make([]float64, *transmitters*3)
	for i := range ph {
		ph[i] = 7.2 + rand.Float64()*0.4
		do[i] = 6.0 + rand.Float64()
	}

	ticker := time.NewTicker(*interval)
	defer ticker.Stop()
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)

	for {
		select {
		case <-sigs:
			log.Println("mm44sim stopping")
			return
		case <-ticker.C:
			for t := 0; t < *transmitters; t++ {
				line := ""
				for c := 1; c <= 3; c++ {
					i := t*3 + c - 1
					ph[i] += (rand.Float64() - 0.5) * 0.02
					do[i] += (rand.Float64() - 0.5) * 0.05
					if line != "" {
						line += ";"
					}
					// odd channels report pH, even channels DO
					if c%2 == 1 {
						line += fmt.Sprintf("C%d;PH;%.2f", c, ph[i])
					} else {
						line += fmt.Sprintf("C%d;DO;%.2f", c, do[i])
					}
				}
				topic := fmt.Sprintf("%s/mm44/%d", *prefix, t)
				token := client.Publish(topic, 0, false, []byte(line))
				token.Wait()
				if token.Error() != nil {
					log.Printf("publish %s: %v", topic, token.Error())
				}
			}
		}
	}
}
