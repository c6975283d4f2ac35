package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/ghalamif/AegisGate/pkg/aegisgate"
)

// Feeds the gateway from code instead of OPC UA and prints every published
// document.
func main() {
	flow, err := aegisgate.Conf("../../data/config.yaml")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	src := aegisgate.NewExternalSource()
	go simulate(ctx, src)

	callback := func(batch []aegisgate.Message) error {
		for _, msg := range batch {
			payload, err := json.Marshal(msg.Payload)
			if err != nil {
				return err
			}
			fmt.Printf("%s %s %s\n", msg.Published.Format(time.RFC3339Nano), msg.Topic, payload)
		}
		return nil
	}

	if err := flow.StreamIN(aegisgate.StreamInSource(src)).
		Run(ctx, aegisgate.StreamOutCallback("stdout", callback)); err != nil && err != context.Canceled {
		log.Fatalf("runtime error: %v", err)
	}
}

func simulate(ctx context.Context, src *aegisgate.ExternalSource) {
	def := aegisgate.TagDefinition{
		ID: "T1", Name: "Temp", Address: "40001", ValueType: "float",
		AccessLevel: "read", Mode: "poll", Unit: "C", DeviceID: "D1", CollectionID: "C1",
	}

	for {
		err := src.Define(ctx, def)
		if err == nil {
			break
		}
		if ctx.Err() != nil {
			return
		}
		time.Sleep(50 * time.Millisecond)
	}

	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()
	temp := 20.0
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			temp += 0.1
			if err := src.Set(ctx, "T1", temp); err != nil {
				return
			}
		}
	}
}
