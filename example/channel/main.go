package main

import (
	"context"
	"fmt"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/ghalamif/AegisGate"
)

func main() {
	flow, err := aegisgate.Conf("../../data/config.yaml")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sink, batches, closeBatches := aegisgate.NewChannelSink("fanout", 32)
	defer closeBatches()

	go fanoutWorker("historian", batches)

	if err := flow.Run(ctx, aegisgate.StreamOutSink(sink)); err != nil && err != context.Canceled {
		log.Fatalf("runtime error: %v", err)
	}
}

func fanoutWorker(name string, batches <-chan []aegisgate.Message) {
	for batch := range batches {
		for _, msg := range batch {
			fmt.Printf("[%s] %s at %s\n", name, msg.Topic, msg.Published.Format(time.RFC3339))
		}
	}
}
