// cmd/cdc-consumer/main.go
//
// Standalone alternative projection driver (spec §4.5, §6.5): tails
// the circle_snapshots CDC topic and upserts the read cache directly,
// independent of the in-process publisher used by cmd/circles-api.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/redis/go-redis/v9"

	"github.com/loofy147/circles/pkg/cdc"
	"github.com/loofy147/circles/pkg/readmodel"
)

func main() {
	redisURL := getEnv("REDIS_URL", "redis://localhost:6379/0")
	brokers := strings.Split(getEnv("KAFKA_BROKERS", "localhost:9092"), ",")
	topic := getEnv("KAFKA_TOPIC", "mysql-server.circles.circle_snapshots")
	groupID := getEnv("KAFKA_GROUP_ID", "cdc-consumer-group")

	redisOpts, err := redis.ParseURL(redisURL)
	if err != nil {
		log.Fatalf("invalid REDIS_URL: %v", err)
	}
	redisClient := redis.NewClient(redisOpts)
	defer redisClient.Close()

	views := readmodel.New(redisClient)
	consumer := cdc.New(cdc.Config{
		Brokers: brokers,
		Topic:   topic,
		GroupID: groupID,
	}, views)

	ctx, cancel := context.WithCancel(context.Background())
	consumer.Start(ctx)

	fmt.Printf("cdc-consumer tailing %s on %v\n", topic, brokers)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	cancel()
	if err := consumer.Stop(); err != nil {
		log.Printf("cdc-consumer: error during shutdown: %v", err)
	}
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return fallback
}
