// loadgen produces synthetic score submissions onto the Kafka ingestion
// topic, for load-testing the consumer path.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"os/signal"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/IBM/sarama"
)

// ScoreMessage mirrors the consumer's wire format.
type ScoreMessage struct {
	GameID     int64  `json:"game_id"`
	PlayerName string `json:"player_name"`
	Score      int64  `json:"score"`
}

var playerPrefixes = []string{
	"Phoenix", "Shadow", "Thunder", "Storm", "Blaze", "Ninja", "Dragon", "Wolf", "Hawk", "Viper",
	"Ghost", "Titan", "Frost", "Cyber", "Nova", "Raven", "Omega", "Alpha", "Delta", "Sigma",
	"Ace", "Bolt", "Crash", "Dash", "Edge", "Flash", "Glitch", "Haze", "Ion", "Jade",
	"Knight", "Luna", "Mystic", "Neon", "Orion", "Pulse", "Quantum", "Rebel", "Spark", "Turbo",
}

func playerName(idx int) string {
	prefixIdx := idx % len(playerPrefixes)
	suffix := idx/len(playerPrefixes) + 1
	return fmt.Sprintf("%s%d", playerPrefixes[prefixIdx], suffix)
}

func main() {
	brokers := flag.String("brokers", "localhost:9092", "Kafka brokers (comma-separated)")
	topic := flag.String("topic", "highscore-submissions", "Kafka topic")
	gameID := flag.Int64("game", 1, "Game ID to submit scores for")
	totalPlayers := flag.Int("players", 1000, "Number of distinct players")
	rate := flag.Int("rate", 100, "Submissions per second")
	maxScore := flag.Int64("max-score", 1000000, "Maximum score value")
	duration := flag.Duration("duration", 0, "Duration to run (0 = forever)")
	flag.Parse()

	brokerList := strings.Split(*brokers, ",")

	fmt.Printf("producing to %s topic %s: game=%d players=%d rate=%d/s\n",
		*brokers, *topic, *gameID, *totalPlayers, *rate)

	config := sarama.NewConfig()
	config.Producer.RequiredAcks = sarama.WaitForLocal
	config.Producer.Compression = sarama.CompressionSnappy
	config.Producer.Flush.Frequency = 100 * time.Millisecond
	config.Producer.Flush.Messages = 100
	config.Producer.Return.Successes = true
	config.Producer.Return.Errors = true

	producer, err := sarama.NewAsyncProducer(brokerList, config)
	if err != nil {
		log.Fatalf("Failed to create producer: %v", err)
	}
	defer producer.Close()

	var successCount, errorCount int64
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		for range producer.Successes() {
			atomic.AddInt64(&successCount, 1)
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		for err := range producer.Errors() {
			atomic.AddInt64(&errorCount, 1)
			log.Printf("Producer error: %v", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	send := func() {
		msg := ScoreMessage{
			GameID:     *gameID,
			PlayerName: playerName(rand.Intn(*totalPlayers)),
			Score:      rand.Int63n(*maxScore),
		}
		data, err := json.Marshal(msg)
		if err != nil {
			log.Printf("Failed to marshal message: %v", err)
			return
		}
		producer.Input() <- &sarama.ProducerMessage{
			Topic: *topic,
			Key:   sarama.StringEncoder(fmt.Sprintf("%d", msg.GameID)),
			Value: sarama.ByteEncoder(data),
		}
	}

	ticker := time.NewTicker(time.Second / time.Duration(*rate))
	defer ticker.Stop()

	var deadline <-chan time.Time
	if *duration > 0 {
		deadline = time.After(*duration)
	}

	start := time.Now()
	report := time.NewTicker(5 * time.Second)
	defer report.Stop()

loop:
	for {
		select {
		case <-ticker.C:
			send()
		case <-report.C:
			sent := atomic.LoadInt64(&successCount)
			errs := atomic.LoadInt64(&errorCount)
			log.Printf("sent=%d errors=%d elapsed=%s", sent, errs, time.Since(start).Round(time.Second))
		case <-deadline:
			break loop
		case <-sigChan:
			break loop
		}
	}

	producer.AsyncClose()
	wg.Wait()
	log.Printf("done: sent=%d errors=%d", atomic.LoadInt64(&successCount), atomic.LoadInt64(&errorCount))
}
