// cmd/chronicler/main.go is an asynchronous worker that pops room event
// records from the Redis queue and persists them to PostgreSQL, giving rooms
// a durable history (including chat) beyond the in-memory log cap.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"time"

	_ "github.com/joho/godotenv/autoload"
	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/MushroomFleet/lobby-system/internal/cache"
	"github.com/MushroomFleet/lobby-system/internal/database"
)

// Chronicler batches room events from Redis into Postgres.
type Chronicler struct {
	redisClient *redis.Client
	logger      *logrus.Logger
	queueName   string
	batchSize   int
	flushDelay  time.Duration

	batchMu  sync.Mutex
	batch    []cache.RoomEventRecord
	ctx      context.Context
	cancelFn context.CancelFunc
}

// NewChronicler constructs a worker from environment variables or defaults.
func NewChronicler(logger *logrus.Logger) *Chronicler {
	addr := getEnv("REDIS_ADDR", "localhost:6379")
	batchSize := getEnvInt("CHRONICLE_BATCH_SIZE", 20)
	flushMs := getEnvInt("CHRONICLE_FLUSH_MS", 500)

	ctx, cancel := context.WithCancel(context.Background())
	return &Chronicler{
		redisClient: redis.NewClient(&redis.Options{Addr: addr}),
		logger:      logger,
		queueName:   getEnv("CHRONICLE_QUEUE_NAME", cache.DefaultQueueName),
		batchSize:   batchSize,
		flushDelay:  time.Duration(flushMs) * time.Millisecond,
		batch:       make([]cache.RoomEventRecord, 0, batchSize),
		ctx:         ctx,
		cancelFn:    cancel,
	}
}

// Run connects to the database and consumes the queue until stopped.
func (ch *Chronicler) Run() {
	database.ConnectDB()

	go ch.consumeLoop()

	ch.logger.Info("chronicler started")
	<-ch.ctx.Done()
	ch.flush()
	ch.logger.Info("chronicler shutting down")
}

// Stop cancels the worker's context.
func (ch *Chronicler) Stop() {
	ch.cancelFn()
}

// consumeLoop BLPops records off the queue and batches them; a ticker
// flushes partial batches.
func (ch *Chronicler) consumeLoop() {
	ticker := time.NewTicker(ch.flushDelay)
	defer ticker.Stop()

	for {
		select {
		case <-ch.ctx.Done():
			return

		case <-ticker.C:
			ch.flush()

		default:
			res, err := ch.redisClient.BLPop(ch.ctx, 3*time.Second, ch.queueName).Result()
			if err != nil {
				if !errors.Is(err, redis.Nil) && !errors.Is(err, context.Canceled) {
					ch.logger.Errorf("BLPop: %v", err)
				}
				continue
			}
			if len(res) < 2 {
				continue
			}

			var rec cache.RoomEventRecord
			if err := json.Unmarshal([]byte(res[1]), &rec); err != nil {
				ch.logger.Warnf("invalid room event record: %v", err)
				continue
			}
			ch.append(rec)
		}
	}
}

func (ch *Chronicler) append(rec cache.RoomEventRecord) {
	ch.batchMu.Lock()
	defer ch.batchMu.Unlock()
	ch.batch = append(ch.batch, rec)
	if len(ch.batch) >= ch.batchSize {
		ch.flushLocked()
	}
}

func (ch *Chronicler) flush() {
	ch.batchMu.Lock()
	defer ch.batchMu.Unlock()
	ch.flushLocked()
}

// flushLocked writes the current batch in one transaction. Assumes batchMu
// is held.
func (ch *Chronicler) flushLocked() {
	if len(ch.batch) == 0 {
		return
	}
	records := make([]cache.RoomEventRecord, len(ch.batch))
	copy(records, ch.batch)
	ch.batch = ch.batch[:0]

	ctx := context.Background()
	err := pgx.BeginTxFunc(ctx, database.DB, pgx.TxOptions{}, func(tx pgx.Tx) error {
		for _, rec := range records {
			if err := insertRoomEventTx(ctx, tx, rec); err != nil {
				return fmt.Errorf("insertRoomEventTx: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		ch.logger.Errorf("flush: %v", err)
		return
	}
	ch.logger.Debugf("flushed %d room events", len(records))
}

// insertRoomEventTx upserts the room row and appends the event. A
// game_start event finalizes the room's recorded lifecycle.
func insertRoomEventTx(ctx context.Context, tx pgx.Tx, rec cache.RoomEventRecord) error {
	upsertRoomQ := `
		INSERT INTO rooms (id, status, first_seen)
		VALUES ($1, 'open', NOW())
		ON CONFLICT (id) DO NOTHING
	`
	if _, err := tx.Exec(ctx, upsertRoomQ, rec.RoomID); err != nil {
		return err
	}

	payload, err := json.Marshal(rec.Payload)
	if err != nil {
		return err
	}
	eventInsertQ := `
		INSERT INTO room_events (room_id, seq, actor_id, event_type, payload, occurred_at)
		VALUES ($1, $2, $3, $4, $5, to_timestamp($6 / 1000.0))
		ON CONFLICT (room_id, seq) DO NOTHING
	`
	if _, err := tx.Exec(ctx, eventInsertQ,
		rec.RoomID, rec.Seq, rec.ActorID, rec.EventType, payload, rec.Timestamp,
	); err != nil {
		return err
	}

	if rec.EventType == "game_start" {
		finalizeQ := `
			UPDATE rooms SET status = 'launched', closed_at = NOW()
			WHERE id = $1 AND status = 'open'
		`
		if _, err := tx.Exec(ctx, finalizeQ, rec.RoomID); err != nil {
			return err
		}
	}
	return nil
}

func main() {
	logger := logrus.New()
	ch := NewChronicler(logger)

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt)
	go func() {
		<-sigs
		ch.Stop()
	}()

	// Run blocks until Stop and flushes the remaining batch on the way out.
	ch.Run()
	logger.Info("chronicler shutdown complete")
}

// getEnv reads an environment variable or returns a default.
func getEnv(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

// getEnvInt parses an environment variable as integer, else a default.
func getEnvInt(key string, def int) int {
	s := os.Getenv(key)
	if s == "" {
		return def
	}
	var v int
	if _, err := fmt.Sscanf(s, "%d", &v); err != nil {
		return def
	}
	return v
}
