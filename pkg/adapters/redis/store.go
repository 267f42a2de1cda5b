package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aretw0/revisit/pkg/domain"
	"github.com/aretw0/revisit/pkg/ports"
	backend "github.com/redis/go-redis/v9"
)

// Store implements ports.ModelStore using Redis.
// Values live under "<prefix>field:<name>"; every Set publishes the field name on
// "<prefix>changes" so subscribers in any process observe the write.
type Store struct {
	client *backend.Client
	prefix string
	ttl    time.Duration
	logger *slog.Logger
}

type Option func(*Store)

// WithTTL sets the expiration for field values.
func WithTTL(ttl time.Duration) Option {
	return func(s *Store) {
		s.ttl = ttl
	}
}

// WithPrefix sets the key prefix.
func WithPrefix(prefix string) Option {
	return func(s *Store) {
		s.prefix = prefix
	}
}

// WithLogger sets the logger used by subscription goroutines.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// New creates a new Redis store with options.
func New(address, password string, db int, opts ...Option) *Store {
	rdb := backend.NewClient(&backend.Options{
		Addr:     address,
		Password: password,
		DB:       db,
	})
	return NewFromClient(rdb, opts...)
}

// NewFromClient creates a new Redis store from an existing client.
func NewFromClient(client *backend.Client, opts ...Option) *Store {
	store := &Store{
		client: client,
		prefix: "revisit:widget:",
		ttl:    0, // No expiration by default
		logger: slog.New(slog.DiscardHandler),
	}

	for _, opt := range opts {
		opt(store)
	}

	return store
}

func (s *Store) key(field ports.Field) string {
	return s.prefix + "field:" + string(field)
}

func (s *Store) channel() string {
	return s.prefix + "changes"
}

// Get retrieves a field value from Redis.
func (s *Store) Get(ctx context.Context, field ports.Field) (json.RawMessage, error) {
	val, err := s.client.Get(ctx, s.key(field)).Bytes()
	if err != nil {
		if errors.Is(err, backend.Nil) {
			return nil, domain.ErrFieldNotFound
		}
		return nil, fmt.Errorf("failed to get from redis: %w", err)
	}
	return json.RawMessage(val), nil
}

// Set writes the value and publishes a change notification in one pipeline.
func (s *Store) Set(ctx context.Context, field ports.Field, value json.RawMessage) error {
	if !json.Valid(value) {
		return fmt.Errorf("%w: value for %s is not valid JSON", domain.ErrSerialization, field)
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, s.key(field), []byte(value), s.ttl)
	pipe.Publish(ctx, s.channel(), string(field))

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save to redis: %w", err)
	}
	return nil
}

// Subscribe listens on the change channel and calls fn with the current value whenever
// field is written. It returns once the subscription is confirmed by the server.
func (s *Store) Subscribe(ctx context.Context, field ports.Field, fn ports.ChangeFunc) (func(), error) {
	pubsub := s.client.Subscribe(ctx, s.channel())
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("failed to subscribe: %w", err)
	}

	subCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	go func() {
		defer close(done)
		ch := pubsub.Channel()
		for {
			select {
			case <-subCtx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				if msg.Payload != string(field) {
					continue
				}
				value, err := s.Get(subCtx, field)
				if err != nil {
					if subCtx.Err() == nil {
						s.logger.Warn("redis store: failed to read changed field", "field", field, "err", err)
					}
					continue
				}
				if subCtx.Err() != nil {
					return
				}
				fn(value)
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			cancel()
			_ = pubsub.Close()
			<-done
		})
	}, nil
}

// Delete removes every field.
func (s *Store) Delete(ctx context.Context) error {
	keys := make([]string, 0, len(ports.Fields))
	for _, f := range ports.Fields {
		keys = append(keys, s.key(f))
	}
	return s.client.Del(ctx, keys...).Err()
}

// Close closes the redis client.
func (s *Store) Close() error {
	return s.client.Close()
}
