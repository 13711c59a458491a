package services

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/231Brooks/HBH-2-sub003/internal/config"
)

// IConfigService defines the interface for accessing runtime-tunable
// configuration. Values live in MongoDB, are cached in memory, and cache
// invalidation rides on a Redis pub/sub channel so every process picks
// up changes without a restart. The auction engine reads its pricing
// and timing knobs (bid increment, extension threshold/duration)
// through this.
type IConfigService interface {
	Get(ctx context.Context, key string) (interface{}, error)
	GetInt(ctx context.Context, key string, defaultValue int) int
	GetString(ctx context.Context, key string, defaultValue string) string
	GetBool(ctx context.Context, key string, defaultValue bool) bool
	GetFloat64(ctx context.Context, key string, defaultValue float64) float64
	GetDuration(ctx context.Context, key string, defaultValue time.Duration) time.Duration
	Load(ctx context.Context) error
	SubscribeToChanges(ctx context.Context) error
	SetConfigValue(ctx context.Context, key string, value interface{}) error
}

const (
	configCollection    = "configuration"
	configUpdateChannel = "config_updates"
)

// configService implements IConfigService.
type configService struct {
	db    *mongo.Database
	cfg   *config.Config // Holds initial defaults loaded from .env
	rdb   *redis.Client
	cache map[string]interface{}
	mutex sync.RWMutex
}

// NewConfigService creates a new ConfigService and primes its cache.
func NewConfigService(mongoDb *mongo.Database, initialCfg *config.Config, rdb *redis.Client) IConfigService {
	s := &configService{
		db:    mongoDb,
		cfg:   initialCfg,
		rdb:   rdb,
		cache: make(map[string]interface{}),
	}
	if err := s.Load(context.Background()); err != nil {
		log.Printf("WARNING: Failed to load initial config from DB: %v. Using defaults from .env", err)
	}
	if rdb != nil {
		go func() {
			if err := s.SubscribeToChanges(context.Background()); err != nil {
				log.Printf("CRITICAL: Config Pub/Sub listener stopped: %v", err)
			}
		}()
	}
	return s
}

// ConfigEntry represents a document in the configuration collection.
type ConfigEntry struct {
	Key   string      `bson:"key"`
	Value interface{} `bson:"value"`
}

// Load fetches all config entries from DB and populates the in-memory cache.
func (s *configService) Load(ctx context.Context) error {
	collection := s.db.Collection(configCollection)
	cursor, err := collection.Find(ctx, bson.M{})
	if err != nil {
		return fmt.Errorf("failed to query config collection: %w", err)
	}
	defer cursor.Close(ctx)

	newCache := make(map[string]interface{})
	for cursor.Next(ctx) {
		var entry ConfigEntry
		if err := cursor.Decode(&entry); err == nil {
			newCache[entry.Key] = entry.Value
		} else {
			log.Printf("Warning: Failed to decode config entry during load: %v", err)
		}
	}
	if err := cursor.Err(); err != nil {
		return fmt.Errorf("error iterating config cursor: %w", err)
	}

	s.mutex.Lock()
	s.cache = newCache
	s.mutex.Unlock()
	log.Printf("Loaded %d entries into config cache from DB.", len(newCache))
	return nil
}

// SubscribeToChanges listens on the Redis update channel and reloads the
// cache whenever any process publishes a change.
func (s *configService) SubscribeToChanges(ctx context.Context) error {
	pubsub := s.rdb.Subscribe(ctx, configUpdateChannel)
	defer pubsub.Close()

	ch := pubsub.Channel()
	for msg := range ch {
		log.Printf("Config update notification received (key: %s), reloading cache...", msg.Payload)
		if err := s.Load(ctx); err != nil {
			log.Printf("ERROR: failed to reload config cache after update: %v", err)
		}
	}
	return nil
}

// SetConfigValue upserts a config entry and notifies other processes.
func (s *configService) SetConfigValue(ctx context.Context, key string, value interface{}) error {
	collection := s.db.Collection(configCollection)
	filter := bson.M{"key": key}
	update := bson.M{"$set": bson.M{"key": key, "value": value}}
	_, err := collection.UpdateOne(ctx, filter, update, options.Update().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("failed to set config value for key '%s': %w", key, err)
	}

	s.mutex.Lock()
	s.cache[key] = value
	s.mutex.Unlock()

	if s.rdb != nil {
		if err := s.rdb.Publish(ctx, configUpdateChannel, key).Err(); err != nil {
			log.Printf("Warning: failed to publish config update for key '%s': %v", key, err)
		}
	}
	return nil
}

// Get retrieves a specific configuration value, checking cache first.
func (s *configService) Get(ctx context.Context, key string) (interface{}, error) {
	s.mutex.RLock()
	val, exists := s.cache[key]
	s.mutex.RUnlock()

	if exists {
		return val, nil
	}
	return nil, fmt.Errorf("config key '%s' not found", key)
}

// Helper methods for type-safe access with defaults

func (s *configService) GetString(ctx context.Context, key string, defaultValue string) string {
	val, err := s.Get(ctx, key)
	if err != nil {
		return defaultValue
	}
	if strVal, ok := val.(string); ok {
		return strVal
	}
	log.Printf("Warning: Config key '%s' is not a string, using default.", key)
	return defaultValue
}

func (s *configService) GetInt(ctx context.Context, key string, defaultValue int) int {
	val, err := s.Get(ctx, key)
	if err != nil {
		return defaultValue
	}
	// MongoDB might store numbers as float64 or int32/64
	switch v := val.(type) {
	case int:
		return v
	case int32:
		return int(v)
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		log.Printf("Warning: Config key '%s' is not an integer type (%T), using default.", key, val)
		return defaultValue
	}
}

func (s *configService) GetBool(ctx context.Context, key string, defaultValue bool) bool {
	val, err := s.Get(ctx, key)
	if err != nil {
		return defaultValue
	}
	if boolVal, ok := val.(bool); ok {
		return boolVal
	}
	log.Printf("Warning: Config key '%s' is not a boolean, using default.", key)
	return defaultValue
}

func (s *configService) GetFloat64(ctx context.Context, key string, defaultValue float64) float64 {
	val, err := s.Get(ctx, key)
	if err != nil {
		return defaultValue
	}
	switch v := val.(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case int32:
		return float64(v)
	case int64:
		return float64(v)
	default:
		log.Printf("Warning: Config key '%s' is not a numeric type (%T), using default.", key, val)
		return defaultValue
	}
}

// GetDuration reads a duration stored as seconds.
func (s *configService) GetDuration(ctx context.Context, key string, defaultValue time.Duration) time.Duration {
	val, err := s.Get(ctx, key)
	if err != nil {
		return defaultValue
	}
	switch v := val.(type) {
	case float64:
		return time.Duration(v) * time.Second
	case int:
		return time.Duration(v) * time.Second
	case int32:
		return time.Duration(v) * time.Second
	case int64:
		return time.Duration(v) * time.Second
	default:
		log.Printf("Warning: Config key '%s' is not a duration in seconds (%T), using default.", key, val)
		return defaultValue
	}
}
