package email

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/231Brooks/HBH-2-sub003/internal/config"
	"github.com/231Brooks/HBH-2-sub003/internal/models"
)

// RedisSender implements the Sender interface by storing emails in Redis
type RedisSender struct {
	client *redis.Client
	cfg    *config.Config
}

// NewRedisSender creates a new RedisSender
func NewRedisSender(client *redis.Client, cfg *config.Config) Sender {
	return &RedisSender{
		client: client,
		cfg:    cfg,
	}
}

// kindFromSubject maps a rendered subject line back to its event kind
// so mock emails get predictable Redis keys. This is a heuristic over
// the subject templates; unknown subjects fall back to "unknown".
func kindFromSubject(subject string) string {
	switch {
	case strings.Contains(subject, "outbid"):
		return string(models.EventOutbid)
	case strings.Contains(subject, "Ending soon"):
		return string(models.EventEndingSoon)
	case strings.Contains(subject, "Ending today"):
		return string(models.EventEndingToday)
	case strings.Contains(subject, "You won"):
		return string(models.EventWon)
	case strings.Contains(subject, "without a sale"):
		return string(models.EventNoSale)
	case strings.Contains(subject, "Your auction sold"):
		return string(models.EventSoldToOwner)
	case strings.Contains(subject, "Auction closed"):
		return string(models.EventLost)
	}
	return "unknown"
}

// Send stores a representation of the email in Redis instead of sending it via SMTP.
// The `to` slice may hold multiple recipients; the first one keys the mock entry.
func (s *RedisSender) Send(ctx context.Context, to []string, subject string, rawMessage []byte) error {
	kind := kindFromSubject(subject)

	primaryTo := ""
	if len(to) > 0 {
		primaryTo = to[0]
	}

	emailData := map[string]interface{}{
		"to":      strings.Join(to, ", "),
		"from":    s.cfg.SmtpFromAddress,
		"subject": subject,
		"body":    string(rawMessage),
		"sent_at": time.Now().UTC().Format(time.RFC3339Nano),
		"kind":    kind,
	}

	jsonData, err := json.Marshal(emailData)
	if err != nil {
		return fmt.Errorf("failed to marshal email data: %w", err)
	}

	key := fmt.Sprintf("mockemail:%s:%s", primaryTo, kind)
	ttl := 5 * time.Minute

	err = s.client.Set(ctx, key, jsonData, ttl).Err()
	if err != nil {
		return fmt.Errorf("failed to store email in Redis key '%s': %w", key, err)
	}

	log.Printf("Mock email stored in Redis key '%s' (TTL: %v, To: %s, Subject: %s)", key, ttl, strings.Join(to, ", "), subject)
	return nil
}
