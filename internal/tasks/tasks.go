package tasks

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/231Brooks/HBH-2-sub003/internal/config"
	"github.com/231Brooks/HBH-2-sub003/internal/email"
	"github.com/231Brooks/HBH-2-sub003/internal/models"
	"github.com/231Brooks/HBH-2-sub003/internal/services"
)

// TaskType defines the type of a background task.
const (
	TypeEmailDelivery   = "email:deliver"
	TypeSettlementPass  = "auction:settlement:pass"
	TypeEndingSoonScan  = "auction:ending:soon"
	TypeEndingTodayScan = "auction:ending:today"
)

// --- Task Client (Enqueuing tasks) ---

func NewClient(rdb *redis.Client) *asynq.Client {
	clientOpt := asynq.RedisClientOpt{
		Addr:     rdb.Options().Addr,
		Password: rdb.Options().Password,
		DB:       rdb.Options().DB,
	}
	return asynq.NewClient(clientOpt)
}

// --- Notification Dispatch ---

// EmailTaskPayload is the payload for TypeEmailDelivery tasks.
type EmailTaskPayload struct {
	To      string              `json:"to"`
	Kind    models.EventKind    `json:"kind"`
	Payload models.EventPayload `json:"payload"`
}

// AsynqDispatcher implements services.NotificationDispatcher by
// enqueueing an email delivery task per notification. Delivery then
// happens in the background worker with asynq's retry semantics.
type AsynqDispatcher struct {
	client *asynq.Client
}

// NewAsynqDispatcher creates a dispatcher backed by the given client.
func NewAsynqDispatcher(client *asynq.Client) *AsynqDispatcher {
	return &AsynqDispatcher{client: client}
}

func (d *AsynqDispatcher) Dispatch(ctx context.Context, to string, kind models.EventKind, payload models.EventPayload) error {
	data, err := json.Marshal(EmailTaskPayload{To: to, Kind: kind, Payload: payload})
	if err != nil {
		return fmt.Errorf("failed to marshal email task payload: %w", err)
	}

	// Settlement outcomes matter more than reminders.
	queue := "default"
	switch kind {
	case models.EventWon, models.EventLost, models.EventSoldToOwner, models.EventNoSale:
		queue = "critical"
	case models.EventEndingSoon, models.EventEndingToday:
		queue = "low"
	}

	task := asynq.NewTask(TypeEmailDelivery, data)
	info, err := d.client.EnqueueContext(ctx, task, asynq.Queue(queue))
	if err != nil {
		return fmt.Errorf("failed to enqueue %s notification for %s: %w", kind, to, err)
	}
	log.Printf("Enqueued %s notification task %s for %s (queue: %s)", kind, info.ID, to, queue)
	return nil
}

// --- Task Server (Processing tasks) ---

// TaskProcessor handles the processing of tasks.
// It holds dependencies needed by task handlers.
type TaskProcessor struct {
	cfg               *config.Config
	emailSender       email.Sender
	settlementService services.ISettlementService
}

func NewTaskProcessor(
	cfg *config.Config,
	emailSender email.Sender,
	settlementService services.ISettlementService,
) *TaskProcessor {
	return &TaskProcessor{
		cfg:               cfg,
		emailSender:       emailSender,
		settlementService: settlementService,
	}
}

// SetupServer configures an Asynq server instance and its handler mux.
// The caller runs the server; in API mode both returns are nil.
func SetupServer(rdb *redis.Client, processor *TaskProcessor, isBgWorker bool) (*asynq.Server, *asynq.ServeMux) {
	serverOpt := asynq.RedisClientOpt{
		Addr:     rdb.Options().Addr,
		Password: rdb.Options().Password,
		DB:       rdb.Options().DB,
	}

	srv := asynq.NewServer(
		serverOpt,
		asynq.Config{
			Queues: map[string]int{
				"critical": 6,
				"default":  3,
				"low":      1,
			},
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				fmt.Printf("[Asynq Error] Task Type: %s, Payload: %s, Error: %v\n", task.Type(), string(task.Payload()), err)
			}),
		},
	)

	mux := asynq.NewServeMux()

	if isBgWorker {
		mux.HandleFunc(TypeEmailDelivery, processor.HandleEmailDeliveryTask)
		mux.HandleFunc(TypeSettlementPass, processor.HandleSettlementPassTask)
		mux.HandleFunc(TypeEndingSoonScan, processor.HandleEndingSoonScanTask)
		mux.HandleFunc(TypeEndingTodayScan, processor.HandleEndingTodayScanTask)
		fmt.Println("Registered background task handlers (email delivery, settlement, ending scans).")
	}

	if !isBgWorker {
		fmt.Println("Running in API mode, no task server started.")
		return nil, nil
	}

	return srv, mux
}

// SetupScheduler configures an Asynq scheduler that enqueues the
// recurring settlement pass and ending scans. The caller runs it.
func SetupScheduler(rdb *redis.Client, cfg *config.Config) *asynq.Scheduler {
	schedulerOpt := asynq.RedisClientOpt{
		Addr:     rdb.Options().Addr,
		Password: rdb.Options().Password,
		DB:       rdb.Options().DB,
	}

	scheduler := asynq.NewScheduler(schedulerOpt, &asynq.SchedulerOpts{
		Location: time.UTC,
	})

	entries := []struct {
		spec     string
		taskType string
	}{
		{cfg.SettlementCron, TypeSettlementPass},
		{cfg.EndingScanCron, TypeEndingSoonScan},
		{cfg.EndingScanCron, TypeEndingTodayScan},
	}
	for _, entry := range entries {
		entryID, err := scheduler.Register(entry.spec, asynq.NewTask(entry.taskType, nil))
		if err != nil {
			log.Fatalf("Could not register scheduled task %s (%s): %v", entry.taskType, entry.spec, err)
		}
		log.Printf("Registered scheduled task %s with spec %q (entry %s)", entry.taskType, entry.spec, entryID)
	}

	return scheduler
}

// --- Task Handlers ---

// HandleEmailDeliveryTask renders and sends one notification email.
func (p *TaskProcessor) HandleEmailDeliveryTask(ctx context.Context, t *asynq.Task) error {
	var payload EmailTaskPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("failed to unmarshal email task payload: %v: %w", err, asynq.SkipRetry)
	}

	subject, body, err := email.Render(payload.Kind, payload.Payload)
	if err != nil {
		// An unknown kind will not become known on retry.
		log.Printf("Error rendering %s email for %s: %v", payload.Kind, payload.To, err)
		return fmt.Errorf("failed to render email: %v: %w", err, asynq.SkipRetry)
	}

	rawMessage := email.BuildRawMessage(p.cfg.SmtpFromAddress, payload.To, subject, body)

	if err := p.emailSender.Send(ctx, []string{payload.To}, subject, rawMessage); err != nil {
		fmt.Printf("Email sending failed (will retry?): %v\n", err)
		return err
	}

	log.Printf("Email task processed successfully: To=%s, Kind=%s", payload.To, payload.Kind)
	return nil
}

// HandleSettlementPassTask runs one settlement pass over due auctions.
func (p *TaskProcessor) HandleSettlementPassTask(ctx context.Context, t *asynq.Task) error {
	report, err := p.settlementService.RunSettlementPass(ctx, time.Now().UTC())
	if err != nil {
		log.Printf("Settlement pass failed: %v", err)
		return err
	}
	log.Printf("Settlement pass %s: scanned=%d settled=%d failed=%d", report.RunID, report.Scanned, report.Settled, report.Failed)
	return nil
}

// HandleEndingSoonScanTask notifies participants of auctions about to close.
func (p *TaskProcessor) HandleEndingSoonScanTask(ctx context.Context, t *asynq.Task) error {
	dispatched, err := p.settlementService.RunEndingSoonPass(ctx, time.Now().UTC())
	if err != nil {
		log.Printf("Ending-soon scan failed: %v", err)
		return err
	}
	log.Printf("Ending-soon scan dispatched %d notifications.", dispatched)
	return nil
}

// HandleEndingTodayScanTask notifies participants of auctions closing within the day.
func (p *TaskProcessor) HandleEndingTodayScanTask(ctx context.Context, t *asynq.Task) error {
	dispatched, err := p.settlementService.RunEndingTodayPass(ctx, time.Now().UTC())
	if err != nil {
		log.Printf("Ending-today scan failed: %v", err)
		return err
	}
	log.Printf("Ending-today scan dispatched %d notifications.", dispatched)
	return nil
}
