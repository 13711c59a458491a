package services

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/231Brooks/HBH-2-sub003/internal/config"
	"github.com/231Brooks/HBH-2-sub003/internal/models"
	"github.com/231Brooks/HBH-2-sub003/internal/storage"
)

// ISettlementService is the batch processor driven by the external
// scheduler: the settlement pass finalizes every due auction, and the
// two ending scans push "time running out" notifications.
type ISettlementService interface {
	RunSettlementPass(ctx context.Context, now time.Time) (*SettlementPassReport, error)
	RunEndingSoonPass(ctx context.Context, now time.Time) (int, error)
	RunEndingTodayPass(ctx context.Context, now time.Time) (int, error)
}

// SettlementPassReport summarizes one settlement pass for operators.
type SettlementPassReport struct {
	RunID      string               `json:"run_id"`
	StartedAt  time.Time            `json:"started_at"`
	FinishedAt time.Time            `json:"finished_at"`
	Scanned    int                  `json:"scanned"`
	Settled    int                  `json:"settled"`
	Failed     int                  `json:"failed"`
	Items      []SettlementPassItem `json:"items"`
}

// SettlementPassItem is the per-auction outcome within a pass.
type SettlementPassItem struct {
	AuctionID     primitive.ObjectID   `json:"auction_id"`
	Status        models.AuctionStatus `json:"status,omitempty"`
	WinnerID      *primitive.ObjectID  `json:"winner_id,omitempty"`
	FinalPrice    *float64             `json:"final_price,omitempty"`
	ReserveMet    bool                 `json:"reserve_met"`
	TotalBids     int                  `json:"total_bids"`
	UniqueBidders int                  `json:"unique_bidders"`
	Notified      int                  `json:"notified"`
	Error         string               `json:"error,omitempty"`
}

// settlementService implements ISettlementService.
type settlementService struct {
	cfg          *config.Config
	auctionSvc   IAuctionService
	analyticsSvc IAnalyticsService
	notifySvc    INotificationService
	archive      storage.IReportArchive
}

// NewSettlementService creates a new SettlementService. archive may be
// nil to skip report archiving.
func NewSettlementService(cfg *config.Config, auctionSvc IAuctionService, analyticsSvc IAnalyticsService, notifySvc INotificationService, archive storage.IReportArchive) ISettlementService {
	return &settlementService{
		cfg:          cfg,
		auctionSvc:   auctionSvc,
		analyticsSvc: analyticsSvc,
		notifySvc:    notifySvc,
		archive:      archive,
	}
}

// RunSettlementPass finalizes every ACTIVE auction whose end time has
// passed. Auctions are settled independently: one failure is recorded
// in the report and does not abort the rest of the pass. Re-running the
// pass is safe; already-terminal auctions are no-ops and dispatch no
// notifications.
func (s *settlementService) RunSettlementPass(ctx context.Context, now time.Time) (*SettlementPassReport, error) {
	report := &SettlementPassReport{
		RunID:     uuid.NewString(),
		StartedAt: now.UTC(),
	}

	due, err := s.auctionSvc.FindDueAuctions(ctx, now)
	if err != nil {
		return nil, err
	}
	report.Scanned = len(due)

	for _, auction := range due {
		item := SettlementPassItem{AuctionID: auction.ID}

		result, err := s.auctionSvc.Settle(ctx, auction.ID, now)
		if err != nil {
			// NotYetEnded here means an extension landed after the scan;
			// the auction will come due on a later pass.
			if errors.Is(err, ErrNotYetEnded) {
				log.Printf("Auction %s extended past the scan window, skipping settlement this pass.", auction.ID.Hex())
				report.Scanned--
				continue
			}
			log.Printf("ERROR: failed to settle auction %s: %v", auction.ID.Hex(), err)
			item.Error = err.Error()
			report.Failed++
			report.Items = append(report.Items, item)
			continue
		}

		item.Status = result.Status
		item.WinnerID = result.WinnerID
		item.FinalPrice = result.FinalPrice
		item.ReserveMet = result.ReserveMet
		item.TotalBids = result.TotalBids
		item.UniqueBidders = result.UniqueBidders

		if result.Transitioned {
			report.Settled++

			if _, err := s.analyticsSvc.Recompute(ctx, auction.ID); err != nil {
				log.Printf("WARN: failed to recompute analytics for settled auction %s: %v", auction.ID.Hex(), err)
			}

			// Notifications dispatch only on the actual transition. The
			// auction snapshot from the scan predates settlement, so the
			// outcome fields come from the result instead.
			settled := auction
			settled.Status = result.Status
			settled.WinnerID = result.WinnerID
			settled.FinalPrice = result.FinalPrice
			notified, err := s.notifySvc.NotifySettled(ctx, &settled, result)
			if err != nil {
				log.Printf("ERROR: settlement notifications failed for auction %s: %v", auction.ID.Hex(), err)
			}
			item.Notified = notified
		}

		report.Items = append(report.Items, item)
	}

	report.FinishedAt = time.Now().UTC()
	s.archiveReport(ctx, report)

	log.Printf("Settlement pass %s finished: scanned=%d settled=%d failed=%d", report.RunID, report.Scanned, report.Settled, report.Failed)
	return report, nil
}

// RunEndingSoonPass notifies bidders and watchers of auctions closing
// within the short lead window. Returns the number of dispatches.
func (s *settlementService) RunEndingSoonPass(ctx context.Context, now time.Time) (int, error) {
	return s.runEndingPass(ctx, now, s.cfg.EndingSoonWindow, models.EventEndingSoon)
}

// RunEndingTodayPass is the long lead window variant.
func (s *settlementService) RunEndingTodayPass(ctx context.Context, now time.Time) (int, error) {
	return s.runEndingPass(ctx, now, s.cfg.EndingTodayWindow, models.EventEndingToday)
}

func (s *settlementService) runEndingPass(ctx context.Context, now time.Time, window time.Duration, kind models.EventKind) (int, error) {
	auctions, err := s.auctionSvc.FindAuctionsEndingWithin(ctx, now, window)
	if err != nil {
		return 0, err
	}

	dispatched := 0
	for _, auction := range auctions {
		n, err := s.notifySvc.NotifyEnding(ctx, &auction, kind)
		if err != nil {
			log.Printf("ERROR: %s pass failed for auction %s: %v", kind, auction.ID.Hex(), err)
			continue
		}
		dispatched += n
	}
	return dispatched, nil
}

func (s *settlementService) archiveReport(ctx context.Context, report *SettlementPassReport) {
	if s.archive == nil {
		return
	}
	data, err := json.Marshal(report)
	if err != nil {
		log.Printf("WARN: failed to marshal settlement report %s: %v", report.RunID, err)
		return
	}
	key, err := s.archive.PutReport(ctx, report.RunID, report.StartedAt, data)
	if err != nil {
		log.Printf("WARN: failed to archive settlement report %s: %v", report.RunID, err)
		return
	}
	log.Printf("Settlement report %s archived at %s", report.RunID, key)
}
