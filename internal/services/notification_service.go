package services

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/231Brooks/HBH-2-sub003/internal/config"
	"github.com/231Brooks/HBH-2-sub003/internal/models"
	"github.com/231Brooks/HBH-2-sub003/internal/policy"
)

// NotificationDispatcher hands one rendered-ready notification to the
// delivery channel. The concrete implementation enqueues a background
// delivery task; tests substitute a recorder.
type NotificationDispatcher interface {
	Dispatch(ctx context.Context, to string, kind models.EventKind, payload models.EventPayload) error
}

// INotificationService computes the deduplicated recipient set for a
// lifecycle event and dispatches one message per recipient. Individual
// delivery failures are logged and skipped, never propagated: a failed
// notification must not roll back a bid acceptance or a settlement.
type INotificationService interface {
	NotifyOutbid(ctx context.Context, auction *models.Auction, outbidBidderID primitive.ObjectID, outbidAmount float64) (int, error)
	NotifyEnding(ctx context.Context, auction *models.Auction, kind models.EventKind) (int, error)
	NotifySettled(ctx context.Context, auction *models.Auction, result *SettlementResult) (int, error)
}

// notificationService implements INotificationService.
type notificationService struct {
	cfg        *config.Config
	rdb        *redis.Client
	dispatcher NotificationDispatcher
	bidSvc     IBidService
	watchSvc   IWatchService
	userSvc    IUserService
	configSvc  IConfigService
}

// NewNotificationService creates a new NotificationService. rdb may be
// nil, which disables the ending-scan dedup ledger. configSvc may be
// nil, in which case the static config values are used.
func NewNotificationService(cfg *config.Config, rdb *redis.Client, dispatcher NotificationDispatcher, bidSvc IBidService, watchSvc IWatchService, userSvc IUserService, configSvc IConfigService) INotificationService {
	return &notificationService{
		cfg:        cfg,
		rdb:        rdb,
		dispatcher: dispatcher,
		bidSvc:     bidSvc,
		watchSvc:   watchSvc,
		userSvc:    userSvc,
		configSvc:  configSvc,
	}
}

// bidIncrement mirrors the bid service's lookup so the advertised
// minimum-next-bid hint always matches the enforced one.
func (s *notificationService) bidIncrement(ctx context.Context) float64 {
	if s.configSvc != nil {
		return s.configSvc.GetFloat64(ctx, "BID_INCREMENT", s.cfg.BidIncrement)
	}
	return s.cfg.BidIncrement
}

// NotifyOutbid tells the previous highest bidder their bid was
// superseded, with the new minimum needed to retake the lead.
func (s *notificationService) NotifyOutbid(ctx context.Context, auction *models.Auction, outbidBidderID primitive.ObjectID, outbidAmount float64) (int, error) {
	payload := models.EventPayload{
		AuctionTitle:   auction.Title,
		CurrencyCode:   auction.CurrencyCode,
		Amount:         outbidAmount,
		NewHighestBid:  auction.CurrentHighest(),
		MinimumNextBid: policy.MinimumNextBid(auction.CurrentHighest(), s.bidIncrement(ctx)),
		EndAt:          auction.EndAt,
	}
	recipients := []models.Recipient{{UserID: outbidBidderID, HighestBid: outbidAmount}}
	return s.dispatchAll(ctx, auction, models.EventOutbid, recipients, payload, false), nil
}

// NotifyEnding runs a "time running out" pass for one auction. The
// recipient set is every unique bidder (carrying their own highest bid)
// plus watchers who are not already in the bidder set; a user who both
// bid and watches is notified exactly once, as a bidder. A Redis SETNX
// ledger keyed (auction, recipient, kind) keeps repeated scheduler ticks
// from re-notifying the same user while the auction lingers in the
// window.
func (s *notificationService) NotifyEnding(ctx context.Context, auction *models.Auction, kind models.EventKind) (int, error) {
	if kind != models.EventEndingSoon && kind != models.EventEndingToday {
		return 0, fmt.Errorf("NotifyEnding called with non-ending event kind %s", kind)
	}

	bids, err := s.bidSvc.FindBidsByAuction(ctx, auction.ID)
	if err != nil {
		return 0, fmt.Errorf("failed to load bids for ending notification on auction %s: %w", auction.ID.Hex(), err)
	}
	watches, err := s.watchSvc.FindWatchersByAuction(ctx, auction.ID)
	if err != nil {
		return 0, fmt.Errorf("failed to load watchers for ending notification on auction %s: %w", auction.ID.Hex(), err)
	}

	recipients := ComputeEndingRecipients(bids, watches)
	payload := models.EventPayload{
		AuctionTitle:   auction.Title,
		CurrencyCode:   auction.CurrencyCode,
		MinimumNextBid: policy.MinimumNextBid(auction.CurrentHighest(), s.bidIncrement(ctx)),
		EndAt:          auction.EndAt,
	}
	return s.dispatchAll(ctx, auction, kind, recipients, payload, true), nil
}

// NotifySettled fans out the terminal outcome: WON to the winner, LOST
// to every other bidder, and SOLD_TO_OWNER or NO_SALE to the property
// owner. Callers gate on SettlementResult.Transitioned so idempotent
// re-settles never re-dispatch.
func (s *notificationService) NotifySettled(ctx context.Context, auction *models.Auction, result *SettlementResult) (int, error) {
	bids, err := s.bidSvc.FindBidsByAuction(ctx, auction.ID)
	if err != nil {
		return 0, fmt.Errorf("failed to load bids for settlement notification on auction %s: %w", auction.ID.Hex(), err)
	}

	basePayload := models.EventPayload{
		AuctionTitle: auction.Title,
		CurrencyCode: auction.CurrencyCode,
		EndAt:        auction.EndAt,
	}
	if result.FinalPrice != nil {
		basePayload.FinalPrice = *result.FinalPrice
	}

	dispatched := 0

	winner, losers := ComputeSettlementRecipients(result.WinnerID, bids)
	if winner != nil {
		wonPayload := basePayload
		wonPayload.Amount = winner.HighestBid
		dispatched += s.dispatchAll(ctx, auction, models.EventWon, []models.Recipient{*winner}, wonPayload, false)
	}
	for _, loser := range losers {
		lostPayload := basePayload
		lostPayload.Amount = loser.HighestBid
		dispatched += s.dispatchAll(ctx, auction, models.EventLost, []models.Recipient{loser}, lostPayload, false)
	}

	ownerKind := models.EventNoSale
	if result.Status == models.AuctionEndedSold {
		ownerKind = models.EventSoldToOwner
	}
	owner := []models.Recipient{{UserID: auction.OwnerID}}
	dispatched += s.dispatchAll(ctx, auction, ownerKind, owner, basePayload, false)

	return dispatched, nil
}

// dispatchAll resolves contacts and fires one dispatch per recipient.
// Per-recipient failures are logged and do not stop the batch.
func (s *notificationService) dispatchAll(ctx context.Context, auction *models.Auction, kind models.EventKind, recipients []models.Recipient, payload models.EventPayload, dedup bool) int {
	if len(recipients) == 0 {
		return 0
	}

	ids := make([]primitive.ObjectID, 0, len(recipients))
	for _, r := range recipients {
		ids = append(ids, r.UserID)
	}
	users, err := s.userSvc.FindByIDs(ctx, ids)
	if err != nil {
		log.Printf("ERROR: failed to resolve notification recipients for auction %s (%s): %v", auction.ID.Hex(), kind, err)
		return 0
	}

	dispatched := 0
	for _, r := range recipients {
		user, ok := users[r.UserID]
		if !ok || user.Email == "" {
			log.Printf("Skipping %s notification for auction %s: no contact for user %s", kind, auction.ID.Hex(), r.UserID.Hex())
			continue
		}

		if dedup && !s.claimDedupKey(ctx, auction.ID, r.UserID, kind) {
			continue
		}

		p := payload
		if r.HighestBid > 0 {
			p.Amount = r.HighestBid
		}

		if err := s.dispatcher.Dispatch(ctx, user.Email, kind, p); err != nil {
			log.Printf("ERROR: failed to dispatch %s notification to %s for auction %s: %v", kind, user.Email, auction.ID.Hex(), err)
			continue
		}
		dispatched++
	}
	return dispatched
}

// claimDedupKey returns true if this (auction, recipient, kind) has not
// been notified within the ledger TTL, claiming the key as a side
// effect. With no Redis configured the ledger is disabled and every
// claim succeeds.
func (s *notificationService) claimDedupKey(ctx context.Context, auctionID, userID primitive.ObjectID, kind models.EventKind) bool {
	if s.rdb == nil {
		return true
	}
	key := fmt.Sprintf("notify:%s:%s:%s", auctionID.Hex(), userID.Hex(), kind)
	ok, err := s.rdb.SetNX(ctx, key, time.Now().UTC().Format(time.RFC3339), s.cfg.NotifyDedupTTL).Result()
	if err != nil {
		// Ledger unavailable: prefer a duplicate notification over a missed one.
		log.Printf("WARN: notification dedup ledger unavailable for key %s: %v", key, err)
		return true
	}
	return ok
}

// ComputeEndingRecipients builds the deduplicated recipient set for the
// ending-soon/ending-today passes: one entry per unique bidder keyed by
// bidder id carrying their own highest bid, plus watchers not already
// present as bidders.
func ComputeEndingRecipients(bids []models.Bid, watches []models.Watch) []models.Recipient {
	byBidder := make(map[primitive.ObjectID]float64)
	order := make([]primitive.ObjectID, 0, len(bids))
	for _, bid := range bids {
		if existing, seen := byBidder[bid.BidderID]; !seen {
			byBidder[bid.BidderID] = bid.Amount
			order = append(order, bid.BidderID)
		} else if bid.Amount > existing {
			byBidder[bid.BidderID] = bid.Amount
		}
	}

	recipients := make([]models.Recipient, 0, len(order)+len(watches))
	for _, bidderID := range order {
		recipients = append(recipients, models.Recipient{UserID: bidderID, HighestBid: byBidder[bidderID]})
	}
	for _, w := range watches {
		if _, isBidder := byBidder[w.UserID]; isBidder {
			continue
		}
		recipients = append(recipients, models.Recipient{UserID: w.UserID, IsWatcher: true})
	}
	return recipients
}

// ComputeSettlementRecipients splits the unique bidders of an auction
// into the winner (nil when the auction did not sell) and everyone
// else, each carrying their own highest bid.
func ComputeSettlementRecipients(winnerID *primitive.ObjectID, bids []models.Bid) (*models.Recipient, []models.Recipient) {
	byBidder := make(map[primitive.ObjectID]float64)
	order := make([]primitive.ObjectID, 0, len(bids))
	for _, bid := range bids {
		if existing, seen := byBidder[bid.BidderID]; !seen {
			byBidder[bid.BidderID] = bid.Amount
			order = append(order, bid.BidderID)
		} else if bid.Amount > existing {
			byBidder[bid.BidderID] = bid.Amount
		}
	}

	var winner *models.Recipient
	losers := make([]models.Recipient, 0, len(order))
	for _, bidderID := range order {
		r := models.Recipient{UserID: bidderID, HighestBid: byBidder[bidderID]}
		if winnerID != nil && bidderID == *winnerID {
			w := r
			winner = &w
			continue
		}
		losers = append(losers, r)
	}
	return winner, losers
}
