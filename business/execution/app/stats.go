package app

import (
	"context"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/fd1az/flashloan-engine/business/execution/domain"
)

// DefaultTopPerformers bounds the top performer board.
const DefaultTopPerformers = 10

// StatsTracker keeps running aggregates of execution results. Results are
// the only input; the aggregates never influence selection or admission.
type StatsTracker struct {
	topN  int
	share decimal.Decimal

	mu         sync.Mutex
	total      int
	successes  int
	profit     decimal.Decimal
	fund       decimal.Decimal
	byReceiver map[string]*domain.Performer
}

// NewStatsTracker creates a tracker. fundShare is the fraction of realized
// profit credited to the shared fund; zero disables it.
func NewStatsTracker(topN int, fundShare decimal.Decimal) *StatsTracker {
	if topN <= 0 {
		topN = DefaultTopPerformers
	}
	return &StatsTracker{
		topN:       topN,
		share:      fundShare,
		byReceiver: make(map[string]*domain.Performer),
	}
}

// Record folds one result into the aggregates.
func (s *StatsTracker) Record(_ context.Context, r domain.Result) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.total++
	if !r.Success {
		return nil
	}
	s.successes++
	s.profit = s.profit.Add(r.RealizedProfit)
	if s.share.IsPositive() {
		s.fund = s.fund.Add(r.RealizedProfit.Mul(s.share))
	}

	key := performerKey(r.Receiver)
	p, ok := s.byReceiver[key]
	if !ok {
		p = &domain.Performer{Receiver: key}
		s.byReceiver[key] = p
	}
	p.Profit = p.Profit.Add(r.RealizedProfit)
	p.Executions++
	return nil
}

// Snapshot returns a copy of the aggregates with at most topN performers,
// ordered by profit, then executions, then receiver.
func (s *StatsTracker) Snapshot() domain.CommunityStats {
	s.mu.Lock()
	defer s.mu.Unlock()

	performers := make([]domain.Performer, 0, len(s.byReceiver))
	for _, p := range s.byReceiver {
		performers = append(performers, *p)
	}
	sort.Slice(performers, func(i, j int) bool {
		a, b := performers[i], performers[j]
		if c := a.Profit.Cmp(b.Profit); c != 0 {
			return c > 0
		}
		if a.Executions != b.Executions {
			return a.Executions > b.Executions
		}
		return a.Receiver < b.Receiver
	})
	if len(performers) > s.topN {
		performers = performers[:s.topN]
	}

	return domain.CommunityStats{
		TotalExecutions:      s.total,
		SuccessfulExecutions: s.successes,
		TotalProfit:          s.profit,
		FundBalance:          s.fund,
		TopPerformers:        performers,
	}
}

// performerKey folds the spellings of one address into its checksummed form.
func performerKey(receiver string) string {
	if common.IsHexAddress(receiver) {
		return common.HexToAddress(receiver).Hex()
	}
	return receiver
}
