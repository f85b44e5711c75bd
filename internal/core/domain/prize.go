package domain

import (
	"fmt"
	"math/bits"
	"sort"
	"strconv"
	"strings"
)

// BasisPoints is the unit used for the platform cut and for every prize share.
const BasisPoints = 10000

// DistributionTable maps a winner count to the prize split of each rank,
// expressed in basis points and ordered from 1st place down.
type DistributionTable map[int][]uint32

// ParseDistributionTable parses the "count:bps,bps;count:bps" notation, ie.
// "1:10000;2:6000,4000;3:5000,3000,2000".
func ParseDistributionTable(s string) (DistributionTable, error) {
	table := make(DistributionTable)
	for _, row := range strings.Split(s, ";") {
		row = strings.TrimSpace(row)
		if row == "" {
			continue
		}
		key, value, ok := strings.Cut(row, ":")
		if !ok {
			return nil, fmt.Errorf("invalid distribution row %q: missing ':'", row)
		}
		count, err := strconv.Atoi(strings.TrimSpace(key))
		if err != nil {
			return nil, fmt.Errorf("invalid winner count in row %q: %w", row, err)
		}
		if count < 1 {
			return nil, fmt.Errorf(
				"%w: winner count must be at least 1 in row %q", ErrInvalidConfig, row,
			)
		}
		var shares []uint32
		for _, v := range strings.Split(value, ",") {
			bps, err := strconv.ParseUint(strings.TrimSpace(v), 10, 32)
			if err != nil {
				return nil, fmt.Errorf("invalid share in row %q: %w", row, err)
			}
			shares = append(shares, uint32(bps))
		}
		if _, ok := table[count]; ok {
			return nil, fmt.Errorf("duplicated distribution row for %d winners", count)
		}
		table[count] = shares
	}
	if err := table.Validate(); err != nil {
		return nil, err
	}
	return table, nil
}

func (t DistributionTable) Validate() error {
	if len(t) == 0 {
		return fmt.Errorf("%w: empty distribution table", ErrInvalidConfig)
	}
	for count, shares := range t {
		if err := validateShares(count, shares); err != nil {
			return err
		}
	}
	return nil
}

func (t DistributionTable) Get(winnerCount int) ([]uint32, bool) {
	shares, ok := t[winnerCount]
	if !ok {
		return nil, false
	}
	return append([]uint32{}, shares...), true
}

func (t DistributionTable) String() string {
	counts := make([]int, 0, len(t))
	for count := range t {
		counts = append(counts, count)
	}
	sort.Ints(counts)

	rows := make([]string, 0, len(counts))
	for _, count := range counts {
		shares := make([]string, 0, len(t[count]))
		for _, bps := range t[count] {
			shares = append(shares, strconv.FormatUint(uint64(bps), 10))
		}
		rows = append(rows, fmt.Sprintf("%d:%s", count, strings.Join(shares, ",")))
	}
	return strings.Join(rows, ";")
}

func validateShares(count int, shares []uint32) error {
	if count < 1 {
		return fmt.Errorf("%w: winner count must be at least 1, got %d", ErrInvalidConfig, count)
	}
	if len(shares) != count {
		return fmt.Errorf(
			"%w: distribution for %d winners has %d shares", ErrInvalidConfig, count, len(shares),
		)
	}
	var sum uint64
	for _, bps := range shares {
		sum += uint64(bps)
	}
	if sum != BasisPoints {
		return fmt.Errorf(
			"%w: distribution for %d winners sums to %d bps, expected %d",
			ErrInvalidConfig, count, sum, BasisPoints,
		)
	}
	return nil
}

// PrizeSplit is the outcome of dividing a frozen pool among the winners.
// Amounts[i] is the prize of the i-th winner. Retained holds the shares of
// ranks nobody filled. Sum(Amounts) + Retained == NetPool, always.
type PrizeSplit struct {
	Pool     uint64
	NetPool  uint64
	Amounts  []uint64
	Retained uint64
}

// SplitPrize computes the prizes of numOfWinners winners out of pool, after
// taking cutBps as platform fee. Every rank share is floored; the rounding
// remainder goes to 1st place so that no unit is created or lost.
func SplitPrize(pool uint64, cutBps uint32, shares []uint32, numOfWinners int) (PrizeSplit, error) {
	if err := validateShares(len(shares), shares); err != nil {
		return PrizeSplit{}, err
	}
	if cutBps >= BasisPoints {
		return PrizeSplit{}, fmt.Errorf(
			"%w: platform cut must be lower than %d bps", ErrInvalidConfig, BasisPoints,
		)
	}
	if numOfWinners < 0 {
		numOfWinners = 0
	}
	if numOfWinners > len(shares) {
		numOfWinners = len(shares)
	}

	net := mulDiv(pool, BasisPoints-uint64(cutBps), BasisPoints)

	rankAmounts := make([]uint64, len(shares))
	var distributed uint64
	for i, bps := range shares {
		rankAmounts[i] = mulDiv(net, uint64(bps), BasisPoints)
		distributed += rankAmounts[i]
	}
	rankAmounts[0] += net - distributed

	split := PrizeSplit{
		Pool:    pool,
		NetPool: net,
		Amounts: append([]uint64{}, rankAmounts[:numOfWinners]...),
	}
	for _, amount := range rankAmounts[numOfWinners:] {
		split.Retained += amount
	}
	return split, nil
}

// mulDiv returns floor(a*b/c) without overflowing on large pools.
func mulDiv(a, b, c uint64) uint64 {
	hi, lo := bits.Mul64(a, b)
	if hi >= c {
		// only reachable with pools far beyond any real currency supply
		return ^uint64(0)
	}
	q, _ := bits.Div64(hi, lo, c)
	return q
}
