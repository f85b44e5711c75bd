package domain_test

import (
	"errors"
	"testing"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/lastword-games/roundd/internal/core/domain"
	"github.com/stretchr/testify/require"
)

func TestParseDistributionTable(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		table, err := domain.ParseDistributionTable("1:10000; 2:6000,4000;3:5000,3000,2000")
		require.NoError(t, err)
		require.Len(t, table, 3)

		shares, ok := table.Get(3)
		require.True(t, ok)
		require.Equal(t, []uint32{5000, 3000, 2000}, shares)

		_, ok = table.Get(4)
		require.False(t, ok)

		require.Equal(t, "1:10000;2:6000,4000;3:5000,3000,2000", table.String())
	})

	t.Run("invalid", func(t *testing.T) {
		fixtures := []struct {
			table string
		}{
			{""},
			{"3"},
			{"x:10000"},
			{"2:5000,4000"},
			{"3:5000,5000"},
			{"0:"},
			{"1:10000;1:10000"},
			{"2:5000,abc"},
			{"-1:10000"},
			{"-3:5000,3000,2000"},
			{"9999999999999:10000"},
		}
		for _, f := range fixtures {
			_, err := domain.ParseDistributionTable(f.table)
			require.Error(t, err, f.table)
		}
	})
}

func TestSplitPrize(t *testing.T) {
	threeWay := []uint32{5000, 3000, 2000}

	t.Run("scenario", func(t *testing.T) {
		// 10 participants paying 700 naira, expressed in kobo
		split, err := domain.SplitPrize(700000, 1000, threeWay, 3)
		require.NoError(t, err)
		require.Equal(t, uint64(630000), split.NetPool)
		require.Equal(t, []uint64{315000, 189000, 126000}, split.Amounts)
		require.Zero(t, split.Retained)
	})

	t.Run("remainder goes to first place", func(t *testing.T) {
		split, err := domain.SplitPrize(1001, 0, []uint32{3334, 3333, 3333}, 3)
		require.NoError(t, err)
		require.Equal(t, uint64(1001), split.NetPool)
		// 333 + 333 + 333 leaves 2 units to first place
		require.Equal(t, []uint64{335, 333, 333}, split.Amounts)
	})

	t.Run("missing winners are retained", func(t *testing.T) {
		split, err := domain.SplitPrize(10000, 1000, threeWay, 2)
		require.NoError(t, err)
		require.Equal(t, []uint64{4500, 2700}, split.Amounts)
		require.Equal(t, uint64(1800), split.Retained)

		split, err = domain.SplitPrize(10000, 1000, threeWay, 0)
		require.NoError(t, err)
		require.Empty(t, split.Amounts)
		require.Equal(t, split.NetPool, split.Retained)
	})

	t.Run("invalid", func(t *testing.T) {
		_, err := domain.SplitPrize(100, 10000, threeWay, 3)
		require.True(t, errors.Is(err, domain.ErrInvalidConfig))

		_, err = domain.SplitPrize(100, 0, []uint32{5000, 4000}, 2)
		require.True(t, errors.Is(err, domain.ErrInvalidConfig))
	})

	t.Run("large pool", func(t *testing.T) {
		pool := ^uint64(0) / 2
		split, err := domain.SplitPrize(pool, 1, []uint32{10000}, 1)
		require.NoError(t, err)
		require.Equal(t, split.NetPool, split.Amounts[0])
		require.Less(t, split.NetPool, pool)
	})
}

func TestSplitPrizeConservation(t *testing.T) {
	faker := gofakeit.New(42)

	for i := 0; i < 500; i++ {
		numOfShares := faker.Number(1, 10)
		shares := randomShares(faker, numOfShares)
		pool := uint64(faker.Number(0, 1_000_000_000))
		cut := uint32(faker.Number(0, domain.BasisPoints-1))
		winners := faker.Number(0, numOfShares)

		split, err := domain.SplitPrize(pool, cut, shares, winners)
		require.NoError(t, err)

		expectedNet := pool * uint64(domain.BasisPoints-cut) / domain.BasisPoints
		require.Equal(t, expectedNet, split.NetPool)
		require.Len(t, split.Amounts, winners)

		total := split.Retained
		for _, amount := range split.Amounts {
			total += amount
		}
		require.Equal(t, split.NetPool, total, "pool %d cut %d shares %v", pool, cut, shares)
	}
}

func randomShares(faker *gofakeit.Faker, n int) []uint32 {
	shares := make([]uint32, n)
	left := domain.BasisPoints
	for i := 0; i < n-1; i++ {
		bps := faker.Number(0, left)
		shares[i] = uint32(bps)
		left -= bps
	}
	shares[n-1] = uint32(left)
	return shares
}
