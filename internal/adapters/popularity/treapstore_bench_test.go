package popularity

import (
	"context"
	"math/rand"
	"strconv"
	"testing"
)

const benchBooks = 10_000

func seededTreap(b *testing.B) *TreapStore {
	b.Helper()
	s := NewTreapStore()
	ctx := context.Background()
	r := rand.New(rand.NewSource(1))
	for i := 0; i < benchBooks*5; i++ {
		if err := s.Increment(ctx, r.Int63n(benchBooks)+1); err != nil {
			b.Fatal(err)
		}
	}
	return s
}

func BenchmarkTreapIncrement(b *testing.B) {
	s := seededTreap(b)
	ctx := context.Background()
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = s.Increment(ctx, int64(i%benchBooks)+1)
	}
}

func BenchmarkTreapIncrementParallel(b *testing.B) {
	s := seededTreap(b)
	b.ReportAllocs()
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		ctx := context.Background()
		r := rand.New(rand.NewSource(rand.Int63()))
		for pb.Next() {
			_ = s.Increment(ctx, r.Int63n(benchBooks)+1)
		}
	})
}

func BenchmarkTreapTopN(b *testing.B) {
	s := seededTreap(b)
	ctx := context.Background()
	for _, n := range []int{10, 100} {
		b.Run("top"+strconv.Itoa(n), func(b *testing.B) {
			b.ReportAllocs()
			for i := 0; i < b.N; i++ {
				if _, err := s.TopN(ctx, n); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}
