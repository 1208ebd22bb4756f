package pagination

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

// pagedSource serves n items in pages using "c<offset>" cursors.
type pagedSource struct {
	n     int
	calls int
	fail  int
}

func (s *pagedSource) fetch(_ context.Context, first int, after string) (*Page[int], error) {
	s.calls++
	if s.fail > 0 && s.calls == s.fail {
		return nil, errors.New("upstream down")
	}
	start := 0
	if after != "" {
		fmt.Sscanf(after, "c%d", &start)
	}
	end := start + first
	if end > s.n {
		end = s.n
	}
	page := &Page[int]{HasNextPage: end < s.n, EndCursor: fmt.Sprintf("c%d", end)}
	for i := start; i < end; i++ {
		page.Items = append(page.Items, i)
	}
	return page, nil
}

func TestCollect_AllPages(t *testing.T) {
	src := &pagedSource{n: 23}
	items, err := Collect(context.Background(), Config{PageSize: 5}, src.fetch)
	if err != nil {
		t.Fatalf("Collect() error = %v", err)
	}
	if len(items) != 23 {
		t.Errorf("len(items) = %d, want 23", len(items))
	}
	if src.calls != 5 {
		t.Errorf("calls = %d, want 5", src.calls)
	}
	for i, v := range items {
		if v != i {
			t.Fatalf("items[%d] = %d, order not preserved", i, v)
		}
	}
}

func TestCollect_PageCeiling(t *testing.T) {
	src := &pagedSource{n: 1000}
	items, err := Collect(context.Background(), Config{PageSize: 10, MaxPages: 3}, src.fetch)
	if err != nil {
		t.Fatalf("Collect() error = %v", err)
	}
	if src.calls != 3 {
		t.Errorf("calls = %d, want 3", src.calls)
	}
	if len(items) != 30 {
		t.Errorf("len(items) = %d, want 30", len(items))
	}
}

func TestCollect_StuckCursor(t *testing.T) {
	calls := 0
	fetch := func(context.Context, int, string) (*Page[int], error) {
		calls++
		return &Page[int]{Items: []int{calls}, HasNextPage: true, EndCursor: "same"}, nil
	}

	items, err := Collect(context.Background(), Config{MaxPages: 40}, fetch)
	if err != nil {
		t.Fatalf("Collect() error = %v", err)
	}
	if calls != 2 || len(items) != 2 {
		t.Errorf("calls = %d, items = %v; a repeated cursor must stop the walk", calls, items)
	}
}

func TestCollect_ErrorAborts(t *testing.T) {
	src := &pagedSource{n: 100, fail: 2}
	items, err := Collect(context.Background(), Config{PageSize: 10}, src.fetch)
	if err == nil {
		t.Fatal("Collect() error = nil, want error")
	}
	if items != nil {
		t.Errorf("items = %v, want nil on error", items)
	}
}

func TestCollect_Empty(t *testing.T) {
	src := &pagedSource{n: 0}
	items, err := Collect(context.Background(), DefaultConfig(), src.fetch)
	if err != nil {
		t.Fatalf("Collect() error = %v", err)
	}
	if len(items) != 0 || src.calls != 1 {
		t.Errorf("items = %v, calls = %d", items, src.calls)
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.MaxPages != 40 {
		t.Errorf("MaxPages = %d, want 40", cfg.MaxPages)
	}
	if cfg.BatchSize != 50 {
		t.Errorf("BatchSize = %d, want 50", cfg.BatchSize)
	}
}
