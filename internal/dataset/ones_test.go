package dataset

import (
	"context"
	"testing"
	"time"
)

func TestOnesSampleIsConstant(t *testing.T) {
	d := NewOnes(128, 2)
	if d.Len() != 128 {
		t.Fatalf("expected length 128, got %d", d.Len())
	}
	s := d.Sample()
	if len(s) != 2 {
		t.Fatalf("expected 2 features, got %d", len(s))
	}
	for i, v := range s {
		if v != 1.0 {
			t.Fatalf("feature %d: expected 1.0, got %f", i, v)
		}
	}
	s[0] = 42
	if d.Sample()[0] != 1.0 {
		t.Fatal("samples must be regenerated, not shared")
	}
}

func TestOnesDefaults(t *testing.T) {
	d := NewOnes(0, 0)
	if d.Len() != 128 || d.Dim() != 2 {
		t.Fatalf("unexpected defaults: len=%d dim=%d", d.Len(), d.Dim())
	}
}

func TestStreamDeliversBatches(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	batches, errCh, err := Stream(ctx, NewOnes(8, 2), StreamOptions{BatchSize: 4})
	if err != nil {
		t.Fatalf("Stream error: %v", err)
	}

	deadline := time.After(time.Second)
	for i := 0; i < 3; i++ {
		select {
		case batch := <-batches:
			if len(batch) != 4 {
				t.Fatalf("expected batch of 4, got %d", len(batch))
			}
			for _, sample := range batch {
				if len(sample) != 2 || sample[0] != 1.0 {
					t.Fatalf("unexpected sample %v", sample)
				}
			}
		case err := <-errCh:
			if err != nil {
				t.Fatalf("stream reported error: %v", err)
			}
		case <-deadline:
			t.Fatal("timed out waiting for batches")
		}
	}

	cancel()
	for err := range errCh {
		if err != nil {
			t.Fatalf("stream emitted error after cancel: %v", err)
		}
	}
}

func TestStreamRejectsBadBatchSize(t *testing.T) {
	_, _, err := Stream(context.Background(), NewOnes(8, 2), StreamOptions{})
	if err == nil {
		t.Fatal("expected error for zero batch size")
	}
}
