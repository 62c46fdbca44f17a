package blocks

import (
	"context"
	"testing"
	"time"
)

func TestLoadFromFile(t *testing.T) {
	registry := NewRegistry()

	if err := registry.LoadFromFile("testdata/blocks.yaml"); err != nil {
		t.Fatal(err)
	}

	if registry.Len() != 2 {
		t.Fatalf("expected 2 blocks, got %d", registry.Len())
	}

	block := registry.Get("block-1")
	if block == nil {
		t.Fatal("expected block-1")
	}
	if block.Timezone != "UTC" || block.ServiceDate != "2024-05-01" {
		t.Errorf("unexpected service day %s %s", block.ServiceDate, block.Timezone)
	}
	if !block.StartTime.Equal(time.Date(2024, 5, 1, 7, 50, 0, 0, time.UTC)) {
		t.Errorf("unexpected start time %s", block.StartTime)
	}

	stopPath := block.Trips[0].Path[1]
	if len(stopPath.Track) != 2 || stopPath.Track[1].Longitude() != -0.08 {
		t.Errorf("expected track to be resolved, got %v", stopPath.Track)
	}

	if registry.Get("missing") != nil {
		t.Error("expected nil for unknown block")
	}
}

func TestGetCurrentlyActiveBlocks(t *testing.T) {
	registry := NewRegistry()
	if err := registry.LoadFromFile("testdata/blocks.yaml"); err != nil {
		t.Fatal(err)
	}

	activeBlocks, err := registry.GetCurrentlyActiveBlocks(context.Background(), time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatal(err)
	}
	if len(activeBlocks) != 1 || activeBlocks[0].PrimaryIdentifier != "block-1" {
		t.Errorf("expected only block-1 to be active, got %d blocks", len(activeBlocks))
	}

	activeBlocks, _ = registry.GetCurrentlyActiveBlocks(context.Background(), time.Date(2024, 5, 1, 9, 30, 0, 0, time.UTC))
	if len(activeBlocks) != 0 {
		t.Errorf("expected no active blocks between services, got %d", len(activeBlocks))
	}
}

func TestLoadFromFileErrors(t *testing.T) {
	registry := NewRegistry()

	if err := registry.LoadFromFile("testdata/missing.yaml"); err == nil {
		t.Error("expected error for missing file")
	}
}
