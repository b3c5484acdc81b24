package infra

import (
	"sync"
	"testing"
)

func TestMetrics_RecordOp(t *testing.T) {
	m := &Metrics{}

	m.RecordOp("place_bet", true, 1000)
	m.RecordOp("place_bet", false, 2000)
	m.RecordOp("resolve", true, 3000)

	snap := m.Snapshot()

	if got := snap.Ops["place_bet"]; got.Success != 1 || got.Failure != 1 {
		t.Errorf("Expected place_bet 1/1, got %+v", got)
	}
	if got := snap.Ops["resolve"]; got.Success != 1 || got.Failure != 0 {
		t.Errorf("Expected resolve 1/0, got %+v", got)
	}
	if snap.ErrorsTotal != 1 {
		t.Errorf("Expected 1 error, got %d", snap.ErrorsTotal)
	}

	// Average latency: (1000 + 2000 + 3000) / 3 = 2000
	if snap.AvgLatencyNs != 2000 {
		t.Errorf("Expected avg latency 2000, got %d", snap.AvgLatencyNs)
	}
}

func TestMetrics_RecordOpConcurrent(t *testing.T) {
	m := &Metrics{}

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.RecordOp("create", true, 1)
		}()
	}
	wg.Wait()

	if got := m.Snapshot().Ops["create"].Success; got != 50 {
		t.Errorf("Expected 50 creates, got %d", got)
	}
}

func TestMetrics_Connections(t *testing.T) {
	m := &Metrics{}

	m.IncrementConnections()
	m.IncrementConnections()
	m.IncrementConnections()

	snap := m.Snapshot()
	if snap.ActiveConnections != 3 {
		t.Errorf("Expected 3 connections, got %d", snap.ActiveConnections)
	}

	m.DecrementConnections()
	snap = m.Snapshot()
	if snap.ActiveConnections != 2 {
		t.Errorf("Expected 2 connections, got %d", snap.ActiveConnections)
	}
}

func TestMetrics_Reset(t *testing.T) {
	m := &Metrics{}

	m.RecordOp("close", false, 1000)
	m.RecordEventJournaled()
	m.RecordLatch()
	m.IncrementConnections()

	m.Reset()
	snap := m.Snapshot()

	if len(snap.Ops) != 0 {
		t.Error("Expected no op counters after reset")
	}
	if snap.EventsJournaled != 0 || snap.Latches != 0 {
		t.Error("Expected 0 events and latches after reset")
	}
	if snap.ErrorsTotal != 0 {
		t.Error("Expected 0 errors after reset")
	}
	if snap.ActiveConnections != 0 {
		t.Error("Expected 0 connections after reset")
	}
}
