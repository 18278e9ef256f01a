package exporter

import (
	"sync"
	"testing"
)

func TestStoreInitialPlaceholder(t *testing.T) {
	s := NewStore()

	snap := s.Load()
	if snap.Valid {
		t.Error("initial snapshot should not be valid")
	}
	if snap != (Snapshot{}) {
		t.Errorf("initial snapshot = %+v, want zero value", snap)
	}
}

func TestStorePublishThenLoad(t *testing.T) {
	s := NewStore()

	want := Snapshot{
		Counts:      Counts{TotalStates: 7, NonHighStates: 2, ErrorStates: 1},
		LastRunUnix: 1700000000,
		Valid:       true,
	}
	if !s.Publish(want) {
		t.Fatal("Publish() should accept a valid snapshot")
	}

	if got := s.Load(); got != want {
		t.Errorf("Load() = %+v, want %+v", got, want)
	}
}

func TestStoreConsecutivePublishes(t *testing.T) {
	s := NewStore()

	s.Publish(Snapshot{Counts: Counts{5, 1, 0}, LastRunUnix: 100, Valid: true})
	s.Publish(Snapshot{Counts: Counts{5, 0, 2}, LastRunUnix: 200, Valid: true})

	got := s.Load()
	if got.Counts != (Counts{5, 0, 2}) {
		t.Errorf("Load().Counts = %+v, want {5 0 2}", got.Counts)
	}
	if got.LastRunUnix != 200 {
		t.Errorf("LastRunUnix = %d, want 200", got.LastRunUnix)
	}
}

func TestStoreRejectsInvalid(t *testing.T) {
	s := NewStore()
	good := Snapshot{Counts: Counts{TotalStates: 4}, LastRunUnix: 100, Valid: true}
	s.Publish(good)

	if s.Publish(Snapshot{LastRunUnix: 200}) {
		t.Error("Publish() should reject an invalid snapshot")
	}
	if got := s.Load(); got != good {
		t.Errorf("Load() = %+v, want previous %+v", got, good)
	}
}

func TestStoreLastRunNeverMovesBack(t *testing.T) {
	s := NewStore()
	s.Publish(Snapshot{LastRunUnix: 500, Valid: true})
	s.Publish(Snapshot{Counts: Counts{TotalStates: 1}, LastRunUnix: 400, Valid: true})

	got := s.Load()
	if got.LastRunUnix != 500 {
		t.Errorf("LastRunUnix = %d, want 500", got.LastRunUnix)
	}
	if got.TotalStates != 1 {
		t.Errorf("TotalStates = %d, want 1", got.TotalStates)
	}
}

func TestStoreLoadReturnsCopy(t *testing.T) {
	s := NewStore()
	s.Publish(Snapshot{Counts: Counts{TotalStates: 3}, Valid: true})

	snap := s.Load()
	snap.TotalStates = 99

	if got := s.Load().TotalStates; got != 3 {
		t.Errorf("stored TotalStates = %d, want 3 after mutating a loaded copy", got)
	}
}

// Readers must only ever see snapshots whose fields were published together.
// Every published snapshot has all three counts equal to its timestamp.
func TestStoreConcurrentReadersSeeWholeSnapshots(t *testing.T) {
	s := NewStore()

	var wg sync.WaitGroup
	stop := make(chan struct{})

	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				snap := s.Load()
				if !snap.Valid {
					continue
				}
				n := int(snap.LastRunUnix)
				if snap.TotalStates != n || snap.NonHighStates != n || snap.ErrorStates != n {
					t.Errorf("torn snapshot: %+v", snap)
					return
				}
			}
		}()
	}

	for n := 1; n <= 2000; n++ {
		s.Publish(Snapshot{Counts: Counts{n, n, n}, LastRunUnix: int64(n), Valid: true})
	}
	close(stop)
	wg.Wait()
}
