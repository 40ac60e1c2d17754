package tabfile

import (
	"context"
	"os"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	taberrors "github.com/maruel/tabdb/internal/errors"
)

// shortenLockWait tightens the retry cadence for contention tests and
// restores it afterwards.
func shortenLockWait(t *testing.T, wait time.Duration) {
	t.Helper()
	oldInterval, oldWait := lockRetryInterval, lockMaxWait
	lockRetryInterval = time.Millisecond
	lockMaxWait = wait
	t.Cleanup(func() {
		lockRetryInterval = oldInterval
		lockMaxWait = oldWait
	})
}

func TestAcquireRelease(t *testing.T) {
	ctx := context.Background()
	path := newTablePath(t)

	lock, err := Acquire(ctx, path)
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	if _, err := os.Stat(path + lockSuffix); err != nil {
		t.Errorf("lock directory missing while held: %v", err)
	}

	if err := lock.Release(); err != nil {
		t.Fatalf("Release failed: %v", err)
	}
	if _, err := os.Stat(path + lockSuffix); !os.IsNotExist(err) {
		t.Errorf("lock directory still present after release: %v", err)
	}

	// Idempotent.
	if err := lock.Release(); err != nil {
		t.Errorf("second Release failed: %v", err)
	}
}

func TestAcquireTimeout(t *testing.T) {
	shortenLockWait(t, 20*time.Millisecond)
	ctx := context.Background()
	path := newTablePath(t)

	held, err := Acquire(ctx, path)
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	defer func() {
		_ = held.Release()
	}()

	_, err = Acquire(ctx, path)
	if taberrors.CodeOf(err) != taberrors.CodeLockTimeout {
		t.Errorf("second Acquire = %v, want LockTimeout", err)
	}
}

func TestAcquireWaitsForRelease(t *testing.T) {
	shortenLockWait(t, time.Second)
	ctx := context.Background()
	path := newTablePath(t)

	held, err := Acquire(ctx, path)
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	go func() {
		time.Sleep(10 * time.Millisecond)
		_ = held.Release()
	}()

	lock, err := Acquire(ctx, path)
	if err != nil {
		t.Fatalf("Acquire after release failed: %v", err)
	}
	_ = lock.Release()
}

func TestAcquireCancelled(t *testing.T) {
	shortenLockWait(t, time.Minute)
	path := newTablePath(t)

	held, err := Acquire(context.Background(), path)
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	defer func() {
		_ = held.Release()
	}()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	if _, err := Acquire(ctx, path); err != context.Canceled {
		t.Errorf("Acquire under cancellation = %v, want context.Canceled", err)
	}
}

// TestMutationReleasesLockOnError checks the scoped-release guarantee on
// the error path: a failed operation must not leave the lock behind.
func TestMutationReleasesLockOnError(t *testing.T) {
	ctx := context.Background()
	path := newTablePath(t)
	mustCreate(t, path, []string{"id"})

	if _, err := Update(ctx, path, "color", "red", "id=1"); err == nil {
		t.Fatalf("Update with unknown column unexpectedly succeeded")
	}
	if _, err := os.Stat(path + lockSuffix); !os.IsNotExist(err) {
		t.Errorf("lock directory left behind after failed update: %v", err)
	}

	// The table is immediately lockable again.
	lock, err := Acquire(ctx, path)
	if err != nil {
		t.Fatalf("Acquire after failed update: %v", err)
	}
	_ = lock.Release()
}

// TestLockExclusivity hammers one table from concurrent mutators and
// checks that writes never interleave.
func TestLockExclusivity(t *testing.T) {
	ctx := context.Background()
	path := newTablePath(t)
	mustCreate(t, path, []string{"worker", "seq"})

	const workers = 4
	const rows = 25
	var wg sync.WaitGroup
	errs := make(chan error, workers*rows)
	for w := range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range rows {
				errs <- Insert(ctx, path, map[string]string{
					"worker": strconv.Itoa(w),
					"seq":    strconv.Itoa(i),
				})
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("Insert failed: %v", err)
		}
	}

	got := collect(t, path, nil, "")
	if len(got) != workers*rows+1 {
		t.Fatalf("row count = %d, want %d", len(got)-1, workers*rows)
	}
	perWorker := make(map[string]int)
	for _, line := range got[1:] {
		fields := strings.Split(line, "\t")
		if len(fields) != 2 || fields[0] == "" || fields[1] == "" {
			t.Fatalf("malformed row %q", line)
		}
		perWorker[fields[0]]++
	}
	for w := range workers {
		if n := perWorker[strconv.Itoa(w)]; n != rows {
			t.Errorf("worker %d wrote %d rows, want %d", w, n, rows)
		}
	}
}
