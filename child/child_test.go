package child

import (
	"testing"
	"time"

	"github.com/bogen85/cmdforge/process"
)

func TestWaitReturnsSuccess(t *testing.T) {
	c, err := Spawn(process.Spec{Program: "/bin/true"})
	if err != nil {
		t.Fatalf("Spawn: %v", err)
	}
	res, err := c.Wait()
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if !res.Success() {
		t.Fatalf("want success, got %+v", res)
	}
}

func TestWaitIsIdempotentAcrossGoroutines(t *testing.T) {
	c, err := Spawn(process.Spec{Program: "/bin/sleep", Args: []string{"0.1"}})
	if err != nil {
		t.Fatalf("Spawn: %v", err)
	}

	results := make(chan process.ExitResult, 3)
	errs := make(chan error, 3)
	for i := 0; i < 3; i++ {
		go func() {
			res, err := c.Wait()
			errs <- err
			results <- res
		}()
	}
	for i := 0; i < 3; i++ {
		if err := <-errs; err != nil {
			t.Fatalf("concurrent Wait: %v", err)
		}
		if res := <-results; !res.Success() {
			t.Fatalf("concurrent Wait result: %+v", res)
		}
	}
}

func TestKillBeforeExit(t *testing.T) {
	c, err := Spawn(process.Spec{Program: "/bin/sleep", Args: []string{"30"}})
	if err != nil {
		t.Fatalf("Spawn: %v", err)
	}
	time.Sleep(20 * time.Millisecond)
	if err := c.Kill(); err != nil {
		t.Fatalf("Kill: %v", err)
	}
	res, err := c.Wait()
	if err != nil {
		t.Fatalf("Wait after Kill: %v", err)
	}
	if res.Success() {
		t.Fatalf("killed child must not report success: %+v", res)
	}
}

func TestKillAfterExitIsNoop(t *testing.T) {
	c, err := Spawn(process.Spec{Program: "/bin/true"})
	if err != nil {
		t.Fatalf("Spawn: %v", err)
	}
	if _, err := c.Wait(); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if err := c.Kill(); err != nil {
		t.Fatalf("Kill after exit must be a no-op, got %v", err)
	}
}

func TestTryWaitNonBlocking(t *testing.T) {
	c, err := Spawn(process.Spec{Program: "/bin/sleep", Args: []string{"0.2"}})
	if err != nil {
		t.Fatalf("Spawn: %v", err)
	}
	if res, err := c.TryWait(); err != nil || res != nil {
		t.Fatalf("TryWait on a running child: res=%v err=%v", res, err)
	}
	if _, err := c.Wait(); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	res, err := c.TryWait()
	if err != nil {
		t.Fatalf("TryWait after exit: %v", err)
	}
	if res == nil || !res.Success() {
		t.Fatalf("TryWait after exit = %v, want success", res)
	}
}
