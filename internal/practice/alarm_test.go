package practice_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/MrWong99/vocabloop/internal/practice"
)

func TestAlarm_Fires(t *testing.T) {
	t.Parallel()

	var a practice.Alarm
	start := time.Now()
	if err := a.Wait(context.Background(), 5*time.Millisecond); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if time.Since(start) < 5*time.Millisecond {
		t.Error("Wait returned before the delay")
	}
	if a.Pending() {
		t.Error("alarm still pending after firing")
	}
	if a.Cancel() {
		t.Error("Cancel reported a pending wait after firing")
	}
}

func TestAlarm_Cancel(t *testing.T) {
	t.Parallel()

	var a practice.Alarm
	errc := make(chan error, 1)
	go func() { errc <- a.Wait(context.Background(), time.Hour) }()

	for !a.Cancel() {
		time.Sleep(time.Millisecond)
	}
	select {
	case err := <-errc:
		if !errors.Is(err, practice.ErrAlarmCancelled) {
			t.Errorf("Wait = %v, want ErrAlarmCancelled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Wait did not return after Cancel")
	}
}

func TestAlarm_Context(t *testing.T) {
	t.Parallel()

	var a practice.Alarm
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
	defer cancel()
	if err := a.Wait(ctx, time.Hour); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Wait = %v, want DeadlineExceeded", err)
	}
}
