package pool

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestSubmit_RunsJobAndAwaitReturnsResult(t *testing.T) {
	p := New(2, 4)
	p.Start()
	defer p.Close()

	h, err := p.Submit(context.Background(), func(ctx context.Context) (any, error) {
		return 7, nil
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	v, err := h.Await(context.Background())
	if err != nil {
		t.Fatalf("Await: %v", err)
	}
	if v != 7 {
		t.Fatalf("got %v, want 7", v)
	}
}

func TestSubmit_PropagatesJobError(t *testing.T) {
	p := New(1, 2)
	p.Start()
	defer p.Close()

	wantErr := errors.New("kernel blew up")
	h, err := p.Submit(context.Background(), func(ctx context.Context) (any, error) {
		return nil, wantErr
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	_, err = h.Await(context.Background())
	if !errors.Is(err, wantErr) {
		t.Fatalf("got %v, want %v", err, wantErr)
	}
}

func TestSubmit_FailsWithQueueFullWhenSaturated(t *testing.T) {
	p := New(1, 2)
	// Don't start workers: nothing drains the queue, so it saturates
	// deterministically once both queue slots are occupied.
	block := make(chan struct{})
	_, err := p.Submit(context.Background(), func(ctx context.Context) (any, error) {
		<-block
		return nil, nil
	})
	if err != nil {
		t.Fatalf("first Submit: %v", err)
	}
	_, err = p.Submit(context.Background(), func(ctx context.Context) (any, error) { return nil, nil })
	if err != nil {
		t.Fatalf("second Submit (fills queue): %v", err)
	}
	_, err = p.Submit(context.Background(), func(ctx context.Context) (any, error) { return nil, nil })
	if !errors.Is(err, ErrQueueFull) {
		t.Fatalf("got %v, want ErrQueueFull", err)
	}
	close(block)
}

func TestHandle_Cancel_DiscardsResultEvenIfComputeCompletes(t *testing.T) {
	p := New(1, 1)
	p.Start()
	defer p.Close()

	started := make(chan struct{})
	release := make(chan struct{})
	h, err := p.Submit(context.Background(), func(ctx context.Context) (any, error) {
		close(started)
		<-release
		return "finished", nil
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	<-started
	h.Cancel()
	close(release)

	_, err = h.Await(context.Background())
	if err == nil {
		t.Fatalf("expected cancellation error, got nil")
	}
}

func TestSubmit_AfterCloseFails(t *testing.T) {
	p := New(1, 1)
	p.Start()
	p.Close()

	_, err := p.Submit(context.Background(), func(ctx context.Context) (any, error) { return nil, nil })
	if !errors.Is(err, ErrClosed) {
		t.Fatalf("got %v, want ErrClosed", err)
	}
}

func TestUtilisationAndQueueDepthRatio_ReflectActivity(t *testing.T) {
	p := New(1, 2)
	p.Start()
	defer p.Close()

	release := make(chan struct{})
	started := make(chan struct{})
	_, err := p.Submit(context.Background(), func(ctx context.Context) (any, error) {
		close(started)
		<-release
		return nil, nil
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	<-started

	if u := p.Utilisation(); u != 1 {
		t.Fatalf("Utilisation=%v, want 1 while the single worker is busy", u)
	}
	if _, err := p.Submit(context.Background(), func(ctx context.Context) (any, error) { return nil, nil }); err != nil {
		t.Fatalf("second Submit: %v", err)
	}
	if q := p.QueueDepthRatio(); q != 0.5 {
		t.Fatalf("QueueDepthRatio=%v, want 0.5 with one of two queue slots occupied", q)
	}
	close(release)
	time.Sleep(20 * time.Millisecond)
	if u := p.Utilisation(); u != 0 {
		t.Fatalf("Utilisation=%v, want 0 once idle", u)
	}
}
