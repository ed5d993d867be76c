package heater

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// fakeLink is an in-memory transport double. Write records frames and
// can auto-respond through the notification channel; an atomic depth
// counter detects overlapping writes.
type fakeLink struct {
	mu           sync.Mutex
	connected    bool
	connectErr   error
	writeErr     error
	writes       [][]byte
	notif        chan []byte
	connectCalls int

	onWrite    func(frame []byte)
	writeDelay time.Duration

	inWrite int32
	overlap int32
}

func (f *fakeLink) Connect(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connectCalls++
	if f.connectErr != nil {
		return f.connectErr
	}
	if !f.connected {
		f.connected = true
		f.notif = make(chan []byte, 16)
	}
	return nil
}

func (f *fakeLink) Disconnect() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.connected {
		return
	}
	f.connected = false
	close(f.notif)
	f.notif = nil
}

func (f *fakeLink) Write(frame []byte) error {
	if atomic.AddInt32(&f.inWrite, 1) > 1 {
		atomic.StoreInt32(&f.overlap, 1)
	}
	defer atomic.AddInt32(&f.inWrite, -1)

	if f.writeDelay > 0 {
		time.Sleep(f.writeDelay)
	}

	f.mu.Lock()
	if f.writeErr != nil {
		f.mu.Unlock()
		return f.writeErr
	}
	cp := make([]byte, len(frame))
	copy(cp, frame)
	f.writes = append(f.writes, cp)
	onWrite := f.onWrite
	f.mu.Unlock()

	if onWrite != nil {
		onWrite(cp)
	}
	return nil
}

func (f *fakeLink) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeLink) Notifications() <-chan []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.notif
}

func (f *fakeLink) push(frame []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.notif != nil {
		f.notif <- frame
	}
}

func (f *fakeLink) writeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.writes)
}

func (f *fakeLink) hadOverlap() bool {
	return atomic.LoadInt32(&f.overlap) != 0
}

func connectedFake(t *testing.T) *fakeLink {
	t.Helper()
	link := &fakeLink{}
	if err := link.Connect(context.Background()); err != nil {
		t.Fatalf("fake connect failed: %v", err)
	}
	return link
}

func TestQueue_NotConnected(t *testing.T) {
	link := &fakeLink{}
	q := NewQueue(link, time.Millisecond)
	defer q.Stop()

	_, err := q.Submit(context.Background(), []byte{0x01}, false, 0)
	if !IsNotConnected(err) {
		t.Fatalf("Submit() on dead link error = %v, want NotConnected", err)
	}
	if link.writeCount() != 0 {
		t.Errorf("dead link received %d writes, want 0", link.writeCount())
	}
}

func TestQueue_ResponseDelivered(t *testing.T) {
	link := connectedFake(t)
	response := []byte{0xAA, 0x55, 0x01, 0x02}
	link.onWrite = func(frame []byte) {
		link.push(response)
	}

	q := NewQueue(link, time.Millisecond)
	defer q.Stop()

	payload, err := q.Submit(context.Background(), []byte{0x01}, true, time.Second)
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if string(payload) != string(response) {
		t.Errorf("Submit() payload = %x, want %x", payload, response)
	}
}

func TestQueue_ResponseTimeoutIsEmptyNotError(t *testing.T) {
	link := connectedFake(t)
	q := NewQueue(link, time.Millisecond)
	defer q.Stop()

	payload, err := q.Submit(context.Background(), []byte{0x01}, true, 20*time.Millisecond)
	if err != nil {
		t.Fatalf("Submit() error = %v, want nil on response timeout", err)
	}
	if len(payload) != 0 {
		t.Errorf("Submit() payload = %x, want empty", payload)
	}
}

func TestQueue_StaleNotificationDiscarded(t *testing.T) {
	link := connectedFake(t)
	// A push sitting in the buffer before the command must not be taken
	// as its response.
	link.push([]byte{0xDE, 0xAD})
	link.onWrite = func(frame []byte) {
		link.push([]byte{0xBE, 0xEF})
	}

	q := NewQueue(link, time.Millisecond)
	defer q.Stop()

	payload, err := q.Submit(context.Background(), []byte{0x01}, true, time.Second)
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if string(payload) != string([]byte{0xBE, 0xEF}) {
		t.Errorf("Submit() payload = %x, want beef", payload)
	}
}

func TestQueue_DisconnectMidCommand(t *testing.T) {
	link := connectedFake(t)
	link.onWrite = func(frame []byte) {
		go func() {
			time.Sleep(10 * time.Millisecond)
			link.Disconnect()
		}()
	}

	q := NewQueue(link, time.Millisecond)
	defer q.Stop()

	start := time.Now()
	_, err := q.Submit(context.Background(), []byte{0x01}, true, 5*time.Second)
	elapsed := time.Since(start)

	if !IsNotConnected(err) {
		t.Fatalf("Submit() error = %v, want NotConnected", err)
	}
	if elapsed > time.Second {
		t.Errorf("Submit() resolved in %v, should not ride out the 5s timeout", elapsed)
	}
}

func TestQueue_StopCancelsPending(t *testing.T) {
	link := connectedFake(t)
	q := NewQueue(link, time.Millisecond)

	const pending = 3
	errs := make(chan error, pending)
	for i := 0; i < pending; i++ {
		go func() {
			// Long response timeouts; Stop must cut them all short.
			_, err := q.Submit(context.Background(), []byte{0x01}, true, 10*time.Second)
			errs <- err
		}()
	}

	// Let the submissions reach the queue before stopping.
	time.Sleep(20 * time.Millisecond)
	q.Stop()

	for i := 0; i < pending; i++ {
		select {
		case err := <-errs:
			if !IsCancelled(err) && !IsNotConnected(err) {
				t.Errorf("pending Submit() error = %v, want Cancelled", err)
			}
		case <-time.After(time.Second):
			t.Fatal("pending Submit() hung after Stop()")
		}
	}
}

func TestQueue_WritesAreSequential(t *testing.T) {
	link := connectedFake(t)
	link.writeDelay = 5 * time.Millisecond

	q := NewQueue(link, time.Millisecond)
	defer q.Stop()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = q.Submit(context.Background(), []byte{0x03}, false, 0)
		}()
	}
	wg.Wait()

	if link.hadOverlap() {
		t.Error("writes overlapped; queue must keep exactly one command in flight")
	}
	if got := link.writeCount(); got != 8 {
		t.Errorf("write count = %d, want 8", got)
	}
}

func TestQueue_SubmitAfterStop(t *testing.T) {
	link := connectedFake(t)
	q := NewQueue(link, time.Millisecond)
	q.Stop()

	_, err := q.Submit(context.Background(), []byte{0x01}, false, 0)
	if !IsCancelled(err) {
		t.Errorf("Submit() after Stop() error = %v, want Cancelled", err)
	}
}
