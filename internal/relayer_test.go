package internal

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	spyv1 "github.com/certusone/wormhole/node/pkg/proto/spy/v1"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"google.golang.org/grpc"

	"github.com/wormhole-demo/attestor/internal/testutil"
)

type fakeStream struct {
	grpc.ClientStream

	ctx context.Context
	ch  <-chan []byte
	// failFirst makes the first Recv fail, as a dropped connection does.
	failFirst bool
}

func (s *fakeStream) Recv() (*spyv1.SubscribeSignedVAAResponse, error) {
	if s.failFirst {
		s.failFirst = false
		return nil, io.EOF
	}
	select {
	case b := <-s.ch:
		return &spyv1.SubscribeSignedVAAResponse{VaaBytes: b}, nil
	case <-s.ctx.Done():
		return nil, s.ctx.Err()
	}
}

type fakeSource struct {
	mu         sync.Mutex
	ch         chan []byte
	failFirst  bool
	subscribes int
	closed     bool
}

func (s *fakeSource) SubscribeSignedVAA(ctx context.Context) (spyv1.SpyRPCService_SubscribeSignedVAAClient, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subscribes++
	fail := s.failFirst
	s.failFirst = false
	return &fakeStream{ctx: ctx, ch: s.ch, failFirst: fail}, nil
}

func (s *fakeSource) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
}

func TestRelayer(t *testing.T) {
	t.Parallel()

	c, keys := newTestCore(t, 1)
	sub := &recordingSubmitter{}
	p, err := NewDefaultVAAProcessor(zap.NewNop(), VAAProcessorConfig{}, c, sub)
	require.NoError(t, err)

	src := &fakeSource{ch: make(chan []byte, 8), failFirst: true}
	r := NewRelayer(zap.NewNop(), src, p)
	r.retryDelay = time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Start(ctx) }()

	first := vaaData(t, keys, 2, testutil.Emitter, 1, []byte("a"))
	src.ch <- first.RawBytes
	src.ch <- []byte("not a vaa")
	src.ch <- vaaData(t, keys, 2, testutil.Emitter, 2, []byte("b")).RawBytes

	require.Eventually(t, func() bool { return sub.count() == 2 }, 5*time.Second, 10*time.Millisecond)

	// A duplicate delivery is attested as a replay and not forwarded.
	src.ch <- first.RawBytes
	time.Sleep(50 * time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("relayer did not stop")
	}

	require.Equal(t, 2, sub.count())
	src.mu.Lock()
	require.Equal(t, 2, src.subscribes)
	src.mu.Unlock()

	r.Close()
	require.True(t, src.closed)
}

type failingSource struct{ fakeSource }

func (s *failingSource) SubscribeSignedVAA(context.Context) (spyv1.SpyRPCService_SubscribeSignedVAAClient, error) {
	return nil, errors.New("spy unreachable")
}

func TestRelayer_SubscribeFails(t *testing.T) {
	t.Parallel()

	r := NewRelayer(zap.NewNop(), &failingSource{}, nil)
	require.ErrorContains(t, r.Start(context.Background()), "spy unreachable")
}
