package center_test

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fortytw2/leaktest"
	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/mattjoyce/wxgate/internal/center"
	"github.com/mattjoyce/wxgate/internal/center/mocks"
	"github.com/mattjoyce/wxgate/internal/dedup"
	"github.com/mattjoyce/wxgate/internal/fault"
	"github.com/mattjoyce/wxgate/internal/handler"
	"github.com/mattjoyce/wxgate/internal/message"
)

const textBody = `<xml><ToUserName><![CDATA[acct]]></ToUserName><FromUserName><![CDATA[u1]]></FromUserName>` +
	`<CreateTime>1000</CreateTime><MsgType><![CDATA[text]]></MsgType><Content><![CDATA[hi]]></Content><MsgId>555</MsgId></xml>`

const unsubscribeBody = `<xml><ToUserName>acct</ToUserName><FromUserName>u1</FromUserName>` +
	`<CreateTime>1000</CreateTime><MsgType>event</MsgType><Event>unsubscribe</Event></xml>`

var errBackendDown = errors.New("backend down")

var params = center.Params{Signature: "sig", Timestamp: "1409304348", Nonce: "n1"}

// echo counts invocations and replies with the text it received.
type echo struct {
	handler.Base
	calls   atomic.Int32
	delay   time.Duration
	fail    atomic.Int32 // number of upcoming calls that fail
	panics  atomic.Bool
	release chan struct{}
}

func (e *echo) OnText(_ context.Context, m *message.Text) (message.Response, error) {
	e.calls.Add(1)
	if e.release != nil {
		<-e.release
	}
	time.Sleep(e.delay)
	if e.panics.Load() {
		panic("handler exploded")
	}
	if e.fail.Load() > 0 {
		e.fail.Add(-1)
		return nil, errBackendDown
	}
	return message.ReplyText(m, "echo: "+m.Content), nil
}

func (e *echo) OnUnsubscribe(context.Context, *message.UnsubscribeEvent) (message.Response, error) {
	e.calls.Add(1)
	time.Sleep(e.delay)
	return message.Success(), nil
}

// passthrough decrypts to the body itself and wraps encrypted replies.
func passthrough(ctrl *gomock.Controller) *mocks.MockCrypto {
	crypto := mocks.NewMockCrypto(ctrl)
	crypto.EXPECT().Decrypt(params.Signature, params.Timestamp, params.Nonce, gomock.Any()).
		DoAndReturn(func(_, _, _ string, body []byte) ([]byte, error) { return body, nil }).AnyTimes()
	crypto.EXPECT().Encrypt(gomock.Any(), params.Timestamp, params.Nonce).
		DoAndReturn(func(plain []byte, _, _ string) ([]byte, error) {
			return append([]byte("sealed:"), plain...), nil
		}).AnyTimes()
	return crypto
}

// newCenter starts the memory cache's reaper goroutine; arm leaktest after it.
func newCenter(crypto center.Crypto, h handler.Handler, observers ...center.Observer) *center.Center {
	store := dedup.NewStore(dedup.NewMemoryCache(64, time.Minute), nil)
	return center.New("main", crypto, store, h, nil, observers...)
}

func TestSequentialDuplicateServedFromCache(t *testing.T) {
	ctrl := gomock.NewController(t)
	h := &echo{}
	c := newCenter(passthrough(ctrl), h)
	ctx := context.Background()

	first, err := c.Process(ctx, params, []byte(textBody))
	require.NoError(t, err)
	assert.Equal(t, center.SourceNew, first.Source)
	assert.Equal(t, "555", first.Key)
	assert.True(t, bytes.HasPrefix(first.Body, []byte("sealed:<xml>")))
	assert.Contains(t, first.Reply.Text, "echo: hi")

	second, err := c.Process(ctx, params, []byte(textBody))
	require.NoError(t, err)
	assert.Equal(t, center.SourceCache, second.Source)
	assert.Equal(t, first.Reply, second.Reply)
	assert.Equal(t, first.Body, second.Body)

	assert.Equal(t, int32(1), h.calls.Load())
}

func TestConcurrentDuplicatesCollapse(t *testing.T) {
	ctrl := gomock.NewController(t)
	h := &echo{delay: 50 * time.Millisecond}
	c := newCenter(passthrough(ctrl), h)
	defer leaktest.Check(t)()

	const n = 16
	results := make([]*center.Result, n)
	start := make(chan struct{})

	var g errgroup.Group
	for i := 0; i < n; i++ {
		g.Go(func() error {
			<-start
			res, err := c.Process(context.Background(), params, []byte(textBody))
			results[i] = res
			return err
		})
	}
	close(start)
	require.NoError(t, g.Wait())

	assert.Equal(t, int32(1), h.calls.Load())
	news := 0
	for _, res := range results {
		assert.Equal(t, results[0].Body, res.Body)
		if res.Source == center.SourceNew {
			news++
		}
	}
	assert.Equal(t, 1, news)
	assert.Equal(t, 0, c.InFlight())
}

func TestConcurrentEventDuplicatesCollapse(t *testing.T) {
	ctrl := gomock.NewController(t)
	crypto := mocks.NewMockCrypto(ctrl)
	crypto.EXPECT().Decrypt(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(_, _, _ string, body []byte) ([]byte, error) { return body, nil }).Times(2)
	// Success is a sentinel and must never be encrypted.
	crypto.EXPECT().Encrypt(gomock.Any(), gomock.Any(), gomock.Any()).Times(0)

	h := &echo{delay: 30 * time.Millisecond}
	c := newCenter(crypto, h)
	defer leaktest.Check(t)()

	var (
		wg     sync.WaitGroup
		bodies [2][]byte
		keys   [2]string
	)
	for i := range 2 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := c.Process(context.Background(), params, []byte(unsubscribeBody))
			if assert.NoError(t, err) {
				bodies[i], keys[i] = res.Body, res.Key
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), h.calls.Load())
	assert.Equal(t, "u1:1000", keys[0])
	assert.Equal(t, keys[0], keys[1])
	assert.Equal(t, []byte("success"), bodies[0])
	assert.Equal(t, bodies[0], bodies[1])
}

func TestFailureDoesNotPoisonKey(t *testing.T) {
	ctrl := gomock.NewController(t)
	h := &echo{}
	h.fail.Store(1)
	c := newCenter(passthrough(ctrl), h)
	ctx := context.Background()

	_, err := c.Process(ctx, params, []byte(textBody))
	require.Error(t, err)
	assert.True(t, fault.Is(err, fault.HandlerFailure))
	assert.ErrorIs(t, err, errBackendDown)
	assert.Equal(t, "555", fault.Param(err, "key"))

	res, err := c.Process(ctx, params, []byte(textBody))
	require.NoError(t, err)
	assert.Equal(t, center.SourceNew, res.Source)
	assert.Equal(t, int32(2), h.calls.Load())
}

func TestJoinersObserveSameFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	h := &echo{release: make(chan struct{})}
	h.fail.Store(1)
	c := newCenter(passthrough(ctrl), h)
	defer leaktest.Check(t)()

	errs := make(chan error, 2)
	go func() {
		_, err := c.Process(context.Background(), params, []byte(textBody))
		errs <- err
	}()
	require.Eventually(t, func() bool { return c.InFlight() == 1 }, time.Second, time.Millisecond)

	go func() {
		_, err := c.Process(context.Background(), params, []byte(textBody))
		errs <- err
	}()
	time.Sleep(20 * time.Millisecond)
	close(h.release)

	first, second := <-errs, <-errs
	assert.True(t, fault.Is(first, fault.HandlerFailure))
	assert.True(t, fault.Is(second, fault.HandlerFailure))
	assert.Equal(t, first.Error(), second.Error())
	assert.ErrorIs(t, first, errBackendDown)
	assert.ErrorIs(t, second, errBackendDown, "joiners see the handler's own error")
	assert.Equal(t, int32(1), h.calls.Load())
}

func TestHandlerPanicBecomesFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	h := &echo{}
	h.panics.Store(true)
	c := newCenter(passthrough(ctrl), h)

	_, err := c.Process(context.Background(), params, []byte(textBody))
	require.Error(t, err)
	assert.True(t, fault.Is(err, fault.HandlerFailure))
	assert.Equal(t, 0, c.InFlight(), "panicking call must still complete")

	h.panics.Store(false)
	res, err := c.Process(context.Background(), params, []byte(textBody))
	require.NoError(t, err)
	assert.Equal(t, center.SourceNew, res.Source)
}

func TestEncryptionFailureIsRetryableWithoutRehandling(t *testing.T) {
	ctrl := gomock.NewController(t)
	crypto := mocks.NewMockCrypto(ctrl)
	crypto.EXPECT().Decrypt(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(_, _, _ string, body []byte) ([]byte, error) { return body, nil }).Times(2)
	gomock.InOrder(
		crypto.EXPECT().Encrypt(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil, errors.New("rand exhausted")),
		crypto.EXPECT().Encrypt(gomock.Any(), gomock.Any(), gomock.Any()).Return([]byte("sealed"), nil),
	)

	h := &echo{}
	c := newCenter(crypto, h)
	ctx := context.Background()

	_, err := c.Process(ctx, params, []byte(textBody))
	require.Error(t, err)
	assert.True(t, fault.Is(err, fault.EncryptionFailed))

	res, err := c.Process(ctx, params, []byte(textBody))
	require.NoError(t, err)
	assert.Equal(t, center.SourceCache, res.Source)
	assert.Equal(t, []byte("sealed"), res.Body)
	assert.Equal(t, int32(1), h.calls.Load())
}

func TestEmptyReplyIsNotEncrypted(t *testing.T) {
	ctrl := gomock.NewController(t)
	crypto := mocks.NewMockCrypto(ctrl)
	crypto.EXPECT().Decrypt(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(_, _, _ string, body []byte) ([]byte, error) { return body, nil })

	// Base answers image messages with Empty.
	c := newCenter(crypto, &echo{})
	res, err := c.Process(context.Background(), params, []byte(`<xml><ToUserName>a</ToUserName><FromUserName>u</FromUserName>`+
		`<CreateTime>1</CreateTime><MsgType>image</MsgType><PicUrl>p</PicUrl><MediaId>m</MediaId><MsgId>77</MsgId></xml>`))
	require.NoError(t, err)
	assert.Empty(t, res.Body)
	assert.False(t, res.Reply.Encrypt)
}

func TestDecryptionFailureSkipsDedup(t *testing.T) {
	ctrl := gomock.NewController(t)
	crypto := mocks.NewMockCrypto(ctrl)
	crypto.EXPECT().Decrypt(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(nil, errors.New("signature mismatch"))

	observer := mocks.NewMockObserver(ctrl)
	observer.EXPECT().OnFailure(gomock.Any(), gomock.Any()).Do(func(_ context.Context, f center.Failure) {
		assert.Equal(t, "main", f.App)
		assert.Empty(t, f.Key)
		assert.True(t, fault.Is(f.Err, fault.DecryptionFailed))
	})

	h := &echo{}
	c := newCenter(crypto, h, observer)
	_, err := c.Process(context.Background(), params, []byte(textBody))
	require.Error(t, err)
	assert.True(t, fault.Is(err, fault.DecryptionFailed))
	assert.Equal(t, int32(0), h.calls.Load())
	assert.Equal(t, 0, c.InFlight())
}

func TestMalformedMessage(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := newCenter(passthrough(ctrl), &echo{})

	_, err := c.Process(context.Background(), params, []byte(`<xml><Content>x</Content></xml>`))
	require.Error(t, err)
	assert.True(t, fault.Is(err, fault.MalformedMessage))
}

func TestObserversSeeSource(t *testing.T) {
	ctrl := gomock.NewController(t)
	observer := mocks.NewMockObserver(ctrl)

	observer.EXPECT().OnRequest(gomock.Any(), "main", []byte(textBody)).Times(2)
	var sources []center.Source
	observer.EXPECT().OnResponse(gomock.Any(), gomock.Any()).Do(func(_ context.Context, ex center.Exchange) {
		sources = append(sources, ex.Source)
		assert.Equal(t, "555", ex.Key)
		assert.Contains(t, ex.Reply, "echo: hi")
		assert.Equal(t, message.KindText, ex.Request.Kind())
	}).Times(2)

	c := newCenter(passthrough(ctrl), &echo{}, observer)
	for range 2 {
		_, err := c.Process(context.Background(), params, []byte(textBody))
		require.NoError(t, err)
	}
	assert.Equal(t, []center.Source{center.SourceNew, center.SourceCache}, sources)
}

func TestCallerCancellationDoesNotAbortHandling(t *testing.T) {
	ctrl := gomock.NewController(t)
	h := &echo{release: make(chan struct{})}
	c := newCenter(passthrough(ctrl), h)
	defer leaktest.Check(t)()

	done := make(chan error, 1)
	go func() {
		_, err := c.Process(context.Background(), params, []byte(textBody))
		done <- err
	}()
	require.Eventually(t, func() bool { return c.InFlight() == 1 }, time.Second, time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.Process(ctx, params, []byte(textBody))
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)

	close(h.release)
	require.NoError(t, <-done)

	res, err := c.Process(context.Background(), params, []byte(textBody))
	require.NoError(t, err)
	assert.Equal(t, center.SourceCache, res.Source)
}
