// services/houseblocks/master.go
package houseblocks

import (
	"bytes"
	"context"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"homectl-go/errcode"
	"homectl-go/interfaces/serial"
)

const (
	// ReplyTimeoutDefault bounds the wait for one reply frame.
	ReplyTimeoutDefault = 250 * time.Millisecond

	// interFrameSilence lets slaves return to idle between transactions.
	interFrameSilence = 1 * time.Millisecond

	// busTurnaround is the settle time after a write-only transaction.
	busTurnaround = 2 * time.Millisecond

	requestQueueLen = 16
)

type requestKind uint8

const (
	requestOut requestKind = iota
	requestOutIn
	requestDiscovery
)

type request struct {
	kind        requestKind
	serviceMode bool
	address     Address
	payload     Payload
	timeout     time.Duration

	result chan response
}

type response struct {
	frame Frame
	err   error
}

// Master owns one serial adapter and executes transactions strictly
// sequentially in FIFO order. Callers may enqueue from any goroutine; all
// bus I/O happens in the Run loop.
type Master struct {
	adapter  serial.Adapter
	requests chan *request

	framesDropped atomic.Uint64

	log *logrus.Entry
}

func NewMaster(adapter serial.Adapter) *Master {
	return &Master{
		adapter:  adapter,
		requests: make(chan *request, requestQueueLen),
		log:      logrus.WithField("component", "houseblocks.master"),
	}
}

// FramesDropped counts CRC-bad frames discarded inside transactions.
func (m *Master) FramesDropped() uint64 { return m.framesDropped.Load() }

// Run executes queued transactions until the context is cancelled. The
// in-flight transaction always completes: a half-written frame can leave
// slaves in undefined state.
func (m *Master) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			m.drain(ctx)
			return
		case req := <-m.requests:
			req.result <- m.execute(req)
			time.Sleep(interFrameSilence)
		}
	}
}

// drain answers queued requests after cancellation so no caller blocks.
func (m *Master) drain(ctx context.Context) {
	for {
		select {
		case req := <-m.requests:
			req.result <- response{err: ctx.Err()}
		default:
			return
		}
	}
}

func (m *Master) submit(ctx context.Context, req *request) (Frame, error) {
	req.result = make(chan response, 1)
	select {
	case m.requests <- req:
	case <-ctx.Done():
		return Frame{}, ctx.Err()
	}
	// The master answers every request it picked up; an in-flight
	// transaction is never abandoned mid-frame, so give it its timeout to
	// finish after cancellation.
	select {
	case res := <-req.result:
		return res.frame, res.err
	case <-ctx.Done():
		grace := req.timeout + ReplyTimeoutDefault
		select {
		case res := <-req.result:
			if res.err != nil {
				return Frame{}, res.err
			}
			return res.frame, ctx.Err()
		case <-time.After(grace):
			return Frame{}, ctx.Err()
		}
	}
}

// TransactionOut writes one frame and waits for bus turnaround. No reply is
// expected.
func (m *Master) TransactionOut(ctx context.Context, serviceMode bool, address Address, payload Payload) error {
	_, err := m.submit(ctx, &request{
		kind:        requestOut,
		serviceMode: serviceMode,
		address:     address,
		payload:     payload,
	})
	return err
}

// TransactionOutIn writes one frame and reads exactly one reply from the
// addressed device within the timeout.
func (m *Master) TransactionOutIn(ctx context.Context, serviceMode bool, address Address, payload Payload, timeout time.Duration) (Payload, error) {
	if timeout <= 0 {
		timeout = ReplyTimeoutDefault
	}
	frame, err := m.submit(ctx, &request{
		kind:        requestOutIn,
		serviceMode: serviceMode,
		address:     address,
		payload:     payload,
		timeout:     timeout,
	})
	if err != nil {
		return nil, err
	}
	return frame.Payload, nil
}

// TransactionDeviceDiscovery broadcasts a discovery request. Exactly one
// device must answer; its address is returned.
func (m *Master) TransactionDeviceDiscovery(ctx context.Context) (Address, error) {
	frame, err := m.submit(ctx, &request{
		kind:        requestDiscovery,
		serviceMode: true,
		address:     BroadcastAddress(),
		timeout:     ReplyTimeoutDefault,
	})
	if err != nil {
		return Address{}, err
	}
	return frame.Address, nil
}

func (m *Master) execute(req *request) response {
	switch req.kind {
	case requestOut:
		return response{err: m.executeOut(req)}
	case requestOutIn:
		return m.executeOutIn(req)
	case requestDiscovery:
		return m.executeDiscovery(req)
	}
	return response{err: errors.New("unknown request kind")}
}

func (m *Master) writeFrame(req *request) error {
	if err := m.adapter.Purge(); err != nil {
		return errors.Wrap(errcodeWrap(errcode.AdapterIO, err), "purge")
	}
	frame := EncodeFrame(req.serviceMode, req.address, req.payload)
	if err := m.adapter.Write(frame); err != nil {
		return errors.Wrap(errcodeWrap(errcode.AdapterIO, err), "write")
	}
	return nil
}

func (m *Master) executeOut(req *request) error {
	if err := m.writeFrame(req); err != nil {
		return err
	}
	time.Sleep(busTurnaround)
	return nil
}

func (m *Master) executeOutIn(req *request) response {
	if err := m.writeFrame(req); err != nil {
		return response{err: err}
	}

	frame, _, err := m.readFrame(req.timeout)
	if err != nil {
		return response{err: err}
	}
	if frame.Address != req.address {
		return response{err: errors.Wrapf(errcode.AddrMismatch,
			"reply from %s, expected %s", frame.Address, req.address)}
	}
	if frame.ServiceMode != req.serviceMode {
		return response{err: errors.Wrap(errcode.MalformedReply, "reply mode flag mismatch")}
	}
	return response{frame: frame}
}

func (m *Master) executeDiscovery(req *request) response {
	if err := m.writeFrame(req); err != nil {
		return response{err: err}
	}

	frame, trailing, err := m.readFrame(req.timeout)
	if err != nil {
		switch errcode.Of(err) {
		case errcode.Timeout:
			return response{err: errors.Wrap(errcode.NoReply, "discovery")}
		case errcode.FrameDecode:
			// Framing damage during the discovery window means more than
			// one slave answered.
			return response{err: errors.Wrap(errcode.Collision, "discovery")}
		default:
			return response{err: err}
		}
	}
	if trailing {
		return response{err: errors.Wrap(errcode.Collision, "trailing data after discovery reply")}
	}
	return response{frame: frame}
}

// readFrame accumulates adapter reads until one complete frame arrives or
// the deadline passes. CRC-bad frames inside the window are dropped and
// counted; the wait continues for a good one.
func (m *Master) readFrame(timeout time.Duration) (Frame, bool, error) {
	deadline := time.Now().Add(timeout)
	var buffer []byte
	sawBad := false

	for {
		if time.Now().After(deadline) {
			if sawBad {
				return Frame{}, false, errors.Wrap(errcode.FrameDecode, "only damaged frames received")
			}
			return Frame{}, false, errors.Wrap(errcode.Timeout, "no reply")
		}

		chunk, err := m.adapter.Read()
		if err != nil {
			return Frame{}, false, errors.Wrap(errcodeWrap(errcode.AdapterIO, err), "read")
		}
		if len(chunk) == 0 {
			time.Sleep(interFrameSilence)
		}
		buffer = append(buffer, chunk...)

		for {
			end := bytes.IndexByte(buffer, frameEnd)
			if end < 0 {
				break
			}
			raw := buffer[:end+1]
			buffer = buffer[end+1:]

			frame, err := ParseFrame(raw)
			if err != nil {
				m.framesDropped.Add(1)
				m.log.Debugf("dropping damaged frame: %v", err)
				sawBad = true
				continue
			}
			return frame, len(buffer) > 0, nil
		}
	}
}

func errcodeWrap(code errcode.Code, err error) error {
	return &errcode.E{C: code, Err: err, Msg: err.Error()}
}
