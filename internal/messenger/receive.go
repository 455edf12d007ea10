// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

package messenger

import (
	"context"
	"fmt"
	"net"

	"github.com/gridwork/cluster/internal/protocol"
)

// maxDatagramSize bounds a single read off the socket. Every fragment
// is at most protocol.MaxFrameSize bytes; this leaves headroom for a
// misbehaving peer without growing unbounded.
const maxDatagramSize = 65535

// Receive blocks until a fully-reassembled, non-ACK logical message is
// available, or ctx is cancelled.
func (m *Messenger) Receive(ctx context.Context) (*InboundMessage, error) {
	select {
	case msg, ok := <-m.inbound:
		if !ok {
			return nil, fmt.Errorf("messenger: closed")
		}
		return &msg, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-m.ctx.Done():
		return nil, m.ctx.Err()
	}
}

// receiverLoop reads datagrams off the socket, reassembles them, and
// routes completed logical messages: ACKs promote their tracker,
// everything else is deduplicated, queued for Receive, and echoed
// back with an ACK of its own.
func (m *Messenger) receiverLoop() {
	defer m.wg.Done()

	buf := make([]byte, maxDatagramSize)
	for {
		select {
		case <-m.ctx.Done():
			return
		default:
		}

		n, addr, err := m.conn.ReadFromUDP(buf)
		if err != nil {
			select {
			case <-m.ctx.Done():
				return
			default:
			}
			m.log.Warn("read failed", "error", err.Error())
			continue
		}

		frag, err := protocol.Unpack(buf[:n])
		if err != nil {
			m.log.Warn("dropping malformed datagram", "error", err.Error(), "from", destKey(addr))
			m.coll.RecordError("RECV", destKey(addr), err)
			continue
		}

		msg, done, err := m.reassembler.Add(frag)
		if err != nil {
			m.log.Warn("dropping fragment", "error", err.Error(), "from", destKey(addr))
			m.coll.RecordError("RECV", destKey(addr), err)
			continue
		}
		if !done {
			continue
		}

		m.handleComplete(msg, addr)
	}
}

func (m *Messenger) handleComplete(msg *protocol.Message, addr *net.UDPAddr) {
	if msg.Type == protocol.TypeAck {
		var msgID protocol.MsgID
		copy(msgID[:], msg.Payload)
		m.markAcked(msgID)
		return
	}

	key := msg.MsgID.String()
	if m.dedup.Has(key) {
		m.coll.RecordCacheHit(key)
		m.sendAck(msg.MsgID, addr)
		return
	}
	m.dedup.Set(key, struct{}{})
	m.coll.RecordCacheMiss(key)

	select {
	case m.inbound <- InboundMessage{From: addr, Type: msg.Type, Data: msg.Payload}:
	case <-m.ctx.Done():
		return
	}

	m.sendAck(msg.MsgID, addr)
}
