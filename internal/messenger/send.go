// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

package messenger

import (
	"fmt"
	"net"

	"github.com/gridwork/cluster/internal/envelope"
	"github.com/gridwork/cluster/internal/job"
	"github.com/gridwork/cluster/internal/protocol"
)

// SendStatus enqueues a node-status notification to destHostname. When
// track is true the returned Tracker is kept alive past ACKED so the
// caller (worker association) can poll or wait on it.
func (m *Messenger) SendStatus(status job.NodeState, destHostname string, track bool) (*Tracker, error) {
	return m.send(protocol.TypeStatus, envelope.MarshalStatus(status), destHostname, track)
}

// SendJob enqueues a serialized Job to destHostname.
func (m *Messenger) SendJob(j *job.Job, destHostname string, track bool) (*Tracker, error) {
	payload, err := envelope.MarshalJob(j)
	if err != nil {
		return nil, fmt.Errorf("messenger: marshal job: %w", err)
	}
	return m.send(protocol.TypeJob, payload, destHostname, track)
}

// SendTaskUnit enqueues a serialized TaskUnit (the master→worker
// attribute allow-list only) to destHostname.
func (m *Messenger) SendTaskUnit(tu *job.TaskUnit, destHostname string, track bool) (*Tracker, error) {
	payload, err := envelope.MarshalTaskUnit(tu)
	if err != nil {
		return nil, fmt.Errorf("messenger: marshal task unit: %w", err)
	}
	return m.send(protocol.TypeTaskUnit, payload, destHostname, track)
}

// SendTaskUnitResult enqueues tu's result-bearing subset to destHostname.
func (m *Messenger) SendTaskUnitResult(tu *job.TaskUnit, destHostname string, track bool) (*Tracker, error) {
	payload, err := envelope.MarshalTaskUnitResult(tu)
	if err != nil {
		return nil, fmt.Errorf("messenger: marshal task unit result: %w", err)
	}
	return m.send(protocol.TypeTaskUnitResult, payload, destHostname, track)
}

// send fragments payload, records a tracker for the logical message,
// and pushes every fragment onto the outbound queue.
func (m *Messenger) send(msgType protocol.Type, payload []byte, destHostname string, track bool) (*Tracker, error) {
	addr, err := m.resolve(destHostname)
	if err != nil {
		return nil, err
	}
	return m.sendTo(msgType, payload, addr, track)
}

func (m *Messenger) sendTo(msgType protocol.Type, payload []byte, addr *net.UDPAddr, track bool) (*Tracker, error) {
	if err := m.ctx.Err(); err != nil {
		return nil, err
	}

	fragments := protocol.FragmentPayload(msgType, addr.IP.String(), addr.Port, payload)
	if len(fragments) == 0 {
		return nil, fmt.Errorf("messenger: no fragments produced for payload of %d bytes", len(payload))
	}

	tracker := m.newTracker(fragments[0].MsgID, track)

	for _, frag := range fragments {
		packed, err := frag.Pack()
		if err != nil {
			return nil, fmt.Errorf("messenger: pack fragment: %w", err)
		}
		dgram := outboundDatagram{addr: addr, payload: packed, msgID: frag.MsgID, last: frag.Last}
		select {
		case m.outbound <- dgram:
		case <-m.ctx.Done():
			return nil, m.ctx.Err()
		}
	}

	m.coll.RecordRequest(msgType.String(), destKey(addr))
	return tracker, nil
}

// sendAck emits an unfragmented, untracked ACK back to addr carrying
// the 16-byte msg_id of the message being acknowledged.
func (m *Messenger) sendAck(msgID protocol.MsgID, addr *net.UDPAddr) {
	if _, err := m.sendTo(protocol.TypeAck, msgID[:], addr, false); err != nil {
		m.log.Warn("failed to enqueue ack", "error", err.Error(), "dest", destKey(addr))
	}
}

func destKey(addr *net.UDPAddr) string {
	return fmt.Sprintf("%s:%d", addr.IP.String(), addr.Port)
}

// senderLoop drains the outbound queue and writes each fragment to the
// socket, promoting a logical message's tracker from QUEUED to SENT
// once the fragment bearing the last-fragment flag has been written.
func (m *Messenger) senderLoop() {
	defer m.wg.Done()

	for {
		select {
		case <-m.ctx.Done():
			return
		case dgram, ok := <-m.outbound:
			if !ok {
				return
			}
			if _, err := m.conn.WriteToUDP(dgram.payload, dgram.addr); err != nil {
				select {
				case <-m.ctx.Done():
					return
				default:
				}
				m.log.Warn("write failed", "error", err.Error(), "dest", destKey(dgram.addr))
				m.coll.RecordError("SEND", destKey(dgram.addr), err)
				continue
			}

			if dgram.last {
				m.markSent(dgram.msgID)
			}
		}
	}
}
