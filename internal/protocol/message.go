// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

// Package protocol implements the wire codec: fixed-layout header
// pack/unpack, content-addressed msg_id computation, fragmentation of
// oversized payloads, and reassembly of fragments back into a logical
// message. Grounded on original_source/message.py's Message/MSG_FORMAT
// and messenger.py's receiver-side fragment-queue logic, adapted to the
// header layout and message types of this system's wire format.
package protocol

import (
	"crypto/md5"
	"fmt"
	"strconv"

	clustererrors "github.com/gridwork/cluster/pkg/errors"
)

// Type identifies the kind of payload a logical message carries.
type Type byte

const (
	TypeStatus        Type = 0
	TypeAck           Type = 1
	TypeTaskUnit      Type = 2
	TypeTaskUnitResult Type = 3
	TypeJob           Type = 4
)

func (t Type) String() string {
	switch t {
	case TypeStatus:
		return "STATUS"
	case TypeAck:
		return "ACK"
	case TypeTaskUnit:
		return "TASKUNIT"
	case TypeTaskUnitResult:
		return "TASKUNIT_RESULT"
	case TypeJob:
		return "JOB"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", byte(t))
	}
}

// IsValid reports whether t is one of the five defined message types.
func (t Type) IsValid() bool {
	switch t {
	case TypeStatus, TypeAck, TypeTaskUnit, TypeTaskUnitResult, TypeJob:
		return true
	default:
		return false
	}
}

const (
	// MsgIDSize is the length in bytes of a content-addressed msg_id.
	MsgIDSize = 16

	// HeaderSize is the fixed on-wire header length: msg_id (16) +
	// frag_index, meta2, meta3, type, flags (5 single-byte fields).
	HeaderSize = 21

	// PayloadMax is the largest payload a single fragment may carry.
	PayloadMax = 4096

	// MaxFrameSize is the largest valid on-wire datagram.
	MaxFrameSize = HeaderSize + PayloadMax

	// flagLastFragment is bit 0 of the flags byte.
	flagLastFragment = 1 << 0

	// reservedMeta is the default value of the two reserved meta bytes.
	reservedMeta = 0xFF
)

// MsgID is a 16-byte content address shared by every fragment of one
// logical message.
type MsgID [MsgIDSize]byte

func (id MsgID) String() string {
	return fmt.Sprintf("%x", id[:])
}

// ComputeMsgID hashes (type, destIP, destPort, payload) into a msg_id.
// The destination is part of the input so identical payloads to
// distinct destinations are distinguishable, while a retransmission of
// the same logical message to the same destination produces an
// identical id, which the receiver uses for idempotent dedup.
func ComputeMsgID(msgType Type, destIP string, destPort int, payload []byte) MsgID {
	h := md5.New()
	h.Write([]byte(strconv.Itoa(int(msgType))))
	h.Write([]byte(destIP))
	h.Write([]byte(strconv.Itoa(destPort)))
	h.Write(payload)

	var id MsgID
	copy(id[:], h.Sum(nil))
	return id
}

// Fragment is one on-wire unit: a header plus a chunk of a logical
// message's payload.
type Fragment struct {
	MsgID     MsgID
	FragIndex byte
	Meta2     byte
	Meta3     byte
	Type      Type
	Last      bool
	Payload   []byte
}

// Pack serializes the fragment into its on-wire byte layout.
func (f *Fragment) Pack() ([]byte, error) {
	if len(f.Payload) > PayloadMax {
		return nil, clustererrors.NewOversizedFrameError(HeaderSize+len(f.Payload), MaxFrameSize)
	}

	buf := make([]byte, HeaderSize+len(f.Payload))
	copy(buf[0:MsgIDSize], f.MsgID[:])
	buf[16] = f.FragIndex
	buf[17] = f.Meta2
	buf[18] = f.Meta3
	buf[19] = byte(f.Type)
	if f.Last {
		buf[20] = flagLastFragment
	} else {
		buf[20] = 0
	}
	copy(buf[HeaderSize:], f.Payload)

	return buf, nil
}

// Unpack decodes a raw datagram into a Fragment. It rejects buffers
// exceeding MaxFrameSize with OversizedFrame and buffers too short to
// contain a header with MalformedFrame.
func Unpack(raw []byte) (*Fragment, error) {
	if len(raw) > MaxFrameSize {
		return nil, clustererrors.NewOversizedFrameError(len(raw), MaxFrameSize)
	}
	if len(raw) < HeaderSize {
		return nil, clustererrors.NewMalformedFrameError("header truncated")
	}

	f := &Fragment{
		FragIndex: raw[16],
		Meta2:     raw[17],
		Meta3:     raw[18],
		Type:      Type(raw[19]),
		Last:      raw[20]&flagLastFragment != 0,
	}
	copy(f.MsgID[:], raw[0:MsgIDSize])

	if len(raw) > HeaderSize {
		f.Payload = append([]byte(nil), raw[HeaderSize:]...)
	}

	if !f.Type.IsValid() {
		return nil, clustererrors.NewUnknownMessageTypeError(byte(f.Type))
	}

	return f, nil
}

// FragmentPayload splits payload into PayloadMax-sized chunks sharing one
// msg_id, setting the last-fragment flag on the final chunk only.
func FragmentPayload(msgType Type, destIP string, destPort int, payload []byte) []*Fragment {
	msgID := ComputeMsgID(msgType, destIP, destPort, payload)

	if len(payload) == 0 {
		return []*Fragment{{MsgID: msgID, FragIndex: 0, Meta2: reservedMeta, Meta3: reservedMeta, Type: msgType, Last: true}}
	}

	var fragments []*Fragment
	for start, index := 0, byte(0); start < len(payload); start, index = start+PayloadMax, index+1 {
		end := start + PayloadMax
		if end > len(payload) {
			end = len(payload)
		}
		fragments = append(fragments, &Fragment{
			MsgID:     msgID,
			FragIndex: index,
			Meta2:     reservedMeta,
			Meta3:     reservedMeta,
			Type:      msgType,
			Last:      end == len(payload),
			Payload:   payload[start:end],
		})
	}

	return fragments
}
