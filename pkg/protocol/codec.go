package protocol

import (
	"encoding/binary"
	"math"

	"github.com/wmu-sunseeker/gobps/pkg/can"
)

// Payloads are little endian. Float slot 0 is bytes 0..3, slot 1 bytes 4..7.

// Signature is a 4 character ASCII tag stored in bytes 7..4 of a payload,
// first character in byte 7.
type Signature [4]byte

var (
	SignatureBPS         = NewSignature("BPv1")
	SignatureNoPrecharge = NewSignature("BPNP")
	SignatureAC          = NewSignature("ACv1")
)

func NewSignature(s string) Signature {
	sig := Signature{}
	copy(sig[:], s)
	return sig
}

func (s Signature) String() string {
	return string(s[:])
}

func newDataFrame(id uint32) can.Frame {
	return can.NewFrame(id&can.CanSffMask, 0, 8)
}

func PutFloats(frame *can.Frame, slot0 float32, slot1 float32) {
	binary.LittleEndian.PutUint32(frame.Data[0:4], math.Float32bits(slot0))
	binary.LittleEndian.PutUint32(frame.Data[4:8], math.Float32bits(slot1))
}

func Floats(frame can.Frame) (slot0 float32, slot1 float32) {
	slot0 = math.Float32frombits(binary.LittleEndian.Uint32(frame.Data[0:4]))
	slot1 = math.Float32frombits(binary.LittleEndian.Uint32(frame.Data[4:8]))
	return slot0, slot1
}

func PutSignature(frame *can.Frame, sig Signature, serial uint32) {
	binary.LittleEndian.PutUint32(frame.Data[0:4], serial)
	for i, c := range sig {
		frame.Data[7-i] = c
	}
}

func ReadSignature(frame can.Frame) (Signature, uint32) {
	sig := Signature{}
	for i := range sig {
		sig[i] = frame.Data[7-i]
	}
	return sig, binary.LittleEndian.Uint32(frame.Data[0:4])
}

// The four 16 bit words of a payload
func Words(frame can.Frame) [4]uint16 {
	words := [4]uint16{}
	for i := range words {
		words[i] = binary.LittleEndian.Uint16(frame.Data[2*i : 2*i+2])
	}
	return words
}

func PutWords(frame *can.Frame, words [4]uint16) {
	for i, w := range words {
		binary.LittleEndian.PutUint16(frame.Data[2*i:2*i+2], w)
	}
}
