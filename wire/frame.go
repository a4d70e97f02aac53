// Package wire defines the on-wire frame format shared by the channel and
// its peers: a fixed-layout header (MAC-style 6-byte source/destination
// tags, an ether-type, a payload-type discriminator, a sequence number and
// a payload length) followed by the payload itself.
package wire

import (
	"encoding/binary"
	"fmt"

	"github.com/google/gopacket"
)

const (
	// EtherTypeIPv4 is the only ether_type this system ever produces.
	EtherTypeIPv4 uint16 = 0x0800

	PayloadTypeData  uint8 = 0x01
	PayloadTypeNoise uint8 = 0xFF

	// HeaderSize is the fixed on-wire size of a Frame header:
	// dest_id(6) + source_id(6) + ether_type(2) + payload_type(1) +
	// seq_number(4) + payload_length(4).
	HeaderSize = 6 + 6 + 2 + 1 + 4 + 4

	// MaxPayloadSize bounds a single frame's payload. Peers reject a
	// configured frame size larger than this at startup.
	MaxPayloadSize = 65000
)

var endian = binary.NativeEndian

// LayerTypeFrame registers Frame as a gopacket layer so it can be
// decoded/serialized through gopacket.NewPacket and gopacket.SerializeLayers
// the same way the rest of this system's link-layer neighbours do.
var LayerTypeFrame = gopacket.RegisterLayerType(12001, gopacket.LayerTypeMetadata{
	Name:    "ALOHAFrame",
	Decoder: gopacket.DecodeFunc(decodeFrame),
})

// Frame is the on-wire unit exchanged between peers and the channel.
type Frame struct {
	DestID        [6]byte
	SourceID      [6]byte
	EtherType     uint16
	PayloadType   uint8
	SeqNumber     uint32
	PayloadLength uint32
	Payload       []byte

	contents []byte
}

// Noise builds a jam frame: payload_type = 0xFF, zero-length payload. All
// other header fields are left at their zero values, matching protocol.h's
// create_noise_frame, which only ever touches payload_type.
func Noise() *Frame {
	return &Frame{PayloadType: PayloadTypeNoise}
}

// IsNoise reports whether f is a jam frame.
func (f *Frame) IsNoise() bool {
	return f.PayloadType == PayloadTypeNoise
}

// Size is the number of bytes f occupies on the wire.
func (f *Frame) Size() int {
	return HeaderSize + len(f.Payload)
}

func (f *Frame) LayerType() gopacket.LayerType     { return LayerTypeFrame }
func (f *Frame) LayerContents() []byte              { return f.contents }
func (f *Frame) LayerPayload() []byte               { return f.Payload }
func (f *Frame) CanDecode() gopacket.LayerClass     { return LayerTypeFrame }
func (f *Frame) NextLayerType() gopacket.LayerType  { return gopacket.LayerTypePayload }

// DecodeFromBytes parses a header plus its declared payload out of data.
// data may carry trailing bytes belonging to a later frame; only the first
// HeaderSize+payload_length bytes are consumed.
func (f *Frame) DecodeFromBytes(data []byte, df gopacket.DecodeFeedback) error {
	if len(data) < HeaderSize {
		return fmt.Errorf("wire: short frame header: got %d bytes, want %d", len(data), HeaderSize)
	}
	copy(f.DestID[:], data[0:6])
	copy(f.SourceID[:], data[6:12])
	f.EtherType = endian.Uint16(data[12:14])
	f.PayloadType = data[14]
	f.SeqNumber = endian.Uint32(data[15:19])
	f.PayloadLength = endian.Uint32(data[19:23])

	total := HeaderSize + int(f.PayloadLength)
	if len(data) < total {
		return fmt.Errorf("wire: short frame payload: got %d bytes, want %d", len(data), total)
	}
	f.contents = data[:HeaderSize]
	if f.PayloadLength > 0 {
		f.Payload = append([]byte(nil), data[HeaderSize:total]...)
	} else {
		f.Payload = nil
	}
	return nil
}

// SerializeTo writes f's header followed by its payload into b.
func (f *Frame) SerializeTo(b gopacket.SerializeBuffer, opts gopacket.SerializeOptions) error {
	f.PayloadLength = uint32(len(f.Payload))

	if len(f.Payload) > 0 {
		payload, err := b.AppendBytes(len(f.Payload))
		if err != nil {
			return err
		}
		copy(payload, f.Payload)
	}

	header, err := b.PrependBytes(HeaderSize)
	if err != nil {
		return err
	}
	copy(header[0:6], f.DestID[:])
	copy(header[6:12], f.SourceID[:])
	endian.PutUint16(header[12:14], f.EtherType)
	header[14] = f.PayloadType
	endian.PutUint32(header[15:19], f.SeqNumber)
	endian.PutUint32(header[19:23], f.PayloadLength)
	f.contents = header
	return nil
}

func decodeFrame(data []byte, p gopacket.PacketBuilder) error {
	f := &Frame{}
	if err := f.DecodeFromBytes(data, p); err != nil {
		return err
	}
	p.AddLayer(f)
	return p.NextDecoder(gopacket.LayerTypePayload)
}

// Marshal renders f to its exact on-wire byte representation.
func Marshal(f *Frame) ([]byte, error) {
	buf := gopacket.NewSerializeBuffer()
	if err := gopacket.SerializeLayers(buf, gopacket.SerializeOptions{}, f); err != nil {
		return nil, fmt.Errorf("wire: marshal frame: %w", err)
	}
	out := make([]byte, len(buf.Bytes()))
	copy(out, buf.Bytes())
	return out, nil
}

// Unmarshal parses a Frame out of data, which must contain at least one
// complete frame (header plus declared payload); trailing bytes are ignored.
func Unmarshal(data []byte) (*Frame, error) {
	packet := gopacket.NewPacket(data, LayerTypeFrame, gopacket.DecodeOptions{Lazy: false, NoCopy: true})
	layer := packet.Layer(LayerTypeFrame)
	if layer == nil {
		if errLayer := packet.ErrorLayer(); errLayer != nil {
			return nil, fmt.Errorf("wire: unmarshal frame: %w", errLayer.Error())
		}
		return nil, fmt.Errorf("wire: unmarshal frame: no frame layer decoded")
	}
	return layer.(*Frame), nil
}
