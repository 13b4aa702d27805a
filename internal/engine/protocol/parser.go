package protocol

import (
	"fmt"
	"math"

	"TSNSpectra/internal/model"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
)

// ParseFrame uses gopacket to decode a captured frame and reduce it to an
// observation. The class is the 802.1Q priority code point; frames without a
// VLAN tag are rejected. The wire length is taken from ci so that frames cut
// short by the snap length still count with their full size.
func ParseFrame(data []byte, ci gopacket.CaptureInfo) (model.Observation, error) {
	obs, _, err := ParseTaggedFrame(data, ci)
	return obs, err
}

// ParseTaggedFrame is ParseFrame that also returns the VLAN identifier of the
// outer tag.
func ParseTaggedFrame(data []byte, ci gopacket.CaptureInfo) (model.Observation, uint16, error) {
	packet := gopacket.NewPacket(data, layers.LayerTypeEthernet, gopacket.DecodeOptions{Lazy: true, NoCopy: true})

	l := packet.Layer(layers.LayerTypeDot1Q)
	if l == nil {
		return model.Observation{}, 0, fmt.Errorf("not an 802.1Q tagged frame")
	}
	tag := l.(*layers.Dot1Q)

	length := ci.Length
	if length <= 0 {
		length = len(data)
	}
	if length > math.MaxUint16 {
		length = math.MaxUint16
	}

	return model.Observation{
		TimestampNs: uint64(ci.Timestamp.UnixNano()),
		Length:      uint16(length),
		Class:       tag.Priority,
	}, tag.VLANIdentifier, nil
}
