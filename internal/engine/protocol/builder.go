package protocol

import (
	"fmt"
	"net"

	"TSNSpectra/internal/config"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
)

// FrameSpec describes the VLAN-tagged UDP test frame a transmitter sends.
type FrameSpec struct {
	SrcMAC, DstMAC   net.HardwareAddr
	SrcIP, DstIP     net.IP
	SrcPort, DstPort uint16
	VLANID           uint16
	Priority         uint8
	PayloadSize      int
}

// SpecFromConfig parses the addresses of the transmit section.
func SpecFromConfig(cfg config.TransmitConfig) (FrameSpec, error) {
	spec := FrameSpec{
		SrcPort:     cfg.SrcPort,
		DstPort:     cfg.DstPort,
		VLANID:      cfg.VLANID,
		Priority:    cfg.Priority,
		PayloadSize: cfg.PayloadSize,
	}
	var err error
	if spec.SrcMAC, err = net.ParseMAC(cfg.SrcMAC); err != nil {
		return FrameSpec{}, fmt.Errorf("invalid src_mac: %w", err)
	}
	if spec.DstMAC, err = net.ParseMAC(cfg.DstMAC); err != nil {
		return FrameSpec{}, fmt.Errorf("invalid dst_mac: %w", err)
	}
	if spec.SrcIP = net.ParseIP(cfg.SrcIP).To4(); spec.SrcIP == nil {
		return FrameSpec{}, fmt.Errorf("invalid src_ip %q", cfg.SrcIP)
	}
	if spec.DstIP = net.ParseIP(cfg.DstIP).To4(); spec.DstIP == nil {
		return FrameSpec{}, fmt.Errorf("invalid dst_ip %q", cfg.DstIP)
	}
	return spec, nil
}

// BuildFrame serializes Ethernet, 802.1Q, IPv4 and UDP headers followed by a
// zero payload, with lengths and checksums filled in.
func BuildFrame(spec FrameSpec) ([]byte, error) {
	if spec.Priority > 7 {
		return nil, fmt.Errorf("priority %d out of range", spec.Priority)
	}
	if spec.VLANID > 4094 {
		return nil, fmt.Errorf("vlan id %d out of range", spec.VLANID)
	}
	if spec.PayloadSize < 0 {
		return nil, fmt.Errorf("negative payload size")
	}

	eth := &layers.Ethernet{
		SrcMAC:       spec.SrcMAC,
		DstMAC:       spec.DstMAC,
		EthernetType: layers.EthernetTypeDot1Q,
	}
	tag := &layers.Dot1Q{
		Priority:       spec.Priority,
		VLANIdentifier: spec.VLANID,
		Type:           layers.EthernetTypeIPv4,
	}
	ip := &layers.IPv4{
		Version:  4,
		TTL:      64,
		Protocol: layers.IPProtocolUDP,
		SrcIP:    spec.SrcIP,
		DstIP:    spec.DstIP,
	}
	udp := &layers.UDP{
		SrcPort: layers.UDPPort(spec.SrcPort),
		DstPort: layers.UDPPort(spec.DstPort),
	}
	if err := udp.SetNetworkLayerForChecksum(ip); err != nil {
		return nil, err
	}

	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	err := gopacket.SerializeLayers(buf, opts, eth, tag, ip, udp, gopacket.Payload(make([]byte, spec.PayloadSize)))
	if err != nil {
		return nil, fmt.Errorf("failed to serialize frame: %w", err)
	}
	return buf.Bytes(), nil
}
