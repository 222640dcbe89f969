// Package packettest 构造测试用的 IPv4/UDP/RTP 报文。
package packettest

import (
	"net"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/pion/rtp"
)

// RTP 描述一个测试用 RTP 包。
type RTP struct {
	SrcIP       string
	DstIP       string
	SrcPort     uint16
	DstPort     uint16
	PayloadType uint8
	Sequence    uint16
	Timestamp   uint32
	SSRC        uint32
	Payload     []byte
}

func (p RTP) withDefaults() RTP {
	if p.SrcIP == "" {
		p.SrcIP = "192.168.1.64"
	}
	if p.DstIP == "" {
		p.DstIP = "192.168.1.10"
	}
	if p.SrcPort == 0 {
		p.SrcPort = 16400
	}
	if p.DstPort == 0 {
		p.DstPort = 16402
	}
	if p.Payload == nil {
		p.Payload = make([]byte, 100)
	}
	return p
}

// IPv4 返回从 IPv4 头开始的完整报文。
func (p RTP) IPv4() []byte {
	p = p.withDefaults()
	body, err := (&rtp.Packet{
		Header: rtp.Header{
			Version:        2,
			PayloadType:    p.PayloadType,
			SequenceNumber: p.Sequence,
			Timestamp:      p.Timestamp,
			SSRC:           p.SSRC,
		},
		Payload: p.Payload,
	}).Marshal()
	if err != nil {
		panic(err)
	}
	return UDP(p.SrcIP, p.DstIP, p.SrcPort, p.DstPort, body)
}

// Ethernet 返回带以太网头的完整帧。
func (p RTP) Ethernet() []byte {
	return WithEthernet(p.IPv4())
}

// UDP 用任意 payload 构造 IPv4/UDP 报文。
func UDP(srcIP, dstIP string, srcPort, dstPort uint16, payload []byte) []byte {
	ip := &layers.IPv4{
		Version:  4,
		IHL:      5,
		TTL:      64,
		Protocol: layers.IPProtocolUDP,
		SrcIP:    net.ParseIP(srcIP).To4(),
		DstIP:    net.ParseIP(dstIP).To4(),
	}
	udp := &layers.UDP{
		SrcPort: layers.UDPPort(srcPort),
		DstPort: layers.UDPPort(dstPort),
	}
	if err := udp.SetNetworkLayerForChecksum(ip); err != nil {
		panic(err)
	}
	return serialize(ip, udp, gopacket.Payload(payload))
}

// TCP 构造一个 IPv4/TCP 报文，用于验证非 UDP 流量的处理。
func TCP(srcIP, dstIP string, srcPort, dstPort uint16, payload []byte) []byte {
	ip := &layers.IPv4{
		Version:  4,
		IHL:      5,
		TTL:      64,
		Protocol: layers.IPProtocolTCP,
		SrcIP:    net.ParseIP(srcIP).To4(),
		DstIP:    net.ParseIP(dstIP).To4(),
	}
	tcp := &layers.TCP{
		SrcPort: layers.TCPPort(srcPort),
		DstPort: layers.TCPPort(dstPort),
		ACK:     true,
		Window:  1024,
	}
	if err := tcp.SetNetworkLayerForChecksum(ip); err != nil {
		panic(err)
	}
	return serialize(ip, tcp, gopacket.Payload(payload))
}

// WithEthernet 给 IPv4 报文加上以太网头。
func WithEthernet(ipv4 []byte) []byte {
	eth := &layers.Ethernet{
		SrcMAC:       net.HardwareAddr{0x02, 0, 0, 0, 0, 0x01},
		DstMAC:       net.HardwareAddr{0x02, 0, 0, 0, 0, 0x02},
		EthernetType: layers.EthernetTypeIPv4,
	}
	return serialize(eth, gopacket.Payload(ipv4))
}

// WithVLAN 给 IPv4 报文加上以太网 + 802.1Q 头。
func WithVLAN(ipv4 []byte, vlan uint16) []byte {
	eth := &layers.Ethernet{
		SrcMAC:       net.HardwareAddr{0x02, 0, 0, 0, 0, 0x01},
		DstMAC:       net.HardwareAddr{0x02, 0, 0, 0, 0, 0x02},
		EthernetType: layers.EthernetTypeDot1Q,
	}
	tag := &layers.Dot1Q{
		VLANIdentifier: vlan,
		Type:           layers.EthernetTypeIPv4,
	}
	return serialize(eth, tag, gopacket.Payload(ipv4))
}

func serialize(ls ...gopacket.SerializableLayer) []byte {
	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	if err := gopacket.SerializeLayers(buf, opts, ls...); err != nil {
		panic(err)
	}
	out := make([]byte, len(buf.Bytes()))
	copy(out, buf.Bytes())
	return out
}
