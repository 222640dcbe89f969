package packet

import (
	"encoding/binary"
	"net/netip"
	"time"
)

const (
	MinIPv4HeaderLen = 20
	UDPHeaderLen     = 8
	RTPHeaderLen     = 12

	ProtoUDP = 17

	// DefaultMaxSize 以上的输入会被截断。
	DefaultMaxSize = 8192

	flagMoreFragments = 0x2000
	fragOffsetMask    = 0x1fff
)

// Record 是单个包解析后的结果。所有字段都是值类型，解析过程不产生堆分配。
type Record struct {
	Arrival  time.Time
	Protocol uint8
	SrcAddr  netip.Addr
	DstAddr  netip.Addr
	SrcPort  uint16
	DstPort  uint16
	Length   int

	// Stream 为 true 表示 UDP payload 以 RTP 头开始，下面三个字段有效。
	Stream      bool
	PayloadType uint8
	Sequence    uint16
	Timestamp   uint32

	// Truncated 表示输入超过上限，只解析了前 maxSize 字节。
	Truncated bool
	// Fragment 表示这是 IP 分片，不解析 UDP/RTP。
	Fragment bool
}

// Flow 标识一条单向媒体流。
type Flow struct {
	Src netip.AddrPort
	Dst netip.AddrPort
}

func (f Flow) String() string {
	return f.Src.String() + "->" + f.Dst.String()
}

func (r *Record) Flow() Flow {
	return Flow{
		Src: netip.AddrPortFrom(r.SrcAddr, r.SrcPort),
		Dst: netip.AddrPortFrom(r.DstAddr, r.DstPort),
	}
}

// Parse 从 IPv4 头开始解析一个包（链路层已剥离）。
//
// ok=false 表示不可分析（过短、版本不对、头长度不一致），调用方直接丢弃即可，
// 这类输入来自网络、可能被构造，不当作错误处理。
// ok=true 但 rec.Stream=false 表示合法的 IPv4 包但不是 RTP 流量，仍计入总包数。
// IP 分片（MF 置位或偏移非 0）属于这一类：后续分片没有 UDP 头，首个分片的 UDP 长度覆盖整个重组报文。
//
// maxSize<=0 时使用 DefaultMaxSize；超长输入截断到 maxSize 并置 Truncated，
// 之后按截断前的长度校验 UDP 头，只解析截断后仍在的字节。
func Parse(data []byte, arrival time.Time, maxSize int) (rec Record, ok bool) {
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	full := len(data)
	if full > maxSize {
		data = data[:maxSize]
		rec.Truncated = true
	}
	if len(data) < MinIPv4HeaderLen {
		return rec, false
	}
	if data[0]>>4 != 4 {
		return rec, false
	}
	ihl := int(data[0]&0x0f) * 4
	if ihl < MinIPv4HeaderLen || ihl > len(data) {
		return rec, false
	}

	rec.Arrival = arrival
	rec.Length = len(data)
	rec.Protocol = data[9]
	rec.SrcAddr = netip.AddrFrom4([4]byte(data[12:16]))
	rec.DstAddr = netip.AddrFrom4([4]byte(data[16:20]))

	if rec.Protocol != ProtoUDP {
		return rec, true
	}
	frag := binary.BigEndian.Uint16(data[6:8])
	if frag&(flagMoreFragments|fragOffsetMask) != 0 {
		rec.Fragment = true
		return rec, true
	}

	udp := data[ihl:]
	if len(udp) < UDPHeaderLen {
		return rec, true
	}
	udpLen := int(binary.BigEndian.Uint16(udp[4:6]))
	if udpLen < UDPHeaderLen || udpLen > full-ihl {
		return Record{Truncated: rec.Truncated}, false
	}
	rec.SrcPort = binary.BigEndian.Uint16(udp[0:2])
	rec.DstPort = binary.BigEndian.Uint16(udp[2:4])

	payload := udp[UDPHeaderLen:min(udpLen, len(udp))]
	if len(payload) < RTPHeaderLen {
		return rec, true
	}
	// RTP version 必须是 2（首字节高两位 10）
	if payload[0]>>6 != 2 {
		return rec, true
	}
	rec.Stream = true
	rec.PayloadType = payload[1] & 0x7f
	rec.Sequence = binary.BigEndian.Uint16(payload[2:4])
	rec.Timestamp = binary.BigEndian.Uint32(payload[4:8])
	return rec, true
}
