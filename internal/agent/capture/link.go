package capture

import (
	"fmt"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
)

// LinkDecoder 剥掉链路层头，返回 IPv4 部分。复用同一组 layer 对象，解码时不分配内存。
// 非并发安全，每个抓包循环持有一个。
type LinkDecoder struct {
	raw     bool
	eth     layers.Ethernet
	dot1q   layers.Dot1Q
	parser  *gopacket.DecodingLayerParser
	decoded []gopacket.LayerType
}

func NewLinkDecoder(lt layers.LinkType) (*LinkDecoder, error) {
	d := &LinkDecoder{decoded: make([]gopacket.LayerType, 0, 4)}
	switch lt {
	case layers.LinkTypeEthernet:
		d.parser = gopacket.NewDecodingLayerParser(layers.LayerTypeEthernet, &d.eth, &d.dot1q)
		// 遇到 IPv4 等未注册的层时停止，不当作错误
		d.parser.IgnoreUnsupported = true
	case layers.LinkTypeRaw, layers.LinkTypeIPv4:
		d.raw = true
	default:
		return nil, fmt.Errorf("不支持的链路类型：%s", lt)
	}
	return d, nil
}

// IPv4 返回帧中的 IPv4 报文；不是 IPv4 时 ok=false。
func (d *LinkDecoder) IPv4(frame []byte) ([]byte, bool) {
	if d.raw {
		return frame, len(frame) > 0 && frame[0]>>4 == 4
	}
	if err := d.parser.DecodeLayers(frame, &d.decoded); err != nil || len(d.decoded) == 0 {
		return nil, false
	}
	switch d.decoded[len(d.decoded)-1] {
	case layers.LayerTypeEthernet:
		if d.eth.EthernetType == layers.EthernetTypeIPv4 {
			return d.eth.Payload, true
		}
	case layers.LayerTypeDot1Q:
		if d.dot1q.Type == layers.EthernetTypeIPv4 {
			return d.dot1q.Payload, true
		}
	}
	return nil, false
}
