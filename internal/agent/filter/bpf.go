package filter

import (
	"fmt"

	"golang.org/x/net/bpf"
)

// RTSPPort 上的 UDP 流量总是放行（部分摄像头把 RTP 交织在 554 上）。
const RTSPPort = 554

// RTPFilter 生成 classic BPF 程序，假设链路层为 Ethernet：
//   - 只放行 IPv4
//   - 只放行 UDP，且不是分片的后续片段（后续片段没有 UDP 头）
//   - 只放行 src 或 dst 端口落在 [minPort, maxPort] 内，或等于 554
//
// IPv4 头部长度不固定（options），用 LoadMemShift 得到 X = 4*(ip[0]&0xf)，
// 然后读取 UDP 端口：src=[14+X]，dst=[14+X+2]。
func RTPFilter(minPort, maxPort uint16) []bpf.Instruction {
	return []bpf.Instruction{
		bpf.LoadAbsolute{Off: 12, Size: 2},                          // EtherType
		bpf.JumpIf{Cond: bpf.JumpEqual, Val: 0x0800, SkipFalse: 13}, // IPv4? 否则 drop

		bpf.LoadAbsolute{Off: 23, Size: 1},                      // IPv4 protocol
		bpf.JumpIf{Cond: bpf.JumpEqual, Val: 17, SkipFalse: 11}, // UDP? 否则 drop
		bpf.LoadAbsolute{Off: 20, Size: 2},                      // flags + fragment offset
		bpf.JumpIf{Cond: bpf.JumpBitsSet, Val: 0x1fff, SkipTrue: 9},
		bpf.LoadMemShift{Off: 14}, // X = 4*(ip[0]&0xf)

		bpf.LoadIndirect{Off: 14, Size: 2}, // udp src port
		bpf.JumpIf{Cond: bpf.JumpEqual, Val: RTSPPort, SkipTrue: 7},
		bpf.JumpIf{Cond: bpf.JumpLessThan, Val: uint32(minPort), SkipTrue: 1},
		bpf.JumpIf{Cond: bpf.JumpLessOrEqual, Val: uint32(maxPort), SkipTrue: 5},

		bpf.LoadIndirect{Off: 16, Size: 2}, // udp dst port
		bpf.JumpIf{Cond: bpf.JumpEqual, Val: RTSPPort, SkipTrue: 3},
		bpf.JumpIf{Cond: bpf.JumpLessThan, Val: uint32(minPort), SkipTrue: 1},
		bpf.JumpIf{Cond: bpf.JumpLessOrEqual, Val: uint32(maxPort), SkipTrue: 1},

		bpf.RetConstant{Val: 0},      // drop
		bpf.RetConstant{Val: 0xFFFF}, // accept (snaplen 由 AF_PACKET 控制)
	}
}

func RTPFilterBPF(minPort, maxPort uint16) ([]bpf.RawInstruction, error) {
	if minPort > maxPort {
		return nil, fmt.Errorf("端口范围无效：%d > %d", minPort, maxPort)
	}
	raw, err := bpf.Assemble(RTPFilter(minPort, maxPort))
	if err != nil {
		return nil, fmt.Errorf("组装 BPF 失败：%w", err)
	}
	return raw, nil
}
