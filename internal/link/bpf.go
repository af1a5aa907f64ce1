package link

import (
	"golang.org/x/net/bpf"

	"firestige.xyz/ethmqtt/internal/core/decoder"
)

// frameFilter accepts ARP and IPv4 frames up to snapLen bytes and drops
// everything else in the kernel.
func frameFilter(snapLen int) []bpf.Instruction {
	return []bpf.Instruction{
		// EtherType (2 bytes at offset 12)
		bpf.LoadAbsolute{Off: 12, Size: 2},
		bpf.JumpIf{Cond: bpf.JumpEqual, Val: decoder.EtherTypeARP, SkipTrue: 1},
		bpf.JumpIf{Cond: bpf.JumpEqual, Val: decoder.EtherTypeIPv4, SkipFalse: 1},
		bpf.RetConstant{Val: uint32(snapLen)},
		bpf.RetConstant{Val: 0},
	}
}

// assembleFilter compiles frameFilter for SO_ATTACH_FILTER.
func assembleFilter(snapLen int) ([]bpf.RawInstruction, error) {
	return bpf.Assemble(frameFilter(snapLen))
}
