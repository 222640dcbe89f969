package clockrate

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResolve(t *testing.T) {
	tests := []struct {
		name string
		pt   uint8
		want uint32
	}{
		{"PCMU", 0, 8000},
		{"GSM", 3, 8000},
		{"PCMA", 8, 8000},
		{"G722", 9, 8000},
		{"DVI4/16000", 6, 16000},
		{"L16 stereo", 10, 44100},
		{"JPEG", 26, 90000},
		{"H261", 31, 90000},
		{"MP2T", 33, 90000},
		{"H263", 34, 90000},
		{"dynamic H264", 96, 90000},
		{"dynamic H265", 97, 90000},
		{"dynamic upper bound", 127, 90000},
		{"unassigned", 72, Default},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Resolve(tt.pt))
		})
	}
}

func TestResolveIgnoresMarkerBit(t *testing.T) {
	// 第二字节最高位是 marker，不属于 payload type
	assert.Equal(t, Resolve(0), Resolve(0x80))
	assert.Equal(t, Resolve(96), Resolve(0x80|96))
}
