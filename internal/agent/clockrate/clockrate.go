package clockrate

const (
	Audio8k  = 8000
	Audio16k = 16000
	Audio44k = 44100
	Video    = 90000

	// Default 用于未知或未登记的 payload type；监控对象主要是视频流。
	Default = Video
)

// 静态 payload type 取自 RFC 3551 表 4/5；96-127 为动态协商类型，
// 摄像头/DVR 的 H.264/H.265 一般落在这个区间，约定按 90kHz 处理。
var table = func() [128]uint32 {
	var t [128]uint32
	for i := range t {
		t[i] = Default
	}
	for _, pt := range []int{0, 3, 4, 5, 7, 8, 9, 12, 13, 15, 18} {
		t[pt] = Audio8k
	}
	t[6] = Audio16k
	t[16] = 11025
	t[17] = 22050
	t[10], t[11] = Audio44k, Audio44k
	t[14] = Video // MPA
	for _, pt := range []int{25, 26, 28, 31, 32, 33, 34} {
		t[pt] = Video
	}
	return t
}()

// Resolve 返回 payload type 对应的 RTP 时钟频率（每秒采样数）。
// 只取低 7 位，所以任何输入都能得到有效结果。
func Resolve(payloadType uint8) uint32 {
	return table[payloadType&0x7f]
}
