package analyzer

import (
	"math"
	"slices"
	"time"

	"streamqos/internal/agent/ring"
)

// sessionSample 是一个 RTP 时间戳及其对应的时钟频率。
// 时钟频率随 payload type 变化，所以每个包单独记录。
type sessionSample struct {
	ts        uint32
	clockRate uint32
}

// sessionDeltaMS 把两个 RTP 时间戳之差换算成毫秒。
// 差值超过 32 位范围一半时视为回绕。
func sessionDeltaMS(prev, cur uint32, clockRate uint32) float64 {
	if clockRate == 0 {
		return 0
	}
	delta := int64(cur) - int64(prev)
	if delta > math.MaxInt32 {
		delta -= 1 << 32
	} else if delta < math.MinInt32 {
		delta += 1 << 32
	}
	return float64(delta) * 1000 / float64(clockRate)
}

// jitterMS 对窗口内每对相邻包计算 |到达间隔 - RTP 时间戳间隔|，取算术平均。
// sessions 与 arrivals 同步写入，下标一一对应。少于 2 个样本时为 0。
func jitterMS(sessions *ring.Buffer[sessionSample], arrivals *ring.Buffer[time.Time]) float64 {
	n := min(sessions.Len(), arrivals.Len())
	if n < 2 {
		return 0
	}
	var sum float64
	prevS, prevA := sessions.At(0), arrivals.At(0)
	for i := 1; i < n; i++ {
		curS, curA := sessions.At(i), arrivals.At(i)
		arrivalMS := float64(curA.Sub(prevA)) / float64(time.Millisecond)
		sessionMS := sessionDeltaMS(prevS.ts, curS.ts, curS.clockRate)
		sum += math.Abs(arrivalMS - sessionMS)
		prevS, prevA = curS, curA
	}
	return sum / float64(n-1)
}

// residencyMS 是窗口内各包 (now - 到达时间) 的平均值。
// 没有回显机制，测不到真实的端到端时延，这里只是近似。
func residencyMS(arrivals *ring.Buffer[time.Time], now time.Time) float64 {
	n := arrivals.Len()
	if n == 0 {
		return 0
	}
	var sum float64
	for i := 0; i < n; i++ {
		sum += float64(now.Sub(arrivals.At(i))) / float64(time.Millisecond)
	}
	return sum / float64(n)
}

func blendLatency(jitter, delay, jitterWeight, delayWeight float64) float64 {
	return jitterWeight*jitter + delayWeight*delay
}

// bitrateMbps = bytes*8 / 秒 / 1e6。
func bitrateMbps(bytes uint64, elapsed time.Duration) float64 {
	secs := elapsed.Seconds()
	if secs <= 0 {
		return 0
	}
	return float64(bytes) * 8 / secs / 1e6
}

type lossResult struct {
	expected uint64
	lost     uint64
	percent  float64
}

// sequenceLoss 统计序列号缺口。seqs 会被原地排序。
//
// 排序会把回绕的序列（65534,65535,0,1）拆成两段，这里先找到排序后最大的间隔，
// 若超过 32768 就说明是回绕接缝，从接缝处旋转，再按 16 位前向距离累加。
func sequenceLoss(seqs []uint16) lossResult {
	if len(seqs) < 2 {
		return lossResult{}
	}
	slices.Sort(seqs)

	seam, widest := 0, 0
	for i := 1; i < len(seqs); i++ {
		if gap := int(seqs[i]) - int(seqs[i-1]); gap > widest {
			seam, widest = i, gap
		}
	}
	start := 0
	if widest > 32768 {
		start = seam
	}

	var r lossResult
	n := len(seqs)
	prev := seqs[start]
	for k := 1; k < n; k++ {
		cur := seqs[(start+k)%n]
		diff := uint64(cur - prev) // uint16 减法自带回绕
		r.expected += diff
		if diff > 1 {
			r.lost += diff - 1
		}
		prev = cur
	}
	if r.expected > 0 {
		r.percent = float64(r.lost) / float64(r.expected) * 100
		r.percent = math.Min(100, math.Max(0, r.percent))
	}
	return r
}
