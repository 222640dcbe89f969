package ring

import "fmt"

// Buffer 是固定容量的环形缓冲区：写满后覆盖最旧的元素，不扩容、不拒绝写入。
// 底层数组在 New 时一次性分配，之后的 Push/Pop 都不会产生堆分配。
// Buffer 本身不加锁，由持有者负责并发保护。
type Buffer[T any] struct {
	items []T
	head  int // 下一个写入位置
	tail  int // 最旧元素位置
	count int
}

func New[T any](capacity int) (*Buffer[T], error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("ring 容量必须大于 0：%d", capacity)
	}
	return &Buffer[T]{items: make([]T, capacity)}, nil
}

// Push 写入一个元素；缓冲区已满时淘汰最旧元素并返回 true。
func (b *Buffer[T]) Push(v T) (evicted bool) {
	if b.count == len(b.items) {
		b.tail = (b.tail + 1) % len(b.items)
		evicted = true
	} else {
		b.count++
	}
	b.items[b.head] = v
	b.head = (b.head + 1) % len(b.items)
	return evicted
}

// Pop 取出最旧的元素。
func (b *Buffer[T]) Pop() (T, bool) {
	var zero T
	if b.count == 0 {
		return zero, false
	}
	v := b.items[b.tail]
	b.items[b.tail] = zero
	b.tail = (b.tail + 1) % len(b.items)
	b.count--
	return v, true
}

// At 按逻辑下标访问，0 是最旧的元素。越界会 panic，和切片一致。
func (b *Buffer[T]) At(i int) T {
	if i < 0 || i >= b.count {
		panic(fmt.Sprintf("ring: index %d out of range [0,%d)", i, b.count))
	}
	return b.items[(b.tail+i)%len(b.items)]
}

// Oldest 返回最旧的元素，缓冲区为空时 ok=false。
func (b *Buffer[T]) Oldest() (v T, ok bool) {
	if b.count == 0 {
		return v, false
	}
	return b.items[b.tail], true
}

// Newest 返回最近写入的元素。
func (b *Buffer[T]) Newest() (v T, ok bool) {
	if b.count == 0 {
		return v, false
	}
	return b.items[(b.head-1+len(b.items))%len(b.items)], true
}

// AppendTo 按从旧到新的顺序把元素追加到 dst；dst 容量足够时不分配。
func (b *Buffer[T]) AppendTo(dst []T) []T {
	for i := 0; i < b.count; i++ {
		dst = append(dst, b.items[(b.tail+i)%len(b.items)])
	}
	return dst
}

func (b *Buffer[T]) Len() int    { return b.count }
func (b *Buffer[T]) Cap() int    { return len(b.items) }
func (b *Buffer[T]) Empty() bool { return b.count == 0 }
func (b *Buffer[T]) Full() bool  { return b.count == len(b.items) }

// Clear 逻辑清空；旧值保留在底层数组里，会被后续写入覆盖。
func (b *Buffer[T]) Clear() {
	b.head, b.tail, b.count = 0, 0, 0
}
