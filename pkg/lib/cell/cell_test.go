package cell

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCell_SetNotifiesSynchronously(t *testing.T) {
	c := New(0)
	var got [][2]int
	c.Observe(func(old, new int) {
		got = append(got, [2]int{old, new})
	})

	c.Set(1)
	c.Set(2)

	assert.Equal(t, [][2]int{{0, 1}, {1, 2}}, got)
	assert.Equal(t, 2, c.Get())
}

func TestCell_EqualSuppressesNotification(t *testing.T) {
	c := NewComparable("connected")
	calls := 0
	c.Observe(func(_, _ string) { calls++ })

	c.Set("connected")
	assert.Equal(t, 0, calls)

	c.Set("disconnected")
	assert.Equal(t, 1, calls)
}

func TestCell_NonReentrant(t *testing.T) {
	c := New(0)
	var order []string
	depth := 0

	c.Observe(func(old, new int) {
		depth++
		defer func() { depth-- }()
		assert.Equal(t, 1, depth, "observer must not be re-entered")
		order = append(order, "a")
		if new == 1 {
			c.Set(2)
		}
	})
	c.Observe(func(old, new int) {
		order = append(order, "b")
	})

	c.Set(1)

	// 第二次变化在第一轮全部观察者执行完后才投递
	assert.Equal(t, []string{"a", "b", "a", "b"}, order)
	assert.Equal(t, 2, c.Get())
}

func TestCell_ObserverPanicDoesNotWedge(t *testing.T) {
	c := New(0)
	var got [][2]int
	c.Observe(func(_, new int) {
		if new == 1 {
			panic("observer failed")
		}
	})
	c.Observe(func(old, new int) {
		got = append(got, [2]int{old, new})
	})

	assert.Panics(t, func() { c.Set(1) })
	assert.Equal(t, 1, c.Get())

	// 之后的 Set 仍然同步通知
	c.Set(2)
	assert.Equal(t, [][2]int{{1, 2}}, got)
}

func TestCell_ObserveCancel(t *testing.T) {
	c := New(0)
	calls := 0
	cancel := c.Observe(func(_, _ int) { calls++ })

	c.Set(1)
	cancel()
	cancel()
	c.Set(2)

	assert.Equal(t, 1, calls)
}

func TestCell_Update(t *testing.T) {
	c := New(10)
	c.Update(func(v int) int { return v + 5 })
	assert.Equal(t, 15, c.Get())
}

func TestCell_ConcurrentSetInOrder(t *testing.T) {
	c := New(0)
	var mu sync.Mutex
	var seen []int
	c.Observe(func(old, new int) {
		mu.Lock()
		seen = append(seen, new)
		mu.Unlock()
	})

	var wg sync.WaitGroup
	for i := 1; i <= 50; i++ {
		wg.Add(1)
		go func(v int) {
			defer wg.Done()
			c.Set(v)
		}(i)
	}
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, seen, 50)
	// 最后一次通知的值就是最终值
	assert.Equal(t, c.Get(), seen[len(seen)-1])
}

func TestCell_Wait(t *testing.T) {
	c := New("pending")

	go func() {
		time.Sleep(10 * time.Millisecond)
		c.Set("starting")
		c.Set("active")
	}()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	v, err := c.Wait(ctx, func(s string) bool { return s == "active" })
	require.NoError(t, err)
	assert.Equal(t, "active", v)
}

func TestCell_WaitCancelled(t *testing.T) {
	c := New(0)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	v, err := c.Wait(ctx, func(v int) bool { return v > 0 })
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, v)
}
