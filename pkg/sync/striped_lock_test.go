package sync

import (
	"fmt"
	"sync"
	base "sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStripedLock_HappyPath(t *testing.T) {
	workerCount := 256
	operationCount := 100000

	l := NewStripedLock(4)

	var workerWg base.WaitGroup
	startChan := make(chan struct{}, 0)
	data := make([]int, workerCount)

	for i := 0; i < workerCount; i++ {
		workerWg.Add(1)

		go func(workerID int) {
			defer workerWg.Done()

			var opWg sync.WaitGroup
			key := []byte(fmt.Sprintf("worker%d", workerID))
			for j := 0; j < operationCount; j++ {
				opWg.Add(1)

				go func() {
					defer opWg.Done()

					select {
					case <-startChan:
					}

					mu := l.Get([]byte(key))
					mu.Lock()
					data[workerID]++
					mu.Unlock()
				}()
			}
			opWg.Wait()
		}(i)
	}

	close(startChan)
	workerWg.Wait()

	for _, val := range data {
		assert.EqualValues(t, operationCount, val)
	}
}

func TestStripedLock_LockKeys(t *testing.T) {
	l := NewStripedLock(8)

	keys := make([][]byte, 32)
	for i := range keys {
		keys[i] = []byte(fmt.Sprintf("account%d", i))
	}

	var wg base.WaitGroup
	balances := make([]int, len(keys))
	for i := range balances {
		balances[i] = 1000
	}

	// Every worker moves a unit between two accounts, in alternating order.
	// Without consistent stripe ordering this deadlocks.
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()

			for j := 0; j < 500; j++ {
				from := (i + j) % len(keys)
				to := (i*7 + j + 1) % len(keys)
				if i%2 == 1 {
					from, to = to, from
				}

				unlock := l.LockKeys([][]byte{keys[from], keys[to]}, [][]byte{keys[0]})
				balances[from]--
				balances[to]++
				unlock()
			}
		}(i)
	}
	wg.Wait()

	var total int
	for _, balance := range balances {
		total += balance
	}
	assert.Equal(t, 1000*len(keys), total)
}

func TestStripedLock_LockKeys_ReadonlySharing(t *testing.T) {
	l := NewStripedLock(4)
	key := []byte("shared")

	unlock1 := l.LockKeys(nil, [][]byte{key})
	unlock2 := l.LockKeys(nil, [][]byte{key, key})

	acquired := make(chan struct{})
	go func() {
		unlock := l.LockKeys([][]byte{key}, nil)
		close(acquired)
		unlock()
	}()

	select {
	case <-acquired:
		t.Fatal("write lock acquired while read locks are held")
	default:
	}

	unlock1()
	unlock2()
	<-acquired
}
