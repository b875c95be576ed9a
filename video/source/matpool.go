package source

import (
	log "github.com/sirupsen/logrus"
	"gocv.io/x/gocv"
)

// DefaultPoolLimit bounds the number of Mats a pool hands out at once.
const DefaultPoolLimit = 64

// MatPool recycles Mats used to copy frames out of the capture loop.
type MatPool struct {
	Limit int

	new   chan chan gocv.Mat
	free  chan gocv.Mat
	close chan bool
	stats chan chan PoolStats
	done  chan struct{}
}

type PoolStats struct {
	Allocated int
	Available int
}

func NewMatPool() *MatPool {
	p := &MatPool{
		Limit: DefaultPoolLimit,

		new:   make(chan chan gocv.Mat),
		free:  make(chan gocv.Mat),
		close: make(chan bool),
		stats: make(chan chan PoolStats),
		done:  make(chan struct{}),
	}
	go p.loop()
	return p
}

// loop exits once the pool is closed and every Mat it allocated has come
// back.
func (p *MatPool) loop() {
	defer close(p.done)
	closed := false
	allocated := 0
	var available []gocv.Mat
	warned := false

	for !closed || allocated > 0 {
		select {
		case <-p.close:
			closed = true
			for _, m := range available {
				m.Close()
				allocated -= 1
			}
			available = nil
		case m := <-p.free:
			if closed {
				m.Close()
				allocated -= 1
			} else {
				available = append(available, m)
			}
		case r := <-p.new:
			var m gocv.Mat
			if len(available) > 0 {
				m, available = available[len(available)-1], available[:len(available)-1]
			} else {
				m = gocv.NewMat()
				allocated += 1
				if allocated > p.Limit && !warned {
					log.Warnf("MatPool holds %d Mats, above limit %d. Perhaps a Mat isn't being released?", allocated, p.Limit)
					warned = true
				}
			}
			r <- m
		case r := <-p.stats:
			r <- PoolStats{Allocated: allocated, Available: len(available)}
		}
	}
}

func (p *MatPool) NewMat() gocv.Mat {
	r := make(chan gocv.Mat)
	select {
	case p.new <- r:
		return <-r
	case <-p.done:
		return gocv.NewMat()
	}
}

func (p *MatPool) ReleaseMat(m gocv.Mat) {
	select {
	case p.free <- m:
	case <-p.done:
		m.Close()
	}
}

func (p *MatPool) Stats() PoolStats {
	r := make(chan PoolStats)
	select {
	case p.stats <- r:
		return <-r
	case <-p.done:
		return PoolStats{}
	}
}

// Done is closed when the pool goroutine has exited.
func (p *MatPool) Done() <-chan struct{} {
	return p.done
}

// Close frees pooled Mats. Mats released afterwards are closed directly,
// and the pool goroutine exits once the last one is back.
func (p *MatPool) Close() {
	select {
	case p.close <- true:
	case <-p.done:
	}
}
