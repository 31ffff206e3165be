// Copyright 2018 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package bcm283x

import (
	"errors"
	"fmt"
	"log"
	"math"
	"os"
	"sync"
	"time"

	"github.com/keybuk/SignalBox-sub002"
	"github.com/keybuk/SignalBox-sub002/conn/gpio"
	"github.com/keybuk/SignalBox-sub002/dcc"
	"github.com/keybuk/SignalBox-sub002/host/pmem"
)

const (
	// checkInterval is the delay between polls of a stream's sentinel.
	checkInterval = time.Millisecond
	// watchdogInterval is the period of the hardware error flag sweep.
	watchdogInterval = 10 * time.Millisecond
	// pwmSourceFrequency is the oscillator the serialiser clock divides;
	// the cleanest source per the datasheet errata.
	pwmSourceFrequency = clk19dot2MHz // Hz
)

// Generator produces the DCC track signal.
//
// It owns the PWM channel 1 serialiser, its clock, one full bandwidth DMA
// channel and the RailCom/debug GPIOs. Committed bitstreams form a FIFO
// queue; each transmits completely at least once, then control is spliced
// to its successor at a breakpoint, so the track signal never glitches
// between packets.
//
// All mutation happens on an internal serial executor; public methods may
// be called from any goroutine.
type Generator struct {
	// DCC is the serialiser output pin, switched to its PWM alternate
	// function at Startup. GPIO12 and GPIO18, the PWM channel 1 outputs, are
	// valid.
	DCC *Pin
	// RailCom is the cutout gate pin; high enables track power, so the pin
	// doubles as the power enable.
	RailCom *Pin
	// Debug is the oscilloscope trigger pin.
	Debug *Pin
	// BitDuration is the target duration in µs of one physical bit. The
	// effective duration after clock divisor rounding is returned by
	// ActualBitDuration once started.
	BitDuration float64

	dispatch chan func()
	done     chan struct{}
	wg       sync.WaitGroup

	// The following fields are owned by the executor goroutine.
	bitDuration  float64 // µs, after divisor rounding
	dmaNum       int
	dmaCh        *dmaChannel
	queue        []*generatorStream
	needsPowerOn bool
	running      bool
}

// generatorStream is one queued bitstream and its callbacks.
type generatorStream struct {
	q          *queuedBitstream
	repeating  bool
	completion func()
}

// NewGenerator returns a Generator driving the default wiring: DCC on
// GPIO18, the RailCom gate on GPIO17 and the debug trigger on GPIO19.
func NewGenerator() *Generator {
	return &Generator{
		DCC:         GPIO18,
		RailCom:     GPIO17,
		Debug:       GPIO19,
		BitDuration: dcc.DefaultBitDuration,
	}
}

// Startup initialises the PWM, clock, DMA and GPIO peripherals and starts
// the executor and watchdog. It must be called once before Queue.
func (g *Generator) Startup() error {
	if gpioMemory == nil || pwmMemory == nil || clockMemory == nil || dmaMemory == nil {
		return errors.New("bcm283x-dcc: subsystem not initialized; try periph.Init() as root")
	}
	divisor := uint32(math.Round(g.BitDuration * pwmSourceFrequency / 1e6))
	if divisor < 1 || divisor > clockDiviMax {
		return fmt.Errorf("bcm283x-dcc: bit duration %gµs is not reachable from a %dHz source", g.BitDuration, pwmSourceFrequency)
	}
	alt, err := pwmAlt(g.DCC)
	if err != nil {
		return err
	}

	// Stop both PWM channels and discard anything latched or queued.
	pwmMemory.ctl &^= pwm1Mask | pwm2Mask
	pwmMemory.status = busErr | gapo1 | gapo2 | gapo3 | gapo4 | rerr1 | werr1
	pwmMemory.ctl |= clrf

	// One serialiser bit per divisor ticks of the oscillator.
	if err := clockMemory.pwm.setRaw(clockSrc19dot2MHz, divisor); err != nil {
		return err
	}
	clockMemory.pwm.waitForRunning()
	g.bitDuration = float64(divisor) * 1e6 / pwmSourceFrequency

	// The GPIO control block is a 2D transfer, so a full bandwidth channel
	// is required.
	num, ch := pickChannel(7, 8, 9, 10, 11, 12, 13, 14, 15)
	if ch == nil {
		return errors.New("bcm283x-dcc: no DMA channel available")
	}
	dmaMemory.enable |= 1 << uint(num)
	g.dmaNum = num
	g.dmaCh = ch

	// Route the serialiser to the DCC pin; the gate and trigger idle low.
	if err := g.DCC.setAlt(alt); err != nil {
		return err
	}
	if err := g.RailCom.Out(gpio.Low); err != nil {
		return err
	}
	if err := g.Debug.Out(gpio.Low); err != nil {
		return err
	}

	// Serialiser mode from the FIFO, DREQ asserted at one free slot.
	pwmMemory.rng1 = 32
	pwmMemory.dmaCfg = enab | 7<<8 | 1
	pwmMemory.ctl |= usef1 | mode1 | pwen1

	g.dispatch = make(chan func())
	g.done = make(chan struct{})
	g.needsPowerOn = true
	g.running = true
	g.wg.Add(2)
	go g.run()
	go g.watchdog()
	return nil
}

// ActualBitDuration returns the physical bit duration in µs produced by
// the programmed clock divisor.
func (g *Generator) ActualBitDuration() float64 {
	return g.bitDuration
}

// Bitstream returns an empty bitstream carrying the generator's effective
// bit duration.
func (g *Generator) Bitstream() *dcc.Bitstream {
	return &dcc.Bitstream{BitDuration: g.bitDuration}
}

// Queue compiles, commits and queues b.
//
// The stream transmits after every stream before it has transmitted at
// least once. With repeating, it then repeats until a successor is queued;
// otherwise a power off stream is appended after it and the track goes
// dead. completion, if not nil, runs once the stream has transmitted
// completely once.
func (g *Generator) Queue(b *dcc.Bitstream, repeating bool, completion func()) error {
	err := errors.New("bcm283x-dcc: generator is not running")
	g.do(func() {
		err = g.queueLocked(b, repeating, completion, false)
	})
	return err
}

// Stop gracefully powers off the track: the current stream finishes its
// transmission, the power off stream transmits, then completion runs. When
// power is already off, completion runs immediately.
func (g *Generator) Stop(completion func()) error {
	err := errors.New("bcm283x-dcc: generator is not running")
	g.do(func() {
		err = nil
		if g.needsPowerOn {
			if completion != nil {
				completion()
			}
			return
		}
		err = g.queueLocked(g.powerOffBitstream(), false, completion, true)
	})
	return err
}

// Shutdown stops the generator immediately: the PWM, clock and DMA channel
// are disabled, the pins are driven low, pending completions are dropped
// and all stream memory is released. Shutting down twice is a programmer
// error.
func (g *Generator) Shutdown() {
	select {
	case <-g.done:
		panic("bcm283x-dcc: generator shut down twice")
	default:
	}
	g.do(func() {
		g.running = false
		pwmMemory.ctl &^= pwm1Mask
		clockMemory.pwm.set(0, 1)
		if g.dmaCh != nil {
			g.dmaCh.cs = dmaAbort
			g.dmaCh.reset()
		}
		g.DCC.Out(gpio.Low)
		g.RailCom.Out(gpio.Low)
		g.Debug.Out(gpio.Low)
	})
	close(g.done)
	g.wg.Wait()
	// The DMA channel is stopped; the uncached memory can go.
	for _, s := range g.queue {
		s.q.release()
	}
	g.queue = nil
}

//

// do runs f on the serial executor and waits for it; it reports false when
// the generator was already shut down.
func (g *Generator) do(f func()) bool {
	if g.dispatch == nil {
		panic("bcm283x-dcc: generator was not started")
	}
	done := make(chan struct{})
	select {
	case g.dispatch <- func() {
		f()
		close(done)
	}:
		<-done
		return true
	case <-g.done:
		return false
	}
}

// async queues f on the serial executor without waiting.
func (g *Generator) async(f func()) {
	select {
	case g.dispatch <- f:
	case <-g.done:
	}
}

// poll runs cond on the serial executor; ok is false once shut down.
func (g *Generator) poll(cond func() bool) (value, ok bool) {
	res := make(chan bool, 1)
	select {
	case g.dispatch <- func() {
		res <- cond()
	}:
		return <-res, true
	case <-g.done:
		return false, false
	}
}

// sleep waits for d or shutdown, whichever is first.
func (g *Generator) sleep(d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-g.done:
		return false
	}
}

func (g *Generator) run() {
	defer g.wg.Done()
	for {
		select {
		case f := <-g.dispatch:
			f()
		case <-g.done:
			return
		}
	}
}

// watchdog clears transient hardware errors the serialiser and DMA engine
// latch during normal operation, so a single glitch cannot wedge the
// stream.
func (g *Generator) watchdog() {
	defer g.wg.Done()
	t := time.NewTicker(watchdogInterval)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			const pwmErrors = busErr | gapo1 | gapo2 | gapo3 | gapo4 | rerr1 | werr1
			if status := pwmMemory.status & pwmErrors; status != 0 {
				pwmMemory.status = status
				log.Printf("bcm283x-dcc: cleared PWM errors: %v", status)
			}
			const dmaErrors = dmaReadError | dmaFIFOError | dmaReadLastNotSetError
			if g.dmaCh != nil {
				if debug := g.dmaCh.debug & dmaErrors; debug != 0 {
					g.dmaCh.debug = debug
					log.Printf("bcm283x-dcc: cleared DMA errors: %s", debug)
				}
			}
		case <-g.done:
			return
		}
	}
}

// queueLocked runs on the executor. power marks the internally generated
// power on/off streams.
func (g *Generator) queueLocked(b *dcc.Bitstream, repeating bool, completion func(), power bool) error {
	if !g.running {
		return errors.New("bcm283x-dcc: generator is not running")
	}
	if len(g.queue) == 0 && !power {
		// Hardware idle; prime the pipeline and raise track power first.
		if err := g.queueLocked(g.powerOnBitstream(), true, nil, true); err != nil {
			return err
		}
	}

	q := &queuedBitstream{
		railComMask: 1 << uint(g.RailCom.number),
		debugMask:   1 << uint(g.Debug.number),
	}
	var prev *generatorStream
	var entries []int
	var err error
	if n := len(g.queue); n != 0 {
		prev = g.queue[n-1]
		entries, err = q.transferFrom(prev.q, b, repeating)
	} else {
		err = q.parse(b, repeating)
	}
	if err != nil {
		return err
	}
	if err := q.commit(); err != nil {
		return err
	}

	s := &generatorStream{q: q, repeating: repeating, completion: completion}
	g.queue = append(g.queue, s)
	if prev != nil {
		// End control blocks can be respliced right away; the rest only
		// after a full transmission has been observed.
		prev.q.transferTo(q, entries, true)
		g.scheduleSplice(prev, q, entries)
	} else {
		g.dmaCh.startIO(q.busAddress())
	}
	g.scheduleCheck(s, prev)

	if !repeating && !power {
		g.needsPowerOn = true
		return g.queueLocked(g.powerOffBitstream(), false, nil, true)
	}
	if power {
		g.needsPowerOn = !repeating
	} else {
		g.needsPowerOn = false
	}
	return nil
}

// powerOnBitstream primes the serialiser pipeline with empty words, then
// raises the RailCom gate to put power on the track.
func (g *Generator) powerOnBitstream() *dcc.Bitstream {
	b := g.Bitstream()
	b.AppendRepeating(dcc.Zero, eventDelay*dcc.WordSize)
	b.AppendEvent(dcc.RailComCutoutEnd)
	return b
}

// powerOffBitstream gates track power off, lowers the debug pin and pads
// the serialiser pipeline so both happen before the stream ends.
func (g *Generator) powerOffBitstream() *dcc.Bitstream {
	b := g.Bitstream()
	b.AppendEvent(dcc.RailComCutoutStart)
	b.AppendEvent(dcc.DebugEnd)
	b.AppendRepeating(dcc.Zero, eventDelay*dcc.WordSize)
	return b
}

// scheduleSplice rewrites the remaining breakpoints of prev once it has
// transmitted completely, guaranteeing at least one full transmission
// before the handover to next.
func (g *Generator) scheduleSplice(prev *generatorStream, next *queuedBitstream, entries []int) {
	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		if !g.waitFor(func() bool { return prev.q.isRepeating() }) {
			return
		}
		g.async(func() {
			if prev.q.mem != nil {
				prev.q.transferTo(next, entries, false)
			}
		})
	}()
}

// scheduleCheck tracks s through its lifecycle: release its predecessor
// once s transmits, run its completion once it has transmitted completely,
// and drain the queue once the channel goes inactive after a final
// non-repeating stream.
func (g *Generator) scheduleCheck(s *generatorStream, prev *generatorStream) {
	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		if !g.waitFor(func() bool { return s.q.isTransmitting() }) {
			return
		}
		if prev != nil {
			g.async(func() { g.removeStream(prev) })
		}
		// A full transmission takes at least the stream duration; check
		// once after that, then at the poll interval.
		if !g.sleep(s.q.duration) {
			return
		}
		if !g.waitFor(func() bool { return s.q.isRepeating() }) {
			return
		}
		if s.completion != nil {
			g.async(s.completion)
		}
		if !s.repeating {
			if !g.waitFor(func() bool { return g.dmaCh.cs&dmaActive == 0 }) {
				return
			}
			g.async(func() { g.removeStream(s) })
		}
	}()
}

// waitFor polls cond on the executor until it holds; false once shut down.
func (g *Generator) waitFor(cond func() bool) bool {
	for {
		v, ok := g.poll(cond)
		if !ok {
			return false
		}
		if v {
			return true
		}
		if !g.sleep(checkInterval) {
			return false
		}
	}
}

// removeStream runs on the executor; it drops s from the queue and
// releases its uncached memory.
func (g *Generator) removeStream(s *generatorStream) {
	for i, x := range g.queue {
		if x == s {
			g.queue = append(g.queue[:i], g.queue[i+1:]...)
			break
		}
	}
	s.q.release()
}

// pwmAlt returns the alternate function routing the PWM channel 1
// serialiser to p.
func pwmAlt(p *Pin) (int, error) {
	switch p.number {
	case 12:
		return 0, nil
	case 18:
		return 5, nil
	default:
		return 0, fmt.Errorf("bcm283x-dcc: no PWM route to %s", p)
	}
}

// driverDCC maps the PWM, clock, DMA, PCM and timer registers the signal
// generator drives. The GPIO driver must have probed the peripheral base
// address first.
type driverDCC struct{}

func (d *driverDCC) String() string {
	return "bcm283x-dcc"
}

func (d *driverDCC) Prerequisites() []string {
	return []string{"bcm283x-gpio"}
}

func (d *driverDCC) Init() (bool, error) {
	if !Present() {
		return false, errors.New("bcm283x CPU not detected")
	}
	if err := pmem.MapAsPOD(uint64(baseAddr+dmaOffset), &dmaMemory); err != nil {
		if os.IsPermission(err) {
			return true, fmt.Errorf("need more access, try as root: %v", err)
		}
		return true, err
	}
	// Channel #15 is "physically removed from the other DMA Channels so it
	// has a different address base".
	if err := pmem.MapAsPOD(uint64(baseAddr+dma15Offset), &dmaChannel15); err != nil {
		return true, err
	}
	if err := pmem.MapAsPOD(uint64(baseAddr+pcmOffset), &pcmMemory); err != nil {
		return true, err
	}
	if err := pmem.MapAsPOD(uint64(baseAddr+pwmOffset), &pwmMemory); err != nil {
		return true, err
	}
	if err := pmem.MapAsPOD(uint64(baseAddr+clockOffset), &clockMemory); err != nil {
		return true, err
	}
	if err := pmem.MapAsPOD(uint64(baseAddr+timerOffset), &timerMemory); err != nil {
		return true, err
	}
	return true, dmaSmokeTest()
}

func init() {
	if isArm {
		periph.MustRegister(&driverDCC{})
	}
}

var _ periph.Driver = &driverDCC{}
