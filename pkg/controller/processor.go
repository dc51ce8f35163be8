package controller

import (
	"context"
	"io"
	"sync"

	log "github.com/sirupsen/logrus"
	"github.com/wmu-sunseeker/gobps/pkg/console"
	"github.com/wmu-sunseeker/gobps/pkg/tick"
)

// [Processor] runs the controller main loop, the tick source and the
// optional operator console in their own goroutines.
type Processor struct {
	ctrl      *Controller
	ticks     *tick.Source
	console   *console.Console
	consoleIn io.Reader
	services  []func(ctx context.Context)
	cancel    context.CancelFunc
	wg        *sync.WaitGroup
	logger    *log.Entry
}

func NewProcessor(ctrl *Controller, ticks *tick.Source) *Processor {
	ctrl.SetTelemetryGate(ticks)
	return &Processor{
		ctrl:   ctrl,
		ticks:  ticks,
		wg:     &sync.WaitGroup{},
		logger: log.WithField("component", "processor"),
	}
}

// Read operator commands from in while running.
// If in is an io.Closer it is closed on Stop, otherwise it needs a read
// timeout for Wait to return.
func (p *Processor) AttachConsole(c *console.Console, in io.Reader) {
	p.console = c
	p.consoleIn = in
}

// Run an extra service for the lifetime of the processor
func (p *Processor) AddService(service func(ctx context.Context)) {
	p.services = append(p.services, service)
}

// Main loop : wait for any event flag, then step until nothing is pending
func (p *Processor) main(ctx context.Context) {
	p.logger.Info("[CTRL] starting main loop")
	wake := p.ctrl.flags.Wake()
	for {
		select {
		case <-ctx.Done():
			p.logger.Info("[CTRL] exited main loop")
			return
		case <-wake:
			for p.ctrl.Step() {
				if ctx.Err() != nil {
					break
				}
			}
		}
	}
}

// Start processing, this will be run inside of go routines
// Call Stop() to stop processing or cancel the context
// Call Wait() to wait for end of execution
func (p *Processor) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.ticks.Run(ctx)
	}()

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.main(ctx)
	}()

	if p.console != nil && p.consoleIn != nil {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			if err := p.console.Run(ctx, p.consoleIn); err != nil {
				p.logger.Errorf("[CONSOLE] reader stopped : %v", err)
			}
		}()
	}

	for _, service := range p.services {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			service(ctx)
		}()
	}
	return nil
}

// Stop all processing
// Wait should be called in order to make sure that all routines have been stopped
func (p *Processor) Stop() error {
	if p.cancel != nil {
		p.cancel()
	}
	return nil
}

// Wait for processing to finish (blocking)
func (p *Processor) Wait() error {
	p.wg.Wait()
	return nil
}

// Get underlying [Controller]
func (p *Processor) Controller() *Controller {
	return p.ctrl
}
