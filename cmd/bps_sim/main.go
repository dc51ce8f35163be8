// Runs the controller against a simulated pack and vehicle on a local
// virtual bus, with the HTTP gateway for inspection.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"
	bps "github.com/wmu-sunseeker/gobps"
	"github.com/wmu-sunseeker/gobps/pkg/can"
	"github.com/wmu-sunseeker/gobps/pkg/can/virtual"
	"github.com/wmu-sunseeker/gobps/pkg/controller"
	"github.com/wmu-sunseeker/gobps/pkg/event"
	"github.com/wmu-sunseeker/gobps/pkg/gateway"
	gatewayhttp "github.com/wmu-sunseeker/gobps/pkg/gateway/http"
	"github.com/wmu-sunseeker/gobps/pkg/output"
	"github.com/wmu-sunseeker/gobps/pkg/protocol"
	"github.com/wmu-sunseeker/gobps/pkg/sim"
	"github.com/wmu-sunseeker/gobps/pkg/tick"
)

var DEFAULT_HTTP_LISTEN = "127.0.0.1:8090"
var DEFAULT_SERIAL = uint32(0x00005151)

// Frames sent by the vehicle are received by the controller
type loopback struct {
	target *virtual.Bus
}

func (b loopback) Connect(...any) error              { return nil }
func (b loopback) Disconnect() error                 { return nil }
func (b loopback) Subscribe(can.FrameListener) error { return nil }
func (b loopback) Send(frame can.Frame) error {
	b.target.Inject(frame)
	return nil
}

func main() {
	listen := flag.String("http", DEFAULT_HTTP_LISTEN, "gateway listen address, empty to disable")
	period := flag.Duration("t", tick.DefaultPeriod, "base tick period")
	canLink := flag.Bool("can", true, "check vehicle CAN liveness")
	dcCharge := flag.Bool("dc", false, "request DC charge instead of precharge")
	acCharge := flag.Bool("ac", false, "plug the AC charger")
	level := flag.String("l", "info", "log level")
	flag.Parse()

	lvl, err := log.ParseLevel(*level)
	if err != nil {
		log.Fatalf("invalid log level : %v", err)
	}
	log.SetLevel(lvl)

	flags := event.NewFlags()
	bus, err := virtual.NewVirtualCanBus("")
	if err != nil {
		log.Fatal(err)
	}
	vbus := bus.(*virtual.Bus)
	bm := bps.NewBusManager(vbus, bps.DefaultRxQueueSize)
	if err := bm.Connect(); err != nil {
		log.Fatal(err)
	}
	defer bm.Disconnect()

	addr := protocol.DefaultAddresses()
	bits := protocol.DefaultSwitchBits()
	outputs := output.NewMemory()
	pack := sim.NewPack()
	pack.FollowOutputs(outputs)

	vehicle := sim.NewVehicle(loopback{vbus}, addr, bits)
	vehicle.SetIgnition(true)
	switch {
	case *dcCharge:
		vehicle.RequestDcCharge()
	default:
		vehicle.RequestPrecharge()
	}
	vehicle.SetCharger(*acCharge)

	p := controller.Peripherals{
		Flags:    flags,
		ADC:      pack.ADC(func(device int) { flags.Set(event.AdcReady(device)) }),
		Outputs:  outputs,
		Bus:      bm,
		Protocol: protocol.NewHandler(bm, addr, bits, DEFAULT_SERIAL),
		Reports:  os.Stdout,
	}
	for bank := range p.Monitors {
		p.Monitors[bank] = pack.Monitor(bank)
	}
	cfg := controller.DefaultConfig()
	cfg.Checks.CanLink = *canLink
	ctrl, err := controller.New(cfg, p)
	if err != nil {
		log.Fatal(err)
	}
	ticks, err := tick.NewSource(flags, *period, tick.DefaultStatusDivider, tick.DefaultTelemetryDivider)
	if err != nil {
		log.Fatal(err)
	}

	proc := controller.NewProcessor(ctrl, ticks)
	proc.AddService(func(ctx context.Context) {
		vehicle.Run(ctx, *period*time.Duration(tick.DefaultStatusDivider))
	})
	if *listen != "" {
		gw := gatewayhttp.NewGatewayServer(gateway.NewBaseGateway(ctrl, DEFAULT_SERIAL))
		proc.AddService(func(ctx context.Context) {
			if err := gw.Serve(ctx, *listen); err != nil {
				log.Errorf("[GATEWAY] stopped : %v", err)
			}
		})
	}
	ctrl.OnSnapshot(func(s controller.Snapshot) {
		if s.StatusTicks%32 == 0 {
			log.Infof("[CTRL] %v, pack %.2f V, current %.0f mA", s.Mode, s.PackVoltage, s.Current)
		}
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := proc.Start(ctx); err != nil {
		log.Fatal(err)
	}
	<-ctx.Done()
	proc.Stop()
	proc.Wait()
}
