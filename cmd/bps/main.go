package main

import (
	"context"
	"flag"
	"io"
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"
	bps "github.com/wmu-sunseeker/gobps"
	"github.com/wmu-sunseeker/gobps/pkg/can"
	_ "github.com/wmu-sunseeker/gobps/pkg/can/socketcan"
	_ "github.com/wmu-sunseeker/gobps/pkg/can/socketcanring"
	_ "github.com/wmu-sunseeker/gobps/pkg/can/socketcanv2"
	_ "github.com/wmu-sunseeker/gobps/pkg/can/socketcanv3"
	_ "github.com/wmu-sunseeker/gobps/pkg/can/virtual"
	"github.com/wmu-sunseeker/gobps/pkg/config"
	"github.com/wmu-sunseeker/gobps/pkg/console"
	"github.com/wmu-sunseeker/gobps/pkg/controller"
	"github.com/wmu-sunseeker/gobps/pkg/event"
	"github.com/wmu-sunseeker/gobps/pkg/gateway"
	gatewayhttp "github.com/wmu-sunseeker/gobps/pkg/gateway/http"
	"github.com/wmu-sunseeker/gobps/pkg/output"
	outmodbus "github.com/wmu-sunseeker/gobps/pkg/output/modbus"
	"github.com/wmu-sunseeker/gobps/pkg/protocol"
	sensormodbus "github.com/wmu-sunseeker/gobps/pkg/sensor/modbus"
	"github.com/wmu-sunseeker/gobps/pkg/sim"
	"github.com/wmu-sunseeker/gobps/pkg/tick"
)

func main() {
	// Command line arguments, they override the config file
	configPath := flag.String("c", "", "ini configuration file")
	canInterface := flag.String("i", "", "CAN interface e.g. socketcan, socketcanv2, socketcanv3, socketcanring, virtual")
	channel := flag.String("ch", "", "CAN channel e.g. can0, localhost:18888")
	level := flag.String("l", "", "log level")
	flag.Parse()

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			log.Fatalf("[CTRL] failed to load configuration : %v", err)
		}
		cfg = loaded
	}
	if *canInterface != "" {
		cfg.CAN.Interface = *canInterface
	}
	if *channel != "" {
		cfg.CAN.Channel = *channel
	}
	if *level != "" {
		cfg.Log.Level = *level
	}
	lvl, err := log.ParseLevel(cfg.Log.Level)
	if err != nil {
		log.Fatalf("[CTRL] invalid log level : %v", err)
	}
	log.SetLevel(lvl)

	flags := event.NewFlags()

	bus, err := can.NewBus(cfg.CAN.Interface, cfg.CAN.Channel)
	if err != nil {
		log.Fatalf("[CAN] %v", err)
	}
	bm := bps.NewBusManager(bus, cfg.CAN.QueueSize)
	if err := bm.Connect(); err != nil {
		log.Fatalf("[CAN] failed to connect to %v %v : %v", cfg.CAN.Interface, cfg.CAN.Channel, err)
	}
	defer bm.Disconnect()

	p := controller.Peripherals{
		Flags:    flags,
		Bus:      bm,
		Protocol: protocol.NewHandler(bm, cfg.Addresses, cfg.Switches, cfg.Device.Serial),
		Reports:  os.Stdout,
	}

	// Outputs
	var memory *output.Memory
	switch cfg.Outputs.Driver {
	case config.OutputsModbus:
		coils, err := outmodbus.New(cfg.Outputs.Modbus)
		if err != nil {
			log.Fatalf("[RELAY] %v", err)
		}
		defer coils.Close()
		p.Outputs = coils
	default:
		memory = output.NewMemory()
		p.Outputs = memory
	}

	// Sensors
	ready := func(device int) { flags.Set(event.AdcReady(device)) }
	switch cfg.Sensors.Driver {
	case config.SensorsModbus:
		front, err := sensormodbus.New(cfg.Sensors.Modbus, cfg.Sensors.Registers, ready)
		if err != nil {
			log.Fatalf("[SENSOR] %v", err)
		}
		defer front.Close()
		for bank := range p.Monitors {
			p.Monitors[bank] = front.Monitor(bank)
		}
		p.ADC = front.ADC()
	default:
		log.Warn("[SENSOR] running on simulated pack")
		pack := sim.NewPack()
		if memory != nil {
			pack.FollowOutputs(memory)
		}
		for bank := range p.Monitors {
			p.Monitors[bank] = pack.Monitor(bank)
		}
		p.ADC = pack.ADC(ready)
	}

	// Operator console
	var term *console.Console
	var termIn io.Reader
	if cfg.Console.Device != "" {
		port, err := console.OpenSerial(cfg.Console)
		if err != nil {
			log.Fatalf("[CONSOLE] failed to open %v : %v", cfg.Console.Device, err)
		}
		defer port.Close()
		term = console.New(flags, port)
		termIn = port
		p.Reports = term.Writer()
	}

	ctrl, err := controller.New(cfg.Controller, p)
	if err != nil {
		log.Fatalf("[CTRL] %v", err)
	}
	ticks, err := tick.NewSource(flags, cfg.Tick.Period, cfg.Tick.StatusDivider, cfg.Tick.TelemetryDivider)
	if err != nil {
		log.Fatalf("[TICK] %v", err)
	}
	proc := controller.NewProcessor(ctrl, ticks)
	if term != nil {
		proc.AttachConsole(term, termIn)
	}
	if cfg.Gateway.Enabled {
		gw := gatewayhttp.NewGatewayServer(gateway.NewBaseGateway(ctrl, cfg.Device.Serial))
		proc.AddService(func(ctx context.Context) {
			if err := gw.Serve(ctx, cfg.Gateway.Listen); err != nil {
				log.Errorf("[GATEWAY] stopped : %v", err)
			}
		})
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := proc.Start(ctx); err != nil {
		log.Fatalf("[CTRL] %v", err)
	}
	<-ctx.Done()
	log.Info("[CTRL] shutting down")
	proc.Stop()
	proc.Wait()
}
