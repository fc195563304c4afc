// cmd/houseblocks-tester/main.go

// houseblocks-tester exercises one AVR-v1 device directly, without the
// controller config: discovery, prepare, and per-class demo loops.
//
//	houseblocks-tester [flags] <adapter-serial> discover
//	houseblocks-tester [flags] <adapter-serial> prepare <device-type> <serial>
//	houseblocks-tester [flags] <adapter-serial> relay14 <serial>
//	houseblocks-tester [flags] <adapter-serial> junctionbox <serial>
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"homectl-go/interfaces/serial"
	"homectl-go/services/houseblocks"
	"homectl-go/services/houseblocks/avr1"
	"homectl-go/services/houseblocks/avr1/devices/junctionbox"
	"homectl-go/services/houseblocks/avr1/devices/relay14"
)

func main() {
	portPath := flag.String("port", "", "serial port path override")
	baudRate := flag.Int("baud", 115200, "bus baud rate")
	verbose := flag.Bool("v", false, "debug logging")
	flag.Parse()

	if *verbose {
		logrus.SetLevel(logrus.DebugLevel)
	}

	args := flag.Args()
	if len(args) < 2 {
		fmt.Fprintln(os.Stderr, "usage: houseblocks-tester [flags] <adapter-serial> <discover|prepare|relay14|junctionbox> ...")
		os.Exit(2)
	}

	adapter := serial.NewFailSafe(
		serial.Descriptor{SerialNumber: args[0], PortPath: *portPath},
		serial.Configuration{BaudRate: *baudRate, Parity: serial.ParityNone, StopBits: 1},
		3, 100*time.Millisecond,
	)
	defer adapter.Close()

	master := houseblocks.NewMaster(adapter)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go master.Run(ctx)

	var err error
	switch args[1] {
	case "discover":
		err = runDiscover(ctx, master)
	case "prepare":
		err = runPrepare(ctx, master, args[2:])
	case "relay14":
		err = runRelay14(ctx, master, args[2:])
	case "junctionbox":
		err = runJunctionBox(ctx, master, args[2:])
	default:
		fmt.Fprintf(os.Stderr, "unknown subcommand %q\n", args[1])
		os.Exit(2)
	}

	if err != nil && ctx.Err() == nil {
		logrus.Errorf("%v", err)
		os.Exit(1)
	}
}

func runDiscover(ctx context.Context, master *houseblocks.Master) error {
	address, err := master.TransactionDeviceDiscovery(ctx)
	if err != nil {
		return err
	}
	fmt.Println(address)
	return nil
}

func runPrepare(ctx context.Context, master *houseblocks.Master, args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("usage: prepare <device-type> <serial>")
	}
	address, err := houseblocks.NewAddress(args[0], args[1])
	if err != nil {
		return err
	}
	driver := avr1.NewDriver(master, address)
	if err := driver.Prepare(ctx); err != nil {
		return err
	}

	version, err := driver.ReadApplicationVersion(ctx, false)
	if err != nil {
		return err
	}
	flags, err := driver.ReadClearPowerFlags(ctx, false)
	if err != nil {
		return err
	}
	logrus.Infof("prepared: framework %d, application %d, power flags %+v",
		version.AVR1, version.Application, flags)
	return nil
}

func runRelay14(ctx context.Context, master *houseblocks.Master, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: relay14 <serial> [set <14 x 0/1>]")
	}
	serialNumber, err := houseblocks.NewSerial(args[0])
	if err != nil {
		return err
	}

	device := relay14.NewDevice()
	runner := avr1.NewRunner(master, device, serialNumber)
	go runner.Run(ctx)

	outputs := device.Outputs()

	// "set 10101010101010" holds a fixed pattern instead of the demo walk.
	if len(args) == 3 && args[1] == "set" {
		pattern := args[2]
		if len(pattern) != relay14.OutputCount {
			return fmt.Errorf("pattern must be %d characters of 0/1", relay14.OutputCount)
		}
		var values relay14.OutputValues
		for index := range values {
			values[index] = pattern[index] == '1'
		}
		logrus.Infof("outputs: %v", values)
		if outputs.Set(values) {
			runner.WakePoll()
		}
		<-ctx.Done()
		return nil
	}

	// Walk a single active relay across the outputs.
	index := 0
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			var values relay14.OutputValues
			values[index] = true
			index = (index + 1) % relay14.OutputCount
			logrus.Infof("outputs: %v", values)
			if outputs.Set(values) {
				runner.WakePoll()
			}
		}
	}
}

func runJunctionBox(ctx context.Context, master *houseblocks.Master, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: junctionbox <serial>")
	}
	serialNumber, err := houseblocks.NewSerial(args[0])
	if err != nil {
		return err
	}

	device := junctionbox.NewDevice()
	runner := avr1.NewRunner(master, device, serialNumber)
	go runner.Run(ctx)

	keys := device.Keys()
	sensor := device.Sensor()
	leds := device.Leds()
	buzzer := device.Buzzer()

	ledTicker := time.NewTicker(time.Second)
	defer ledTicker.Stop()
	buzzerTicker := time.NewTicker(5 * time.Second)
	defer buzzerTicker.Stop()

	ledIndex := 0
	for {
		select {
		case <-ctx.Done():
			return nil

		case <-ledTicker.C:
			var values junctionbox.LedValues
			values[ledIndex] = true
			ledIndex = (ledIndex + 1) % junctionbox.LedCount
			logrus.Infof("leds: %v", values)
			if leds.Set(values) {
				runner.WakePoll()
			}

		case <-buzzerTicker.C:
			logrus.Info("buzzer: 125ms")
			if buzzer.Push(125 * time.Millisecond) {
				runner.WakePoll()
			}

		case <-runner.InChanged().C():
			if state, events, ok := keys.TakePending(); ok {
				logrus.Infof("keys: %v (events: %v)", state, events)
			}
			if state, _, ok := sensor.TakePending(); ok {
				if state != nil {
					logrus.Infof("ds18x20: %s", state)
				} else {
					logrus.Warn("ds18x20: offline")
				}
			}
		}
	}
}
