// cmd/homectl/main.go

// homectl is the config-driven controller daemon: one serial adapter, a
// fleet of bus devices, and the signal graph wiring between them.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"homectl-go/controller"
	"homectl-go/interfaces/serial"
	"homectl-go/services/heartbeat"
	"homectl-go/services/houseblocks"
	"homectl-go/statusbus"

	// Device class builders.
	_ "homectl-go/services/eaton/mmax"
	_ "homectl-go/services/houseblocks/avr1/devices/junctionbox"
	_ "homectl-go/services/houseblocks/avr1/devices/relay14"
)

func main() {
	configPath := flag.String("config", "homectl.json", "configuration file")
	verbose := flag.Bool("v", false, "debug logging")
	flag.Parse()

	if *verbose {
		logrus.SetLevel(logrus.DebugLevel)
	}

	config, err := loadConfig(*configPath)
	if err != nil {
		logrus.Fatalf("config: %v", err)
	}

	adapter := serial.NewFailSafe(
		serial.Descriptor{
			SerialNumber: config.Adapter.SerialNumber,
			PortPath:     config.Adapter.PortPath,
		},
		serial.Configuration{
			BaudRate: config.Adapter.BaudRate,
			Parity:   serial.ParityNone,
			StopBits: 1,
		},
		3, 100*time.Millisecond,
	)
	defer adapter.Close()

	master := houseblocks.NewMaster(adapter)
	status := statusbus.New(8)
	pool := controller.NewPool(master, status)

	for _, device := range config.Devices {
		if err := pool.AddDevice(device); err != nil {
			logrus.Fatalf("device %q: %v", device.Name, err)
		}
	}
	for _, connection := range config.Connections {
		pool.Connect(connection)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go logStatus(ctx, status)
	heartbeat.New(status, 10*time.Second).Start(ctx)

	logrus.Info("controller starting")
	if err := pool.Run(ctx); err != nil {
		logrus.Fatalf("run: %v", err)
	}
	logrus.Info("controller stopped")
}

func loadConfig(path string) (controller.Config, error) {
	var config controller.Config
	data, err := os.ReadFile(path)
	if err != nil {
		return config, err
	}
	if err := json.Unmarshal(data, &config); err != nil {
		return config, err
	}
	if config.Adapter.BaudRate == 0 {
		config.Adapter.BaudRate = 115200
	}
	return config, nil
}

func logStatus(ctx context.Context, status *statusbus.Bus) {
	sub := status.Subscribe(statusbus.Topic{"device", "+", "state"})
	defer sub.Unsubscribe()
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-sub.C():
			logrus.WithField("device", msg.Topic[1]).Infof("state: %v", msg.Payload)
		}
	}
}
