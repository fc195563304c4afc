// controller/registry.go
package controller

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"homectl-go/services/houseblocks"
	"homectl-go/services/houseblocks/avr1"
	"homectl-go/signals"
)

// LogicDevice is the user-facing half of a device: its signal surface plus
// the translation loop between signals and property cells.
type LogicDevice interface {
	signals.Device
	Class() string
	Run(ctx context.Context)
}

// BuildInput is provided to a device builder.
type BuildInput struct {
	Master *houseblocks.Master
	Serial houseblocks.Serial
	Params json.RawMessage
}

// BuildOutput is returned by a builder: the hardware runner plus the logic
// adapter bound to it.
type BuildOutput struct {
	Runner *avr1.Runner
	Logic  LogicDevice
}

// Builder constructs one device instance of its class.
type Builder interface {
	Build(in BuildInput) (BuildOutput, error)
}

var (
	muBuilders sync.RWMutex
	builders   = map[string]Builder{}
)

// RegisterBuilder installs a builder for a device class string. It panics on
// duplicate registration to catch mistakes at start-up.
func RegisterBuilder(class string, b Builder) {
	muBuilders.Lock()
	defer muBuilders.Unlock()
	if class == "" {
		panic("controller: empty device class for builder")
	}
	if _, exists := builders[class]; exists {
		panic(fmt.Sprintf("controller: builder already registered for class %q", class))
	}
	builders[class] = b
}

func findBuilder(class string) (Builder, bool) {
	muBuilders.RLock()
	defer muBuilders.RUnlock()
	b, ok := builders[class]
	return b, ok
}
