package mmax

import (
	"encoding/binary"
	"testing"
)

// fakeClient implements the subset of modbus.Client the device uses and
// panics loudly on anything else.
type fakeClient struct {
	registers map[uint16]uint16
	writes    []struct{ address, value uint16 }
}

func newFakeClient() *fakeClient {
	return &fakeClient{registers: map[uint16]uint16{}}
}

func (f *fakeClient) ReadHoldingRegisters(address, quantity uint16) ([]byte, error) {
	out := make([]byte, 2*quantity)
	for i := uint16(0); i < quantity; i++ {
		binary.BigEndian.PutUint16(out[2*i:], f.registers[address+i])
	}
	return out, nil
}

func (f *fakeClient) WriteSingleRegister(address, value uint16) ([]byte, error) {
	f.registers[address] = value
	f.writes = append(f.writes, struct{ address, value uint16 }{address, value})
	out := make([]byte, 2)
	binary.BigEndian.PutUint16(out, value)
	return out, nil
}

func (f *fakeClient) ReadCoils(address, quantity uint16) ([]byte, error)          { panic("unused") }
func (f *fakeClient) ReadDiscreteInputs(address, quantity uint16) ([]byte, error) { panic("unused") }
func (f *fakeClient) WriteSingleCoil(address, value uint16) ([]byte, error)       { panic("unused") }
func (f *fakeClient) WriteMultipleCoils(address, quantity uint16, value []byte) ([]byte, error) {
	panic("unused")
}
func (f *fakeClient) ReadInputRegisters(address, quantity uint16) ([]byte, error) { panic("unused") }
func (f *fakeClient) WriteMultipleRegisters(address, quantity uint16, value []byte) ([]byte, error) {
	panic("unused")
}
func (f *fakeClient) ReadWriteMultipleRegisters(readAddress, readQuantity, writeAddress, writeQuantity uint16, value []byte) ([]byte, error) {
	panic("unused")
}
func (f *fakeClient) MaskWriteRegister(address, andMask, orMask uint16) ([]byte, error) {
	panic("unused")
}
func (f *fakeClient) ReadFIFOQueue(address uint16) ([]byte, error) { panic("unused") }

func TestWriteInput(t *testing.T) {
	client := newFakeClient()
	device := NewDevice(client)

	if err := device.WriteInput(Input{Run: true, Reverse: true, Speed: 0.5}); err != nil {
		t.Fatalf("write input: %v", err)
	}
	if client.registers[regControlWord] != controlRun|controlReverse {
		t.Fatalf("control word = %04X", client.registers[regControlWord])
	}
	if client.registers[regSpeedSetpoint] != 5000 {
		t.Fatalf("speed setpoint = %d", client.registers[regSpeedSetpoint])
	}

	// Speed is clamped to 0..1.
	if err := device.WriteInput(Input{Speed: 2.0}); err != nil {
		t.Fatalf("write input: %v", err)
	}
	if client.registers[regSpeedSetpoint] != 10000 {
		t.Fatalf("clamped setpoint = %d", client.registers[regSpeedSetpoint])
	}
}

func TestReadStatus(t *testing.T) {
	client := newFakeClient()
	client.registers[regStatusWord] = statusReady | statusRunning
	client.registers[regOutputFrequency] = 5000 // 50.00 Hz

	device := NewDevice(client)
	status, err := device.ReadStatus()
	if err != nil {
		t.Fatalf("read status: %v", err)
	}
	if !status.Ready || !status.Running || status.Fault || status.Warning {
		t.Fatalf("status = %+v", status)
	}
	if status.OutputFrequency != 50.0 {
		t.Fatalf("frequency = %v", status.OutputFrequency)
	}
	if !status.Ok() {
		t.Fatal("healthy drive not ok")
	}

	client.registers[regStatusWord] = statusReady | statusFault
	status, err = device.ReadStatus()
	if err != nil {
		t.Fatalf("read status: %v", err)
	}
	if status.Ok() {
		t.Fatal("faulted drive reported ok")
	}
}
