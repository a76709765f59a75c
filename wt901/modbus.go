package wt901

import (
	"context"
	"encoding/binary"
	"fmt"
	"log"
	"time"

	"github.com/goburrow/modbus"
)

// The WT901C can also be queried over Modbus RTU. Angle outputs live in
// three consecutive holding registers with the same 32768 = 180°
// scaling as the stream protocol.
const (
	regRoll       = 0x3d
	angleRegCount = 3

	modbusPollInterval = 100 * time.Millisecond
)

// ModbusIMU polls the sensor's angle registers instead of decoding the
// broadcast stream. Useful when the RS485 bus is shared.
type ModbusIMU struct {
	cell
	handler        *modbus.RTUClientHandler
	client         modbus.Client
	statusCallback StatusCallback
}

// ConnectModbus starts polling the sensor at the given slave ID in the
// background, reconnecting until ctx is canceled.
func ConnectModbus(ctx context.Context, port string, baud int, slaveID byte, statusCallback StatusCallback) (*ModbusIMU, error) {
	handler := modbus.NewRTUClientHandler(port)
	handler.BaudRate = baud
	handler.DataBits = 8
	handler.Parity = "N"
	handler.StopBits = 1
	handler.Timeout = 1 * time.Second
	handler.SlaveId = slaveID
	m := &ModbusIMU{
		handler:        handler,
		client:         modbus.NewClient(handler),
		statusCallback: statusCallback,
	}
	go m.reconnectLoop(ctx, port)
	return m, nil
}

func (m *ModbusIMU) reconnectLoop(ctx context.Context, port string) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-time.After(1 * time.Second):
		}
		if err := m.handler.Connect(); err != nil {
			log.Printf("opening %q: %v", port, err)
			continue
		}
		log.Printf("imu connected on %q (modbus)", port)
		m.connected.Store(true)
		if err := m.watch(ctx); err != nil && ctx.Err() == nil {
			log.Printf("imu modbus poll: %v", err)
		}
		m.connected.Store(false)
	}
}

func (m *ModbusIMU) watch(ctx context.Context) error {
	defer m.handler.Close()
	t := time.NewTicker(modbusPollInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
		if err := m.pollOnce(); err != nil {
			return err
		}
	}
}

func (m *ModbusIMU) pollOnce() error {
	results, err := m.client.ReadHoldingRegisters(regRoll, angleRegCount)
	if err != nil {
		return err
	}
	if len(results) < 2*angleRegCount {
		return fmt.Errorf("short register read: %d bytes", len(results))
	}
	s := Sample{
		Roll:  float64(int16(binary.BigEndian.Uint16(results[0:2]))) * angleScale,
		Pitch: float64(int16(binary.BigEndian.Uint16(results[2:4]))) * angleScale,
		Yaw:   float64(int16(binary.BigEndian.Uint16(results[4:6]))) * angleScale,
	}
	if s.Yaw < 0 {
		s.Yaw += 360
	}
	m.publish(s, m.statusCallback)
	return nil
}
