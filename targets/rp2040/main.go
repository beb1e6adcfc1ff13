//go:build rp2040

package main

import (
	"machine"
	"time"

	"tinygo.org/x/drivers"

	"gopcnt/core"
	"gopcnt/debug"
	"gopcnt/intr"
	"gopcnt/pcnt"
	"gopcnt/protocol"
)

var (
	link         drivers.UART
	counter      *pioCounter
	inputBuffer  *protocol.FifoBuffer
	outputBuffer *protocol.ScratchOutput
	transport    *protocol.Transport

	msgerrors                uint32
	linkWasDisconnected      bool
	consecutiveWriteFailures uint32
)

func main() {
	// Clear watchdog state left by a previous reset
	err := machine.Watchdog.Configure(machine.WatchdogConfig{TimeoutMillis: 0})
	if err != nil {
		return
	}

	link = newUSBLink()

	InitClock()
	core.InitCoreCommands()
	core.InitCounterCommands()
	registerPins()

	counter = newPIOCounter()
	driver := pcnt.New(newPlatform(counter), pcnt.Options{
		Lock:        &intr.Spinlock{},
		ClearPolicy: pcnt.ClearServiced,
	})
	pcnt.SetDefault(driver)
	core.SetCounterDriver(driver)

	core.GetGlobalDictionary().BuildDictionary()

	inputBuffer = protocol.NewFifoBuffer(256)
	outputBuffer = protocol.NewScratchOutput()
	transport = protocol.NewTransport(outputBuffer, core.DispatchCommand)
	transport.SetResetCallback(func() {
		inputBuffer.Reset()
		outputBuffer.Reset()
		core.ResetFirmwareState()
	})
	// ACKs go out before responses
	transport.SetFlushCallback(writeLink)
	core.SetGlobalTransport(transport)

	core.SetResetHandler(func() {
		err := machine.Watchdog.Configure(machine.WatchdogConfig{TimeoutMillis: 1})
		if err != nil {
			return
		}
		if err := machine.Watchdog.Start(); err != nil {
			return
		}
		for {
			time.Sleep(1 * time.Millisecond)
		}
	})

	buf := make([]byte, 64)
	for {
		func() {
			defer func() {
				if r := recover(); r != nil {
					msgerrors++
					inputBuffer.Reset()
					outputBuffer.Reset()
				}
			}()

			UpdateSystemTime()
			readLink(buf)

			if inputBuffer.Available() > 0 {
				transport.Receive(inputBuffer)
			}
			writeLink()

			core.CheckPendingReset()
			counter.Pump()
			core.ProcessTimers()
			core.CounterTask()
			writeLink()
		}()

		time.Sleep(10 * time.Microsecond)
	}
}

func readLink(buf []byte) {
	if link.Buffered() == 0 {
		return
	}
	n, err := link.Read(buf[:min(len(buf), inputBuffer.Free())])
	if err != nil {
		msgerrors++
		return
	}
	if n == 0 {
		return
	}
	if linkWasDisconnected {
		// Fresh connection: drop whatever the last session left behind
		linkWasDisconnected = false
		inputBuffer.Reset()
		outputBuffer.Reset()
		transport.Reset()
		core.ResetFirmwareState()
		consecutiveWriteFailures = 0
	}
	inputBuffer.Write(buf[:n])
}

// writeLink sends pending output. After repeated failures the host is
// assumed gone and stale output is discarded.
func writeLink() {
	result := outputBuffer.Result()
	if len(result) == 0 {
		return
	}
	written := 0
	for written < len(result) {
		n, err := link.Write(result[written:])
		if err != nil || n == 0 {
			consecutiveWriteFailures++
			if consecutiveWriteFailures > 10 {
				linkWasDisconnected = true
				consecutiveWriteFailures = 0
				outputBuffer.Reset()
				inputBuffer.Reset()
			}
			return
		}
		written += n
	}
	consecutiveWriteFailures = 0
	outputBuffer.Reset()
}

// registerPins exports GPIO0-29 to the host.
func registerPins() {
	names := make([]string, 30)
	for i := range names {
		names[i] = "gpio" + debug.Itoa(i)
	}
	core.RegisterEnumeration("pin", names)
}
