//go:build esp32

package main

import (
	"runtime/volatile"
	"time"
	"unsafe"

	"tinygo.org/x/drivers"

	"gopcnt/core"
	"gopcnt/debug"
	"gopcnt/intr"
	"gopcnt/pcnt"
	"gopcnt/protocol"
)

const (
	linkBaud = 250000

	rtcCntlOptions0 = 0x3FF48000
	swSysReset      = 1 << 31
)

var (
	link         drivers.UART
	inputBuffer  *protocol.FifoBuffer
	outputBuffer *protocol.ScratchOutput
	transport    *protocol.Transport

	msgerrors uint32
)

func main() {
	uart := newUART0()
	uart.Configure(linkBaud)
	link = uart

	InitClock()
	core.InitCoreCommands()
	core.InitCounterCommands()
	registerPins()

	driver := pcnt.New(pcnt.Platform{
		Bind:       bindPCNT,
		Router:     gpioMatrix{},
		Signals:    pcntSignals,
		Interrupts: &pollingController{},
		Clock:      dportGate{},
	}, pcnt.Options{
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
	transport.SetFlushCallback(flushOutput)
	core.SetGlobalTransport(transport)

	core.SetResetHandler(func() {
		rtc := (*volatile.Register32)(unsafe.Pointer(uintptr(rtcCntlOptions0)))
		rtc.SetBits(swSysReset)
		for {
		}
	})

	debug.Println("[ESP32] ready")

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

			if link.Buffered() > 0 {
				n, _ := link.Read(buf[:min(len(buf), inputBuffer.Free())])
				if n > 0 {
					inputBuffer.Write(buf[:n])
				}
			}
			if inputBuffer.Available() > 0 {
				transport.Receive(inputBuffer)
			}

			flushOutput()
			core.CheckPendingReset()
			core.ProcessTimers()
			core.CounterTask()
			flushOutput()
		}()

		time.Sleep(10 * time.Microsecond)
	}
}

func flushOutput() {
	result := outputBuffer.Result()
	if len(result) == 0 {
		return
	}
	if _, err := link.Write(result); err != nil {
		msgerrors++
	}
	outputBuffer.Reset()
}
