// Command gopcnt-host is an interactive console for gopcnt firmware.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/shlex"

	"gopcnt/host/mcu"
	"gopcnt/host/serial"
)

var (
	device  = flag.String("device", "/dev/ttyUSB0", "Serial device path")
	baud    = flag.Int("baud", serial.DefaultBaud, "Baud rate (ignored for USB CDC)")
	timeout = flag.Duration("timeout", 2*time.Second, "Per-command timeout")
	verbose = flag.Bool("verbose", false, "Print every counter_state")
)

func main() {
	flag.Parse()

	cfg := serial.DefaultConfig(*device)
	cfg.Baud = *baud
	board, err := mcu.Connect(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer board.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	err = board.RetrieveDictionary(ctx)
	cancel()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	printDictionary(board.Dictionary())

	if *verbose {
		board.OnResponse("counter_state", func(args []uint32) {
			fmt.Printf("counter_state oid=%d next_clock=%d count=%d count_clock=%d\n",
				args[0], args[1], args[2], args[3])
		})
	}
	board.OnResponse("shutdown", func(args []uint32) {
		fmt.Printf("MCU shutdown at clock %d\n", args[0])
	})

	c := &console{board: board, counters: make(map[uint8]*mcu.FrequencyCounter)}
	c.run()
}

type console struct {
	board    *mcu.MCU
	counters map[uint8]*mcu.FrequencyCounter
}

func (c *console) run() {
	fmt.Println("Type 'help' for commands.")
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		args, err := shlex.Split(scanner.Text())
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			continue
		}
		if len(args) == 0 {
			continue
		}
		if args[0] == "quit" || args[0] == "exit" {
			return
		}
		if err := c.exec(args); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
	}
	if err := scanner.Err(); err != nil {
		fmt.Fprintf(os.Stderr, "Error reading input: %v\n", err)
		os.Exit(1)
	}
}

func (c *console) exec(args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	switch args[0] {
	case "help", "?":
		printHelp()
	case "dict":
		printDictionary(c.board.Dictionary())
	case "raw":
		fmt.Println(string(c.board.RawDictionary()))
	case "send":
		if len(args) < 2 {
			return fmt.Errorf("usage: send <command> [args...]")
		}
		return c.board.SendTokens(ctx, args[1:])
	case "clock":
		vals, err := c.board.Request(ctx, "get_clock", "clock")
		if err != nil {
			return err
		}
		fmt.Printf("clock=%d\n", vals[0])
	case "counter":
		return c.startCounter(ctx, args[1:])
	case "watch":
		c.watch()
	default:
		return fmt.Errorf("unknown command %q", args[0])
	}
	return nil
}

// startCounter handles "counter <oid> <pin> [poll_ms] [pullup]".
func (c *console) startCounter(ctx context.Context, args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: counter <oid> <pin> [poll_ms] [pullup]")
	}
	oid, err := strconv.ParseUint(args[0], 0, 8)
	if err != nil {
		return fmt.Errorf("oid: %w", err)
	}
	pin, err := strconv.ParseUint(args[1], 0, 32)
	if err != nil {
		return fmt.Errorf("pin: %w", err)
	}
	poll := 1000.0
	if len(args) > 2 {
		if poll, err = strconv.ParseFloat(args[2], 64); err != nil {
			return fmt.Errorf("poll_ms: %w", err)
		}
	}
	pullUp := len(args) > 3 && args[3] == "pullup"

	fc := mcu.NewFrequencyCounter(uint8(oid), c.board.ClockFreq())
	fc.SetCallback(func(t, hz float64) {
		fmt.Printf("oid=%d t=%.3f freq=%.2f Hz\n", oid, t, hz)
	})
	if err := fc.Start(ctx, c.board, uint32(pin), pullUp, poll/1000, 0); err != nil {
		return err
	}
	c.counters[uint8(oid)] = fc
	return nil
}

// watch prints the latest frequency of every counter.
func (c *console) watch() {
	if len(c.counters) == 0 {
		fmt.Println("no counters")
		return
	}
	oids := make([]int, 0, len(c.counters))
	for oid := range c.counters {
		oids = append(oids, int(oid))
	}
	sort.Ints(oids)
	for _, oid := range oids {
		fmt.Printf("oid=%d freq=%.2f Hz\n", oid, c.counters[uint8(oid)].Frequency())
	}
}

func printHelp() {
	fmt.Println(strings.TrimSpace(`
Commands:
  help                              Show this help
  dict                              Print dictionary summary
  raw                               Print dictionary JSON
  send <cmd> [name=value ...]       Send any dictionary command
  clock                             Read the MCU clock
  counter <oid> <pin> [poll_ms] [pullup]
                                    Start a frequency counter
  watch                             Print the latest counter frequencies
  quit                              Exit`))
}

func printDictionary(d *mcu.Dictionary) {
	if d == nil {
		fmt.Println("No dictionary loaded")
		return
	}
	fmt.Printf("Version: %s\n", d.Version)
	keys := make([]string, 0, len(d.Config))
	for k := range d.Config {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Printf("  %s = %s\n", k, d.Config[k])
	}
	fmt.Printf("Commands: %d  Responses: %d\n", len(d.Commands), len(d.Responses))
}
