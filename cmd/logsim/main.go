// Command logsim writes synthetic MMDVMHost log traffic for exercising the
// monitor without real hardware.
package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"mmdvmstate/internal/logsim"
)

const (
	defaultInterval = 5 * time.Second
	defaultHold     = 2 * time.Second
)

func main() {
	var (
		path     = flag.String("path", "/tmp/MMDVM-sim.log", "Log file to write")
		interval = flag.Duration("interval", defaultInterval, "Delay between simulated QSOs")
		hold     = flag.Duration("hold", defaultHold, "Duration of each simulated transmission")
		rotate   = flag.Int("rotate-every", 0, "Rotate the file after this many QSOs (0 = never)")
	)
	flag.Parse()

	sim, err := logsim.New(*path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "logsim:", err)
		os.Exit(1)
	}
	defer sim.Close()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	fmt.Printf("writing simulated MMDVM traffic to %s\n", *path)
	qsos := 0
	for {
		select {
		case <-stop:
			fmt.Printf("done: %d lines written\n", sim.LinesWritten())
			return
		default:
		}

		_ = sim.WriteChatter()
		slot := 1 + qsos%2
		if err := sim.WriteQSO(slot, *hold); err != nil {
			fmt.Fprintln(os.Stderr, "logsim:", err)
			os.Exit(1)
		}
		qsos++

		if *rotate > 0 && qsos%*rotate == 0 {
			if err := sim.Rotate(); err != nil {
				fmt.Fprintln(os.Stderr, "logsim:", err)
				os.Exit(1)
			}
			fmt.Println("rotated log file")
		}

		select {
		case <-stop:
			fmt.Printf("done: %d lines written\n", sim.LinesWritten())
			return
		case <-time.After(*interval):
		}
	}
}
