package ibbq

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"tinygo.org/x/bluetooth"
)

// Scan scans for advertising thermometers for the given duration and
// returns one ScanResult per distinct device, matched by advertised
// local name.  An error is returned if the scan could not be started;
// finding no devices is not an error here, the caller decides.
func Scan(adapter *bluetooth.Adapter, duration time.Duration) ([]bluetooth.ScanResult, error) {
	var (
		mu    sync.Mutex
		found = make(map[string]bluetooth.ScanResult)
		order []string
	)

	scanDone := make(chan error, 1)
	go func() {
		scanDone <- adapter.Scan(func(a *bluetooth.Adapter, result bluetooth.ScanResult) {
			if !deviceNames[result.LocalName()] {
				return
			}
			addr := result.Address.String()

			mu.Lock()
			defer mu.Unlock()
			if _, ok := found[addr]; ok {
				return
			}
			slog.Info("found thermometer", "address", addr, "name", result.LocalName(), "rssi", result.RSSI)
			found[addr] = result
			order = append(order, addr)
		})
	}()

	select {
	case err := <-scanDone:
		// Scan returning before the timer means it failed to start.
		if err != nil {
			return nil, fmt.Errorf("ble scan: %w", err)
		}
		return nil, fmt.Errorf("ble scan stopped unexpectedly")
	case <-time.After(duration):
		if err := adapter.StopScan(); err != nil {
			return nil, fmt.Errorf("stop ble scan: %w", err)
		}
		<-scanDone
	}

	mu.Lock()
	defer mu.Unlock()
	results := make([]bluetooth.ScanResult, 0, len(found))
	for _, addr := range order {
		results = append(results, found[addr])
	}
	return results, nil
}
