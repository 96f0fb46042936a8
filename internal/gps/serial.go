package gps

import (
	"fmt"
	"sort"
	"strings"

	"go.bug.st/serial"
)

// openSerial opens path in 8N1 mode at baud.
func openSerial(path string, baud int) (serial.Port, error) {
	if baud <= 0 {
		return nil, fmt.Errorf("gps: unsupported baud %d", baud)
	}
	port, err := serial.Open(path, &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, fmt.Errorf("gps: open %s: %w", path, err)
	}
	return port, nil
}

// USB receivers enumerate as CDC-ACM or USB-serial bridges.
var devicePrefixes = []string{"/dev/ttyACM", "/dev/ttyUSB", "/dev/cu.usbmodem", "/dev/cu.usbserial"}

func autoDetectDevice() string {
	ports, err := serial.GetPortsList()
	if err != nil {
		return ""
	}
	return pickDevice(ports)
}

// pickDevice returns the lowest-numbered port of the first matching prefix.
func pickDevice(ports []string) string {
	sorted := append([]string(nil), ports...)
	sort.Strings(sorted)
	for _, prefix := range devicePrefixes {
		for _, p := range sorted {
			if strings.HasPrefix(p, prefix) {
				return p
			}
		}
	}
	return ""
}
