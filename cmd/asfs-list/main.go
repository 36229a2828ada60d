// asfs-list: List all connected LoRa bridge devices
//
// Each device is pinged over the command endpoint, so a bridge that
// enumerates but runs the wrong firmware shows up as unresponsive.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/google/gousb"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/herlein/asfs/pkg/config"
	"github.com/herlein/asfs/pkg/usbradio"
)

func main() {
	verbose := flag.Bool("v", false, "Verbose output (show additional device details)")
	flag.Parse()

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.WarnLevel)

	context := gousb.NewContext()
	defer context.Close()

	devices, err := usbradio.FindAllDevices(context)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: Failed to enumerate devices: %v\n", err)
		os.Exit(1)
	}

	if len(devices) == 0 {
		fmt.Println("No LoRa bridge devices found")
		os.Exit(0)
	}

	fmt.Printf("Found %d LoRa bridge device(s):\n", len(devices))
	fmt.Println()

	for i, device := range devices {
		defer device.Close()

		alive := "ok"
		if err := device.Ping([]byte("asfs")); err != nil {
			alive = fmt.Sprintf("no response (%v)", err)
		}

		if !*verbose {
			fmt.Printf("  #%d  %s  %d:%d  %s\n", i, device.Serial, device.Bus, device.Address, alive)
			continue
		}

		fmt.Printf("Device #%d:\n", i)
		fmt.Printf("  Serial:       %s\n", device.Serial)
		fmt.Printf("  Bus:Address:  %d:%d\n", device.Bus, device.Address)
		fmt.Printf("  Manufacturer: %s\n", device.Manufacturer)
		fmt.Printf("  Product:      %s\n", device.Product)
		fmt.Printf("  Ping:         %s\n", alive)

		path := config.GetConfigPath(device.Serial)
		if _, err := os.Stat(path); err == nil {
			fmt.Printf("  Config:       %s\n", path)
		} else {
			fmt.Printf("  Config:       (none, defaults)\n")
		}
		fmt.Println()
	}

	if !*verbose {
		fmt.Println()
		fmt.Println("Use -d flag with asfs-rx to select device:")
		fmt.Println("  -d \"#0\"      Select by index")
		fmt.Println("  -d \"1:10\"    Select by bus:address")
		fmt.Println("  -d \"009a\"    Select by serial (if unique)")
	}
}
