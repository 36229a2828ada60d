// asfs-config: Write or check receiver configuration files
//
// Examples:
//
//	# Print the default configuration
//	./asfs-config -dump
//
//	# Save it as the configuration of bridge 009a
//	./asfs-config -dump -serial 009a
//
//	# Check a hand-edited file
//	./asfs-config -validate etc/asfs/009a.yaml
package main

import (
	"flag"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/herlein/asfs/pkg/config"
)

func main() {
	dump := flag.Bool("dump", false, "Write the default configuration")
	output := flag.String("o", "", "Output file for -dump (default stdout)")
	serial := flag.String("serial", "", "Write -dump to the per-device path for this serial")
	name := flag.String("name", "", "Configuration name for -dump")
	validate := flag.String("validate", "", "Configuration file to check")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s -dump [-o file | -serial id] | -validate file\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	if err := run(*dump, *output, *serial, *name, *validate); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(dump bool, output, serial, name, validate string) error {
	switch {
	case validate != "":
		file, err := config.LoadFromFile(validate)
		if err != nil {
			return err
		}
		sf, mode := file.StartParams()
		fmt.Printf("%s: valid (name %q, start %s %s)\n", validate, file.Name, sf, mode)
		return nil

	case dump:
		file := config.DefaultFile()
		if name != "" {
			file.Name = name
		}
		if serial != "" {
			output = config.GetConfigPath(serial)
		}

		if output == "" {
			data, err := yaml.Marshal(file)
			if err != nil {
				return fmt.Errorf("failed to marshal configuration: %w", err)
			}
			_, err = os.Stdout.Write(data)
			return err
		}

		if err := config.SaveToFile(file, output); err != nil {
			return err
		}
		fmt.Printf("Configuration written to %s\n", output)
		return nil
	}

	flag.Usage()
	return fmt.Errorf("one of -dump or -validate is required")
}
