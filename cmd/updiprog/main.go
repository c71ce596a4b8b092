// Command updiprog is a CLI front-end for the updi programmer/debugger
// core: print the SIB and signature, chip-erase, write a binary file to
// flash, read memory, and unlock a locked device. EEPROM, user-row and
// fuse writes are not exposed as commands.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfg struct {
	port   string
	baud   uint32
	device string
	memory string
}

func main() {
	root := newRootCmd()
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "updiprog",
		Short: "Program and debug UPDI-capable AVR microcontrollers over a serial link",
	}

	root.PersistentFlags().StringVar(&cfg.port, "port", "", "serial port device (e.g. /dev/ttyUSB0)")
	root.PersistentFlags().Uint32Var(&cfg.baud, "baud", 115200, "UPDI baud rate")
	root.PersistentFlags().StringVar(&cfg.device, "device", "", "target device name (see 'updiprog devices')")

	viper.BindPFlag("port", root.PersistentFlags().Lookup("port"))
	viper.BindPFlag("baud", root.PersistentFlags().Lookup("baud"))
	viper.BindPFlag("device", root.PersistentFlags().Lookup("device"))
	viper.SetEnvPrefix("UPDI")
	viper.AutomaticEnv()
	viper.SetConfigName(".updiprog")
	viper.SetConfigType("yaml")
	if home, err := os.UserHomeDir(); err == nil {
		viper.AddConfigPath(home)
	}
	_ = viper.ReadInConfig()

	root.AddCommand(
		newInfoCmd(),
		newEraseCmd(),
		newWriteCmd(),
		newReadCmd(),
		newUnlockCmd(),
		newDevicesCmd(),
	)
	return root
}

// resolved returns the port/baud/device settings, preferring flags over
// viper's environment/config-file values.
func resolved() (port string, baud uint32, device string) {
	port = cfg.port
	if port == "" {
		port = viper.GetString("port")
	}
	// The baud flag has a non-zero default, so viper (which returns the
	// flag only when it was set on the command line) decides here.
	baud = uint32(viper.GetInt("baud"))
	device = cfg.device
	if device == "" {
		device = viper.GetString("device")
	}
	return port, baud, device
}
