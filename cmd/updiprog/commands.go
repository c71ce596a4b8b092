package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/kjconroy/updi/devicedb"
	"github.com/kjconroy/updi/updi"
)

const defaultReadTimeout = 500 * time.Millisecond

func openTarget() (*updi.Session, *devicedb.Device, error) {
	port, baud, deviceName := resolved()
	if port == "" {
		return nil, nil, fmt.Errorf("no serial port given (--port, $UPDI_PORT, or ~/.updiprog.yaml)")
	}
	if deviceName == "" {
		return nil, nil, fmt.Errorf("no device given (--device, $UPDI_DEVICE, or ~/.updiprog.yaml)")
	}

	db, err := devicedb.Builtin()
	if err != nil {
		return nil, nil, fmt.Errorf("load device table: %w", err)
	}
	dev, err := db.Lookup(deviceName)
	if err != nil {
		return nil, nil, err
	}

	session, err := updi.Open(port, baud, defaultReadTimeout, dev)
	if err != nil {
		return nil, nil, fmt.Errorf("open session: %w", err)
	}
	return session, dev, nil
}

func newInfoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Read and print the target's System Information Block and signature",
		RunE: func(cmd *cobra.Command, args []string) error {
			session, _, err := openTarget()
			if err != nil {
				return err
			}
			defer session.Close()

			fmt.Fprintf(os.Stdout, "family=%s nvm=%s ocd=%s osc=%s\n",
				session.SIB.Family, session.SIB.NVM, session.SIB.OCD, session.SIB.Osc)

			if err := session.EnterProgMode(); err != nil {
				return err
			}
			defer session.LeaveProgMode()

			sig, err := session.ReadSignature()
			if err != nil {
				return err
			}
			fmt.Fprintf(os.Stdout, "signature=%02X%02X%02X\n", sig[0], sig[1], sig[2])
			return nil
		},
	}
}

func newEraseCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "erase",
		Short: "Chip-erase the target",
		RunE: func(cmd *cobra.Command, args []string) error {
			session, _, err := openTarget()
			if err != nil {
				return err
			}
			defer session.Close()

			if err := session.EnterProgMode(); err != nil {
				return err
			}
			defer session.LeaveProgMode()
			return session.NVM().ChipErase()
		},
	}
}

func newWriteCmd() *cobra.Command {
	var addr uint32
	var file string
	cmd := &cobra.Command{
		Use:   "write",
		Short: "Write a binary file to flash starting at --addr",
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(file)
			if err != nil {
				return fmt.Errorf("read payload: %w", err)
			}

			session, _, err := openTarget()
			if err != nil {
				return err
			}
			defer session.Close()

			if err := session.EnterProgMode(); err != nil {
				return err
			}
			defer session.LeaveProgMode()
			return session.NVM().WriteFlash(addr, data)
		},
	}
	cmd.Flags().Uint32Var(&addr, "addr", 0, "destination flash address")
	cmd.Flags().StringVar(&file, "file", "", "binary payload to write")
	return cmd
}

func newReadCmd() *cobra.Command {
	var addr uint32
	var size int
	cmd := &cobra.Command{
		Use:   "read",
		Short: "Read memory from the target",
		RunE: func(cmd *cobra.Command, args []string) error {
			session, _, err := openTarget()
			if err != nil {
				return err
			}
			defer session.Close()

			if err := session.EnterProgMode(); err != nil {
				return err
			}
			defer session.LeaveProgMode()

			data, err := session.ReadData(addr, size)
			if err != nil {
				return err
			}
			_, err = os.Stdout.Write(data)
			return err
		},
	}
	cmd.Flags().Uint32Var(&addr, "addr", 0, "source address")
	cmd.Flags().IntVar(&size, "size", 0, "number of bytes to read")
	return cmd
}

func newUnlockCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "unlock",
		Short: "Unlock a locked device by chip erase using the erase key",
		RunE: func(cmd *cobra.Command, args []string) error {
			session, _, err := openTarget()
			if err != nil {
				return err
			}
			defer session.Close()
			return session.UnlockByChipErase()
		},
	}
}

func newDevicesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "devices",
		Short: "List known device names in the built-in device table",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := devicedb.Builtin()
			if err != nil {
				return err
			}
			for _, name := range db.Names() {
				fmt.Fprintln(os.Stdout, name)
			}
			return nil
		},
	}
}
