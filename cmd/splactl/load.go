package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sparsekit/spla/spla"
	"github.com/sparsekit/spla/spla/mtx"
)

func newLoadCmd() *cobra.Command {
	var blockSize int
	cmd := &cobra.Command{
		Use:   "load <matrix.mtx>",
		Short: "Load a Matrix Market file and report its shape and block layout",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			parsed, err := mtx.Read(f, 1.0)
			if err != nil {
				return err
			}

			lib, err := spla.New(spla.Config{
				DeviceType:   spla.DeviceCPU,
				DeviceAmount: spla.DeviceAmountOne,
				BlockSize:    blockSize,
			})
			if err != nil {
				return err
			}
			defer lib.Close()

			m, err := spla.MakeMatrix(lib, parsed.Rows, parsed.Cols, spla.TypeF64)
			if err != nil {
				return err
			}
			e := spla.NewExpression(lib)
			e.MakeDataWrite(m.Tensor, parsed.Data)
			if err := lib.Submit(e); err != nil {
				return err
			}
			e.Wait()
			if e.State() == spla.StateAborted {
				return e.Error()
			}

			fmt.Fprintf(cmd.OutOrStdout(), "shape\t%dx%d\n", m.Rows, m.Cols)
			fmt.Fprintf(cmd.OutOrStdout(), "nvals\t%d\n", m.Nvals())
			fmt.Fprintf(cmd.OutOrStdout(), "blocks\t%dx%d (block size %d)\n",
				(m.Rows+blockSize-1)/blockSize, (m.Cols+blockSize-1)/blockSize, blockSize)
			return nil
		},
	}
	cmd.Flags().IntVar(&blockSize, "block-size", 64, "block size for the library instance")
	return cmd
}

func newDevicesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "devices",
		Short: "List the compute devices a default library instance acquires",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			lib, err := spla.New(spla.Config{
				DeviceType:   spla.DeviceCPU,
				DeviceAmount: spla.DeviceAmountAll,
				BlockSize:    64,
			})
			if err != nil {
				return err
			}
			defer lib.Close()

			for _, d := range lib.Devices().Devices() {
				fmt.Fprintf(cmd.OutOrStdout(), "%d\t%s\t%s\n", d.ID, d.Name, strings.Join(d.Features, ","))
			}
			return nil
		},
	}
}
